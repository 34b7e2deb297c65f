package telemetry_test

import (
	"context"
	"fmt"

	"github.com/openfroyo/stowage/pkg/catalogue"
	"github.com/openfroyo/stowage/pkg/engine"
	"github.com/openfroyo/stowage/pkg/telemetry"
)

func Example() {
	tel, err := telemetry.NewTelemetry(telemetry.TestConfig())
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(e telemetry.Event) {
		fmt.Printf("%s %s -> %s\n", e.Type, e.ItemID, e.ContainerID)
	}, telemetry.FilterByTypePrefix("item."))

	store := catalogue.New()
	store.UpsertContainer(catalogue.Container{ID: "contA", Zone: "Crew Quarters", Width: 50, Depth: 40, Height: 60})
	store.UpsertItem(catalogue.Item{ID: "000001", Name: "Food Packet", Width: 10, Depth: 10, Height: 20, Mass: 5, Priority: 80, PreferredZone: "Crew Quarters"})

	eng, _ := engine.New(store, engine.WithObserver(tel.Observer()))

	ctx := tel.WithContext(context.Background())
	_ = telemetry.InstrumentOperation(ctx, engine.OpPlace, func(ctx context.Context) error {
		telemetry.LoggerFrom(ctx).Debug().Msg("placing")
		_, err := eng.Place(ctx, "000001")
		return err
	}, telemetry.AttrItemID.String("000001"))

	// Output: item.placed 000001 -> contA
}

func ExampleEventPublisher_Subscribe() {
	events, _ := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})

	events.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Message)
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	_ = events.PublishItemRetrieved("000001", "contA")
	_ = events.PublishMalformedExpiry("000002", "soon")

	// Output: Item 000002 has malformed expiry date "soon"
}

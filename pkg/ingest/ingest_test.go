package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/stowage/pkg/catalogue"
)

const containersCSV = `container_id,zone,width_cm,depth_cm,height_cm
contA,Crew Quarters,100,85,200
contB,Airlock,50,85.5,200
`

const itemsCSV = `item_id,name,width_cm,depth_cm,height_cm,mass_kg,priority,expiry_date,usage_limit,preferred_zone
000001,Food Packet,10,10,20,5,80,2025-05-20,30,Crew Quarters
000002,Oxygen Cylinder,15,15,50,30,95.0,N/A,100,Airlock

000003,First Aid Kit,20,20,10,2,100,2025-07-10,5,Medical Bay
`

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadItemsCSV(t *testing.T) {
	items, err := ReadItemsCSV(strings.NewReader(itemsCSV), "items.csv")
	if err != nil {
		t.Fatalf("ReadItemsCSV() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3 (blank row skipped)", len(items))
	}

	first := items[0]
	if first.ID != "000001" {
		t.Errorf("ID = %q, want leading zeros kept", first.ID)
	}
	if first.Mass != 5 || first.Priority != 80 || first.UsageLimit != 30 || first.PreferredZone != "Crew Quarters" {
		t.Errorf("first = %+v", first)
	}
	if items[1].Priority != 95 {
		t.Errorf("integral float priority = %d, want 95", items[1].Priority)
	}
	if items[1].ExpiryDate != catalogue.NoExpiry {
		t.Errorf("ExpiryDate = %q, want %q", items[1].ExpiryDate, catalogue.NoExpiry)
	}
}

func TestReadContainersCSV(t *testing.T) {
	containers, err := ReadContainersCSV(strings.NewReader("\ufeff"+containersCSV), "containers.csv")
	if err != nil {
		t.Fatalf("ReadContainersCSV() error = %v", err)
	}
	if len(containers) != 2 {
		t.Fatalf("len = %d, want 2", len(containers))
	}
	if containers[1].ID != "contB" || containers[1].Depth != 85.5 || containers[1].Zone != "Airlock" {
		t.Errorf("containers[1] = %+v", containers[1])
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		read     func(string) error
		wantMsg  string
		wantLine int
	}{
		{
			name:  "missing columns",
			input: "item_id,name,width_cm\n1,a,2\n",
			read: func(s string) error {
				_, err := ReadItemsCSV(strings.NewReader(s), "items.csv")
				return err
			},
			wantMsg:  "missing columns: depth_cm",
			wantLine: 1,
		},
		{
			name:  "bad number",
			input: "container_id,zone,width_cm,depth_cm,height_cm\ncontA,Z,1,1,1\ncontB,Z,wide,1,1\n",
			read: func(s string) error {
				_, err := ReadContainersCSV(strings.NewReader(s), "containers.csv")
				return err
			},
			wantMsg:  `invalid width_cm "wide"`,
			wantLine: 3,
		},
		{
			name:  "NaN mass",
			input: "item_id,name,width_cm,depth_cm,height_cm,mass_kg,priority,expiry_date,usage_limit,preferred_zone\n1,a,1,1,1,NaN,1,N/A,1,Z\n",
			read: func(s string) error {
				_, err := ReadItemsCSV(strings.NewReader(s), "items.csv")
				return err
			},
			wantMsg:  `invalid mass_kg "NaN"`,
			wantLine: 2,
		},
		{
			name:  "infinite width",
			input: "container_id,zone,width_cm,depth_cm,height_cm\ncontA,Z,+Inf,1,1\n",
			read: func(s string) error {
				_, err := ReadContainersCSV(strings.NewReader(s), "containers.csv")
				return err
			},
			wantMsg:  `invalid width_cm "+Inf"`,
			wantLine: 2,
		},
		{
			name:  "fractional priority",
			input: "item_id,name,width_cm,depth_cm,height_cm,mass_kg,priority,expiry_date,usage_limit,preferred_zone\n1,a,1,1,1,1,2.5,N/A,1,Z\n",
			read: func(s string) error {
				_, err := ReadItemsCSV(strings.NewReader(s), "items.csv")
				return err
			},
			wantMsg:  `invalid priority "2.5"`,
			wantLine: 2,
		},
		{
			name:  "empty file",
			input: "",
			read: func(s string) error {
				_, err := ReadContainersCSV(strings.NewReader(s), "containers.csv")
				return err
			},
			wantMsg: "missing header row",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read(tt.input)
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if !strings.Contains(ve.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want containing %q", ve.Message, tt.wantMsg)
			}
			if ve.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", ve.Line, tt.wantLine)
			}
		})
	}
}

func TestWriteItemsCSV_RoundTrip(t *testing.T) {
	items, err := ReadItemsCSV(strings.NewReader(itemsCSV), "items.csv")
	if err != nil {
		t.Fatal(err)
	}
	items[0].ExpiryDate = ""

	var buf strings.Builder
	if err := WriteItemsCSV(&buf, items); err != nil {
		t.Fatalf("WriteItemsCSV() error = %v", err)
	}

	again, err := ReadItemsCSV(strings.NewReader(buf.String()), "items.csv")
	if err != nil {
		t.Fatalf("re-read error = %v", err)
	}
	if again[0].ExpiryDate != catalogue.NoExpiry {
		t.Errorf("empty expiry written as %q, want %q", again[0].ExpiryDate, catalogue.NoExpiry)
	}
	if again[2].ID != "000003" || again[2].Mass != 2 {
		t.Errorf("again[2] = %+v", again[2])
	}
}

func TestReadItemsJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{name: "bare array", input: `[{"item_id":"000001","name":"a","width":1,"depth":1,"height":1,"mass":1,"container":"contA"}]`, want: 1},
		{name: "wrapped", input: `{"items":[{"item_id":"000001"},{"item_id":"000002"}]}`, want: 2},
		{name: "wrapped without key", input: `{"containers":[]}`, want: 0},
		{name: "empty", input: "  ", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ReadItemsJSON(strings.NewReader(tt.input), "items.json")
			if err != nil {
				t.Fatalf("ReadItemsJSON() error = %v", err)
			}
			if len(items) != tt.want {
				t.Fatalf("len = %d, want %d", len(items), tt.want)
			}
			for _, item := range items {
				if item.ContainerID != "" {
					t.Errorf("ContainerID = %q, want assignment discarded", item.ContainerID)
				}
			}
		})
	}
}

func TestReadContainersJSON_SyntaxError(t *testing.T) {
	_, err := ReadContainersJSON(strings.NewReader("[\n{\"container_id\": \"contA\",}\n]"), "containers.json")
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if ve.Line != 2 {
		t.Errorf("Line = %d, want 2", ve.Line)
	}
}

func TestSchemaRegistry_ValidateItems(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	if got := sr.Names(); len(got) != 2 || got[0] != SchemaContainer || got[1] != SchemaItem {
		t.Fatalf("Names() = %v", got)
	}

	good := catalogue.Item{ID: "000001", Name: "a", Width: 1, Depth: 1, Height: 1, Mass: 1, ExpiryDate: "2025-01-01"}
	noExpiry := catalogue.Item{ID: "000002", Name: "b", Width: 1, Depth: 1, Height: 1, Mass: 1, ExpiryDate: catalogue.NoExpiry}
	flat := catalogue.Item{ID: "000003", Name: "c", Width: 0, Depth: 1, Height: 1, Mass: 1}
	badExpiry := catalogue.Item{ID: "000004", Name: "d", Width: 1, Depth: 1, Height: 1, Mass: 1, ExpiryDate: "someday"}

	errs := sr.ValidateItems(ctx, []catalogue.Item{good, noExpiry, flat, badExpiry})
	if len(errs) != 2 {
		t.Fatalf("ValidateItems() = %v, want 2 errors", errs)
	}
	if errs[0].Record != 2 || errs[1].Record != 3 {
		t.Errorf("records = %d, %d; want 2, 3", errs[0].Record, errs[1].Record)
	}
	if !strings.Contains(errs[1].Message, `"000004"`) {
		t.Errorf("message = %q, want item id", errs[1].Message)
	}
}

func TestSchemaRegistry_ValidateContainers(t *testing.T) {
	sr := NewSchemaRegistry()
	errs := sr.ValidateContainers(context.Background(), []catalogue.Container{
		{ID: "contA", Zone: "Z", Width: 1, Depth: 1, Height: 1},
		{ID: "", Zone: "Z", Width: 1, Depth: 1, Height: 1},
	})
	if len(errs) != 1 || errs[0].Record != 1 {
		t.Fatalf("ValidateContainers() = %v", errs)
	}
}

func TestSchemaRegistry_UnknownSchema(t *testing.T) {
	sr := NewSchemaRegistry()
	if err := sr.Validate(context.Background(), "pallet", struct{}{}); err == nil {
		t.Fatal("expected error for unknown schema")
	}
}

func TestDecodeCUE(t *testing.T) {
	sr := NewSchemaRegistry()
	src := `
containers: [
	{container_id: "contA", zone: "Crew Quarters", width: 100, depth: 85, height: 200},
]
items: [
	{item_id: "000001", name: "Food Packet", width: 10, depth: 10, height: 20, mass: 5,
	 priority: 80, expiry_date: "2025-05-20", usage_limit: 30, preferred_zone: "Crew Quarters"},
]
`
	cat, err := sr.DecodeCUE([]byte(src), "catalogue.cue")
	if err != nil {
		t.Fatalf("DecodeCUE() error = %v", err)
	}
	if len(cat.Containers) != 1 || cat.Containers[0].Width != 100 {
		t.Errorf("containers = %+v", cat.Containers)
	}
	if len(cat.Items) != 1 || cat.Items[0].ID != "000001" || cat.Items[0].Priority != 80 {
		t.Errorf("items = %+v", cat.Items)
	}
}

func TestDecodeCUE_Errors(t *testing.T) {
	sr := NewSchemaRegistry()

	t.Run("syntax", func(t *testing.T) {
		_, err := sr.DecodeCUE([]byte("items: [\n"), "bad.cue")
		var errs ValidationErrors
		if !errors.As(err, &errs) || len(errs) == 0 {
			t.Fatalf("error = %v, want ValidationErrors", err)
		}
		if errs[0].File != "bad.cue" {
			t.Errorf("File = %q", errs[0].File)
		}
	})

	t.Run("schema", func(t *testing.T) {
		src := `containers: [
	{container_id: "contA", zone: "Z", width: 1, depth: 1, height: 1},
	{container_id: "contB", zone: "Z", width: -1, depth: 1, height: 1},
]`
		_, err := sr.DecodeCUE([]byte(src), "containers.cue")
		var errs ValidationErrors
		if !errors.As(err, &errs) || len(errs) == 0 {
			t.Fatalf("error = %v, want ValidationErrors", err)
		}
		for _, e := range errs {
			if e.Record != 1 {
				t.Errorf("Record = %d, want 1", e.Record)
			}
		}
	})
}

func TestLoader_LoadCatalogue(t *testing.T) {
	dir := t.TempDir()
	containers := writeFile(t, dir, "containers.csv", containersCSV)
	items := writeFile(t, dir, "items.json", `{"items":[{"item_id":"000001","name":"a","width":1,"depth":1,"height":1,"mass":1,"priority":1,"usage_limit":0,"preferred_zone":"Airlock"}]}`)

	l := NewLoader(testLogger(), true)
	cat, err := l.LoadCatalogue(context.Background(), containers, items)
	if err != nil {
		t.Fatalf("LoadCatalogue() error = %v", err)
	}
	if len(cat.Containers) != 2 || len(cat.Items) != 1 {
		t.Errorf("catalogue = %d containers, %d items", len(cat.Containers), len(cat.Items))
	}

	cat, err = l.LoadCatalogue(context.Background(), "", items)
	if err != nil || len(cat.Containers) != 0 {
		t.Errorf("skipped containers path: %v, %+v", err, cat)
	}
}

func TestLoader_SchemaCheck(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "items.csv", `item_id,name,width_cm,depth_cm,height_cm,mass_kg,priority,expiry_date,usage_limit,preferred_zone
000001,a,1,1,1,1,1,tomorrow,1,Z
`)

	if _, err := NewLoader(testLogger(), false).LoadItems(context.Background(), path); err != nil {
		t.Fatalf("unchecked LoadItems() error = %v", err)
	}

	_, err := NewLoader(testLogger(), true).LoadItems(context.Background(), path)
	var errs ValidationErrors
	if !errors.As(err, &errs) || len(errs) != 1 {
		t.Fatalf("checked LoadItems() error = %v, want one ValidationError", err)
	}
	if errs[0].File != path || errs[0].Record != 0 {
		t.Errorf("error = %+v", errs[0])
	}
}

func TestLoader_UnsupportedFormat(t *testing.T) {
	l := NewLoader(testLogger(), false)
	if _, err := l.LoadContainers(context.Background(), "containers.xlsx"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "containers.csv", containersCSV)
	writeFile(t, dir, "unrelated.txt", "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []string, 4)
	w := NewWatcher(testLogger(), 50*time.Millisecond, path)
	err := w.Start(ctx, func(_ context.Context, changed []string) error {
		reloaded <- changed
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = w.Stop() }()

	writeFile(t, dir, "unrelated.txt", "y")
	writeFile(t, dir, "containers.csv", containersCSV+"contC,Lab,1,1,1\n")

	select {
	case changed := <-reloaded:
		if len(changed) != 1 || changed[0] != path {
			t.Errorf("changed = %v, want [%s]", changed, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload not triggered")
	}
}

func TestFormatOf(t *testing.T) {
	tests := map[string]Format{
		"a.csv":       FormatCSV,
		"dir/b.JSON":  FormatJSON,
		"catalog.cue": FormatCUE,
	}
	for path, want := range tests {
		got, err := FormatOf(path)
		if err != nil || got != want {
			t.Errorf("FormatOf(%q) = %q, %v; want %q", path, got, err, want)
		}
	}
	if _, err := FormatOf("items.txt"); err == nil {
		t.Error("FormatOf(items.txt) should fail")
	}
}

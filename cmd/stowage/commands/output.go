package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/openfroyo/stowage/pkg/engine"
)

// emit writes v as indented JSON with --json, otherwise calls human.
func emit(v interface{}, human func()) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human()
	return nil
}

func marshalJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func printImport(label string, res *engine.ImportResult) {
	if res == nil {
		fmt.Printf("- %s: nothing to import\n", label)
		return
	}
	fmt.Printf("✓ %s: %d imported (%d new, %d replaced)\n", label, res.Imported, res.Created, res.Replaced)
	for _, ev := range res.Evicted {
		fmt.Printf("  evicted %s from %s: %s\n", ev.ItemID, ev.ContainerID, ev.Reason)
	}
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}

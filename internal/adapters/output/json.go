package output

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONPrinter prints JSON to stdout.
type JSONPrinter struct{}

// Print renders JSON output.
func (JSONPrinter) Print(v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(payload))
	return err
}

// PairingCode emits the code as a JSON line so scripted callers can parse it.
func (JSONPrinter) PairingCode(code string) {
	fmt.Fprintf(os.Stdout, "{\"pairingCode\": %q}\n", code)
}

package output

// Printer renders command results to stdout.
type Printer interface {
	Print(v any) error
	// PairingCode presents a Quick Connect code while login waits for
	// server-side approval.
	PairingCode(code string)
}

package ui

import (
	"os"

	"golang.org/x/term"
)

// StdoutIsTerminal reports whether stdout is attached to a terminal.
// CLI commands print human tables on a TTY and JSON otherwise, so output
// can be piped straight into jq or a report script.
func StdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

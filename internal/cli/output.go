package cli

import (
	"encoding/json"
	"io"
	"os"

	"golang.org/x/term"
)

// wantJSON reports whether a command should print JSON: when asked to, or
// when stdout is not a terminal.
func wantJSON(forced bool, out io.Writer) bool {
	if forced {
		return true
	}
	f, ok := out.(*os.File)
	return !ok || !term.IsTerminal(int(f.Fd()))
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

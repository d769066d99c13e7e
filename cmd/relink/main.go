// Command relink runs the adaptive reconnection daemon and its client commands.
package main

import (
	"fmt"
	"os"

	"relink/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

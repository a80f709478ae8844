// Command osm manages per-project calibration databases.
package main

import (
	"fmt"
	"os"

	"github.com/huckl3b3rry/osm/internal/ui"
)

func main() {
	cmd, a := newRootCmd()
	if err := a.execute(cmd); err != nil {
		fmt.Fprintln(os.Stderr, ui.Error(err))
		os.Exit(1)
	}
}

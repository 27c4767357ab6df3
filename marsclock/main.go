// Command marsclock runs the temporal backbone of a Mars settlement
// simulation on its own.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/mars-sim/mars-sim-sub082/marsclock/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

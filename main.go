// Command alertrelay runs one alert-dispatch pass against the results
// alerts table. It is designed to be invoked on a fixed schedule; a
// single run completes its fetched batch and exits.
package main

import (
	"fmt"
	"os"

	"alertrelay/cmd"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := cmd.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

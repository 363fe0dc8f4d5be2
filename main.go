// Command sngrep is the entry point for the headless SIP capture agent.
package main

import (
	"fmt"
	"os"

	"github.com/Lixeiden/sngrep/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/bmironenko/dnp3/cmd/dnp3-outstation/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Package main is the entry point for the streetpass scanner.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/streetpass/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

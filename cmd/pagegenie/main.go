// Package main provides the entry point for the pagegenie CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/pagegenie/cmd/pagegenie/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

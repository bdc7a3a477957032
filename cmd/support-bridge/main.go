// Package main is the entry point for the support bridge.
package main

import (
	"os"

	"github.com/kart-io/support-bridge/cmd/support-bridge/app"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Package-level color variables
var (
	colorInfo    = color.New(color.FgCyan)
	colorSuccess = color.New(color.FgGreen)
	colorWarning = color.New(color.FgYellow)
	colorError   = color.New(color.FgRed)
)

func init() {
	// Disable colors when output is redirected.
	color.NoColor = !isatty.IsTerminal(os.Stdout.Fd())
}

func isTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

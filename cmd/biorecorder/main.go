// Package main provides the biorecorder CLI application.
//
// Biorecorder records synchronized multi-modal biosignal sessions (EEG,
// BLE heart rate, BLE skin conductance and camera video) together with
// derived stress and attention metrics, and inspects the recorded data.
package main

import (
	"errors"
	"fmt"
	"os"
)

// Version information, set at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// errNoValidOutput is returned by record when no channel completed cleanly.
var errNoValidOutput = errors.New("no channel produced valid output")

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if errors.Is(err, errNoValidOutput) {
		return 2
	}
	return 1
}

// Package sys provides system utilities with the same API across OSes.
package sys

import (
	"os"
	"os/signal"

	"github.com/mattn/go-isatty"
)

const sigsChanBufferSize = 8

// IsATTY determines whether the given file is a terminal.
func IsATTY(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NotifyInterrupt returns a channel on which interrupt signals get delivered,
// and a function that stops the delivery.
func NotifyInterrupt() (<-chan os.Signal, func()) {
	sigCh := make(chan os.Signal, sigsChanBufferSize)
	signal.Notify(sigCh, os.Interrupt)
	return sigCh, func() { signal.Stop(sigCh) }
}

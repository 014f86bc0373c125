//go:build !windows

package mcp

import (
	"os"
	"syscall"
)

// stopSignals end a stdio session. Clients usually close stdin instead.
var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}

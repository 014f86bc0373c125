//go:build windows

package mcp

import "os"

var stopSignals = []os.Signal{os.Interrupt}

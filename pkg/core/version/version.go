// ============================================================================
// tempo-go - Go client for Tempo simulation services
// ============================================================================
//
// Package:     version
// Description: Version information for the client library and tempoctl
// License:     MIT
// ============================================================================

package version

import (
	"fmt"
	"runtime"
)

// Version constants for the client components
const (
	// Client is the version of the tempo client library
	Client = "0.1.0"

	// Tempoctl is the version of the command line tool
	Tempoctl = "0.1.0"
)

// Commit and BuildDate are set through -ldflags at release time
var (
	Commit    = "unknown"
	BuildDate = "unknown"
)

// ComponentVersion returns the version for a given component name
func ComponentVersion(name string) string {
	switch name {
	case "tempoctl":
		return Tempoctl
	default:
		return Client
	}
}

// String returns a one-line build description
func String(component string) string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s %s/%s)",
		component, ComponentVersion(component), Commit, BuildDate,
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Package version exposes build metadata, set at link time with
// -ldflags "-X lsp-tester/src/internal/version.Version=...".
package version

import (
	"fmt"
	"runtime"
	"strings"

	"go.lsp.dev/protocol"

	"lsp-tester/src/internal/constants"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func GetVersion() string {
	return Version
}

// ClientInfo is what the harness announces in initialize
func ClientInfo() *protocol.ClientInfo {
	return &protocol.ClientInfo{Name: constants.ClientName, Version: Version}
}

// GetFullVersionInfo is the verbose `version -v` output
func GetFullVersionInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", constants.ClientName, Version)
	fmt.Fprintf(&b, "  commit:   %s\n", GitCommit)
	fmt.Fprintf(&b, "  built:    %s\n", BuildDate)
	fmt.Fprintf(&b, "  go:       %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "  protocol: LSP 3.15 (go.lsp.dev/protocol)")
	return b.String()
}

// Package version reports the client identity advertised over RPC.
package version

import "fmt"

const (
	ClientName = "go-load"
	// ClientCode is the two-letter client code used by getClientVersionV1.
	ClientCode = "GL"
)

// Set at build time with -ldflags "-X github.com/rony4d/go-load/version.GitCommit=...".
var (
	Version   = "0.1.0"
	GitCommit = ""
)

func shortCommit() string {
	if len(GitCommit) >= 8 {
		return GitCommit[:8]
	}
	if GitCommit == "" {
		return "unknown"
	}
	return GitCommit
}

// String returns the client version string, e.g. go-load/v0.1.0-1a2b3c4d.
func String() string {
	return fmt.Sprintf("%s/v%s-%s", ClientName, Version, shortCommit())
}

// Commit returns the full commit hash as 0x-prefixed hex, or 0x0 when the
// build carries none.
func Commit() string {
	if GitCommit == "" {
		return "0x0"
	}
	return "0x" + GitCommit
}

// Package version records the build identity of the symdict binary.
package version

// Version is the semantic version of the binary. Set at build time via
// -ldflags "-X github.com/Sumatoshi-tech/symdict/pkg/version.Version=...".
var Version = "dev"

// GitHash is the Git commit hash of the binary file which is executing.
// Set at build time via -ldflags.
var GitHash = "<unknown>"

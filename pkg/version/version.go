// Package version exposes the build version, overridable at link time via
// -ldflags "-X github.com/hivemind-ai/hivemind/pkg/version.Version=...".
package version

// Version is the build version string.
var Version = "dev"

package config

// Version is the current toolchain version.
// Set at build time via -ldflags "-X .../internal/config.Version=...".
var Version = "0.3.0"

// SourceFileExt is the canonical source file extension.
const SourceFileExt = ".gw"

// StdlibPrefix marks import paths that resolve against the stdlib root first.
const StdlibPrefix = "std/"

// Backend names accepted by the CLI and the project manifest.
const (
	BackendTree   = "tree"
	BackendVM     = "vm"
	BackendNative = "native"
)

// HasSourceExt returns true if the path ends with the source extension.
func HasSourceExt(path string) bool {
	return len(path) >= len(SourceFileExt) &&
		path[len(path)-len(SourceFileExt):] == SourceFileExt
}

// TrimSourceExt removes the source extension from a filename, if present.
func TrimSourceExt(name string) string {
	if HasSourceExt(name) {
		return name[:len(name)-len(SourceFileExt)]
	}
	return name
}

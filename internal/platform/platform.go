// Package platform identifies which release asset applies to a host.
//
// A Triple is (OS, CPU architecture, libc variant). OS and Arch use Go
// runtime names; Libc is "gnu" or "musl" on Linux and empty elsewhere.
// The release registry names assets with Rust-style target triples
// (e.g. "x86_64-unknown-linux-gnu"), so this package also maps between
// the two forms.
package platform

import (
	"fmt"
	"runtime"
)

// Triple identifies a target platform.
type Triple struct {
	OS   string // "linux", "darwin", "windows"
	Arch string // "amd64", "arm64"
	Libc string // "gnu", "musl", or "" for non-Linux
}

// Host returns the detected platform of the current process.
// On Linux the libc variant is probed from the system's ELF
// interpreter; other OSes carry no libc component.
func Host() Triple {
	t := Triple{OS: runtime.GOOS, Arch: runtime.GOARCH}
	if t.OS == "linux" {
		t.Libc = DetectLibc()
	}
	return t
}

// String renders the triple for display and log output.
func (t Triple) String() string {
	if t.Libc == "" {
		return t.OS + "/" + t.Arch
	}
	return t.OS + "/" + t.Arch + "/" + t.Libc
}

// Key renders the triple as a filesystem-safe cache key component.
func (t Triple) Key() string {
	if t.Libc == "" {
		return t.OS + "-" + t.Arch
	}
	return t.OS + "-" + t.Arch + "-" + t.Libc
}

// SameMachine reports whether two triples name the same (OS, arch)
// pair, ignoring the libc variant.
func (t Triple) SameMachine(other Triple) bool {
	return t.OS == other.OS && t.Arch == other.Arch
}

// targetTriples maps registry target-triple strings onto platform
// triples. The registry publishes one archive per entry here; triples
// absent from this table are ignored when indexing release assets.
var targetTriples = map[string]Triple{
	"x86_64-unknown-linux-gnu":   {OS: "linux", Arch: "amd64", Libc: "gnu"},
	"x86_64-unknown-linux-musl":  {OS: "linux", Arch: "amd64", Libc: "musl"},
	"aarch64-unknown-linux-gnu":  {OS: "linux", Arch: "arm64", Libc: "gnu"},
	"aarch64-unknown-linux-musl": {OS: "linux", Arch: "arm64", Libc: "musl"},
	"x86_64-apple-darwin":        {OS: "darwin", Arch: "amd64"},
	"aarch64-apple-darwin":       {OS: "darwin", Arch: "arm64"},
	"x86_64-pc-windows-msvc":     {OS: "windows", Arch: "amd64"},
}

// ParseTargetTriple maps a registry target-triple string onto a
// Triple. The second return value is false for unrecognized triples.
func ParseTargetTriple(s string) (Triple, bool) {
	t, ok := targetTriples[s]
	return t, ok
}

// TargetTriple renders the triple in the registry's naming scheme.
// Returns an error for combinations the registry does not publish.
func (t Triple) TargetTriple() (string, error) {
	for name, candidate := range targetTriples {
		if candidate == t {
			return name, nil
		}
	}
	return "", fmt.Errorf("no target triple for platform %s", t)
}

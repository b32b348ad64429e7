package platform

import (
	"bytes"
	"debug/elf"
	"path/filepath"
	"strings"
)

// DetectLibc returns the libc variant of the current Linux system,
// "musl" or "gnu".
//
// Detection reads the ELF interpreter of /bin/sh, which definitively
// identifies what dynamically-linked binaries on this system use.
// Falls back to probing for the musl dynamic linker if /bin/sh cannot
// be parsed.
func DetectLibc() string {
	if libc := libcFromBinary("/bin/sh"); libc != "" {
		return libc
	}
	return detectLibcWithRoot("")
}

// libcFromBinary reads the ELF interpreter from a binary. Returns
// "musl" if the interpreter names musl, "gnu" for other Linux
// interpreters, or "" if detection fails.
func libcFromBinary(path string) string {
	f, err := elf.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	for _, prog := range f.Progs {
		if prog.Type == elf.PT_INTERP {
			data := make([]byte, prog.Filesz)
			if _, err := prog.ReadAt(data, 0); err != nil {
				return ""
			}
			interp := string(bytes.TrimRight(data, "\x00"))
			if strings.Contains(interp, "musl") {
				return "musl"
			}
			return "gnu"
		}
	}
	// Static binary, no PT_INTERP to inspect.
	return ""
}

// detectLibcWithRoot probes for the musl dynamic linker under root.
// An empty root uses the real filesystem root.
func detectLibcWithRoot(root string) string {
	// Matches ld-musl-x86_64.so.1, ld-musl-aarch64.so.1, etc.
	pattern := filepath.Join(root, "lib", "ld-musl-*.so.1")
	matches, _ := filepath.Glob(pattern)
	if len(matches) > 0 {
		return "musl"
	}
	return "gnu"
}

// Package command builds invocations of the binaries shipped inside
// an extracted distribution. It produces the program path, argv and
// environment; running the process is left to the caller.
package command

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Builder assembles a single invocation. Flags keep the order they
// were added in; PostgreSQL tools care about it for repeated options.
type Builder struct {
	binDir  string
	program string
	args    []string
	env     []string
}

// New creates a Builder for program, resolved against the binary
// directory of an extracted distribution.
func New(binDir, program string) *Builder {
	return &Builder{binDir: binDir, program: program}
}

// Flag appends a bare flag, e.g. --follow.
func (b *Builder) Flag(name string) *Builder {
	b.args = append(b.args, name)
	return b
}

// FlagValue appends a flag with its value as separate argv entries,
// e.g. --limit 10.
func (b *Builder) FlagValue(name, value string) *Builder {
	b.args = append(b.args, name, value)
	return b
}

// Arg appends a positional argument.
func (b *Builder) Arg(value string) *Builder {
	b.args = append(b.args, value)
	return b
}

// Env appends a KEY=VALUE environment entry for the invocation.
func (b *Builder) Env(key, value string) *Builder {
	b.env = append(b.env, key+"="+value)
	return b
}

// Program returns the full path to the executable.
func (b *Builder) Program() string {
	name := b.program
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		name += ".exe"
	}
	if b.binDir == "" {
		return name
	}
	return filepath.Join(b.binDir, name)
}

// Args returns the argument list, without the program name.
func (b *Builder) Args() []string {
	out := make([]string, len(b.args))
	copy(out, b.args)
	return out
}

// Environ returns the extra environment entries for the invocation.
func (b *Builder) Environ() []string {
	out := make([]string, len(b.env))
	copy(out, b.env)
	return out
}

// Command materializes an exec.Cmd bound to ctx. The builder's
// environment entries are appended to the parent process environment.
func (b *Builder) Command(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, b.Program(), b.Args()...)
	if len(b.env) > 0 {
		cmd.Env = append(cmd.Environ(), b.env...)
	}
	return cmd
}

// String renders the invocation for logs.
func (b *Builder) String() string {
	return fmt.Sprintf("%s %v", b.Program(), b.Args())
}

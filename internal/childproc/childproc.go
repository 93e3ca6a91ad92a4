// Package childproc builds argv for, and executes, the opaque front-end
// and linker child processes (spec §4.12). The coordinator never parses
// or links in-process; every compiler invocation is a subprocess with a
// documented flag contract.
package childproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Phase selects which front-end mode a child process runs in.
type Phase string

const (
	PhasePreamble Phase = "-cppl-preamble"
	PhaseImport   Phase = "-cppl-import"
	PhaseDecl     Phase = "-cppl-decl"
	PhaseObj      Phase = "-cppl-obj"
)

// CommonArgs are the flags present on every front-end invocation,
// regardless of phase (spec §6 "Child-process argv (contract, not
// source syntax)").
type CommonArgs struct {
	SrcRoot   string
	UnitID    string
	MetaPath  string
	Output    string
	Includes  []string // -I<path>, repeatable
	ExtraArgs []string // already-tokenized -FH/-FP/-FC/-FL extra args
}

func (c CommonArgs) argv(phase Phase) []string {
	argv := []string{
		string(phase),
		fmt.Sprintf("-cppl-src-root=%s", c.SrcRoot),
		fmt.Sprintf("-cppl-unit-id=%s", c.UnitID),
		fmt.Sprintf("-cppl-meta=%s", c.MetaPath),
	}
	for _, inc := range c.Includes {
		argv = append(argv, "-I"+inc)
	}
	return argv
}

// PreambleArgv builds argv for a precompiled-preamble build.
func PreambleArgv(c CommonArgs, source, stdlib string) []string {
	argv := c.argv(PhasePreamble)
	if stdlib != "" {
		argv = append(argv, fmt.Sprintf("-stdlib=%s", stdlib))
	}
	argv = append(argv, c.ExtraArgs...)
	argv = append(argv, source, "-o", c.Output)
	return argv
}

// ImportArgv builds argv for a parse-imports-only invocation (spec §4.10
// step 3): the front-end emits a parsed-imports record without building
// an artifact.
func ImportArgv(c CommonArgs, source string) []string {
	argv := c.argv(PhaseImport)
	argv = append(argv, c.ExtraArgs...)
	argv = append(argv, source, "-o", c.Output)
	return argv
}

// DeclArgv builds argv for a declaration-artifact build. dependencies are
// the node's transitive declaration-artifact paths, each passed as its
// own -cppl-include-dependency flag. suppressWarnings is set when the
// same unit will also be compiled for its definition, to avoid duplicate
// diagnostics (spec §4.10 step 5).
func DeclArgv(c CommonArgs, source, stdlib, preamble string, dependencies []string, suppressWarnings bool) []string {
	argv := c.argv(PhaseDecl)
	if stdlib != "" {
		argv = append(argv, fmt.Sprintf("-stdlib=%s", stdlib))
	}
	if preamble != "" {
		argv = append(argv, fmt.Sprintf("-cppl-include-preamble=%s", preamble))
	}
	for _, dep := range dependencies {
		argv = append(argv, fmt.Sprintf("-cppl-include-dependency=%s", dep))
	}
	if suppressWarnings {
		argv = append(argv, "-cppl-suppress-warnings")
	}
	argv = append(argv, c.ExtraArgs...)
	argv = append(argv, source, "-o", c.Output)
	return argv
}

// ObjArgv builds argv for an object-artifact build.
func ObjArgv(c CommonArgs, source, stdlib, preamble string, dependencies []string) []string {
	argv := c.argv(PhaseObj)
	if stdlib != "" {
		argv = append(argv, fmt.Sprintf("-stdlib=%s", stdlib))
	}
	if preamble != "" {
		argv = append(argv, fmt.Sprintf("-cppl-include-preamble=%s", preamble))
	}
	for _, dep := range dependencies {
		argv = append(argv, fmt.Sprintf("-cppl-include-dependency=%s", dep))
	}
	argv = append(argv, c.ExtraArgs...)
	argv = append(argv, source, "-o", c.Output)
	return argv
}

// LinkArgv builds argv for the final link (spec §4.10 step 6): every
// project-unit object path, the linker's own extra args (-FL), and the
// output executable path.
func LinkArgv(objects []string, output string, extraArgs []string) []string {
	argv := make([]string, 0, len(objects)+len(extraArgs)+2)
	argv = append(argv, objects...)
	argv = append(argv, extraArgs...)
	argv = append(argv, "-o", output)
	return argv
}

// Result is a finished child process's captured output and exit code. A
// non-zero ExitCode is not itself a Go error: spec §4.13 treats it as a
// build failure the caller records and reacts to, not a host-side fault.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Run executes bin with argv and captures its output. The returned error
// is non-nil only when the process could not be started or awaited at
// all (e.g. bin not found); a non-zero exit status is reported via
// Result.ExitCode instead.
func Run(ctx context.Context, bin string, argv []string) (Result, error) {
	cmd := exec.CommandContext(ctx, bin, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, err
	}
}

package cppl

import "fmt"

// ArgumentError is spec §7's ArgumentError taxonomy entry: a malformed or
// missing required option. The CLI driver reports it once and exits 1.
type ArgumentError struct {
	Message string
}

func (e ArgumentError) Error() string {
	return fmt.Sprintf("argument error: %s", e.Message)
}

// Options configures one coordinator run. Every field except FrontEnd and
// Linker maps 1:1 to a §6 CLI flag; cmd/cppl-build is responsible for parsing flags into this
// struct, nothing more.
type Options struct {
	ProjectRoot string // -root=<dir>
	BuildRoot   string // -buildRoot=<dir>

	PreamblePath string // -preamble=<path>; empty disables the preamble build

	Output       string // -o <path>: executable path; not used when LinkDisabled (objects stay under BuildRoot)
	LinkDisabled bool   // -c

	HeaderOutDir        string // -h=<dir>; empty disables header generation
	DeclSurrogateOutDir string // -decl-out=<dir>; empty disables surrogate generation

	Jobs   int    // -j<N>
	Stdlib string // -stdlib=<name>

	LibRoots []string // +I<path>, repeatable
	Includes []string // -I<path>, repeatable

	ExtraArgsPreamble []string // -FH <args>, tokenized
	ExtraArgsParse    []string // -FP <args>, tokenized
	ExtraArgsCodegen  []string // -FC <args>, tokenized
	ExtraArgsLink     []string // -FL <args>, tokenized

	Verbose bool
	Trace   bool
	DryRun  bool // -### / --dry-run

	// FrontEnd and Linker name the child-process binaries invoked for
	// front-end phases and the final link. Not part of §6's table (the
	// spec treats these as opaque collaborators found however the
	// embedding environment configures them); defaulted by
	// DefaultOptions and overridable for tests.
	FrontEnd string
	Linker   string
}

// DefaultOptions returns the Options a bare invocation (no flags beyond
// defaults) should use.
func DefaultOptions() Options {
	return Options{
		ProjectRoot: ".",
		BuildRoot:   "./build",
		Jobs:        1,
		FrontEnd:    "cppl-frontend",
		Linker:      "cppl-link",
	}
}

// Validate checks Options for the argument errors the CLI must reject
// before starting a run (spec §7 ArgumentError).
func (o Options) Validate() error {
	if o.ProjectRoot == "" {
		return ArgumentError{Message: "project root must not be empty"}
	}
	if o.BuildRoot == "" {
		return ArgumentError{Message: "build root must not be empty"}
	}
	if o.Jobs < 1 {
		return ArgumentError{Message: "jobs must be at least 1"}
	}
	if !o.LinkDisabled && o.Output == "" {
		return ArgumentError{Message: "-o is required when link is enabled"}
	}
	if o.FrontEnd == "" {
		return ArgumentError{Message: "front-end binary must not be empty"}
	}
	if !o.LinkDisabled && o.Linker == "" {
		return ArgumentError{Message: "linker binary must not be empty"}
	}
	return nil
}

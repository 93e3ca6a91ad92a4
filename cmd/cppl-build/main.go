// Command cppl-build is the CLI driver for the coordinator: it parses the
// flag table from spec §6, wires the front-end/linker and logger, and
// runs one build.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kaomoneus/cppl"
	"github.com/kaomoneus/cppl/internal/childproc"
)

func main() {
	os.Exit(Main(os.Args[1:]))
}

// Main runs the CLI against rawArgs and returns the process exit code
// (spec §6: 0 success, 1 argument error, 2 build failure).
func Main(rawArgs []string) int {
	opts := cppl.DefaultOptions()
	var extra rawExtraArgs
	exitCode := 0

	cmd := &cobra.Command{
		Use:           "cppl-build",
		Short:         "Coordinate a cppl build: parse imports, solve the dependency graph, drive the front end and linker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			opts.ExtraArgsPreamble = tokenizeExtra(extra.preamble)
			opts.ExtraArgsParse = tokenizeExtra(extra.parse)
			opts.ExtraArgsCodegen = tokenizeExtra(extra.codegen)
			opts.ExtraArgsLink = tokenizeExtra(extra.link)

			if err := opts.Validate(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				exitCode = 1
				return nil
			}

			// A dry run's argv lines are logged at Info level.
			log, err := newLogger(opts.Verbose || opts.DryRun, opts.Trace)
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			coord := cppl.NewCoordinator(opts, log, cppl.CoordinatorHooks{})
			exitCode = coord.Run(context.Background())
			return nil
		},
	}

	registerFlags(cmd, &opts, &extra)
	cmd.SetArgs(normalizeArgs(rawArgs))

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}

// rawExtraArgs holds the untokenized -FH/-FP/-FC/-FL strings until after
// flag parsing, since each is a single blob the tokenizer (spec §4.12)
// splits into argv entries, not a cobra-native repeatable flag.
type rawExtraArgs struct {
	preamble string
	parse    string
	codegen  string
	link     string
}

func registerFlags(cmd *cobra.Command, opts *cppl.Options, extra *rawExtraArgs) {
	f := cmd.Flags()
	f.StringVar(&opts.ProjectRoot, "root", opts.ProjectRoot, "project source root")
	f.StringVar(&opts.BuildRoot, "build-root", opts.BuildRoot, "build root")
	f.StringVar(&opts.PreamblePath, "preamble", "", "precompiled preamble source path (enables the preamble build)")
	f.StringVar(&opts.Output, "o", "", "output executable path (not used with --no-link; objects stay under the build root)")
	f.BoolVar(&opts.LinkDisabled, "no-link", false, "disable the link phase; emit library artifacts")
	f.StringVar(&opts.HeaderOutDir, "header-out", "", "directory to write generated headers for public declarations into")
	f.StringVar(&opts.DeclSurrogateOutDir, "decl-out", "", "directory to write generated declaration surrogates into")
	f.IntVar(&opts.Jobs, "jobs", opts.Jobs, "parallel jobs")
	f.StringVar(&opts.Stdlib, "stdlib", "", "stdlib identifier passed to the front end")
	f.StringArrayVar(&opts.LibRoots, "lib-root", nil, "external library source root (repeatable)")
	f.StringArrayVar(&opts.Includes, "include", nil, "include search path (repeatable)")
	f.StringVar(&extra.preamble, "extra-preamble-args", "", "extra args for the preamble build")
	f.StringVar(&extra.parse, "extra-parse-args", "", "extra args for parse-imports children")
	f.StringVar(&extra.codegen, "extra-codegen-args", "", "extra args for decl/obj children")
	f.StringVar(&extra.link, "extra-link-args", "", "extra args for the linker")
	f.BoolVar(&opts.Verbose, "verbose", false, "verbose logging")
	f.BoolVar(&opts.Trace, "trace", false, "trace-level logging")
	f.BoolVar(&opts.DryRun, "dry-run", false, "print every child argv that would run, without running it")
	f.StringVar(&opts.FrontEnd, "front-end", opts.FrontEnd, "front-end binary to invoke")
	f.StringVar(&opts.Linker, "linker", opts.Linker, "linker binary to invoke")
}

func tokenizeExtra(s string) []string {
	if s == "" {
		return nil
	}
	return childproc.ExecArgs(childproc.Tokenize(s))
}

func newLogger(verbose, trace bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch {
	case trace:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case verbose:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	return cfg.Build()
}

// normalizeArgs rewrites spec §6's compiler-style flag syntax (attached
// values, "+I"/"-I" prefixes, "-j<N>") into the long "--flag=value" form
// registerFlags defines, so cobra/pflag never has to parse the exotic
// forms directly.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]

		switch {
		case strings.HasPrefix(a, "-root="):
			out = append(out, "--root="+strings.TrimPrefix(a, "-root="))
		case strings.HasPrefix(a, "-buildRoot="):
			out = append(out, "--build-root="+strings.TrimPrefix(a, "-buildRoot="))
		case strings.HasPrefix(a, "-preamble="):
			out = append(out, "--preamble="+strings.TrimPrefix(a, "-preamble="))
		case a == "-o" && i+1 < len(args):
			i++
			out = append(out, "--o="+args[i])
		case a == "-c":
			out = append(out, "--no-link")
		case strings.HasPrefix(a, "-h="):
			out = append(out, "--header-out="+strings.TrimPrefix(a, "-h="))
		case strings.HasPrefix(a, "-decl-out="):
			out = append(out, "--decl-out="+strings.TrimPrefix(a, "-decl-out="))
		case strings.HasPrefix(a, "-j"):
			out = append(out, "--jobs="+strconv.Itoa(parseJobs(strings.TrimPrefix(a, "-j"))))
		case strings.HasPrefix(a, "-stdlib="):
			out = append(out, "--stdlib="+strings.TrimPrefix(a, "-stdlib="))
		case strings.HasPrefix(a, "+I"):
			out = append(out, "--lib-root="+strings.TrimPrefix(a, "+I"))
		case strings.HasPrefix(a, "-I") && a != "-I":
			out = append(out, "--include="+strings.TrimPrefix(a, "-I"))
		case a == "-FH" && i+1 < len(args):
			i++
			out = append(out, "--extra-preamble-args="+args[i])
		case a == "-FP" && i+1 < len(args):
			i++
			out = append(out, "--extra-parse-args="+args[i])
		case a == "-FC" && i+1 < len(args):
			i++
			out = append(out, "--extra-codegen-args="+args[i])
		case a == "-FL" && i+1 < len(args):
			i++
			out = append(out, "--extra-link-args="+args[i])
		case a == "-###":
			out = append(out, "--dry-run")
		default:
			out = append(out, a)
		}
	}
	return out
}

func parseJobs(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

package childproc

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeclArgvIncludesDependenciesAndSuppressFlag(t *testing.T) {
	common := CommonArgs{
		SrcRoot:  "/proj",
		UnitID:   "pkg::UnitB",
		MetaPath: "/build/pkg/UnitB.decl-ast.meta",
		Output:   "/build/pkg/UnitB.decl-ast",
		Includes: []string{"/proj/include"},
	}
	argv := DeclArgv(common, "/proj/pkg/UnitB.cppl", "libc++", "/build/preamble.pch",
		[]string{"/build/pkg/UnitA.decl-ast"}, true)

	require.Equal(t, string(PhaseDecl), argv[0])
	require.Contains(t, argv, "-cppl-src-root=/proj")
	require.Contains(t, argv, "-cppl-unit-id=pkg::UnitB")
	require.Contains(t, argv, "-cppl-meta=/build/pkg/UnitB.decl-ast.meta")
	require.Contains(t, argv, "-I/proj/include")
	require.Contains(t, argv, "-stdlib=libc++")
	require.Contains(t, argv, "-cppl-include-preamble=/build/preamble.pch")
	require.Contains(t, argv, "-cppl-include-dependency=/build/pkg/UnitA.decl-ast")
	require.Contains(t, argv, "-cppl-suppress-warnings")
	require.Contains(t, argv, "/proj/pkg/UnitB.cppl")
	require.Equal(t, "-o", argv[len(argv)-2])
	require.Equal(t, "/build/pkg/UnitB.decl-ast", argv[len(argv)-1])
}

func TestObjArgvOmitsSuppressFlag(t *testing.T) {
	common := CommonArgs{SrcRoot: "/proj", UnitID: "pkg::UnitA", MetaPath: "/build/pkg/UnitA.o.meta", Output: "/build/pkg/UnitA.o"}
	argv := ObjArgv(common, "/proj/pkg/UnitA.cppl", "", "", nil)
	for _, a := range argv {
		require.NotEqual(t, "-cppl-suppress-warnings", a)
	}
	require.Equal(t, string(PhaseObj), argv[0])
}

func TestLinkArgvOrdersObjectsThenExtraThenOutput(t *testing.T) {
	argv := LinkArgv([]string{"a.o", "b.o"}, "a.out", []string{"-lpthread"})
	require.Equal(t, []string{"a.o", "b.o", "-lpthread", "-o", "a.out"}, argv)
}

func TestPreambleArgvStructure(t *testing.T) {
	common := CommonArgs{SrcRoot: "/proj", UnitID: "preamble", MetaPath: "/build/preamble.pch.meta", Output: "/build/preamble.pch"}
	argv := PreambleArgv(common, "/proj/preamble.h", "libc++")
	require.Equal(t, string(PhasePreamble), argv[0])
	require.Contains(t, argv, "-stdlib=libc++")
	require.Contains(t, argv, "/proj/preamble.h")
}

func TestRunCapturesExitCodeWithoutError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a posix shell")
	}
	res, err := Run(context.Background(), "/bin/sh", []string{"-c", "echo out; echo err >&2; exit 3"})
	require.NoError(t, err)
	require.Equal(t, 3, res.ExitCode)
	require.Contains(t, string(res.Stdout), "out")
	require.Contains(t, string(res.Stderr), "err")
}

func TestRunReturnsErrorWhenBinaryMissing(t *testing.T) {
	_, err := Run(context.Background(), "/no/such/binary-cppl-front-end", nil)
	require.Error(t, err)
}

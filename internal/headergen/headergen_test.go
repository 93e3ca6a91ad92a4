package headergen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kaomoneus/cppl/internal/metafile"
)

func TestGenerateSkipRemovesRange(t *testing.T) {
	src := []byte("struct A { private_field_comment int x; };")
	frags := []metafile.Fragment{
		{Start: 11, End: 33, Action: metafile.Skip}, // "private_field_comment "
	}
	out := Generate(src, frags, HeaderMode, nil, "")
	require.Equal(t, "struct A { int x; };", string(out))
}

func TestGenerateSkipInHeaderOnlyKeptInSurrogate(t *testing.T) {
	src := []byte("struct A { body(); };")
	frags := []metafile.Fragment{
		{Start: 11, End: 19, Action: metafile.SkipInHeaderOnly}, // "body(); "
	}
	header := Generate(src, frags, HeaderMode, nil, "")
	surrogate := Generate(src, frags, SurrogateMode, nil, "")
	require.Equal(t, "struct A { };", string(header))
	require.Equal(t, "struct A { body(); };", string(surrogate))
}

func TestGenerateReplaceWithSemicolon(t *testing.T) {
	src := []byte("struct A { void f() { return; } };")
	frags := []metafile.Fragment{
		{Start: 20, End: 31, Action: metafile.ReplaceWithSemicolon}, // "{ return; }"
	}
	out := Generate(src, frags, HeaderMode, nil, "")
	require.Equal(t, "struct A { void f() ; };", string(out))
}

func TestGeneratePutExternIsZeroWidth(t *testing.T) {
	src := []byte("int global_var;")
	frags := []metafile.Fragment{
		{Start: 0, End: 0, Action: metafile.PutExtern},
	}
	out := Generate(src, frags, HeaderMode, nil, "")
	require.Equal(t, "extern int global_var;", string(out))
}

func TestGenerateStartUnitInsertsHeaderIncludes(t *testing.T) {
	src := []byte("struct B { A dep; };")
	frags := []metafile.Fragment{
		{Start: 0, End: 0, Action: metafile.StartUnit},
		{Start: 20, End: 20, Action: metafile.EndUnitEOF},
	}
	deps := []Dependency{{UnitID: "pkg::UnitA", RelPath: "pkg/UnitA.h"}}
	out := Generate(src, frags, HeaderMode, deps, "")
	require.Equal(t, "#include \"pkg/UnitA.h\"\nstruct B { A dep; };", string(out))
}

func TestGenerateStartUnitInsertsSurrogateImports(t *testing.T) {
	src := []byte("struct B { A dep; };")
	frags := []metafile.Fragment{
		{Start: 0, End: 0, Action: metafile.StartUnitFirstDecl},
	}
	deps := []Dependency{{UnitID: "pkg::UnitA", RelPath: "pkg/UnitA.h"}}
	out := Generate(src, frags, SurrogateMode, deps, "")
	require.Equal(t, "#import pkg::UnitA;\nstruct B { A dep; };", string(out))
}

func TestGenerateNoDependenciesIncludesPreambleDirectly(t *testing.T) {
	src := []byte("struct Standalone {};")
	frags := []metafile.Fragment{
		{Start: 0, End: 0, Action: metafile.StartUnit},
	}
	out := Generate(src, frags, HeaderMode, nil, "preamble.h")
	require.Equal(t, "#include \"preamble.h\"\nstruct Standalone {};", string(out))
}

func TestGenerateNoFragmentsReturnsSourceUnchanged(t *testing.T) {
	src := []byte("struct A {};")
	out := Generate(src, nil, HeaderMode, nil, "")
	require.Equal(t, string(src), string(out))
}

func TestGenerateFromMetaDelegates(t *testing.T) {
	src := []byte("int x;")
	m := metafile.Meta{Fragments: []metafile.Fragment{{Start: 0, End: 0, Action: metafile.PutExtern}}}
	out := GenerateFromMeta(src, m, HeaderMode, nil, "")
	require.Equal(t, "extern int x;", string(out))
}

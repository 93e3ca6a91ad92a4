package incremental

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kaomoneus/cppl/internal/chash"
	"github.com/kaomoneus/cppl/internal/depfile"
	"github.com/kaomoneus/cppl/internal/graph"
	"github.com/kaomoneus/cppl/internal/metafile"
	"github.com/kaomoneus/cppl/internal/pool"
)

func singleNodeGraph(t *testing.T) (*graph.Graph, *graph.Node) {
	t.Helper()
	p := pool.New()
	g, err := graph.Build(p, map[string]depfile.ParsedImports{
		"pkg::A": {UnitID: "pkg::A"},
	})
	require.NoError(t, err)
	unitA, _ := p.Lookup("pkg::A")
	return g, g.Node(graph.EncodeID(graph.Declaration, unitA))
}

func TestCheckUpToDateFreshBuild(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "A.cppl")
	artifact := filepath.Join(dir, "A.decl")
	metaPath := filepath.Join(dir, "A.decl.meta")

	require.NoError(t, os.WriteFile(src, []byte("struct A {};"), 0o644))
	require.NoError(t, os.WriteFile(artifact, []byte("decl-bytes"), 0o644))
	require.NoError(t, metafile.Write(metaPath, metafile.Meta{
		SourceHash:   chash.Sum([]byte("struct A {};")),
		ArtifactHash: chash.Sum([]byte("decl-bytes")),
	}))

	g, n := singleNodeGraph(t)
	tr := NewTracker()
	require.True(t, CheckUpToDate(g, n, src, artifact, metaPath, tr))
}

func TestCheckUpToDateStaleSourceChanged(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "A.cppl")
	artifact := filepath.Join(dir, "A.decl")
	metaPath := filepath.Join(dir, "A.decl.meta")

	require.NoError(t, os.WriteFile(src, []byte("struct A { int x; };"), 0o644))
	require.NoError(t, os.WriteFile(artifact, []byte("decl-bytes"), 0o644))
	require.NoError(t, metafile.Write(metaPath, metafile.Meta{
		SourceHash:   chash.Sum([]byte("struct A {};")), // stale recorded hash
		ArtifactHash: chash.Sum([]byte("decl-bytes")),
	}))

	g, n := singleNodeGraph(t)
	tr := NewTracker()
	require.False(t, CheckUpToDate(g, n, src, artifact, metaPath, tr))
}

func TestCheckUpToDateMissingArtifactIsStale(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "A.cppl")
	require.NoError(t, os.WriteFile(src, []byte("struct A {};"), 0o644))

	g, n := singleNodeGraph(t)
	tr := NewTracker()
	require.False(t, CheckUpToDate(g, n, src, filepath.Join(dir, "A.decl"), filepath.Join(dir, "A.decl.meta"), tr))
}

func TestCheckUpToDateCorruptMetaIsStale(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "A.cppl")
	artifact := filepath.Join(dir, "A.decl")
	metaPath := filepath.Join(dir, "A.decl.meta")
	require.NoError(t, os.WriteFile(src, []byte("struct A {};"), 0o644))
	require.NoError(t, os.WriteFile(artifact, []byte("decl-bytes"), 0o644))
	require.NoError(t, os.WriteFile(metaPath, []byte("garbage"), 0o644))

	g, n := singleNodeGraph(t)
	tr := NewTracker()
	require.False(t, CheckUpToDate(g, n, src, artifact, metaPath, tr))
}

func TestCheckUpToDateShortCircuitsWhenPreambleUpdated(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "A.cppl")
	artifact := filepath.Join(dir, "A.decl")
	metaPath := filepath.Join(dir, "A.decl.meta")
	require.NoError(t, os.WriteFile(src, []byte("struct A {};"), 0o644))
	require.NoError(t, os.WriteFile(artifact, []byte("decl-bytes"), 0o644))
	require.NoError(t, metafile.Write(metaPath, metafile.Meta{
		SourceHash:   chash.Sum([]byte("struct A {};")),
		ArtifactHash: chash.Sum([]byte("decl-bytes")),
	}))

	g, n := singleNodeGraph(t)
	tr := NewTracker()
	tr.SetPreambleUpdated()
	require.False(t, CheckUpToDate(g, n, src, artifact, metaPath, tr))
}

func TestCheckUpToDateStaleWhenDependencyUpdated(t *testing.T) {
	p := pool.New()
	g, err := graph.Build(p, map[string]depfile.ParsedImports{
		"pkg::A": {UnitID: "pkg::A"},
		"pkg::B": {UnitID: "pkg::B", DeclImports: []string{"pkg::A"}},
	})
	require.NoError(t, err)
	unitA, _ := p.Lookup("pkg::A")
	unitB, _ := p.Lookup("pkg::B")
	declA := g.Node(graph.EncodeID(graph.Declaration, unitA))
	declB := g.Node(graph.EncodeID(graph.Declaration, unitB))

	dir := t.TempDir()
	src := filepath.Join(dir, "B.cppl")
	artifact := filepath.Join(dir, "B.decl")
	metaPath := filepath.Join(dir, "B.decl.meta")
	require.NoError(t, os.WriteFile(src, []byte("import pkg::A;"), 0o644))
	require.NoError(t, os.WriteFile(artifact, []byte("decl-bytes"), 0o644))
	require.NoError(t, metafile.Write(metaPath, metafile.Meta{
		SourceHash:   chash.Sum([]byte("import pkg::A;")),
		ArtifactHash: chash.Sum([]byte("decl-bytes")),
	}))

	tr := NewTracker()
	tr.MarkUpdated(declA.ID())
	require.False(t, CheckUpToDate(g, declB, src, artifact, metaPath, tr))
}

func TestCascadeOnRebuildMarksDeclarationOnHashChange(t *testing.T) {
	g, n := singleNodeGraph(t)
	_ = g
	tr := NewTracker()

	CascadeOnRebuild(n, true, chash.Sum([]byte("old")), chash.Sum([]byte("new")), tr)
	require.True(t, tr.IsUpdated(n.ID()))
}

func TestCascadeOnRebuildSkipsDeclarationWhenHashUnchanged(t *testing.T) {
	g, n := singleNodeGraph(t)
	_ = g
	tr := NewTracker()

	h := chash.Sum([]byte("same"))
	CascadeOnRebuild(n, true, h, h, tr)
	require.False(t, tr.IsUpdated(n.ID()))
}

func TestCascadeOnRebuildNeverMarksDefinitionNodes(t *testing.T) {
	p := pool.New()
	g, err := graph.Build(p, map[string]depfile.ParsedImports{"pkg::A": {UnitID: "pkg::A"}})
	require.NoError(t, err)
	unitA, _ := p.Lookup("pkg::A")
	defA := g.Node(graph.EncodeID(graph.Definition, unitA))
	require.NotNil(t, defA)

	tr := NewTracker()
	CascadeOnRebuild(defA, true, chash.Sum([]byte("old")), chash.Sum([]byte("new")), tr)
	require.False(t, tr.IsUpdated(defA.ID()))
}

func TestCascadeOnRebuildMarksWhenNoPriorMeta(t *testing.T) {
	g, n := singleNodeGraph(t)
	_ = g
	tr := NewTracker()

	h := chash.Sum([]byte("first build"))
	CascadeOnRebuild(n, false, chash.Hash{}, h, tr)
	require.True(t, tr.IsUpdated(n.ID()))
}

func TestPreviousArtifactHashMissingMeta(t *testing.T) {
	dir := t.TempDir()
	_, ok := PreviousArtifactHash(filepath.Join(dir, "missing.meta"))
	require.False(t, ok)
}

func TestPreviousArtifactHashReadsExisting(t *testing.T) {
	dir := t.TempDir()
	metaPath := filepath.Join(dir, "A.decl.meta")
	want := chash.Sum([]byte("artifact"))
	require.NoError(t, metafile.Write(metaPath, metafile.Meta{
		SourceHash:   chash.Sum([]byte("src")),
		ArtifactHash: want,
	}))
	got, ok := PreviousArtifactHash(metaPath)
	require.True(t, ok)
	require.True(t, want.Equal(got))
}

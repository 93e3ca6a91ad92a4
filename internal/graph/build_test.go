package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kaomoneus/cppl/internal/depfile"
	"github.com/kaomoneus/cppl/internal/pool"
)

func TestEncodeDecodeBijective(t *testing.T) {
	id := EncodeID(Definition, pool.ID(42))
	kind, unit := DecodeID(id)
	require.Equal(t, Definition, kind)
	require.Equal(t, pool.ID(42), unit)

	id2 := EncodeID(Declaration, pool.ID(42))
	require.NotEqual(t, id, id2)
	kind2, unit2 := DecodeID(id2)
	require.Equal(t, Declaration, kind2)
	require.Equal(t, pool.ID(42), unit2)
}

// Scenario A (spec §8): UnitA has no imports; UnitB imports UnitA; main
// imports UnitB.
func TestBuildHelloTwoUnit(t *testing.T) {
	p := pool.New()
	imports := map[string]depfile.ParsedImports{
		"pkg::UnitA": {UnitID: "pkg::UnitA"},
		"pkg::UnitB": {UnitID: "pkg::UnitB", DeclImports: []string{"pkg::UnitA"}},
		"main":       {UnitID: "main", DeclImports: []string{"pkg::UnitB"}},
	}
	g, err := Build(p, imports)
	require.NoError(t, err)
	require.False(t, g.Invalid)
	require.Equal(t, 6, g.NodeCount()) // 3 units * 2 nodes each, none external

	unitA, _ := p.Lookup("pkg::UnitA")
	declA := g.Node(EncodeID(Declaration, unitA))
	require.NotNil(t, declA)
	require.Empty(t, g.Dependencies(declA))
	require.Contains(t, g.Roots, declA)

	unitB, _ := p.Lookup("pkg::UnitB")
	declB := g.Node(EncodeID(Declaration, unitB))
	require.Len(t, g.Dependencies(declB), 1)
	require.Equal(t, declA, g.Dependencies(declB)[0])

	main, _ := p.Lookup("main")
	declMain := g.Node(EncodeID(Declaration, main))
	require.Contains(t, g.Terminals, declMain)
}

// Scenario B (spec §8): body-only import breaks an otherwise cyclic pair.
func TestBuildBodyOnlyBreaksCycle(t *testing.T) {
	p := pool.New()
	imports := map[string]depfile.ParsedImports{
		"A": {UnitID: "A", BodyImports: []string{"B"}},
		"B": {UnitID: "B", DeclImports: []string{"A"}},
	}
	g, err := Build(p, imports)
	require.NoError(t, err)
	require.False(t, g.Invalid)
	require.Equal(t, 4, g.NodeCount())
}

func TestBuildPureCycleIsInvalid(t *testing.T) {
	p := pool.New()
	imports := map[string]depfile.ParsedImports{
		"A": {UnitID: "A", DeclImports: []string{"B"}},
		"B": {UnitID: "B", DeclImports: []string{"A"}},
	}
	g, err := Build(p, imports)
	require.Error(t, err)
	require.True(t, g.Invalid)
}

func TestBuildExternalUnitHasNoDefinition(t *testing.T) {
	p := pool.New()
	imports := map[string]depfile.ParsedImports{
		"ext::X":     {UnitID: "ext::X", IsExternal: true},
		"pkg::UnitA": {UnitID: "pkg::UnitA", DeclImports: []string{"ext::X"}},
	}
	g, err := Build(p, imports)
	require.NoError(t, err)
	extID, _ := p.Lookup("ext::X")
	require.NotNil(t, g.Node(EncodeID(Declaration, extID)))
	require.Nil(t, g.Node(EncodeID(Definition, extID)))
	require.Contains(t, g.External, g.Node(EncodeID(Declaration, extID)))
}

func TestPublicClosurePropagates(t *testing.T) {
	p := pool.New()
	imports := map[string]depfile.ParsedImports{
		"pkg::A": {UnitID: "pkg::A", IsPublic: true, DeclImports: []string{"pkg::B"}},
		"pkg::B": {UnitID: "pkg::B"},
	}
	g, err := Build(p, imports)
	require.NoError(t, err)
	bID, _ := p.Lookup("pkg::B")
	declB := g.Node(EncodeID(Declaration, bID))
	require.True(t, declB.Public)
}

func TestUnknownImportIsGraphError(t *testing.T) {
	p := pool.New()
	imports := map[string]depfile.ParsedImports{
		"pkg::A": {UnitID: "pkg::A", DeclImports: []string{"pkg::Missing"}},
	}
	_, err := Build(p, imports)
	require.Error(t, err)
	var unknown UnknownImportError
	require.ErrorAs(t, err, &unknown)
}

package unitpath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentifier(t *testing.T) {
	l := Layout{SourceExt: ".cppl"}
	require.Equal(t, "pkg::UnitA", l.Identifier("pkg/UnitA.cppl"))
	require.Equal(t, "main", l.Identifier("main.cppl"))
}

func TestArtifactPath(t *testing.T) {
	l := Layout{BuildRoot: "build", LibsSubdir: "libs", SourceExt: ".cppl"}
	require.Equal(t, "build/pkg/UnitA.o", l.ArtifactPath("pkg/UnitA.cppl", Object, false))
	require.Equal(t, "build/libs/ext/X.decl-ast", l.ArtifactPath("ext/X.cppl", DeclAST, true))
	require.Equal(t, "build/pkg/UnitA.o.meta", l.ArtifactPath("pkg/UnitA.cppl", ObjectMeta, false))
}

func TestRelPathFromIdentifier(t *testing.T) {
	require.Equal(t, "pkg/UnitA", RelPathFromIdentifier("pkg::UnitA"))
}

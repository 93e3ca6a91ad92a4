// Package unitpath normalizes unit source paths and derives the artifact
// paths the coordinator reads and writes for each unit.
package unitpath

import (
	"path/filepath"
	"strings"
)

// Separator joins path components in a unit identifier, in place of the
// OS path separator.
const Separator = "::"

// Kind identifies one of the artifact files derived from a unit's relative
// source path.
type Kind int

const (
	Object Kind = iota
	DeclAST
	DeclASTMeta
	ObjectMeta
	ParsedDeps
	ParsedDepsMeta
	Header
	DeclSurrogate
)

var extensions = map[Kind]string{
	Object:         ".o",
	DeclAST:        ".decl-ast",
	DeclASTMeta:    ".decl-ast.meta",
	ObjectMeta:     ".o.meta",
	ParsedDeps:     ".ldeps",
	ParsedDepsMeta: ".ldeps.meta",
	Header:         ".h",
	DeclSurrogate:  ".decl",
}

// Layout describes the directory structure the coordinator derives paths
// from: the project source root, the build root artifacts are written
// under, the subdirectory external/library artifacts are nested in, and
// the unit source extension to strip when deriving identifiers.
type Layout struct {
	ProjectRoot string
	BuildRoot   string
	LibsSubdir  string
	SourceExt   string
}

// DefaultSourceExt is used when a Layout does not specify one.
const DefaultSourceExt = ".cppl"

func (l Layout) sourceExt() string {
	if l.SourceExt == "" {
		return DefaultSourceExt
	}
	return l.SourceExt
}

// RelPath returns path relative to root, using forward slashes regardless
// of platform so identifiers are stable across OSes.
func RelPath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Identifier derives a unit identifier from a project-root-relative source
// path: the source extension is stripped and path separators become "::".
func (l Layout) Identifier(relPath string) string {
	trimmed := strings.TrimSuffix(relPath, l.sourceExt())
	parts := strings.Split(filepath.ToSlash(trimmed), "/")
	return strings.Join(parts, Separator)
}

// RelPathFromIdentifier reverses Identifier, producing a filesystem-style
// relative path (without the source extension restored).
func RelPathFromIdentifier(id string) string {
	return strings.ReplaceAll(id, Separator, "/")
}

// ArtifactPath returns the path to the artifact of the given kind for the
// unit at relPath (project-root-relative, including source extension).
// External units are nested under the layout's libs subdirectory.
func (l Layout) ArtifactPath(relPath string, kind Kind, external bool) string {
	base := strings.TrimSuffix(relPath, l.sourceExt())
	ext, ok := extensions[kind]
	if !ok {
		panic("unitpath: unknown artifact kind")
	}
	if external && l.LibsSubdir != "" {
		return filepath.Join(l.BuildRoot, l.LibsSubdir, base+ext)
	}
	return filepath.Join(l.BuildRoot, base+ext)
}

// PreambleArtifactPath returns the path to the precompiled-preamble
// artifact (and its companion meta file when withMeta is true) under the
// build root.
func (l Layout) PreambleArtifactPath(withMeta bool) string {
	if withMeta {
		return filepath.Join(l.BuildRoot, "preamble.pch.meta")
	}
	return filepath.Join(l.BuildRoot, "preamble.pch")
}

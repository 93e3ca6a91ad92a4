// Package headergen implements the header / declaration-surrogate
// generator (spec §4.11): it reads a unit's source and the
// fragments-to-skip list the front-end produced alongside its
// declaration artifact, and writes a transformed file suitable either
// for `#include`-style consumption (header mode) or `#import`-style
// consumption (declaration-surrogate mode).
package headergen

import (
	"bytes"
	"fmt"

	"github.com/kaomoneus/cppl/internal/metafile"
)

// Mode selects which of the two output shapes Generate produces.
type Mode int

const (
	// HeaderMode produces textual-include-compatible output: dependency
	// references become `#include "relpath.h"` lines.
	HeaderMode Mode = iota
	// SurrogateMode produces declaration-surrogate output: dependency
	// references become `#import` unit references instead.
	SurrogateMode
)

// Dependency is one dependency of the public declaration being emitted,
// used to build the prologue inserted at the unit's StartUnit anchor.
type Dependency struct {
	UnitID  string
	RelPath string // artifact-relative path, used for header #include lines
}

// Generate applies fragments to source and returns the transformed file.
// deps is inserted, once, at the first StartUnit/StartUnitFirstDecl
// anchor encountered; per spec §4.11, if the node has no dependencies
// the preamble source is included/imported directly instead (empty
// preambleRelPath omits this entirely, e.g. when no preamble is
// configured).
func Generate(source []byte, fragments []metafile.Fragment, mode Mode, deps []Dependency, preambleRelPath string) []byte {
	var out bytes.Buffer
	var pos uint32
	prologueWritten := false

	writePrologue := func() {
		if prologueWritten {
			return
		}
		prologueWritten = true
		if len(deps) == 0 {
			if preambleRelPath != "" {
				writeReference(&out, mode, preambleRelPath, "")
			}
			return
		}
		for _, d := range deps {
			writeReference(&out, mode, d.RelPath, d.UnitID)
		}
	}

	for _, f := range fragments {
		if f.Start > pos {
			out.Write(source[pos:f.Start])
		}

		switch f.Action {
		case metafile.Skip:
			// dropped in both outputs
		case metafile.SkipInHeaderOnly:
			if mode == SurrogateMode {
				out.Write(source[f.Start:f.End])
			}
		case metafile.ReplaceWithSemicolon:
			out.WriteByte(';')
		case metafile.PutExtern:
			// zero-width anchor: insert without consuming source.
			out.WriteString("extern ")
		case metafile.StartUnit, metafile.StartUnitFirstDecl:
			writePrologue()
		case metafile.EndUnit, metafile.EndUnitEOF:
			// zero-width close anchor; no content of its own.
		}

		if f.End > pos {
			pos = f.End
		}
	}

	if int(pos) < len(source) {
		out.Write(source[pos:])
	}
	return out.Bytes()
}

// GenerateFromMeta is a convenience wrapper over Generate for the common
// case of driving it directly from a decoded Meta record.
func GenerateFromMeta(source []byte, m metafile.Meta, mode Mode, deps []Dependency, preambleRelPath string) []byte {
	return Generate(source, m.Fragments, mode, deps, preambleRelPath)
}

func writeReference(out *bytes.Buffer, mode Mode, relPath, unitID string) {
	switch mode {
	case HeaderMode:
		fmt.Fprintf(out, "#include \"%s\"\n", relPath)
	case SurrogateMode:
		if unitID != "" {
			fmt.Fprintf(out, "#import %s;\n", unitID)
		} else {
			fmt.Fprintf(out, "#import \"%s\";\n", relPath)
		}
	}
}

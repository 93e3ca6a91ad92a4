// Package metafile reads and writes the small "Meta" record stored next
// to each build artifact: the source hash used to produce it, the hash of
// the artifact itself, and (for declaration artifacts) the list of source
// fragments the header/declaration-surrogate generator should act on.
//
// The wire format is a private, coordinator-internal binary layout; the
// bitstream/compression codecs a real front-end would use for its own
// artifacts are out of scope (spec §1) and are not modeled here.
package metafile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kaomoneus/cppl/internal/chash"
)

// FormatVersion is bumped whenever the on-disk layout changes
// incompatibly.
const FormatVersion uint32 = 1

// MetaCorrupt is returned when a meta file exists but cannot be decoded:
// wrong magic/version, truncated record, or an out-of-range fragment
// action. Callers must treat this the same as MetaAbsent (§4.4): force a
// rebuild.
var MetaCorrupt = errors.New("metafile: corrupt meta record")

// MetaAbsent is returned when the meta file does not exist. Not an error
// in the exit-code sense: it is a signal that forces a rebuild (§7).
var MetaAbsent = errors.New("metafile: meta file absent")

// Action is a fragment directive applied by the header/declaration-
// surrogate generator to a byte range of the unit's source.
type Action uint8

const (
	Skip Action = iota
	SkipInHeaderOnly
	ReplaceWithSemicolon
	PutExtern
	StartUnit
	StartUnitFirstDecl
	EndUnit
	EndUnitEOF
)

func (a Action) valid() bool {
	return a <= EndUnitEOF
}

// Fragment is a single {start, end, action} triple. Ranges are
// non-overlapping and sorted by Start (I-invariant enforced by the
// producer, the front-end; this package does not itself sort or merge).
type Fragment struct {
	Start  uint32
	End    uint32
	Action Action
}

// Meta is the companion record for a non-trivial build artifact.
type Meta struct {
	SourceHash   chash.Hash
	ArtifactHash chash.Hash
	Fragments    []Fragment
}

var magic = [4]byte{'c', 'p', 'p', 'l'}

// Write encodes m and writes it to path, replacing any existing file.
func Write(path string, m Meta) error {
	var buf bytes.Buffer
	buf.Write(magic[:])
	if err := binary.Write(&buf, binary.LittleEndian, FormatVersion); err != nil {
		return err
	}
	buf.Write(m.SourceHash[:])
	buf.Write(m.ArtifactHash[:])
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(m.Fragments))); err != nil {
		return err
	}
	for _, f := range m.Fragments {
		if err := binary.Write(&buf, binary.LittleEndian, f.Start); err != nil {
			return err
		}
		if err := binary.Write(&buf, binary.LittleEndian, f.End); err != nil {
			return err
		}
		buf.WriteByte(byte(f.Action))
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Read decodes the Meta record at path. Returns MetaAbsent if the file
// does not exist, or MetaCorrupt (wrapping more detail) if it exists but
// cannot be decoded.
func Read(path string) (Meta, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Meta{}, MetaAbsent
		}
		return Meta{}, fmt.Errorf("metafile: reading %s: %w", path, err)
	}
	return decode(raw)
}

func decode(raw []byte) (Meta, error) {
	r := bytes.NewReader(raw)
	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil || gotMagic != magic {
		return Meta{}, fmt.Errorf("%w: bad magic", MetaCorrupt)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return Meta{}, fmt.Errorf("%w: %v", MetaCorrupt, err)
	}
	if version != FormatVersion {
		return Meta{}, fmt.Errorf("%w: unsupported version %d", MetaCorrupt, version)
	}
	var m Meta
	if _, err := io.ReadFull(r, m.SourceHash[:]); err != nil {
		return Meta{}, fmt.Errorf("%w: %v", MetaCorrupt, err)
	}
	if _, err := io.ReadFull(r, m.ArtifactHash[:]); err != nil {
		return Meta{}, fmt.Errorf("%w: %v", MetaCorrupt, err)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return Meta{}, fmt.Errorf("%w: %v", MetaCorrupt, err)
	}
	m.Fragments = make([]Fragment, 0, count)
	for i := uint32(0); i < count; i++ {
		var f Fragment
		if err := binary.Read(r, binary.LittleEndian, &f.Start); err != nil {
			return Meta{}, fmt.Errorf("%w: %v", MetaCorrupt, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &f.End); err != nil {
			return Meta{}, fmt.Errorf("%w: %v", MetaCorrupt, err)
		}
		actionByte, err := r.ReadByte()
		if err != nil {
			return Meta{}, fmt.Errorf("%w: %v", MetaCorrupt, err)
		}
		f.Action = Action(actionByte)
		if !f.Action.valid() {
			return Meta{}, fmt.Errorf("%w: invalid fragment action %d", MetaCorrupt, actionByte)
		}
		if f.Start > f.End {
			return Meta{}, fmt.Errorf("%w: fragment start > end", MetaCorrupt)
		}
		m.Fragments = append(m.Fragments, f)
	}
	return m, nil
}

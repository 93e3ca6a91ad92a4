// Package depfile reads and writes the per-unit parsed-imports record the
// front-end produces in parse-imports mode: the unit's ordinary and
// body-only import targets, plus its public/external flags.
package depfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// FormatVersion is bumped whenever the on-disk layout changes
// incompatibly.
const FormatVersion uint32 = 1

// Corrupt mirrors metafile.MetaCorrupt for parsed-imports records.
var Corrupt = errors.New("depfile: corrupt parsed-imports record")

// Absent mirrors metafile.MetaAbsent: the record does not exist yet.
var Absent = errors.New("depfile: parsed-imports record absent")

// ParsedImports is the logical record shape from spec §6: a unit's
// declared imports, split into ordinary and body-only, plus its
// public/external flags.
type ParsedImports struct {
	UnitID      string
	DeclImports []string
	BodyImports []string
	IsPublic    bool
	IsExternal  bool
}

var magic = [4]byte{'l', 'd', 'e', 'p'}

// Write encodes p and writes it to path, replacing any existing file.
func Write(path string, p ParsedImports) error {
	var buf bytes.Buffer
	buf.Write(magic[:])
	if err := binary.Write(&buf, binary.LittleEndian, FormatVersion); err != nil {
		return err
	}
	writeString(&buf, p.UnitID)
	writeStringSlice(&buf, p.DeclImports)
	writeStringSlice(&buf, p.BodyImports)
	writeBool(&buf, p.IsPublic)
	writeBool(&buf, p.IsExternal)
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Read decodes the ParsedImports record at path.
func Read(path string) (ParsedImports, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ParsedImports{}, Absent
		}
		return ParsedImports{}, fmt.Errorf("depfile: reading %s: %w", path, err)
	}
	return decode(raw)
}

func decode(raw []byte) (ParsedImports, error) {
	r := bytes.NewReader(raw)
	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil || gotMagic != magic {
		return ParsedImports{}, fmt.Errorf("%w: bad magic", Corrupt)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil || version != FormatVersion {
		return ParsedImports{}, fmt.Errorf("%w: unsupported version", Corrupt)
	}
	var p ParsedImports
	var err error
	if p.UnitID, err = readString(r); err != nil {
		return ParsedImports{}, fmt.Errorf("%w: %v", Corrupt, err)
	}
	if p.DeclImports, err = readStringSlice(r); err != nil {
		return ParsedImports{}, fmt.Errorf("%w: %v", Corrupt, err)
	}
	if p.BodyImports, err = readStringSlice(r); err != nil {
		return ParsedImports{}, fmt.Errorf("%w: %v", Corrupt, err)
	}
	if p.IsPublic, err = readBool(r); err != nil {
		return ParsedImports{}, fmt.Errorf("%w: %v", Corrupt, err)
	}
	if p.IsExternal, err = readBool(r); err != nil {
		return ParsedImports{}, fmt.Errorf("%w: %v", Corrupt, err)
	}
	return p, nil
}

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeStringSlice(buf *bytes.Buffer, ss []string) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(ss)))
	for _, s := range ss {
		writeString(buf, s)
	}
}

func readStringSlice(r *bytes.Reader) ([]string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

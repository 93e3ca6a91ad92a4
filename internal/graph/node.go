package graph

import "github.com/kaomoneus/cppl/internal/pool"

// Kind distinguishes the two node types a unit can contribute to the
// dependency graph (spec §3).
type Kind int

const (
	Declaration Kind = iota
	Definition
)

func (k Kind) String() string {
	if k == Definition {
		return "definition"
	}
	return "declaration"
}

// kindBit is the single high bit used to fold a Kind and a pool.ID into
// one 64-bit node identifier (spec I1: the encoding must be bijective).
// pool.ID is uint32, so bit 63 is never touched by the unit ID itself,
// making the encoding trivially invertible.
const kindBit = uint64(1) << 63

// EncodeID folds kind and unit into the single 64-bit node identifier
// gonum's graph.Node interface requires.
func EncodeID(kind Kind, unit pool.ID) int64 {
	v := uint64(unit)
	if kind == Definition {
		v |= kindBit
	}
	return int64(v) //nolint:gosec // intentional bit-packed identifier, not an overflow
}

// DecodeID is the inverse of EncodeID.
func DecodeID(id int64) (Kind, pool.ID) {
	v := uint64(id) //nolint:gosec
	if v&kindBit != 0 {
		return Definition, pool.ID(v &^ kindBit)
	}
	return Declaration, pool.ID(v)
}

// Node is one Declaration or Definition node in the dependency graph.
type Node struct {
	id       int64
	Kind     Kind
	Unit     pool.ID
	Public   bool
	External bool
}

// ID implements graph.Node.
func (n *Node) ID() int64 { return n.id }

func newNode(kind Kind, unit pool.ID) *Node {
	return &Node{id: EncodeID(kind, unit), Kind: kind, Unit: unit}
}

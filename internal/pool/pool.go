// Package pool interns unit identifiers into dense integer IDs, backed by
// an adaptive radix tree keyed on the identifier's byte representation.
// Unit identifiers are "::"-joined path segments, which share long common
// prefixes across a project tree, making a radix tree a good fit for both
// memory footprint and lookup speed compared to a plain map.
package pool

import (
	"sync"

	art "github.com/plar/go-adaptive-radix-tree"
)

// ID is a dense, pool-assigned integer identifier for an interned string.
// IDs are stable for the lifetime of the Pool they were assigned from.
type ID uint32

// Pool is a thread-safe, append-only intern table.
type Pool struct {
	mu      sync.RWMutex
	tree    art.Tree
	strings []string
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{tree: art.New()}
}

// Intern returns the ID for s, assigning a new one the first time s is
// seen.
func (p *Pool) Intern(s string) ID {
	p.mu.RLock()
	if v, found := p.tree.Search(art.Key(s)); found {
		p.mu.RUnlock()
		return v.(ID)
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	// re-check under write lock; another goroutine may have interned s
	// between the release above and this acquire.
	if v, found := p.tree.Search(art.Key(s)); found {
		return v.(ID)
	}
	id := ID(len(p.strings))
	p.strings = append(p.strings, s)
	p.tree.Insert(art.Key(s), id)
	return id
}

// Lookup returns the ID already assigned to s, if any.
func (p *Pool) Lookup(s string) (ID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, found := p.tree.Search(art.Key(s))
	if !found {
		return 0, false
	}
	return v.(ID), true
}

// String returns the interned string for id. Panics if id was never
// assigned by this Pool.
func (p *Pool) String(id ID) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.strings[id]
}

// Len returns the number of distinct strings interned so far.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.strings)
}

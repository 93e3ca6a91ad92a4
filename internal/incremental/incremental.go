// Package incremental implements the per-node up-to-date check and the
// UpdatedNodes cascade (spec §4.9): a node's artifact can be skipped only
// if its recorded source hash still matches, the preamble hasn't been
// rebuilt this run, and none of its dependencies were themselves
// rebuilt-with-a-changed-hash earlier in this run.
package incremental

import (
	"os"
	"sync"

	"github.com/kaomoneus/cppl/internal/chash"
	"github.com/kaomoneus/cppl/internal/graph"
	"github.com/kaomoneus/cppl/internal/metafile"
)

// Tracker holds the run's shared mutable incremental-build state: the set
// of declaration nodes whose artifact_hash changed this run, and the
// preamble/objects-touched flags. A single mutex guards all three, as
// permitted by spec §5 ("contention is low compared to child-process
// cost").
type Tracker struct {
	mu              sync.Mutex
	updated         map[int64]bool
	preambleUpdated bool
	objectsUpdated  bool
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{updated: make(map[int64]bool)}
}

// MarkUpdated records that node id's artifact_hash changed this run.
func (t *Tracker) MarkUpdated(id int64) {
	t.mu.Lock()
	t.updated[id] = true
	t.mu.Unlock()
}

// IsUpdated reports whether node id is in the UpdatedNodes set.
func (t *Tracker) IsUpdated(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updated[id]
}

// SetPreambleUpdated records that the preamble was rebuilt this run. Per
// spec §4.9, once set every subsequent up-to-date check short-circuits to
// stale.
func (t *Tracker) SetPreambleUpdated() {
	t.mu.Lock()
	t.preambleUpdated = true
	t.mu.Unlock()
}

// PreambleUpdated reports whether the preamble was rebuilt this run.
func (t *Tracker) PreambleUpdated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.preambleUpdated
}

// SetObjectsUpdated records that at least one object file was rebuilt
// this run (used to decide whether the link phase must run).
func (t *Tracker) SetObjectsUpdated() {
	t.mu.Lock()
	t.objectsUpdated = true
	t.mu.Unlock()
}

// ObjectsUpdated reports whether any object was rebuilt this run.
func (t *Tracker) ObjectsUpdated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.objectsUpdated
}

// CheckUpToDate implements spec §4.9: a node is up-to-date iff its
// artifact exists, its meta file exists and decodes, the meta's recorded
// source_hash equals the current source file's hash, the preamble has
// not been rebuilt this run, and none of the node's dependencies appear
// in tr's UpdatedNodes set. A missing source file, missing artifact, or
// corrupt meta is treated as stale rather than an error, matching the
// spec's explicit rule.
func CheckUpToDate(g *graph.Graph, n *graph.Node, sourcePath, artifactPath, metaPath string, tr *Tracker) bool {
	if tr.PreambleUpdated() {
		return false
	}
	if _, err := os.Stat(artifactPath); err != nil {
		return false
	}
	meta, err := metafile.Read(metaPath)
	if err != nil {
		return false
	}
	src, err := os.ReadFile(sourcePath)
	if err != nil {
		return false
	}
	if !meta.SourceHash.Equal(chash.Sum(src)) {
		return false
	}
	for _, dep := range g.Dependencies(n) {
		if tr.IsUpdated(dep.ID()) {
			return false
		}
	}
	return true
}

// PreviousArtifactHash reads metaPath's recorded artifact_hash before a
// rebuild overwrites it, for later comparison by CascadeOnRebuild. A
// missing or corrupt meta yields the zero hash and ok=false, which
// CascadeOnRebuild treats as "always changed" (a first build must not
// suppress the cascade).
func PreviousArtifactHash(metaPath string) (hash chash.Hash, ok bool) {
	meta, err := metafile.Read(metaPath)
	if err != nil {
		return chash.Hash{}, false
	}
	return meta.ArtifactHash, true
}

// CascadeOnRebuild implements the second half of spec §4.9: after a
// declaration node's child process returns, compare its new
// artifact_hash against the one captured by PreviousArtifactHash before
// the rebuild; if they differ (or there was no prior meta), insert the
// node into tr's UpdatedNodes set. Definition nodes never cascade — their
// output is terminal, per the spec.
func CascadeOnRebuild(n *graph.Node, hadPrevious bool, prev, current chash.Hash, tr *Tracker) {
	if n.Kind != graph.Declaration {
		return
	}
	if !hadPrevious || !prev.Equal(current) {
		tr.MarkUpdated(n.ID())
	}
}

// Package hnsw implements an in-process hierarchical navigable small world
// graph for approximate nearest-neighbour search over chunk embeddings.
//
// Vectors are L2-normalized on insertion, so cosine similarity reduces to a
// dot product. Each node is assigned to graph layers with exponentially
// decaying probability; search descends greedily from the sparse top layer
// and runs a bounded best-first expansion at the base layer. Deletion is a
// tombstone: the node stays in the graph for connectivity until Compact
// rebuilds it.
package hnsw

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/strata-search/strata/internal/core/domain"
	"github.com/strata-search/strata/internal/core/ports/driven"
	"github.com/strata-search/strata/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearch       = 64
	DefaultOversample     = 3.0
	DefaultWidenRounds    = 3
)

// Config holds tuning parameters for the index.
type Config struct {
	// Dimensions is the fixed vector dimensionality (required).
	Dimensions int

	// M is the number of neighbours kept per node per layer.
	// Layer 0 keeps 2*M. Typical values are 8-32.
	M int

	// EfConstruction is the candidate-list width during insertion.
	EfConstruction int

	// EfSearch is the base candidate-list width during search.
	// Larger values improve recall at higher cost.
	EfSearch int

	// Oversample multiplies k when a predicate is supplied, compensating
	// for candidates the filter rejects.
	Oversample float64

	// WidenRounds bounds how many times a filtered search doubles ef
	// before returning a partial result set.
	WidenRounds int

	// Seed fixes the layer-assignment RNG. Zero picks a fixed default,
	// keeping graph construction reproducible.
	Seed int64
}

// node is a vector plus its adjacency lists, one per layer it occupies.
type node struct {
	entry     driven.IndexEntry
	level     int
	neighbors [][]int
	tombstone bool
}

// Index is an HNSW graph. Safe for concurrent use: searches take a read
// lock, insertion and compaction take the write lock, so a search never
// observes a half-linked node.
type Index struct {
	mu sync.RWMutex

	cfg    Config
	mL     float64
	nodes  []node
	byID   map[string]int
	entry  int // entry point node, -1 when empty
	top    int // highest occupied layer
	live   int
	rng    *rand.Rand
	closed bool
}

// New creates an empty index.
func New(cfg Config) (*Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("hnsw: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M <= 0 {
		cfg.M = DefaultM
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = DefaultEfConstruction
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = DefaultEfSearch
	}
	if cfg.Oversample < 1 {
		cfg.Oversample = DefaultOversample
	}
	if cfg.WidenRounds <= 0 {
		cfg.WidenRounds = DefaultWidenRounds
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}

	return &Index{
		cfg:   cfg,
		mL:    1.0 / math.Log(float64(cfg.M)),
		byID:  make(map[string]int),
		entry: -1,
		top:   -1,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Dimensions returns the fixed vector dimensionality.
func (idx *Index) Dimensions() int {
	return idx.cfg.Dimensions
}

// Len returns the number of live entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.live
}

// Close marks the index closed. Further operations fail.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	idx.nodes = nil
	idx.byID = nil
	return nil
}

// Insert adds an entry to the graph. All-or-nothing: a cancelled or failed
// insertion leaves no partial entry, and a dimension mismatch leaves the
// index unchanged.
func (idx *Index) Insert(ctx context.Context, entry driven.IndexEntry) error {
	if len(entry.Vector) != idx.cfg.Dimensions {
		return fmt.Errorf("%w: index is %d-dimensional, vector is %d-dimensional",
			domain.ErrDimensionMismatch, idx.cfg.Dimensions, len(entry.Vector))
	}
	if entry.ChunkID == "" {
		return fmt.Errorf("%w: entry has no chunk id", domain.ErrInvalidInput)
	}

	vec, ok := normalize(entry.Vector)
	if !ok {
		return fmt.Errorf("%w: zero vector for chunk %s", domain.ErrInvalidInput, entry.ChunkID)
	}
	entry.Vector = vec

	// Cancellation is honoured before the graph is touched; once linking
	// starts the insert runs to completion under the write lock.
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return domain.ErrIndexClosed
	}

	if prev, exists := idx.byID[entry.ChunkID]; exists {
		// Supersession: tombstone the old version, insert the new one.
		if !idx.nodes[prev].tombstone {
			idx.nodes[prev].tombstone = true
			idx.live--
		}
	}

	idx.insertLocked(entry)
	return nil
}

// insertLocked links a new node into the graph. Caller holds the write lock.
func (idx *Index) insertLocked(entry driven.IndexEntry) {
	level := idx.randomLevel()

	n := node{
		entry:     entry,
		level:     level,
		neighbors: make([][]int, level+1),
	}
	id := len(idx.nodes)
	idx.nodes = append(idx.nodes, n)
	idx.byID[entry.ChunkID] = id
	idx.live++

	if idx.entry < 0 {
		idx.entry = id
		idx.top = level
		return
	}

	ep := idx.entry

	// Greedy descent through layers above the new node's level.
	for layer := idx.top; layer > level; layer-- {
		ep = idx.greedyClosest(entry.Vector, ep, layer)
	}

	// Link into every layer the node occupies, top-down.
	maxLayer := level
	if maxLayer > idx.top {
		maxLayer = idx.top
	}
	for layer := maxLayer; layer >= 0; layer-- {
		candidates := idx.searchLayer(entry.Vector, ep, layer, idx.cfg.EfConstruction)

		m := idx.maxNeighbors(layer)
		selected := candidates
		if len(selected) > m {
			selected = selected[:m]
		}

		for _, cand := range selected {
			idx.link(id, cand.id, layer)
			idx.link(cand.id, id, layer)
			idx.prune(cand.id, layer)
		}
		if len(candidates) > 0 {
			ep = candidates[0].id
		}
	}

	if level > idx.top {
		idx.top = level
		idx.entry = id
	}
}

// randomLevel draws a layer with exponentially decaying promotion odds.
func (idx *Index) randomLevel() int {
	return int(math.Floor(-math.Log(idx.rng.Float64()) * idx.mL))
}

// maxNeighbors returns the adjacency cap for a layer.
func (idx *Index) maxNeighbors(layer int) int {
	if layer == 0 {
		return idx.cfg.M * 2
	}
	return idx.cfg.M
}

// link appends dst to src's adjacency list on the given layer.
func (idx *Index) link(src, dst, layer int) {
	if src == dst {
		return
	}
	for _, n := range idx.nodes[src].neighbors[layer] {
		if n == dst {
			return
		}
	}
	idx.nodes[src].neighbors[layer] = append(idx.nodes[src].neighbors[layer], dst)
}

// prune trims a node's adjacency list back to the layer cap, keeping the
// closest neighbours.
func (idx *Index) prune(id, layer int) {
	m := idx.maxNeighbors(layer)
	neighbors := idx.nodes[id].neighbors[layer]
	if len(neighbors) <= m {
		return
	}

	vec := idx.nodes[id].entry.Vector
	scored := make([]scoredNode, len(neighbors))
	for i, n := range neighbors {
		scored[i] = scoredNode{id: n, sim: dot(vec, idx.nodes[n].entry.Vector)}
	}
	sortBySimilarity(scored)

	kept := make([]int, m)
	for i := 0; i < m; i++ {
		kept[i] = scored[i].id
	}
	idx.nodes[id].neighbors[layer] = kept
}

// Delete tombstones an entry. The node keeps routing traffic through the
// graph until the next compaction but never appears in results.
func (idx *Index) Delete(_ context.Context, chunkID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return domain.ErrIndexClosed
	}

	id, ok := idx.byID[chunkID]
	if !ok {
		return fmt.Errorf("chunk %s: %w", chunkID, domain.ErrNotFound)
	}
	if !idx.nodes[id].tombstone {
		idx.nodes[id].tombstone = true
		idx.live--
	}
	return nil
}

// Compact rebuilds the graph without tombstoned entries. Removing nodes
// in place risks disconnecting graph regions, so the rebuild reinserts
// every live entry into a fresh graph.
func (idx *Index) Compact(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return domain.ErrIndexClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	old := idx.nodes
	removed := len(old) - idx.live

	idx.nodes = make([]node, 0, idx.live)
	idx.byID = make(map[string]int, idx.live)
	idx.entry = -1
	idx.top = -1
	idx.live = 0

	for i := range old {
		if old[i].tombstone {
			continue
		}
		idx.insertLocked(old[i].entry)
	}

	logger.Debug("compacted index: %d tombstones removed, %d entries live", removed, idx.live)
	return nil
}

// Snapshot returns all live entries, sufficient to rebuild the graph.
// Vectors are returned normalized.
func (idx *Index) Snapshot() []driven.IndexEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	entries := make([]driven.IndexEntry, 0, idx.live)
	for i := range idx.nodes {
		if !idx.nodes[i].tombstone {
			entries = append(entries, idx.nodes[i].entry)
		}
	}
	return entries
}

// Restore rebuilds the graph from persisted entries. Any dimension mismatch
// marks the whole restore corrupt: a persisted index is either fully valid
// or requires an explicit rebuild from source data.
func (idx *Index) Restore(ctx context.Context, entries []driven.IndexEntry) error {
	for _, e := range entries {
		if len(e.Vector) != idx.cfg.Dimensions {
			return fmt.Errorf("%w: entry %s has %d dimensions, index has %d",
				domain.ErrIndexCorrupt, e.ChunkID, len(e.Vector), idx.cfg.Dimensions)
		}
	}

	for _, e := range entries {
		if err := idx.Insert(ctx, e); err != nil {
			return fmt.Errorf("%w: restoring entry %s: %v", domain.ErrIndexCorrupt, e.ChunkID, err)
		}
	}
	return nil
}

// normalize returns an L2-normalized copy of v. The caller's slice is never
// mutated. Returns false for a zero vector.
func normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, false
	}
	norm := float32(math.Sqrt(sum))

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out, true
}

// dot computes the inner product of two equal-length vectors.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

package hnsw

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/strata-search/strata/internal/core/domain"
	"github.com/strata-search/strata/internal/core/ports/driven"
	"github.com/strata-search/strata/internal/logger"
)

// scoredNode pairs a node id with its similarity to the current query.
type scoredNode struct {
	id  int
	sim float64
}

// Search finds the k nearest live entries satisfying the predicate.
// With a non-trivial predicate the graph is over-fetched and ef widens
// adaptively up to a bounded number of rounds; fewer than k results is a
// valid partial outcome, never an error.
func (idx *Index) Search(ctx context.Context, query []float32, k int, pred *domain.Predicate) ([]driven.VectorHit, error) {
	if len(query) != idx.cfg.Dimensions {
		return nil, fmt.Errorf("%w: index is %d-dimensional, query is %d-dimensional",
			domain.ErrDimensionMismatch, idx.cfg.Dimensions, len(query))
	}
	if k <= 0 {
		return nil, nil
	}

	q, ok := normalize(query)
	if !ok {
		return nil, fmt.Errorf("%w: zero query vector", domain.ErrInvalidInput)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, domain.ErrIndexClosed
	}
	if idx.entry < 0 || idx.live == 0 {
		return nil, nil
	}

	ef := idx.cfg.EfSearch
	if ef < k {
		ef = k
	}
	if !pred.IsEmpty() {
		// The graph has no native predicate awareness: over-fetch so the
		// filter has enough candidates to reject from.
		ef = int(math.Ceil(float64(ef) * idx.cfg.Oversample))
	}

	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hits := idx.searchOnce(q, k, ef, pred)
		if len(hits) >= k || ef >= len(idx.nodes) || round >= idx.cfg.WidenRounds {
			return hits, nil
		}

		// Not enough qualifying candidates: widen the search radius.
		ef *= 2
		logger.Debug("filtered search returned %d of %d, widening ef to %d", len(hits), k, ef)
	}
}

// searchOnce runs a single graph search with the given ef and applies the
// predicate and tombstone filters. Caller holds the read lock.
func (idx *Index) searchOnce(q []float32, k, ef int, pred *domain.Predicate) []driven.VectorHit {
	ep := idx.entry
	for layer := idx.top; layer > 0; layer-- {
		ep = idx.greedyClosest(q, ep, layer)
	}

	candidates := idx.searchLayer(q, ep, 0, ef)

	// Keep every qualifying candidate: the k cut happens only after the
	// tie-break sort, so equal-similarity entries at the boundary are
	// ranked by priority and id rather than by traversal order.
	hits := make([]driven.VectorHit, 0, len(candidates))
	for _, cand := range candidates {
		n := &idx.nodes[cand.id]
		if n.tombstone {
			continue
		}
		if !pred.Matches(n.entry.Category, n.entry.Tags, n.entry.Published) {
			continue
		}
		hits = append(hits, driven.VectorHit{Entry: n.entry, Similarity: cand.sim})
	}

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// sortHits orders hits by similarity descending, breaking ties by chunk
// priority (lower wins) then chunk id, for deterministic results.
func sortHits(hits []driven.VectorHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		if hits[i].Entry.Priority != hits[j].Entry.Priority {
			return hits[i].Entry.Priority < hits[j].Entry.Priority
		}
		return hits[i].Entry.ChunkID < hits[j].Entry.ChunkID
	})
}

// greedyClosest follows closest-neighbour edges on one layer until no
// neighbour improves on the current node. Caller holds a lock.
func (idx *Index) greedyClosest(q []float32, start, layer int) int {
	best := start
	bestSim := dot(q, idx.nodes[best].entry.Vector)

	for {
		improved := false
		for _, n := range idx.nodes[best].neighbors[layer] {
			if sim := dot(q, idx.nodes[n].entry.Vector); sim > bestSim {
				best = n
				bestSim = sim
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

// searchLayer runs the bounded best-first expansion on one layer, returning
// up to ef candidates sorted by similarity descending. Tombstoned nodes are
// traversed (they keep the graph connected) and filtered by the caller.
func (idx *Index) searchLayer(q []float32, ep, layer, ef int) []scoredNode {
	visited := map[int]bool{ep: true}
	epSim := dot(q, idx.nodes[ep].entry.Vector)

	// candidates: best-first frontier. results: current ef best, with the
	// worst on top so it can be evicted cheaply.
	candidates := &maxHeap{{id: ep, sim: epSim}}
	results := &minHeap{{id: ep, sim: epSim}}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(scoredNode)
		worst := (*results)[0].sim
		if c.sim < worst && results.Len() >= ef {
			break
		}

		for _, n := range idx.nodes[c.id].neighbors[layer] {
			if visited[n] {
				continue
			}
			visited[n] = true

			sim := dot(q, idx.nodes[n].entry.Vector)
			if results.Len() < ef || sim > (*results)[0].sim {
				heap.Push(candidates, scoredNode{id: n, sim: sim})
				heap.Push(results, scoredNode{id: n, sim: sim})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]scoredNode, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(scoredNode)
	}
	return out
}

// sortBySimilarity orders candidates by similarity descending.
func sortBySimilarity(nodes []scoredNode) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].sim > nodes[j].sim
	})
}

// minHeap keeps the lowest-similarity candidate on top.
type minHeap []scoredNode

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].sim < h[j].sim }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)         { *h = append(*h, x.(scoredNode)) }
func (h *minHeap) Pop() any           { old := *h; n := len(old); x := old[n-1]; *h = old[:n-1]; return x }

// maxHeap keeps the highest-similarity candidate on top.
type maxHeap []scoredNode

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].sim > h[j].sim }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)         { *h = append(*h, x.(scoredNode)) }
func (h *maxHeap) Pop() any           { old := *h; n := len(old); x := old[n-1]; *h = old[:n-1]; return x }

// Package embedstore implements C4: the in-memory EmbeddingTable built
// over a Catalog, its bounded top-N dot-product search, and the bit-exact
// on-disk cache file format spec.md §6 defines.
package embedstore

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/dannyavrs/encapure/biencoder"
	"github.com/dannyavrs/encapure/catalog"
)

// EmbeddingTable is a dense count-by-dimension buffer of L2-normalized
// vectors, one row per catalog ToolIndex, laid out row-major so a row is a
// contiguous slice (spec.md §3 "EmbeddingTable").
type EmbeddingTable struct {
	values      []float32
	count       int
	dimension   int
	fingerprint uint64
}

// Count returns the number of rows (tools) in the table.
func (t *EmbeddingTable) Count() int { return t.count }

// Dimension returns the vector dimension D.
func (t *EmbeddingTable) Dimension() int { return t.dimension }

// Fingerprint returns the catalog fingerprint the table was built from.
func (t *EmbeddingTable) Fingerprint() uint64 { return t.fingerprint }

// Row returns the embedding for the given ToolIndex, as a view into the
// table's backing storage — callers must not mutate it.
func (t *EmbeddingTable) Row(idx catalog.ToolIndex) biencoder.Vector {
	base := int(idx) * t.dimension
	return biencoder.Vector(t.values[base : base+t.dimension])
}

// Build embeds every tool in c via engine and assembles an EmbeddingTable,
// fulfilling "build(catalog) → EmbeddingTable" (spec.md §4.4). Embedding
// happens in batches inside engine.Embed; Build does not sub-batch itself.
func Build(ctx context.Context, engine *biencoder.Engine, c *catalog.Catalog) (*EmbeddingTable, error) {
	tools := c.Tools()
	texts := make([]string, len(tools))
	for i, t := range tools {
		texts[i] = t.DocumentText()
	}

	vecs, err := engine.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedstore: build: %w", err)
	}
	if len(vecs) == 0 {
		return &EmbeddingTable{fingerprint: c.Fingerprint()}, nil
	}

	dim := len(vecs[0])
	values := make([]float32, 0, len(vecs)*dim)
	for _, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("embedstore: build: inconsistent embedding dimension (want %d, got %d)", dim, len(v))
		}
		values = append(values, v...)
	}

	return &EmbeddingTable{
		values:      values,
		count:       len(vecs),
		dimension:   dim,
		fingerprint: c.Fingerprint(),
	}, nil
}

// Scored is one (ToolIndex, score) pair returned by TopN.
type Scored struct {
	Index catalog.ToolIndex
	Score float32
}

// heapItem is Scored under its own type so it can carry the heap ordering
// (ties broken by ToolIndex) — the container/heap interface needs a
// concrete ordering that pops the worst candidate first so TopN can
// discard it in O(log N).
type heapItem Scored

type minHeap []heapItem

func (h minHeap) Len() int { return len(h) }

// Less reports whether h[i] is the weaker candidate: the heap pops weakest
// first, so a bounded-size top-N keeps only the N strongest seen so far.
// Tie-break is the mirror of the final sort (spec.md §4.4 "lower ToolIndex
// wins"): among equal scores, the higher ToolIndex is weaker and popped
// first.
func (h minHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].Index > h[j].Index
}
func (h minHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)   { *h = append(*h, x.(heapItem)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopN scans every row and returns the n candidates with the highest dot
// product against query (cosine similarity, since both are L2-normalized;
// spec.md §4.4 "top_n"), sorted descending by score, ties broken by lower
// ToolIndex. A single-pass bounded min-heap keeps this O(count·D +
// count·log n) rather than a full sort.
func (t *EmbeddingTable) TopN(query biencoder.Vector, n int) ([]Scored, error) {
	if len(query) != t.dimension {
		return nil, fmt.Errorf("embedstore: query dimension %d does not match table dimension %d", len(query), t.dimension)
	}
	if n <= 0 || t.count == 0 {
		return nil, nil
	}
	if n > t.count {
		n = t.count
	}

	h := make(minHeap, 0, n)
	for i := 0; i < t.count; i++ {
		row := t.Row(catalog.ToolIndex(i))
		score := dot(query, row)
		if len(h) < n {
			heap.Push(&h, heapItem{Index: catalog.ToolIndex(i), Score: score})
			continue
		}
		weakest := h[0]
		if score > weakest.Score || (score == weakest.Score && catalog.ToolIndex(i) < weakest.Index) {
			heap.Pop(&h)
			heap.Push(&h, heapItem{Index: catalog.ToolIndex(i), Score: score})
		}
	}

	out := make([]Scored, len(h))
	for i := range h {
		out[i] = Scored(h[i])
	}
	sortDescending(out)
	return out, nil
}

func dot(a, b biencoder.Vector) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func sortDescending(s []Scored) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && less(s[j], s[j-1]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// less reports whether a should sort before b: higher score first, then
// lower ToolIndex (spec.md §4.4).
func less(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Index < b.Index
}

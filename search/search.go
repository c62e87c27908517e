// Package search implements C5, the orchestrator: it has no state of its
// own beyond its four collaborators, and its job is purely sequencing —
// build the augmented query, recall with the bi-encoder and embedding
// store, rerank with the cross-encoder, sort, truncate.
//
// Grounded on the shape of jonwraymond-tooldiscovery's discovery.Discovery
// facade (an Options struct wrapping a pluggable search engine with sane
// defaults), generalized here to the two-stage dense pipeline instead of
// BM25.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dannyavrs/encapure/biencoder"
	"github.com/dannyavrs/encapure/catalog"
	"github.com/dannyavrs/encapure/crossencoder"
	"github.com/dannyavrs/encapure/embedstore"
	"github.com/dannyavrs/encapure/encerr"
)

// Result is one ranked tool in a search response (spec.md §4.5).
type Result struct {
	Name        string
	Description string
	Score       float32
}

// RerankResult is one ranked document in a rerank response (spec.md §6
// "Inbound rerank contract"), preserving the caller's original index.
type RerankResult struct {
	Index int
	Score float32
}

// Options configures an Engine. Zero values fall back to spec.md §6
// defaults in New.
type Options struct {
	// RetrievalCandidates is N, the recall width handed to rerank.
	// Default 20.
	RetrievalCandidates int
	// InferenceTimeout bounds each C2/C3 call. Default 30s.
	InferenceTimeout time.Duration
	// MaxDocuments caps the documents slice accepted by Rerank. Default
	// 512, generous enough for any realistic batch while still bounding
	// the worst case.
	MaxDocuments int
}

const (
	defaultRetrievalCandidates = 20
	defaultInferenceTimeout    = 30 * time.Second
	defaultMaxDocuments        = 512
)

// Engine is the C5 orchestrator: stateless per request, holding only
// read-only references to its collaborators (spec.md §4.5 "State
// machine: None per request").
type Engine struct {
	catalog      *catalog.Catalog
	table        *embedstore.EmbeddingTable
	biencoder    *biencoder.Engine
	crossencoder *crossencoder.Engine
	opts         Options
}

// New builds a search Engine. All four collaborators must already be
// constructed (the catalog loaded, the table built or loaded from cache,
// both inference engines warmed up).
func New(c *catalog.Catalog, table *embedstore.EmbeddingTable, be *biencoder.Engine, ce *crossencoder.Engine, opts Options) *Engine {
	if opts.RetrievalCandidates <= 0 {
		opts.RetrievalCandidates = defaultRetrievalCandidates
	}
	if opts.InferenceTimeout <= 0 {
		opts.InferenceTimeout = defaultInferenceTimeout
	}
	if opts.MaxDocuments <= 0 {
		opts.MaxDocuments = defaultMaxDocuments
	}
	return &Engine{catalog: c, table: table, biencoder: be, crossencoder: ce, opts: opts}
}

// BuildQuery applies the sole context-injection mechanism (spec.md §4.5
// "Augmented query"): a non-empty agentDescription rewrites the text sent
// to C2/C3 into "Agent Context: {agent_description}. Query: {query}";
// an empty (or, at the HTTP boundary, absent) agentDescription leaves the
// query verbatim, satisfying the context-idempotence law (spec.md §8).
func BuildQuery(query, agentDescription string) string {
	if strings.TrimSpace(agentDescription) == "" {
		return query
	}
	return fmt.Sprintf("Agent Context: %s. Query: %s", agentDescription, query)
}

// Search implements the C5 contract (spec.md §4.5 "Algorithm", steps
// 1-6). query must be non-empty and topK in [1, 100]; validation failures
// are reported as encerr.ErrValidation, any C2/C3/C4 failure propagates
// unchanged — there is no partial result.
func (e *Engine) Search(ctx context.Context, query string, topK int, agentDescription string) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, encerr.Validationf("search: query must be non-empty")
	}
	if topK < 1 || topK > 100 {
		return nil, encerr.Validationf("search: top_k must be in [1, 100], got %d", topK)
	}

	augmented := BuildQuery(query, agentDescription)

	embedCtx, cancelEmbed := context.WithTimeout(ctx, e.opts.InferenceTimeout)
	queryVec, err := e.biencoder.EmbedQuery(embedCtx, augmented)
	cancelEmbed()
	if err != nil {
		return nil, err
	}

	n := e.opts.RetrievalCandidates
	if topK > n {
		n = topK
	}
	candidates, err := e.table.TopN(queryVec, n)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = e.catalog.Tool(c.Index).DocumentText()
	}

	scoreCtx, cancelScore := context.WithTimeout(ctx, e.opts.InferenceTimeout)
	crossScores, err := e.crossencoder.Score(scoreCtx, augmented, documents)
	cancelScore()
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedCandidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = rankedCandidate{index: c.Index, biScore: c.Score, crossScore: crossScores[i]}
	}
	sortRanked(ranked)

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	results := make([]Result, len(ranked))
	for i, r := range ranked {
		tool := e.catalog.Tool(r.index)
		results[i] = Result{Name: tool.Name, Description: tool.Description, Score: r.crossScore}
	}
	return results, nil
}

// Rerank implements spec.md §6's optional "Inbound rerank contract":
// score an arbitrary caller-supplied document list against query,
// returning results sorted by descending score while preserving the
// caller's original index for each document.
func (e *Engine) Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, encerr.Validationf("rerank: query must be non-empty")
	}
	if len(documents) == 0 {
		return nil, encerr.Validationf("rerank: documents must be non-empty")
	}
	if len(documents) > e.opts.MaxDocuments {
		return nil, encerr.Validationf("rerank: at most %d documents allowed, got %d", e.opts.MaxDocuments, len(documents))
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.InferenceTimeout)
	defer cancel()

	scores, err := e.crossencoder.Score(ctx, query, documents)
	if err != nil {
		return nil, err
	}

	results := make([]RerankResult, len(documents))
	for i, s := range scores {
		results[i] = RerankResult{Index: i, Score: s}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

type rankedCandidate struct {
	index      catalog.ToolIndex
	biScore    float32
	crossScore float32
}

// sortRanked implements spec.md §4.5 step 5: cross-encoder score
// descending, tie-break by higher bi-encoder score, then lower ToolIndex.
func sortRanked(r []rankedCandidate) {
	sort.SliceStable(r, func(i, j int) bool {
		a, b := r[i], r[j]
		if a.crossScore != b.crossScore {
			return a.crossScore > b.crossScore
		}
		if a.biScore != b.biScore {
			return a.biScore > b.biScore
		}
		return a.index < b.index
	})
}

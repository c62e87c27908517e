// Package biencoder implements C2, the recall-stage embedder: a stateless
// function over an inference.Manager that turns text into L2-normalized
// dense vectors (spec.md §4.2). Everything above the token/tensor boundary
// lives here; the transformer kernel itself stays opaque inside inference.
package biencoder

import (
	"context"
	"fmt"
	"math"

	"github.com/dannyavrs/encapure/inference"
	"github.com/dannyavrs/encapure/tokenize"
)

// Vector is one L2-normalized embedding, dimension D fixed by the model.
type Vector []float32

// Config controls truncation and batching. Zero values are replaced by the
// spec.md §4.2 defaults in New.
type Config struct {
	// MaxTokens is L_b, the per-text truncation length. Default 256.
	MaxTokens int
	// BatchSize is B_b, the max texts per inference call during catalog
	// embedding. Default 32. Search-time calls always embed a single
	// query regardless of this setting.
	BatchSize int
}

const (
	defaultMaxTokens = 256
	defaultBatchSize = 32
)

// Engine embeds text via a tokenizer and an inference.Manager. Stateless
// beyond those two collaborators, safe for concurrent use.
type Engine struct {
	manager   *inference.Manager
	tokenizer tokenize.Tokenizer
	cfg       Config
}

// New builds a bi-encoder Engine. manager and tokenizer must already be
// constructed and, for manager, warmed up.
func New(manager *inference.Manager, tokenizer tokenize.Tokenizer, cfg Config) *Engine {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Engine{manager: manager, tokenizer: tokenizer, cfg: cfg}
}

// EmbedQuery embeds a single text, the path every search call takes.
func (e *Engine) EmbedQuery(ctx context.Context, text string) (Vector, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Embed implements the C2 contract: embed(texts) → [Vector<D>], pure over
// its inputs modulo the session pool. Texts are embedded in sub-batches of
// at most BatchSize; output order always matches input order (spec.md §5
// "Ordering").
func (e *Engine) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Engine) embedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	encodings, err := e.tokenizer.EncodeBatch(ctx, texts, e.cfg.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("biencoder: tokenize: %w", err)
	}
	padded, seqLen := tokenize.PadBatch(encodings, e.cfg.MaxTokens)

	in := inference.Inputs{
		InputIDs:      make([][]int64, len(padded)),
		AttentionMask: make([][]int64, len(padded)),
		TokenTypeIDs:  make([][]int64, len(padded)),
	}
	for i, enc := range padded {
		in.InputIDs[i] = enc.IDs
		in.AttentionMask[i] = enc.AttentionMask
		in.TokenTypeIDs[i] = enc.TypeIDs
	}

	out, err := e.manager.Execute(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("biencoder: run: %w", err)
	}
	return poolAndNormalize(out, len(padded), seqLen, in.AttentionMask)
}

// poolAndNormalize applies attention-masked mean pooling followed by
// L2 normalization (spec.md §4.2), turning a (batch, seqLen, D) token-level
// output into batch L2-normalized D-dimensional vectors.
func poolAndNormalize(out inference.Outputs, batch, seqLen int, mask [][]int64) ([]Vector, error) {
	if len(out.Shape) != 3 {
		return nil, fmt.Errorf("biencoder: expected rank-3 output, got shape %v", out.Shape)
	}
	gotBatch, gotSeq, dim := out.Shape[0], out.Shape[1], out.Shape[2]
	if gotBatch != batch || gotSeq != seqLen {
		return nil, fmt.Errorf("biencoder: output shape %v does not match input (batch=%d, seqLen=%d)", out.Shape, batch, seqLen)
	}

	vecs := make([]Vector, batch)
	for b := 0; b < batch; b++ {
		pooled := make([]float32, dim)
		var attnSum float32
		for s := 0; s < seqLen; s++ {
			bit := float32(mask[b][s])
			if bit == 0 {
				continue
			}
			attnSum += bit
			base := (b*seqLen + s) * dim
			row := out.Values[base : base+dim]
			for d := 0; d < dim; d++ {
				pooled[d] += row[d] * bit
			}
		}
		if attnSum == 0 {
			// No attended positions (an empty text): leave the zero vector,
			// normalize below is then a no-op rather than a divide-by-zero.
			attnSum = 1
		}
		for d := range pooled {
			pooled[d] /= attnSum
		}
		vecs[b] = l2normalize(pooled)
	}
	return vecs, nil
}

func l2normalize(v []float32) Vector {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sumSq))
	if norm == 0 {
		return v
	}
	out := make(Vector, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// Package crossencoder implements C3, the rerank-stage scorer: jointly
// encodes a query against each candidate document and turns the model's
// single logit per pair into a relevance score in [0, 1] (spec.md §4.3).
package crossencoder

import (
	"context"
	"fmt"
	"math"

	"github.com/dannyavrs/encapure/inference"
	"github.com/dannyavrs/encapure/tokenize"
)

// Config controls truncation and sub-batching. Zero values are replaced by
// the spec.md §4.3 defaults in New.
type Config struct {
	// MaxTokens is L_c, the per-pair truncation length. Default 1024.
	MaxTokens int
	// BatchSize is B_c, the max pairs per inference call. Default 32.
	BatchSize int
}

const (
	defaultMaxTokens = 1024
	defaultBatchSize = 32
)

// Engine scores (query, document) pairs via a tokenizer and an
// inference.Manager. Stateless beyond those two collaborators.
type Engine struct {
	manager   *inference.Manager
	tokenizer tokenize.Tokenizer
	cfg       Config
}

// New builds a cross-encoder Engine. manager and tokenizer must already be
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

// Score implements the C3 contract: score(query, documents) → [f32], one
// post-sigmoid scalar per document, in the same order as documents
// (spec.md §4.3). Pairs are tokenized jointly, with the document side
// truncated before the query side (tokenize.Tokenizer.EncodePair), and run
// in sub-batches of at most BatchSize.
func (e *Engine) Score(ctx context.Context, query string, documents []string) ([]float32, error) {
	scores := make([]float32, 0, len(documents))
	for start := 0; start < len(documents); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(documents) {
			end = len(documents)
		}
		batch, err := e.scoreBatch(ctx, query, documents[start:end])
		if err != nil {
			return nil, err
		}
		scores = append(scores, batch...)
	}
	return scores, nil
}

func (e *Engine) scoreBatch(ctx context.Context, query string, documents []string) ([]float32, error) {
	encodings := make([]tokenize.Encoding, len(documents))
	for i, doc := range documents {
		enc, err := e.tokenizer.EncodePair(ctx, query, doc, e.cfg.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("crossencoder: tokenize pair %d: %w", i, err)
		}
		encodings[i] = enc
	}
	padded, _ := tokenize.PadBatch(encodings, e.cfg.MaxTokens)

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
		return nil, fmt.Errorf("crossencoder: run: %w", err)
	}
	return logitsToScores(out, len(padded))
}

// logitsToScores reads the classification head's single logit per pair —
// the value at the [CLS] position, index 0 of the sequence axis — and
// applies the logistic sigmoid (spec.md §4.3).
func logitsToScores(out inference.Outputs, batch int) ([]float32, error) {
	if len(out.Shape) != 3 {
		return nil, fmt.Errorf("crossencoder: expected rank-3 output, got shape %v", out.Shape)
	}
	gotBatch, seqLen, dim := out.Shape[0], out.Shape[1], out.Shape[2]
	if gotBatch != batch || seqLen == 0 {
		return nil, fmt.Errorf("crossencoder: output shape %v does not match batch=%d", out.Shape, batch)
	}

	scores := make([]float32, batch)
	for b := 0; b < batch; b++ {
		base := b * seqLen * dim // position 0 within this pair's sequence
		var logit float32
		for d := 0; d < dim; d++ {
			logit += out.Values[base+d]
		}
		scores[b] = sigmoid(logit)
	}
	return scores, nil
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

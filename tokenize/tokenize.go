// Package tokenize is the boundary between Encapure's ranking logic and
// the tokenizer/transformer kernels spec.md treats as opaque functions
// ("tokenize(text) → token_ids + attention_mask", "run(session, inputs) →
// logits"). Keeping it behind a small interface means the bi-encoder and
// cross-encoder engines never depend on a specific tokenizer library.
package tokenize

import "context"

// Encoding is the tokenizer's output for one sequence (or one joined
// query/document pair): parallel token-id, attention-mask and
// token-type-id arrays, all the same length.
type Encoding struct {
	IDs           []int64
	AttentionMask []int64
	TypeIDs       []int64
}

// Len returns the sequence length of the encoding.
func (e Encoding) Len() int { return len(e.IDs) }

// Tokenizer produces model inputs from raw text. Implementations must be
// safe for concurrent use — C2/C3 call it from multiple worker goroutines.
type Tokenizer interface {
	// EncodeSingle tokenizes one text for the bi-encoder, truncating to
	// maxLen tokens (spec.md §4.2).
	EncodeSingle(ctx context.Context, text string, maxLen int) (Encoding, error)

	// EncodePair jointly tokenizes a (query, document) pair for the
	// cross-encoder. Truncation is applied to the document side first,
	// then the query side, so that "documents longer than L_c − |query
	// tokens| are silently clipped" (spec.md §4.3).
	EncodePair(ctx context.Context, query, document string, maxLen int) (Encoding, error)

	// EncodeBatch tokenizes many independent texts, e.g. for catalog
	// embedding. Tokens beyond maxLen are dropped silently; padding to the
	// batch's longest sequence is the caller's responsibility (it depends
	// on how the batch is later sub-batched).
	EncodeBatch(ctx context.Context, texts []string, maxLen int) ([]Encoding, error)
}

// PadBatch pads a slice of encodings to a common length (the longest
// sequence in the batch, capped at maxLen) with zero ids/mask/type, and
// returns the padded length. This is "the only variable cost" spec.md
// §4.2 calls out for batching.
func PadBatch(encodings []Encoding, maxLen int) (padded []Encoding, seqLen int) {
	for _, e := range encodings {
		if n := e.Len(); n > seqLen && n <= maxLen {
			seqLen = n
		} else if n > maxLen {
			seqLen = maxLen
		}
	}

	padded = make([]Encoding, len(encodings))
	for i, e := range encodings {
		n := e.Len()
		if n > seqLen {
			n = seqLen
		}
		ids := make([]int64, seqLen)
		mask := make([]int64, seqLen)
		types := make([]int64, seqLen)
		copy(ids, e.IDs[:n])
		copy(mask, e.AttentionMask[:n])
		copy(types, e.TypeIDs[:n])
		padded[i] = Encoding{IDs: ids, AttentionMask: mask, TypeIDs: types}
	}
	return padded, seqLen
}

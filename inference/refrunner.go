package inference

import (
	"context"
	"hash/fnv"
)

// ReferenceRunner is a deterministic, pure-Go stand-in for a real
// transformer graph. No ONNX (or similar) Go binding is vendored here — in
// production a Session wraps a real model via the same Runner interface;
// ReferenceRunner lets the rest of Encapure (pooling, normalization, the
// session pool, the orchestrator) run and be tested end-to-end without one.
//
// It derives each output "embedding" deterministically from the input
// token ids via FNV hashing, so identical inputs always produce identical
// outputs (spec.md §8 "Bi-encoder determinism") without representing any
// real semantic relationship between texts.
type ReferenceRunner struct {
	Dim int
}

// NewReferenceRunner returns a ReferenceRunner producing dim-dimensional
// outputs per token position.
func NewReferenceRunner(dim int) *ReferenceRunner {
	return &ReferenceRunner{Dim: dim}
}

// Run implements Runner. Shape is (batch, seqLen, Dim); batch and seqLen
// are taken from in.InputIDs.
func (r *ReferenceRunner) Run(ctx context.Context, in Inputs) (Outputs, error) {
	if err := ctx.Err(); err != nil {
		return Outputs{}, err
	}
	batch := len(in.InputIDs)
	seqLen := 0
	if batch > 0 {
		seqLen = len(in.InputIDs[0])
	}

	values := make([]float32, batch*seqLen*r.Dim)
	for b := 0; b < batch; b++ {
		for s := 0; s < seqLen; s++ {
			id := in.InputIDs[b][s]
			base := (b*seqLen + s) * r.Dim
			row := tokenFeatures(id, r.Dim)
			copy(values[base:base+r.Dim], row)
		}
	}
	return Outputs{Shape: []int{batch, seqLen, r.Dim}, Values: values}, nil
}

// Close implements Session; ReferenceRunner holds no native resources.
func (r *ReferenceRunner) Close() error { return nil }

// tokenFeatures deterministically expands one token id into a dim-length
// pseudo-embedding by hashing (id, dimension-index) pairs. Values land in
// [-1, 1]; the exact distribution doesn't matter, only that it is stable.
func tokenFeatures(id int64, dim int) []float32 {
	out := make([]float32, dim)
	for d := 0; d < dim; d++ {
		h := fnv.New64a()
		var buf [16]byte
		putInt64(buf[0:8], id)
		putInt64(buf[8:16], int64(d))
		h.Write(buf[:])
		sum := h.Sum64()
		// Map the top 24 bits of the hash onto [-1, 1].
		out[d] = float32(int32(sum>>40&0xFFFFFF)-0x800000) / float32(0x800000)
	}
	return out
}

func putInt64(b []byte, v int64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// NewReferenceSessionFactory returns a SessionFactory building
// ReferenceRunner-backed sessions, ignoring intraOpThreads since the
// reference runner does no real parallel work. Used by the serve and
// warm-cache commands and by tests.
func NewReferenceSessionFactory(dim int) SessionFactory {
	return func(intraOpThreads int) (Session, error) {
		return NewReferenceRunner(dim), nil
	}
}

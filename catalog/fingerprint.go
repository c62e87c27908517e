package catalog

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
)

// Fingerprint computes a deterministic 64-bit hash over the ordered
// sequence of (name, description, category, extra...) tuples in c.
//
// It changes whenever any tool's identity, text, or order changes
// (spec.md §3, §8 "Fingerprint stability" law): reordering fields inside a
// single tool record does not change the fingerprint (fields are hashed in
// fixed, name-sorted order within each record), but reordering tools does
// (each record is folded into the hash in catalog order).
//
// Grounded on jonwraymond-tooldiscovery's search/fingerprint.go, which
// hashes a slice of SearchDoc the same way: sha256 over each field with a
// null-byte separator, sorting only the order-independent collections.
func (c *Catalog) Fingerprint() uint64 {
	h := sha256.New()

	for _, t := range c.tools {
		h.Write([]byte(t.Name))
		h.Write([]byte{0})
		h.Write([]byte(t.Description))
		h.Write([]byte{0})
		h.Write([]byte(t.Category))
		h.Write([]byte{0})

		keys := make([]string, 0, len(t.Extra))
		for k := range t.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte(k))
			h.Write([]byte{0})
			fmt.Fprintf(h, "%v", t.Extra[k])
			h.Write([]byte{0})
		}
		h.Write([]byte{1}) // record terminator, keeps record boundaries stable
	}

	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8])
}

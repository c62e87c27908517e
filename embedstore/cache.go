package embedstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// magic is the 4-byte file signature "ENCP" (spec.md §6, bytes 0x45 0x4E
// 0x43 0x50).
var magic = [4]byte{0x45, 0x4E, 0x43, 0x50}

const (
	formatVersion = uint16(1)
	headerSize    = 32
)

const lockTimeout = 5 * time.Second

// Save atomically writes t to path in the bit-exact layout spec.md §6
// defines: a 32-byte header (magic, version, reserved, count, dimension,
// reserved, fingerprint) followed by count×dimension little-endian f32
// values, row-major. The write goes to a temporary file in the same
// directory, then rename(2)s over path, so a reader never observes a
// partially written cache (spec.md §5 "Embedding cache file: written
// once, atomically (tmp + rename)").
//
// A sibling ".lock" file (grounded on stacklok-toolhive's
// pkg/config/store.go Update) serializes concurrent writers; readers do
// not need it since rename is atomic with respect to Load.
func Save(t *EmbeddingTable, path string) error {
	lockPath := path + ".lock"
	fileLock := flock.New(lockPath)
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := fileLock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("embedstore: acquire cache lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("embedstore: timed out acquiring cache lock %s", lockPath)
	}
	defer fileLock.Unlock()

	buf := new(bytes.Buffer)
	buf.Grow(headerSize + 4*t.count*t.dimension)

	var header [headerSize]byte
	copy(header[0:4], magic[:])
	binary.LittleEndian.PutUint16(header[4:6], formatVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(t.count))
	binary.LittleEndian.PutUint32(header[16:20], uint32(t.dimension))
	binary.LittleEndian.PutUint64(header[24:32], t.fingerprint)
	buf.Write(header[:])

	if err := binary.Write(buf, binary.LittleEndian, t.values); err != nil {
		return fmt.Errorf("embedstore: encode vectors: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".embedstore-*.tmp")
	if err != nil {
		return fmt.Errorf("embedstore: create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("embedstore: write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("embedstore: close temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("embedstore: rename temp cache file: %w", err)
	}
	return nil
}

// Load reads the cache file at path and returns its table only if the
// header's magic, version, count, dimension, and fingerprint all match
// expectedFingerprint and the stated dimension (spec.md §4.4 "Cache").
//
// Load never returns an error for a missing or corrupt file; instead it
// returns (nil, false, nil) so callers treat either case as "no cache,
// embed from scratch" (spec.md §7 "Persistence ... non-fatal; logged,
// treated as 'no cache'"). The returned error is non-nil only for
// unexpected I/O failures worth surfacing to a caller that wants to log
// them before falling back.
func Load(path string, expectedFingerprint uint64, expectedDimension int) (*EmbeddingTable, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("embedstore: read cache %s: %w", path, err)
	}

	table, ok := decode(data, expectedFingerprint, expectedDimension)
	if !ok {
		return nil, false, nil
	}
	return table, true, nil
}

func decode(data []byte, expectedFingerprint uint64, expectedDimension int) (*EmbeddingTable, bool) {
	if len(data) < headerSize {
		return nil, false
	}
	if !bytes.Equal(data[0:4], magic[:]) {
		return nil, false
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	if version != formatVersion {
		return nil, false
	}
	if data[6] != 0 || data[7] != 0 {
		return nil, false
	}
	count := binary.LittleEndian.Uint64(data[8:16])
	dimension := binary.LittleEndian.Uint32(data[16:20])
	if data[20] != 0 || data[21] != 0 || data[22] != 0 || data[23] != 0 {
		return nil, false
	}
	fingerprint := binary.LittleEndian.Uint64(data[24:32])

	if fingerprint != expectedFingerprint {
		return nil, false
	}
	if expectedDimension > 0 && int(dimension) != expectedDimension {
		return nil, false
	}

	wantLen := headerSize + 4*int(count)*int(dimension)
	if len(data) != wantLen {
		return nil, false
	}

	values := make([]float32, count*uint64(dimension))
	if err := binary.Read(bytes.NewReader(data[headerSize:]), binary.LittleEndian, values); err != nil {
		return nil, false
	}

	return &EmbeddingTable{
		values:      values,
		count:       int(count),
		dimension:   int(dimension),
		fingerprint: fingerprint,
	}, true
}

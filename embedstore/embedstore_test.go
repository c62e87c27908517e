package embedstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dannyavrs/encapure/biencoder"
	"github.com/dannyavrs/encapure/catalog"
	"github.com/dannyavrs/encapure/inference"
	"github.com/dannyavrs/encapure/tokenize"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.Tool{
		{Name: "send_message", Description: "send a generic message"},
		{Name: "send_sms", Description: "send a text message over sms"},
		{Name: "send_email", Description: "send an email message"},
		{Name: "read_file", Description: "read the contents of a file"},
	})
	require.NoError(t, err)
	return c
}

func newTestEngine(t *testing.T) *biencoder.Engine {
	t.Helper()
	tok, err := tokenize.NewWordPieceTokenizerFromVocab([]string{
		"[PAD]", "[UNK]", "[CLS]", "[SEP]",
		"send", "message", "sms", "email", "read", "file", "text", "a", "an", "of", "the", "over", "contents", "generic",
	})
	require.NoError(t, err)
	mgr, err := inference.New(
		inference.Config{Sessions: 2, Permits: 2, IntraOpThreads: 1},
		4,
		inference.NewReferenceSessionFactory(8),
		nil,
	)
	require.NoError(t, err)
	return biencoder.New(mgr, tok, biencoder.Config{MaxTokens: 32, BatchSize: 4})
}

func TestBuild_RowCountMatchesCatalog(t *testing.T) {
	c := newTestCatalog(t)
	table, err := Build(context.Background(), newTestEngine(t), c)
	require.NoError(t, err)
	assert.Equal(t, c.Len(), table.Count())
	assert.Equal(t, c.Fingerprint(), table.Fingerprint())
}

func TestTopN_CardinalityOrderingAndDistinctIndices(t *testing.T) {
	c := newTestCatalog(t)
	engine := newTestEngine(t)
	table, err := Build(context.Background(), engine, c)
	require.NoError(t, err)

	query, err := engine.EmbedQuery(context.Background(), "send a message")
	require.NoError(t, err)

	results, err := table.TopN(query, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	seen := make(map[catalog.ToolIndex]bool)
	for i, r := range results {
		assert.Falsef(t, seen[r.Index], "duplicate ToolIndex %d in results", r.Index)
		seen[r.Index] = true
		if i > 0 {
			assert.LessOrEqualf(t, r.Score, results[i-1].Score, "results not sorted descending at index %d", i)
		}
	}
}

func TestTopN_NGreaterThanCatalogClamped(t *testing.T) {
	c := newTestCatalog(t)
	engine := newTestEngine(t)
	table, err := Build(context.Background(), engine, c)
	require.NoError(t, err)
	query, err := engine.EmbedQuery(context.Background(), "send a message")
	require.NoError(t, err)

	results, err := table.TopN(query, 100)
	require.NoError(t, err)
	assert.Len(t, results, c.Len())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	c := newTestCatalog(t)
	engine := newTestEngine(t)
	table, err := Build(context.Background(), engine, c)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cache.bin")
	require.NoError(t, Save(table, path))

	loaded, ok, err := Load(path, c.Fingerprint(), table.Dimension())
	require.NoError(t, err)
	require.True(t, ok, "Load reported cache miss on a freshly saved cache")
	require.Equal(t, table.Count(), loaded.Count())
	require.Equal(t, table.Dimension(), loaded.Dimension())
	for i := 0; i < table.Count(); i++ {
		assert.Equalf(t, table.Row(catalog.ToolIndex(i)), loaded.Row(catalog.ToolIndex(i)), "row %d", i)
	}
}

func TestLoad_MissingFileIsNotError(t *testing.T) {
	_, ok, err := Load(filepath.Join(t.TempDir(), "missing.bin"), 0, 8)
	require.NoError(t, err)
	assert.False(t, ok, "Load reported a hit for a missing file")
}

func TestLoad_CorruptHeaderTreatedAsMissing(t *testing.T) {
	c := newTestCatalog(t)
	engine := newTestEngine(t)
	table, err := Build(context.Background(), engine, c)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cache.bin")
	require.NoError(t, Save(table, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] ^= 0xFF // corrupt the magic byte
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, ok, err := Load(path, c.Fingerprint(), table.Dimension())
	require.NoError(t, err)
	assert.False(t, ok, "Load reported a hit for a corrupted header")
}

func TestLoad_FingerprintMismatchTreatedAsMissing(t *testing.T) {
	c := newTestCatalog(t)
	engine := newTestEngine(t)
	table, err := Build(context.Background(), engine, c)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cache.bin")
	require.NoError(t, Save(table, path))

	_, ok, err := Load(path, c.Fingerprint()+1, table.Dimension())
	require.NoError(t, err)
	assert.False(t, ok, "Load reported a hit despite a fingerprint mismatch")
}

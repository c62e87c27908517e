package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dannyavrs/encapure/biencoder"
	"github.com/dannyavrs/encapure/catalog"
	"github.com/dannyavrs/encapure/crossencoder"
	"github.com/dannyavrs/encapure/embedstore"
	"github.com/dannyavrs/encapure/inference"
	"github.com/dannyavrs/encapure/tokenize"
)

func newTestVocab() []string {
	return []string{
		"[PAD]", "[UNK]", "[CLS]", "[SEP]",
		"send", "message", "sms", "email", "slack", "notification", "generic",
		"read", "file", "a", "an", "the", "of", "over", "contents", "text", "bot",
		"communication", "direct", "dm",
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	tok, err := tokenize.NewWordPieceTokenizerFromVocab(newTestVocab())
	require.NoError(t, err)

	c, err := catalog.New([]catalog.Tool{
		{Name: "send_message", Description: "send a generic message"},
		{Name: "send_sms", Description: "send a text message over sms"},
		{Name: "send_notification", Description: "send a generic notification"},
		{Name: "send_slack_message", Description: "send a message to a slack channel"},
		{Name: "send_email", Description: "send an email message"},
	})
	require.NoError(t, err)

	beMgr, err := inference.New(inference.Config{Sessions: 2, Permits: 2, IntraOpThreads: 1}, 4, inference.NewReferenceSessionFactory(8), nil)
	require.NoError(t, err)
	ceMgr, err := inference.New(inference.Config{Sessions: 2, Permits: 2, IntraOpThreads: 1}, 4, inference.NewReferenceSessionFactory(3), nil)
	require.NoError(t, err)

	be := biencoder.New(beMgr, tok, biencoder.Config{MaxTokens: 32, BatchSize: 4})
	ce := crossencoder.New(ceMgr, tok, crossencoder.Config{MaxTokens: 64, BatchSize: 4})

	table, err := embedstore.Build(context.Background(), be, c)
	require.NoError(t, err)

	return New(c, table, be, ce, Options{RetrievalCandidates: 5})
}

func TestBuildQuery_EmptyContextIsVerbatim(t *testing.T) {
	assert.Equal(t, "send message", BuildQuery("send message", ""))
	assert.Equal(t, "send message", BuildQuery("send message", "   "))
}

func TestBuildQuery_NonEmptyContextRewrites(t *testing.T) {
	got := BuildQuery("send message", "Slack communication bot")
	assert.Equal(t, "Agent Context: Slack communication bot. Query: send message", got)
}

func TestSearch_ReturnsTopKOrderedDescending(t *testing.T) {
	e := newTestEngine(t)
	results, err := e.Search(context.Background(), "send message", 3, "")
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqualf(t, results[i].Score, results[i-1].Score, "results not sorted descending at index %d", i)
	}
}

func TestSearch_ContextIdempotence(t *testing.T) {
	e := newTestEngine(t)
	withEmpty, err := e.Search(context.Background(), "send message", 3, "")
	require.NoError(t, err)
	withWhitespace, err := e.Search(context.Background(), "send message", 3, "   ")
	require.NoError(t, err)
	assert.Equal(t, withEmpty, withWhitespace)
}

func TestSearch_RejectsInvalidInput(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Search(context.Background(), "", 3, "")
	assert.Error(t, err, "expected error for empty query")

	_, err = e.Search(context.Background(), "send message", 0, "")
	assert.Error(t, err, "expected error for top_k below 1")

	_, err = e.Search(context.Background(), "send message", 101, "")
	assert.Error(t, err, "expected error for top_k above 100")
}

func TestRerank_PreservesCallerIndicesAndSortsDescending(t *testing.T) {
	e := newTestEngine(t)
	docs := []string{
		"send a generic message",
		"read the contents of a file",
		"send an email message",
	}
	results, err := e.Rerank(context.Background(), "send message", docs)
	require.NoError(t, err)
	require.Len(t, results, len(docs))

	seen := make(map[int]bool)
	for i, r := range results {
		require.GreaterOrEqual(t, r.Index, 0)
		require.Less(t, r.Index, len(docs))
		seen[r.Index] = true
		if i > 0 {
			assert.LessOrEqualf(t, r.Score, results[i-1].Score, "results not sorted descending at index %d", i)
		}
	}
	assert.Lenf(t, seen, len(docs), "not every input index appeared exactly once: %v", seen)
}

func TestRerank_RejectsTooManyDocuments(t *testing.T) {
	e := newTestEngine(t)
	e.opts.MaxDocuments = 2
	_, err := e.Rerank(context.Background(), "send message", []string{"a", "b", "c"})
	assert.Error(t, err)
}

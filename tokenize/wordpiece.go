package tokenize

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Special token strings, following the BERT/XLM-R convention the original
// implementation's tokenizers (inference/tokenize.rs) assume.
const (
	TokenPad = "[PAD]"
	TokenUnk = "[UNK]"
	TokenCLS = "[CLS]"
	TokenSEP = "[SEP]"
)

// WordPieceTokenizer is a pure-Go WordPiece tokenizer over a flat
// vocabulary file (one token per line, BERT vocab.txt layout). It is the
// default Tokenizer implementation: basic whitespace/punctuation
// splitting followed by greedy longest-match subword segmentation.
type WordPieceTokenizer struct {
	vocab  map[string]int64
	padID  int64
	unkID  int64
	clsID  int64
	sepID  int64
	maxSub int // longest single vocab entry, bounds the greedy scan
}

// NewWordPieceTokenizer loads a vocabulary file at path.
func NewWordPieceTokenizer(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tokenize: open vocab %s: %w", path, err)
	}
	defer f.Close()

	var vocab []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		vocab = append(vocab, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("tokenize: read vocab %s: %w", path, err)
	}
	return NewWordPieceTokenizerFromVocab(vocab)
}

// NewWordPieceTokenizerFromVocab builds a tokenizer directly from an
// in-memory vocabulary list, mainly for tests and warmup fixtures.
func NewWordPieceTokenizerFromVocab(vocab []string) (*WordPieceTokenizer, error) {
	t := &WordPieceTokenizer{vocab: make(map[string]int64, len(vocab))}
	for i, tok := range vocab {
		t.vocab[tok] = int64(i)
		if n := len([]rune(strings.TrimPrefix(tok, "##"))); n > t.maxSub {
			t.maxSub = n
		}
	}

	var ok bool
	if t.padID, ok = t.vocab[TokenPad]; !ok {
		t.padID = 0
	}
	if t.unkID, ok = t.vocab[TokenUnk]; !ok {
		return nil, fmt.Errorf("tokenize: vocab missing %s", TokenUnk)
	}
	if t.clsID, ok = t.vocab[TokenCLS]; !ok {
		return nil, fmt.Errorf("tokenize: vocab missing %s", TokenCLS)
	}
	if t.sepID, ok = t.vocab[TokenSEP]; !ok {
		return nil, fmt.Errorf("tokenize: vocab missing %s", TokenSEP)
	}
	if t.maxSub == 0 {
		t.maxSub = 16
	}
	return t, nil
}

// basicTokenize lowercases and splits on whitespace and punctuation,
// keeping punctuation as standalone tokens (the usual BERT basic
// tokenizer behavior).
func basicTokenize(text string) []string {
	var tokens []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// wordpiece greedily segments one basic token into known vocab subwords,
// prefixing continuation pieces with "##". Falls back to [UNK] if no
// split covers the whole token.
func (t *WordPieceTokenizer) wordpiece(token string) []string {
	runes := []rune(token)
	if len(runes) == 0 {
		return nil
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		if maxEnd := start + t.maxSub; end > maxEnd {
			end = maxEnd
		}
		var piece string
		found := false
		for end > start {
			cand := string(runes[start:end])
			if start > 0 {
				cand = "##" + cand
			}
			if _, ok := t.vocab[cand]; ok {
				piece = cand
				found = true
				break
			}
			end--
		}
		if !found {
			return []string{TokenUnk}
		}
		pieces = append(pieces, piece)
		start = end
	}
	return pieces
}

func (t *WordPieceTokenizer) idOf(piece string) int64 {
	if id, ok := t.vocab[piece]; ok {
		return id
	}
	return t.unkID
}

func (t *WordPieceTokenizer) encodeTokens(text string) []int64 {
	var ids []int64
	for _, word := range basicTokenize(text) {
		for _, piece := range t.wordpiece(word) {
			ids = append(ids, t.idOf(piece))
		}
	}
	return ids
}

// EncodeSingle implements Tokenizer.
func (t *WordPieceTokenizer) EncodeSingle(_ context.Context, text string, maxLen int) (Encoding, error) {
	body := t.encodeTokens(text)
	budget := maxLen - 2 // room for [CLS] and [SEP]
	if budget < 0 {
		budget = 0
	}
	if len(body) > budget {
		body = body[:budget]
	}

	ids := make([]int64, 0, len(body)+2)
	ids = append(ids, t.clsID)
	ids = append(ids, body...)
	ids = append(ids, t.sepID)

	mask := ones(len(ids))
	types := make([]int64, len(ids))
	return Encoding{IDs: ids, AttentionMask: mask, TypeIDs: types}, nil
}

// EncodePair implements Tokenizer. Truncation is applied to the document
// side first, then the query side (spec.md §4.3).
func (t *WordPieceTokenizer) EncodePair(_ context.Context, query, document string, maxLen int) (Encoding, error) {
	queryIDs := t.encodeTokens(query)
	docIDs := t.encodeTokens(document)

	// [CLS] query [SEP] doc [SEP]
	overhead := 3
	budget := maxLen - overhead
	if budget < 0 {
		budget = 0
	}

	if len(queryIDs) > budget {
		queryIDs = queryIDs[:budget]
		docIDs = nil
	} else if rem := budget - len(queryIDs); len(docIDs) > rem {
		docIDs = docIDs[:rem]
	}

	ids := make([]int64, 0, len(queryIDs)+len(docIDs)+overhead)
	types := make([]int64, 0, cap(ids))

	ids = append(ids, t.clsID)
	types = append(types, 0)
	ids = append(ids, queryIDs...)
	types = append(types, zeros(len(queryIDs))...)
	ids = append(ids, t.sepID)
	types = append(types, 0)
	ids = append(ids, docIDs...)
	types = append(types, ones(len(docIDs))...)
	ids = append(ids, t.sepID)
	types = append(types, 1)

	return Encoding{IDs: ids, AttentionMask: ones(len(ids)), TypeIDs: types}, nil
}

// EncodeBatch implements Tokenizer.
func (t *WordPieceTokenizer) EncodeBatch(ctx context.Context, texts []string, maxLen int) ([]Encoding, error) {
	out := make([]Encoding, len(texts))
	for i, text := range texts {
		enc, err := t.EncodeSingle(ctx, text, maxLen)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

func ones(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func zeros(n int) []int64 { return make([]int64, n) }

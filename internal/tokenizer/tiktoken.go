package tokenizer

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// encodingCL100kBase is the encoding name for GPT-4 and GPT-3.5-turbo.
	encodingCL100kBase = "cl100k_base"
	// encodingP50kBase is the encoding name for GPT-3.
	encodingP50kBase = "p50k_base"
	// encodingR50kBase is the encoding name for older GPT-3 models.
	encodingR50kBase = "r50k_base"

	// EndOfText is the special token appended to every vocabulary.
	EndOfText = "<|endoftext|>"

	// splitPattern pre-splits text into words before merging, the same way
	// cl100k_base does.
	splitPattern = `(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+(?!\S)|\s+`
)

// TikToken wraps the pkoukk/tiktoken-go byte-pair encoder.
type TikToken struct {
	encoding  *tiktoken.Tiktoken
	name      string
	vocabSize int
	eos       int32
}

// NewTikToken creates a tokenizer for a published tiktoken encoding.
//
// Supported encodings: "cl100k_base" (GPT-4), "p50k_base" and "r50k_base"
// (GPT-3). The ranks are downloaded on first use and cached by tiktoken-go.
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}

	tok := &TikToken{encoding: encoding, name: encodingName}
	switch encodingName {
	case encodingCL100kBase:
		tok.vocabSize, tok.eos = 100256, 100257
	case encodingP50kBase, encodingR50kBase:
		tok.vocabSize, tok.eos = 50256, 50256
	default:
		tok.vocabSize, tok.eos = 100000, -1
	}
	return tok, nil
}

// LoadVocabulary reads a vocabulary in the tiktoken file format and builds a
// tokenizer from it.
//
// Ranks must be unique and cover [0, n) without gaps, and every single byte
// must be a token so that any input can be encoded. EndOfText is added as
// the special token with rank n.
func LoadVocabulary(r io.Reader, name string) (*TikToken, error) {
	ranks, err := ParseVocabulary(r)
	if err != nil {
		return nil, err
	}
	for b := range 256 {
		if _, ok := ranks[string([]byte{byte(b)})]; !ok {
			return nil, fmt.Errorf("%w: missing single-byte token 0x%02x", ErrInvalidVocabulary, b)
		}
	}

	n := len(ranks)
	specials := map[string]int{EndOfText: n}
	bpe, err := tiktoken.NewCoreBPE(ranks, specials, splitPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidVocabulary, err)
	}
	enc := &tiktoken.Encoding{
		Name:           name,
		PatStr:         splitPattern,
		MergeableRanks: ranks,
		SpecialTokens:  specials,
		ExplicitNVocab: n + 1,
	}

	return &TikToken{
		encoding:  tiktoken.NewTiktoken(bpe, enc, map[string]any{EndOfText: nil}),
		name:      name,
		vocabSize: n,
		eos:       int32(n), //nolint:gosec // G115: rank count is checked against MaxInt32 while parsing.
	}, nil
}

// ParseVocabulary reads "base64-token rank" lines. Blank lines are skipped.
func ParseVocabulary(r io.Reader) (map[string]int, error) {
	ranks := make(map[string]int)
	seen := make(map[int]struct{})

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: line %d: want 2 fields, got %d", ErrInvalidVocabulary, line, len(fields))
		}
		token, err := base64.StdEncoding.DecodeString(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidVocabulary, line, err)
		}
		if len(token) == 0 {
			return nil, fmt.Errorf("%w: line %d: empty token", ErrInvalidVocabulary, line)
		}
		rank, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil || rank < 0 {
			return nil, fmt.Errorf("%w: line %d: bad rank %q", ErrInvalidVocabulary, line, fields[1])
		}
		if _, dup := ranks[string(token)]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate token %q", ErrInvalidVocabulary, line, token)
		}
		if _, dup := seen[int(rank)]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate rank %d", ErrInvalidVocabulary, line, rank)
		}
		ranks[string(token)] = int(rank)
		seen[int(rank)] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}

	for rank := range len(ranks) {
		if _, ok := seen[rank]; !ok {
			return nil, fmt.Errorf("%w: ranks are not contiguous, %d is missing", ErrInvalidVocabulary, rank)
		}
	}
	return ranks, nil
}

// WriteVocabulary writes ranks in the format read by ParseVocabulary, in
// ascending rank order.
func WriteVocabulary(w io.Writer, ranks map[string]int) error {
	tokens := slices.Collect(maps.Keys(ranks))
	slices.SortFunc(tokens, func(a, b string) int { return ranks[a] - ranks[b] })

	bw := bufio.NewWriter(w)
	for _, tok := range tokens {
		if _, err := fmt.Fprintf(bw, "%s %d\n", base64.StdEncoding.EncodeToString([]byte(tok)), ranks[tok]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Encode converts text to token IDs. Special tokens in text are encoded as
// ordinary bytes.
func (t *TikToken) Encode(text string) ([]int32, error) {
	tokens := t.encoding.EncodeOrdinary(text)

	result := make([]int32, len(tokens))
	for i, tok := range tokens {
		result[i] = int32(tok) //nolint:gosec // G115: Token ID fits in int32 - vocab size < 2^31.
	}

	return result, nil
}

// Decode converts token IDs back to text.
func (t *TikToken) Decode(tokens []int32) (string, error) {
	intTokens := make([]int, len(tokens))
	for i, tok := range tokens {
		intTokens[i] = int(tok)
	}

	text := t.encoding.Decode(intTokens)
	return text, nil
}

// VocabSize returns the number of ordinary tokens.
func (t *TikToken) VocabSize() int {
	return t.vocabSize
}

// EosToken returns the <|endoftext|> token ID.
func (t *TikToken) EosToken() int32 {
	return t.eos
}

// IsSpecialToken reports whether token is outside the ordinary range.
func (t *TikToken) IsSpecialToken(token int32) bool {
	return int(token) >= t.vocabSize
}

// Name returns the tokenizer name.
func (t *TikToken) Name() string {
	return t.name
}

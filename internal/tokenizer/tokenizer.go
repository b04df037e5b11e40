package tokenizer

import "errors"

// ErrInvalidVocabulary is returned when a vocabulary file cannot be parsed or
// does not describe a usable byte-pair encoding.
var ErrInvalidVocabulary = errors.New("invalid vocabulary")

// Tokenizer is the core interface for text tokenization.
type Tokenizer interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int32, error)

	// Decode converts token IDs back to text.
	Decode(tokens []int32) (string, error)

	// VocabSize returns the number of ordinary tokens. IDs of ordinary
	// tokens are in [0, VocabSize).
	VocabSize() int

	// EosToken returns the end-of-sequence token ID.
	// Returns -1 if not applicable.
	EosToken() int32

	// IsSpecialToken checks if a token ID is a special token.
	IsSpecialToken(token int32) bool
}

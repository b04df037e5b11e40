// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tokenizer provides text tokenization for Forge text models.
//
// Example usage:
//
//	import "github.com/born-ml/forge/tokenizer"
//
//	// Load a vocabulary shipped with a model
//	f, err := os.Open("models/sentiment/vocab.tiktoken")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//	tok, err := tokenizer.LoadVocabulary(f, "sentiment")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Encode text
//	tokens, err := tok.Encode("Hello, world!")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Decode tokens
//	text, err := tok.Decode(tokens)
package tokenizer

import (
	"io"

	"github.com/born-ml/forge/internal/tokenizer"
)

// Tokenizer is the core interface for text tokenization.
type Tokenizer = tokenizer.Tokenizer

// TikToken is a byte-pair tokenizer.
type TikToken = tokenizer.TikToken

// EndOfText is the special token of every loaded vocabulary.
const EndOfText = tokenizer.EndOfText

// ErrInvalidVocabulary is returned for unusable vocabulary files.
var ErrInvalidVocabulary = tokenizer.ErrInvalidVocabulary

// NewTikToken creates a tokenizer for a published encoding such as
// "cl100k_base".
func NewTikToken(encodingName string) (Tokenizer, error) {
	tok, err := tokenizer.NewTikToken(encodingName)
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// LoadVocabulary builds a tokenizer from a tiktoken vocabulary file.
func LoadVocabulary(r io.Reader, name string) (*TikToken, error) {
	return tokenizer.LoadVocabulary(r, name)
}

// WriteVocabulary writes ranks in the tiktoken vocabulary format.
func WriteVocabulary(w io.Writer, ranks map[string]int) error {
	return tokenizer.WriteVocabulary(w, ranks)
}

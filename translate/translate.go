// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package translate provides ready-made translators for model predictors.
//
//	p, err := model.NewPredictor[string, translate.Classifications](m,
//	    &translate.TextClassificationTranslator{
//	        Labels: translate.ClassificationTranslator{ApplySoftmax: true},
//	    })
package translate

import (
	"io"

	"github.com/born-ml/forge/internal/tokenizer"
	"github.com/born-ml/forge/internal/translate"
)

// Artifact names read by the translators.
const (
	SynsetArtifact     = translate.SynsetArtifact
	VocabularyArtifact = translate.VocabularyArtifact
)

// NDListTranslator passes tensors through.
type NDListTranslator = translate.NDListTranslator

// Classification is one labelled score.
type Classification = translate.Classification

// Classifications holds ranked scores.
type Classifications = translate.Classifications

// ClassificationTranslator ranks labels for a feature vector.
type ClassificationTranslator = translate.ClassificationTranslator

// TextClassificationTranslator ranks labels for a text.
type TextClassificationTranslator = translate.TextClassificationTranslator

// ReadSynset reads one label per line.
func ReadSynset(r io.Reader) ([]string, error) {
	return translate.ReadSynset(r)
}

// BagOfTokens returns the token frequencies of text.
func BagOfTokens(tok tokenizer.Tokenizer, text string) ([]float32, error) {
	return translate.BagOfTokens(tok, text)
}

// Errors returned by the translators.
var (
	ErrNoLabels      = translate.ErrNoLabels
	ErrLabelMismatch = translate.ErrLabelMismatch
	ErrNoVocabulary  = translate.ErrNoVocabulary
)

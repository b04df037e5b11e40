// Package translate provides ready-made translators for model predictors.
//
// NDListTranslator passes tensors through unchanged. ClassificationTranslator
// turns a score vector into ranked labels read from a synset artifact.
// TextClassificationTranslator encodes text as a bag of tokens using a
// tiktoken vocabulary artifact and ranks labels the same way.
package translate

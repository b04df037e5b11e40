package translate

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/born-ml/forge/internal/model"
	"github.com/born-ml/forge/internal/tensor"
	"github.com/born-ml/forge/internal/tokenizer"
)

// VocabularyArtifact is the default name of the tiktoken vocabulary artifact.
const VocabularyArtifact = "vocab.tiktoken"

// ErrNoVocabulary is returned when neither a vocabulary artifact nor a
// fallback encoding is available.
var ErrNoVocabulary = errors.New("no tokenizer vocabulary")

// TextClassificationTranslator classifies text with a block that takes a
// (1, vocabSize) bag-of-tokens vector. Each feature is the share of tokens
// in the text with that ID.
type TextClassificationTranslator struct {
	// Vocabulary overrides VocabularyArtifact.
	Vocabulary string
	// Encoding names a published tiktoken encoding used when the model has
	// no vocabulary artifact.
	Encoding string
	// Labels ranks the block output.
	Labels ClassificationTranslator

	tok tokenizer.Tokenizer
}

var (
	_ model.Translator[string, Classifications] = (*TextClassificationTranslator)(nil)
	_ model.Preparer                            = (*TextClassificationTranslator)(nil)
)

// Prepare loads the tokenizer and the labels.
func (t *TextClassificationTranslator) Prepare(ctx *model.TranslatorContext) error {
	if t.tok == nil {
		tok, err := t.loadTokenizer(ctx.Model)
		if err != nil {
			return err
		}
		t.tok = tok
	}
	return t.Labels.Prepare(ctx)
}

func (t *TextClassificationTranslator) loadTokenizer(m *model.Model) (tokenizer.Tokenizer, error) {
	name := cmp.Or(t.Vocabulary, VocabularyArtifact)
	tok, err := model.GetArtifact(m, name, func(r io.Reader) (*tokenizer.TikToken, error) {
		return tokenizer.LoadVocabulary(r, name)
	})
	switch {
	case err == nil && tok != nil:
		return tok, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return nil, err
	case t.Encoding != "":
		named, err := tokenizer.NewTikToken(t.Encoding)
		if err != nil {
			return nil, err
		}
		return named, nil
	default:
		return nil, fmt.Errorf("%w: model %s has no %s", ErrNoVocabulary, m.Name(), name)
	}
}

// Tokenizer returns the tokenizer loaded by Prepare, or nil before the
// first prediction.
func (t *TextClassificationTranslator) Tokenizer() tokenizer.Tokenizer {
	return t.tok
}

// ProcessInput implements model.Translator.
func (t *TextClassificationTranslator) ProcessInput(ctx *model.TranslatorContext, input string) (tensor.NDList, error) {
	if t.tok == nil {
		return nil, fmt.Errorf("%w: translator is not prepared", ErrNoVocabulary)
	}
	features, err := BagOfTokens(t.tok, input)
	if err != nil {
		return nil, err
	}
	return t.Labels.ProcessInput(ctx, features)
}

// ProcessOutput implements model.Translator.
func (t *TextClassificationTranslator) ProcessOutput(_ *model.TranslatorContext, output tensor.NDList) (Classifications, error) {
	return t.Labels.classify(output)
}

// BagOfTokens returns the token frequencies of text as a vector of length
// tok.VocabSize(). Special tokens are ignored. Empty text gives all zeros.
func BagOfTokens(tok tokenizer.Tokenizer, text string) ([]float32, error) {
	ids, err := tok.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	features := make([]float32, tok.VocabSize())
	var n int
	for _, id := range ids {
		if id < 0 || tok.IsSpecialToken(id) || int(id) >= len(features) {
			continue
		}
		features[id]++
		n++
	}
	if n > 0 {
		inv := 1 / float32(n)
		tensor.Scal(inv, features)
	}
	return features, nil
}

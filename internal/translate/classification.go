package translate

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strings"

	"github.com/born-ml/forge/internal/model"
	"github.com/born-ml/forge/internal/tensor"
)

// SynsetArtifact is the default name of the label artifact.
const SynsetArtifact = "synset.txt"

// Errors returned by the classification translators.
var (
	ErrNoLabels      = errors.New("no class labels")
	ErrLabelMismatch = errors.New("label count does not match model output")
)

// Classification is one labelled score.
type Classification struct {
	Index       int
	Class       string
	Probability float32
}

// Classifications holds the scores of one prediction ordered from most to
// least probable.
type Classifications []Classification

// Best returns the most probable class.
func (c Classifications) Best() Classification {
	if len(c) == 0 {
		return Classification{Index: -1}
	}
	return c[0]
}

// TopK returns at most k leading classes.
func (c Classifications) TopK(k int) Classifications {
	return c[:min(max(k, 0), len(c))]
}

// ClassificationTranslator maps a float32 feature vector to a (1, n) input
// and the first output row to ranked labels.
//
// Labels come from Synset when set, otherwise from the SynsetArtifact of
// the model, one label per line.
type ClassificationTranslator struct {
	// Artifact overrides SynsetArtifact.
	Artifact string
	// Synset is used instead of the artifact when not empty.
	Synset []string
	// TopK limits the returned classes; 0 keeps all of them.
	TopK int
	// ApplySoftmax converts raw scores to probabilities.
	ApplySoftmax bool
}

var (
	_ model.Translator[[]float32, Classifications] = (*ClassificationTranslator)(nil)
	_ model.Preparer                               = (*ClassificationTranslator)(nil)
)

// Prepare loads the labels once per model.
func (t *ClassificationTranslator) Prepare(ctx *model.TranslatorContext) error {
	if len(t.Synset) > 0 {
		return nil
	}
	name := cmp.Or(t.Artifact, SynsetArtifact)
	labels, err := model.GetArtifact(ctx.Model, name, ReadSynset)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: model %s has no %s", ErrNoLabels, ctx.Model.Name(), name)
	}
	if err != nil {
		return err
	}
	if len(labels) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrNoLabels, name)
	}
	t.Synset = labels
	return nil
}

// ProcessInput implements model.Translator.
func (t *ClassificationTranslator) ProcessInput(ctx *model.TranslatorContext, input []float32) (tensor.NDList, error) {
	x, err := ctx.Manager.FromFloat32(input, tensor.Shape{1, len(input)})
	if err != nil {
		return nil, err
	}
	return tensor.NDList{x}, nil
}

// ProcessOutput implements model.Translator.
func (t *ClassificationTranslator) ProcessOutput(_ *model.TranslatorContext, output tensor.NDList) (Classifications, error) {
	return t.classify(output)
}

func (t *ClassificationTranslator) classify(output tensor.NDList) (Classifications, error) {
	scores := output.Head()
	if scores == nil {
		return nil, fmt.Errorf("%w: empty output", tensor.ErrShapeMismatch)
	}
	if scores.DType() != tensor.Float32 {
		cast, err := tensor.Cast(scores, tensor.Float32)
		if err != nil {
			return nil, err
		}
		defer cast.Release()
		scores = cast
	}
	if t.ApplySoftmax {
		probs, err := tensor.SoftmaxRows(scores)
		if err != nil {
			return nil, err
		}
		defer probs.Release()
		scores = probs
	}

	shape := scores.Shape()
	cols := 1
	if len(shape) > 0 {
		cols = shape[len(shape)-1]
	}
	if cols != len(t.Synset) {
		return nil, fmt.Errorf("%w: %d labels, %d scores", ErrLabelMismatch, len(t.Synset), cols)
	}

	row := scores.AsFloat32()[:cols]
	out := make(Classifications, cols)
	for i, p := range row {
		out[i] = Classification{Index: i, Class: t.Synset[i], Probability: p}
	}
	slices.SortStableFunc(out, func(a, b Classification) int {
		return cmp.Compare(b.Probability, a.Probability)
	})
	if t.TopK > 0 {
		out = out.TopK(t.TopK)
	}
	return out, nil
}

// ReadSynset reads one label per line, trimming spaces and skipping blank
// lines.
func ReadSynset(r io.Reader) ([]string, error) {
	var labels []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read synset: %w", err)
	}
	return labels, nil
}

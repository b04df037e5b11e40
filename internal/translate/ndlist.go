package translate

import (
	"github.com/born-ml/forge/internal/model"
	"github.com/born-ml/forge/internal/tensor"
)

// NDListTranslator feeds tensors to the block as they are and returns
// copies of the outputs that outlive the prediction.
type NDListTranslator struct{}

var _ model.Translator[tensor.NDList, tensor.NDList] = NDListTranslator{}

// ProcessInput implements model.Translator.
func (NDListTranslator) ProcessInput(_ *model.TranslatorContext, input tensor.NDList) (tensor.NDList, error) {
	return input, nil
}

// ProcessOutput implements model.Translator. The returned tensors are not
// owned by any manager; the caller releases them.
func (NDListTranslator) ProcessOutput(_ *model.TranslatorContext, output tensor.NDList) (tensor.NDList, error) {
	out := make(tensor.NDList, len(output))
	for i, t := range output {
		out[i] = t.Copy()
	}
	return out, nil
}

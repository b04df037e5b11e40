package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/forge/internal/tensor"
)

// Loss scores predictions against labels and returns the scalar loss with
// the gradient with respect to each prediction.
type Loss interface {
	// Name returns a short identifier used in logs.
	Name() string

	// Evaluate returns the loss value and d(loss)/d(predictions).
	// Gradients are allocated in m.
	Evaluate(m *tensor.Manager, labels, predictions tensor.NDList) (float32, tensor.NDList, error)
}

// L2Loss computes mean(0.5 * (prediction - label)²).
//
// L2 is commonly used for regression tasks where the goal is to predict
// continuous values.
type L2Loss struct{}

// NewL2Loss creates an L2 loss.
func NewL2Loss() *L2Loss {
	return &L2Loss{}
}

// Name implements Loss.
func (*L2Loss) Name() string { return "l2" }

// Evaluate implements Loss.
func (*L2Loss) Evaluate(m *tensor.Manager, labels, predictions tensor.NDList) (float32, tensor.NDList, error) {
	pred, label, err := lossPair("l2", labels, predictions)
	if err != nil {
		return 0, nil, err
	}
	if !pred.Shape().Equal(label.Shape()) {
		return 0, nil, fmt.Errorf("%w: l2 predictions %v, labels %v",
			tensor.ErrShapeMismatch, pred.Shape(), label.Shape())
	}

	grad, err := m.Create(pred.Shape(), tensor.Float32)
	if err != nil {
		return 0, nil, err
	}
	p, y, g := pred.AsFloat32(), label.AsFloat32(), grad.AsFloat32()
	n := float32(len(p))
	var sum float64
	for i := range p {
		diff := p[i] - y[i]
		sum += 0.5 * float64(diff) * float64(diff)
		g[i] = diff / n
	}
	return float32(sum / float64(n)), tensor.NDList{grad}, nil
}

// SoftmaxCrossEntropyLoss applies softmax over the last axis of the
// predictions and computes the mean negative log-likelihood.
//
// Labels are either class indices with shape [batch] or [batch, 1], or
// one-hot/probability rows with the same shape as the predictions.
type SoftmaxCrossEntropyLoss struct{}

// NewSoftmaxCrossEntropyLoss creates a softmax cross-entropy loss.
func NewSoftmaxCrossEntropyLoss() *SoftmaxCrossEntropyLoss {
	return &SoftmaxCrossEntropyLoss{}
}

// Name implements Loss.
func (*SoftmaxCrossEntropyLoss) Name() string { return "softmax_cross_entropy" }

// Evaluate implements Loss.
func (*SoftmaxCrossEntropyLoss) Evaluate(m *tensor.Manager, labels, predictions tensor.NDList) (float32, tensor.NDList, error) {
	pred, label, err := lossPair("softmax cross-entropy", labels, predictions)
	if err != nil {
		return 0, nil, err
	}
	shape := pred.Shape()
	if len(shape) == 0 {
		return 0, nil, fmt.Errorf("softmax cross-entropy: predictions must have a class axis")
	}
	classes := shape[len(shape)-1]
	rows := pred.NumElements() / classes

	target := make([]float32, pred.NumElements())
	y := label.AsFloat32()
	switch {
	case label.NumElements() == rows:
		for r, v := range y {
			idx := int(v)
			if idx < 0 || idx >= classes {
				return 0, nil, fmt.Errorf("softmax cross-entropy: label %v out of range [0, %d)", v, classes)
			}
			target[r*classes+idx] = 1
		}
	case label.NumElements() == pred.NumElements():
		copy(target, y)
	default:
		return 0, nil, fmt.Errorf("%w: softmax cross-entropy predictions %v, labels %v",
			tensor.ErrShapeMismatch, shape, label.Shape())
	}

	probs, err := tensor.SoftmaxRows(pred)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if owner := probs.Manager(); owner != nil {
			owner.Detach(probs)
		}
		probs.Release()
	}()

	grad, err := m.Create(shape, tensor.Float32)
	if err != nil {
		return 0, nil, err
	}
	p, g := probs.AsFloat32(), grad.AsFloat32()
	var sum float64
	for i := range p {
		if target[i] != 0 {
			sum -= float64(target[i]) * math.Log(math.Max(float64(p[i]), 1e-12))
		}
		g[i] = (p[i] - target[i]) / float32(rows)
	}
	return float32(sum / float64(rows)), tensor.NDList{grad}, nil
}

// ParseLoss returns the loss named "l2" or "softmax_cross_entropy".
func ParseLoss(name string) (Loss, error) {
	switch name {
	case "", "l2":
		return NewL2Loss(), nil
	case "softmax_cross_entropy", "cross_entropy":
		return NewSoftmaxCrossEntropyLoss(), nil
	default:
		return nil, fmt.Errorf("unknown loss %q", name)
	}
}

func lossPair(name string, labels, predictions tensor.NDList) (pred, label *tensor.RawTensor, err error) {
	if len(labels) == 0 || len(predictions) == 0 {
		return nil, nil, fmt.Errorf("%s: labels and predictions are required", name)
	}
	pred, label = predictions[0], labels[0]
	if pred.DType() != tensor.Float32 || label.DType() != tensor.Float32 {
		return nil, nil, fmt.Errorf("%s: float32 required, got %s and %s", name, pred.DType(), label.DType())
	}
	return pred, label, nil
}

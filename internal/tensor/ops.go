package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/forge/internal/parallel"
)

// Gemm computes c = alpha * op(a) * op(b) + beta * c on row-major float32
// matrices, where op(a) is m×k and op(b) is k×n.
func Gemm(transA, transB bool, m, n, k int, alpha float32, a, b []float32, beta float32, c []float32) {
	ta, tb := blas.NoTrans, blas.NoTrans
	aRows, aCols := m, k
	if transA {
		ta = blas.Trans
		aRows, aCols = k, m
	}
	bRows, bCols := k, n
	if transB {
		tb = blas.Trans
		bRows, bCols = n, k
	}

	blas32.Gemm(ta, tb, alpha,
		blas32.General{Rows: aRows, Cols: aCols, Stride: aCols, Data: a},
		blas32.General{Rows: bRows, Cols: bCols, Stride: bCols, Data: b},
		beta,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c},
	)
}

// Axpy computes y += alpha * x.
func Axpy(alpha float32, x, y []float32) {
	blas32.Axpy(alpha,
		blas32.Vector{N: len(x), Inc: 1, Data: x},
		blas32.Vector{N: len(y), Inc: 1, Data: y},
	)
}

// Scal computes x *= alpha.
func Scal(alpha float32, x []float32) {
	blas32.Scal(alpha, blas32.Vector{N: len(x), Inc: 1, Data: x})
}

// MatMul multiplies two 2-D Float32 tensors. The result is owned by the
// manager of a, or by nobody if a is unowned.
func MatMul(a, b *RawTensor) (*RawTensor, error) {
	if a.dtype != Float32 || b.dtype != Float32 {
		return nil, fmt.Errorf("matmul: float32 required, got %s and %s", a.dtype, b.dtype)
	}
	if len(a.shape) != 2 || len(b.shape) != 2 || a.shape[1] != b.shape[0] {
		return nil, fmt.Errorf("%w: matmul %v x %v", ErrShapeMismatch, a.shape, b.shape)
	}

	m, k, n := a.shape[0], a.shape[1], b.shape[1]
	out, err := NewLike(a, Shape{m, n}, Float32)
	if err != nil {
		return nil, err
	}
	Gemm(false, false, m, n, k, 1, a.AsFloat32(), b.AsFloat32(), 0, out.AsFloat32())
	return out, nil
}

// SoftmaxRows applies a numerically stable softmax over the last axis of a
// Float32 tensor and returns a new tensor.
func SoftmaxRows(t *RawTensor) (*RawTensor, error) {
	if t.dtype != Float32 {
		return nil, fmt.Errorf("softmax: float32 required, got %s", t.dtype)
	}
	cols := 1
	if len(t.shape) > 0 {
		cols = t.shape[len(t.shape)-1]
	}

	out, err := NewLike(t, t.shape, Float32)
	if err != nil {
		return nil, err
	}
	src, dst := t.AsFloat32(), out.AsFloat32()
	if cols == 0 {
		return out, nil
	}
	parallel.For(len(src)/cols, func(r int) {
		start := r * cols
		softmaxRow(src[start:start+cols], dst[start:start+cols])
	}, parallel.DefaultConfig().WithMinChunk(16))
	return out, nil
}

func softmaxRow(src, dst []float32) {
	maxVal := float32(math.Inf(-1))
	for _, v := range src {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float32
	for i, v := range src {
		e := float32(math.Exp(float64(v - maxVal)))
		dst[i] = e
		sum += e
	}
	for i := range dst {
		dst[i] /= sum
	}
}

// NewLike allocates a zero-filled tensor in the manager that owns like, or an
// unowned tensor on the same device if like has no manager.
func NewLike(like *RawTensor, shape Shape, dtype DataType) (*RawTensor, error) {
	if like.owner != nil {
		return like.owner.Create(shape, dtype)
	}
	return NewRaw(shape, dtype, like.device)
}

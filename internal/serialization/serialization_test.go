package serialization

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/forge/internal/tensor"
)

func testTensors(t *testing.T) []NamedTensor {
	t.Helper()
	w, err := tensor.FromFloat32(make([]float32, 256), tensor.Shape{16, 16}, tensor.CPUDevice())
	require.NoError(t, err)
	for i := range w.AsFloat32() {
		w.AsFloat32()[i] = float32(i % 7)
	}
	b, err := tensor.NewRaw(tensor.Shape{3}, tensor.Int64, tensor.CPUDevice())
	require.NoError(t, err)
	copy(b.AsInt64(), []int64{-1, 0, 1})
	return []NamedTensor{{Name: "01Linear.weight", Tensor: w}, {Name: "01Linear.bias", Tensor: b}}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	for _, codec := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(codec.String(), func(t *testing.T) {
			tensors := testTensors(t)
			var buf bytes.Buffer
			err := Write(&buf, tensors, Header{
				ModelName:  "mlp",
				BlockKind:  "Sequential",
				DataType:   tensor.Float32,
				Properties: map[string]string{"Epoch": "3"},
			}, WriterOptions{Compression: codec})
			require.NoError(t, err)

			r, err := Read(bytes.NewReader(buf.Bytes()), ReaderOptions{})
			require.NoError(t, err)

			h := r.Header()
			assert.Equal(t, FormatVersion, h.FormatVersion)
			assert.Equal(t, "mlp", h.ModelName)
			assert.Equal(t, "3", r.Properties()["Epoch"])
			assert.Equal(t, []string{"01Linear.weight", "01Linear.bias"}, r.TensorNames())
			assert.NotZero(t, r.Flags()&FlagHasProperties)
			if codec != CompressionNone {
				assert.Equal(t, codec, h.Compression)
				assert.NotZero(t, r.Flags()&FlagCompressed)
			}

			got, err := r.Tensors()
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, tensors[0].Tensor.AsFloat32(), got[0].Tensor.AsFloat32())
			assert.Equal(t, []int64{-1, 0, 1}, got[1].Tensor.AsInt64())
			assert.Equal(t, "01Linear.bias", got[1].Tensor.Name())
		})
	}
}

func TestRead_ChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testTensors(t), Header{ModelName: "m"}, WriterOptions{}))
	data := buf.Bytes()
	data[len(data)-1] ^= 0xFF

	_, err := Read(bytes.NewReader(data), ReaderOptions{})
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	_, err = Read(bytes.NewReader(data), ReaderOptions{SkipChecksumValidation: true})
	assert.NoError(t, err)
}

func TestRead_BadMagicAndVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testTensors(t), Header{}, WriterOptions{}))

	data := append([]byte(nil), buf.Bytes()...)
	copy(data, "NOPE")
	_, err := Read(bytes.NewReader(data), ReaderOptions{})
	assert.ErrorIs(t, err, ErrInvalidMagic)

	data = append([]byte(nil), buf.Bytes()...)
	binary.LittleEndian.PutUint32(data[4:8], 9)
	_, err = Read(bytes.NewReader(data), ReaderOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Read(bytes.NewReader(data[:10]), ReaderOptions{})
	assert.Error(t, err)
}

func TestWriteFile_AndReadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mlp-0001.born")
	require.NoError(t, WriteFile(path, testTensors(t), Header{ModelName: "mlp", BlockKind: "Sequential"},
		WriterOptions{Compression: CompressionZstd}))

	h, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, "Sequential", h.BlockKind)
	assert.Equal(t, CompressionZstd, h.Compression)
	assert.Len(t, h.Tensors, 2)

	r, err := Open(path, ReaderOptions{})
	require.NoError(t, err)
	w, err := r.Tensor("01Linear.weight")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{16, 16}, w.Shape())

	_, err = r.Tensor("missing")
	assert.ErrorIs(t, err, ErrTensorNotFound)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be renamed away")
}

func TestWrite_RejectsBadNames(t *testing.T) {
	tensors := testTensors(t)
	tensors[0].Name = "../escape"
	err := Write(&bytes.Buffer{}, tensors, Header{}, WriterOptions{})
	assert.ErrorIs(t, err, ErrInvalidTensorName)
}

func TestValidateTensorOffsets(t *testing.T) {
	err := ValidateTensorOffsets([]TensorMeta{
		{Name: "a", Offset: 0, Size: 8},
		{Name: "b", Offset: 4, Size: 8},
	}, 16)
	assert.ErrorIs(t, err, ErrOffsetOverlap)

	err = ValidateTensorOffsets([]TensorMeta{{Name: "a", Offset: 8, Size: 16}}, 16)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	err = ValidateTensorOffsets([]TensorMeta{{Name: "a", Offset: -1, Size: 1}}, 16)
	assert.ErrorIs(t, err, ErrNegativeOffset)

	assert.NoError(t, ValidateTensorOffsets([]TensorMeta{
		{Name: "a", Offset: 0, Size: 8},
		{Name: "b", Offset: 8, Size: 8},
	}, 16))
}

func TestValidateHeader(t *testing.T) {
	h := &Header{RawSize: 16, Tensors: []TensorMeta{
		{Name: "w", DType: tensor.Float32, Shape: []int{2, 2}, Offset: 0, Size: 16},
	}}
	require.NoError(t, ValidateHeader(h, ValidationStrict))

	h.Tensors[0].Size = 12
	var vErr *ValidationError
	require.ErrorAs(t, ValidateHeader(h, ValidationNormal), &vErr)
	assert.Equal(t, "size_mismatch", vErr.Type)
	assert.NoError(t, ValidateHeader(h, ValidationNone))

	h.Tensors[0].Size = 16
	h.Tensors = append(h.Tensors, h.Tensors[0])
	assert.ErrorIs(t, ValidateHeader(h, ValidationNormal), ErrInvalidTensorName)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("LZ4")
	require.NoError(t, err)
	assert.Equal(t, CompressionLZ4, c)

	_, err = ParseCompression("brotli")
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

func TestSafeTensors_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mlp.safetensors")
	tensors := testTensors(t)
	half, err := tensor.Cast(tensors[0].Tensor, tensor.Float16)
	require.NoError(t, err)
	tensors = append(tensors, NamedTensor{Name: "half", Tensor: half})

	require.NoError(t, WriteSafeTensors(path, tensors, map[string]string{"format": "pt"}))

	f, err := ReadSafeTensors(path, tensor.CPUDevice())
	require.NoError(t, err)
	assert.Equal(t, "pt", f.Metadata["format"])
	require.Len(t, f.Tensors, 3)

	byName := map[string]*tensor.RawTensor{}
	for _, nt := range f.Tensors {
		byName[nt.Name] = nt.Tensor
	}
	assert.Equal(t, tensor.Float16, byName["half"].DType())
	assert.Equal(t, half.AsFloat16Bits(), byName["half"].AsFloat16Bits())
	assert.Equal(t, []int64{-1, 0, 1}, byName["01Linear.bias"].AsInt64())
}

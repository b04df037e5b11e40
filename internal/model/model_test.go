package model

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/forge/internal/dataset"
	"github.com/born-ml/forge/internal/logging"
	"github.com/born-ml/forge/internal/nn"
	"github.com/born-ml/forge/internal/optim"
	"github.com/born-ml/forge/internal/serialization"
	"github.com/born-ml/forge/internal/tensor"
)

func newTestModel(t *testing.T, name string) *Model {
	t.Helper()
	m := New(name, tensor.CPUDevice(), WithLogger(logging.Noop()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// newMLP returns a model holding an initialized 4 -> 3 -> 2 network.
func newMLP(t *testing.T, name string) *Model {
	t.Helper()
	m := newTestModel(t, name)
	net := nn.NewSequential(
		nn.NewLinear(3, true),
		nn.NewActivation(nn.ReLU),
		nn.NewLinear(2, true),
	)
	nn.SetInitializer(net, nn.NewXavier(7))
	require.NoError(t, net.Initialize(m.NDManager(), tensor.Float32, tensor.Shape{1, 4}))
	require.NoError(t, m.SetBlock(net))
	return m
}

type vectorTranslator struct {
	prepared atomic.Int32
}

func (v *vectorTranslator) Prepare(*TranslatorContext) error {
	v.prepared.Add(1)
	return nil
}

func (v *vectorTranslator) ProcessInput(ctx *TranslatorContext, in []float32) (tensor.NDList, error) {
	x, err := ctx.Manager.FromFloat32(in, tensor.Shape{1, len(in)})
	if err != nil {
		return nil, err
	}
	return tensor.NDList{x}, nil
}

func (v *vectorTranslator) ProcessOutput(_ *TranslatorContext, out tensor.NDList) ([]float32, error) {
	return slices.Clone(out.Head().AsFloat32()), nil
}

func predict(t *testing.T, m *Model, in []float32) []float32 {
	t.Helper()
	p, err := NewPredictor[[]float32, []float32](m, &vectorTranslator{})
	require.NoError(t, err)
	defer p.Close()
	out, err := p.Predict(context.Background(), in)
	require.NoError(t, err)
	return out
}

func TestProperties(t *testing.T) {
	m := newTestModel(t, "m")

	_, ok := m.Property("missing")
	assert.False(t, ok)

	require.NoError(t, m.SetProperty("k", "v"))
	v, ok := m.Property("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, m.SetProperty("a", "1"))
	assert.Equal(t, []string{"a", "k"}, m.PropertyKeys())

	props := m.Properties()
	props["k"] = "changed"
	v, _ = m.Property("k")
	assert.Equal(t, "v", v, "Properties returns a copy")
}

func TestClose_IdempotentAndUseAfterClose(t *testing.T) {
	m := newMLP(t, "m")
	mgr := m.NDManager()

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.False(t, mgr.IsOpen())

	assert.ErrorIs(t, m.SetProperty("k", "v"), ErrModelClosed)
	assert.ErrorIs(t, m.SetBlock(nn.NewLinear(1, false)), ErrModelClosed)
	assert.ErrorIs(t, m.Cast(tensor.Float16), ErrModelClosed)
	assert.ErrorIs(t, m.Save(t.TempDir(), "m"), ErrModelClosed)
	assert.ErrorIs(t, m.Load(t.TempDir(), LoadOptions{}), ErrModelClosed)
	_, err := m.ArtifactNames()
	assert.ErrorIs(t, err, ErrModelClosed)
	_, err = GetArtifact(m, "x", func(io.Reader) (string, error) { return "", nil })
	assert.ErrorIs(t, err, ErrModelClosed)
	_, err = m.NewTrainer(TrainingConfig{})
	assert.ErrorIs(t, err, ErrModelClosed)
	_, err = NewPredictor[[]float32, []float32](m, &vectorTranslator{})
	assert.ErrorIs(t, err, ErrModelClosed)

	assert.Panics(t, func() { m.Block() })
	assert.Panics(t, func() { m.Property("k") })
	assert.Panics(t, func() { m.DescribeInput() })
}

func TestSetBlock_RejectsNil(t *testing.T) {
	m := newTestModel(t, "m")
	assert.ErrorIs(t, m.SetBlock(nil), ErrNoBlock)
	assert.Nil(t, m.Block())
	assert.Nil(t, m.DescribeInput())
	assert.Nil(t, m.DescribeOutput())
}

func TestDescribe(t *testing.T) {
	m := newMLP(t, "m")

	want := []nn.DataDesc{{Name: "data", Shape: tensor.Shape{tensor.UnknownDim, 4}, DType: tensor.Float32}}
	assert.Empty(t, cmp.Diff(want, m.DescribeInput()))

	wantOut := []nn.DataDesc{{Name: "output", Shape: tensor.Shape{tensor.UnknownDim, 2}, DType: tensor.Float32}}
	assert.Empty(t, cmp.Diff(wantOut, m.DescribeOutput()))
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := newMLP(t, "mlp")
	require.NoError(t, src.SetProperty("author", "forge"))
	input := []float32{0.5, -1, 2, 0.25}
	want := predict(t, src, input)

	require.NoError(t, src.Save(dir, "mlp"))
	assert.FileExists(t, filepath.Join(dir, "mlp-symbol.json"))
	assert.FileExists(t, filepath.Join(dir, "mlp-0000.born"))

	dst := newTestModel(t, "other")
	require.NoError(t, dst.Load(dir, LoadOptions{Name: "mlp"}))

	assert.Equal(t, "mlp", dst.Name())
	assert.Equal(t, tensor.Float32, dst.DataType())
	assert.Empty(t, cmp.Diff(src.Block().Config(), dst.Block().Config()))
	assert.Empty(t, cmp.Diff(src.DescribeInput(), dst.DescribeInput()))
	assert.Empty(t, cmp.Diff(src.DescribeOutput(), dst.DescribeOutput()))

	author, ok := dst.Property("author")
	assert.True(t, ok)
	assert.Equal(t, "forge", author)
	epoch, _ := dst.Property(PropertyEpoch)
	assert.Equal(t, "0", epoch)

	assert.InDeltaSlice(t, want, predict(t, dst, input), 1e-6)

	for pair := dst.Block().Parameters().Oldest(); pair != nil; pair = pair.Next() {
		assert.Same(t, dst.NDManager(), pair.Value.Tensor().Manager(), "parameter %s", pair.Key)
	}
}

func TestSaveLoad_Compressed(t *testing.T) {
	for _, codec := range []string{"zstd", "lz4"} {
		t.Run(codec, func(t *testing.T) {
			t.Setenv("FORGE_COMPRESSION", codec)
			dir := t.TempDir()
			src := newMLP(t, "mlp")
			require.NoError(t, src.Save(dir, "mlp"))

			dst := newTestModel(t, "mlp")
			require.NoError(t, dst.Load(dir, LoadOptions{}))
			in := []float32{1, 2, 3, 4}
			assert.InDeltaSlice(t, predict(t, src, in), predict(t, dst, in), 1e-6)
		})
	}
}

func TestLoad_EpochSelection(t *testing.T) {
	dir := t.TempDir()
	src := newMLP(t, "mlp")
	for _, e := range []string{"1", "3", "2"} {
		require.NoError(t, src.SetProperty(PropertyEpoch, e))
		require.NoError(t, src.SetProperty("saved", e))
		require.NoError(t, src.Save(dir, "mlp"))
	}

	latest := newTestModel(t, "mlp")
	require.NoError(t, latest.Load(dir, LoadOptions{}))
	v, _ := latest.Property("saved")
	assert.Equal(t, "3", v)

	first := newTestModel(t, "mlp")
	require.NoError(t, first.Load(dir, LoadOptions{Options: map[string]string{OptionEpoch: "1"}}))
	v, _ = first.Property("saved")
	assert.Equal(t, "1", v)

	missing := newTestModel(t, "mlp")
	err := missing.Load(dir, LoadOptions{Options: map[string]string{OptionEpoch: "9"}})
	assert.ErrorIs(t, err, ErrIO)
}

func TestLoad_SingleFile(t *testing.T) {
	dir := t.TempDir()
	src := newMLP(t, "net")
	require.NoError(t, src.SetProperty(PropertyEpoch, "5"))
	require.NoError(t, src.Save(dir, "net"))

	m := newTestModel(t, "")
	require.NoError(t, m.Load(filepath.Join(dir, "net-0005.born"), LoadOptions{}))
	assert.Equal(t, "net", m.Name())
	assert.NotNil(t, m.Block())
}

func TestLoad_SafeTensors(t *testing.T) {
	dir := t.TempDir()
	src := newMLP(t, "mlp")
	require.NoError(t, src.Save(dir, "mlp"))

	params := src.Block().Parameters()
	var named []serialization.NamedTensor
	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		named = append(named, serialization.NamedTensor{Name: pair.Key, Tensor: pair.Value.Tensor()})
	}
	require.NoError(t, serialization.WriteSafeTensors(filepath.Join(dir, "mlp.safetensors"), named, nil))
	require.NoError(t, os.Remove(filepath.Join(dir, "mlp-0000.born")))

	m := newTestModel(t, "x")
	require.NoError(t, m.Load(filepath.Join(dir, "mlp.safetensors"), LoadOptions{}))
	in := []float32{1, 0, -1, 2}
	assert.InDeltaSlice(t, predict(t, src, in), predict(t, m, in), 1e-6)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		m := newTestModel(t, "m")
		err := m.Load(filepath.Join(t.TempDir(), "nope"), LoadOptions{})
		assert.ErrorIs(t, err, ErrIO)
	})

	t.Run("missing graph", func(t *testing.T) {
		m := newTestModel(t, "m")
		assert.ErrorIs(t, m.Load(t.TempDir(), LoadOptions{}), ErrIO)
	})

	t.Run("malformed graph", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "m-symbol.json"), []byte("{not json"), 0o600))
		m := newTestModel(t, "m")
		assert.ErrorIs(t, m.Load(dir, LoadOptions{}), ErrMalformedModel)
	})

	t.Run("unknown block kind", func(t *testing.T) {
		dir := t.TempDir()
		graph := `{"version":1,"block":{"kind":"Teleporter"}}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "m-symbol.json"), []byte(graph), 0o600))
		m := newTestModel(t, "m")
		err := m.Load(dir, LoadOptions{})
		assert.ErrorIs(t, err, ErrMalformedModel)
		assert.ErrorIs(t, err, nn.ErrUnknownBlock)
	})

	t.Run("corrupted parameters", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, newMLP(t, "m").Save(dir, "m"))
		file := filepath.Join(dir, "m-0000.born")
		data, err := os.ReadFile(file)
		require.NoError(t, err)
		data[len(data)-1] ^= 0xFF
		require.NoError(t, os.WriteFile(file, data, 0o600))

		m := newTestModel(t, "m")
		assert.ErrorIs(t, m.Load(dir, LoadOptions{}), ErrMalformedModel)

		unchecked := newTestModel(t, "m")
		assert.NoError(t, unchecked.Load(dir, LoadOptions{Options: map[string]string{OptionVerifyChecksum: "false"}}))
	})

	t.Run("parameter mismatch", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, newMLP(t, "m").Save(dir, "m"))

		m := newTestModel(t, "m")
		other := nn.NewSequential(nn.NewLinear(5, true), nn.NewActivation(nn.ReLU), nn.NewLinear(2, true))
		require.NoError(t, m.SetBlock(other))
		assert.ErrorIs(t, m.Load(dir, LoadOptions{}), ErrMalformedModel)
	})

	t.Run("twice", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, newMLP(t, "m").Save(dir, "m"))
		m := newTestModel(t, "m")
		require.NoError(t, m.Load(dir, LoadOptions{}))
		assert.ErrorIs(t, m.Load(dir, LoadOptions{}), ErrModelLoaded)
	})

	t.Run("bad options", func(t *testing.T) {
		m := newTestModel(t, "m")
		assert.Error(t, m.Load(t.TempDir(), LoadOptions{Options: map[string]string{OptionFormat: "onnx"}}))
		assert.Error(t, m.Load(t.TempDir(), LoadOptions{Options: map[string]string{OptionEpoch: "-2"}}))
	})
}

func TestLoad_PresetBlockWithoutGraph(t *testing.T) {
	dir := t.TempDir()
	src := newMLP(t, "mlp")
	require.NoError(t, src.Save(dir, "mlp"))
	require.NoError(t, os.Remove(filepath.Join(dir, "mlp-symbol.json")))

	m := newTestModel(t, "mlp")
	net := nn.NewSequential(nn.NewLinear(3, true), nn.NewActivation(nn.ReLU), nn.NewLinear(2, true))
	require.NoError(t, net.Initialize(m.NDManager(), tensor.Float32, tensor.Shape{1, 4}))
	require.NoError(t, m.SetBlock(net))
	require.NoError(t, m.Load(dir, LoadOptions{}))

	in := []float32{3, 2, 1, 0}
	assert.InDeltaSlice(t, predict(t, src, in), predict(t, m, in), 1e-6)
}

func TestLoad_DataTypeOption(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, newMLP(t, "m").Save(dir, "m"))

	m := newTestModel(t, "m")
	require.NoError(t, m.Load(dir, LoadOptions{Options: map[string]string{OptionDataType: "float16"}}))
	assert.Equal(t, tensor.Float16, m.DataType())
	for pair := m.Block().Parameters().Oldest(); pair != nil; pair = pair.Next() {
		assert.Equal(t, tensor.Float16, pair.Value.DType())
	}
}

func TestLoad_FailedDataTypeLeavesModelReloadable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, newMLP(t, "m").Save(dir, "m"))

	m := newTestModel(t, "m")
	err := m.Load(dir, LoadOptions{Options: map[string]string{OptionDataType: "bool"}})
	assert.ErrorIs(t, err, ErrUnsupportedCast)
	assert.Nil(t, m.Block())
	assert.Zero(t, m.NDManager().MemoryUsage())

	err = m.Load(dir, LoadOptions{Options: map[string]string{OptionDataType: "complex64"}})
	assert.ErrorContains(t, err, "unknown data type")
	assert.Nil(t, m.Block())

	require.NoError(t, m.Load(dir, LoadOptions{}))
	assert.Equal(t, tensor.Float32, m.DataType())
	assert.NotNil(t, m.Block())
}

func TestLoad_MismatchLeavesPresetBlockUntouched(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, newMLP(t, "m").Save(dir, "m"))

	m := newTestModel(t, "m")
	preset := nn.NewLinear(5, true)
	require.NoError(t, m.SetBlock(preset))

	err := m.Load(dir, LoadOptions{})
	assert.ErrorIs(t, err, ErrMalformedModel)
	assert.False(t, preset.IsInitialized())
	assert.Zero(t, m.NDManager().MemoryUsage())
	assert.Same(t, preset, m.Block())
}

func TestSaveLoad_FiveDigitEpoch(t *testing.T) {
	dir := t.TempDir()
	src := newMLP(t, "mlp")
	for _, e := range []string{"9999", "10000"} {
		require.NoError(t, src.SetProperty(PropertyEpoch, e))
		require.NoError(t, src.Save(dir, "mlp"))
	}
	assert.FileExists(t, filepath.Join(dir, "mlp-10000.born"))

	m := newTestModel(t, "mlp")
	require.NoError(t, m.Load(dir, LoadOptions{}))
	v, _ := m.Property(PropertyEpoch)
	assert.Equal(t, "10000", v)

	single := newTestModel(t, "")
	require.NoError(t, single.Load(filepath.Join(dir, "mlp-10000.born"), LoadOptions{}))
	assert.Equal(t, "mlp", single.Name())

	in := []float32{1, 2, 3, 4}
	assert.InDeltaSlice(t, predict(t, src, in), predict(t, single, in), 1e-6)
}

func TestCast(t *testing.T) {
	m := newMLP(t, "m")
	params := m.Block().Parameters()
	before := slices.Clone(params.Oldest().Value.Tensor().AsFloat32())

	require.NoError(t, m.Cast(tensor.Float16))
	assert.Equal(t, tensor.Float16, m.DataType())
	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		assert.Equal(t, tensor.Float16, pair.Value.DType())
	}

	require.NoError(t, m.Cast(tensor.Float32))
	assert.InDeltaSlice(t, before, params.Oldest().Value.Tensor().AsFloat32(), 1e-2)

	used := m.NDManager().MemoryUsage()
	err := m.Cast(tensor.Bool)
	assert.ErrorIs(t, err, ErrUnsupportedCast)
	var castErr *tensor.CastError
	assert.ErrorAs(t, err, &castErr)
	assert.Equal(t, tensor.Float32, m.DataType(), "failed cast leaves the model unchanged")
	assert.Equal(t, used, m.NDManager().MemoryUsage())
}

func TestCast_SaveLoadPreservesDescriptors(t *testing.T) {
	dir := t.TempDir()
	src := newMLP(t, "m")
	require.NoError(t, src.Cast(tensor.Float16))
	require.NoError(t, src.Save(dir, "m"))

	dst := newTestModel(t, "m")
	require.NoError(t, dst.Load(dir, LoadOptions{}))
	assert.Equal(t, tensor.Float16, dst.DataType())
	assert.Empty(t, cmp.Diff(src.DescribeInput(), dst.DescribeInput()))
}

func TestSetDataType(t *testing.T) {
	m := newTestModel(t, "m")
	require.NoError(t, m.SetDataType(tensor.Float16))
	assert.Equal(t, tensor.Float16, m.DataType())
	assert.Error(t, m.SetDataType(tensor.DataType(99)))
}

func writeArtifact(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	s := bufio.NewScanner(r)
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	return lines, s.Err()
}

func loadedModel(t *testing.T) (*Model, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, newMLP(t, "m").Save(dir, "m"))
	writeArtifact(t, dir, "synset.txt", "cat\ndog\n")
	writeArtifact(t, dir, "vocab.txt", "a 0\n")
	m := newTestModel(t, "m")
	require.NoError(t, m.Load(dir, LoadOptions{}))
	return m, dir
}

func TestArtifacts(t *testing.T) {
	m, dir := loadedModel(t)

	names, err := m.ArtifactNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"synset.txt", "vocab.txt"}, names)

	u, err := m.ArtifactURL("synset.txt")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "file", u.Scheme)
	assert.True(t, strings.HasSuffix(u.Path, "/synset.txt"))

	u, err = m.ArtifactURL("missing.txt")
	assert.NoError(t, err)
	assert.Nil(t, u)

	rc, err := m.ArtifactStream("synset.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "cat\ndog\n", string(data))

	rc, err = m.ArtifactStream("m-symbol.json")
	assert.NoError(t, err)
	assert.Nil(t, rc, "graph files are not artifacts")

	for _, bad := range []string{"", "../synset.txt", "a/b", `a\b`, filepath.Join(dir, "synset.txt")} {
		_, err := m.ArtifactStream(bad)
		assert.ErrorIs(t, err, ErrInvalidArtifactName, "name %q", bad)
	}
}

func TestGetArtifact_CachesOnce(t *testing.T) {
	m, _ := loadedModel(t)

	calls := 0
	load := func(r io.Reader) ([]string, error) {
		calls++
		return readLines(r)
	}
	first, err := GetArtifact(m, "synset.txt", load)
	require.NoError(t, err)
	second, err := GetArtifact(m, "synset.txt", load)
	require.NoError(t, err)

	assert.Equal(t, []string{"cat", "dog"}, first)
	assert.Equal(t, 1, calls)
	assert.Same(t, &first[0], &second[0], "the cached value is returned")
}

func TestGetArtifact_CachesNil(t *testing.T) {
	m, _ := loadedModel(t)

	calls := 0
	load := func(io.Reader) (*strings.Builder, error) {
		calls++
		return nil, nil
	}
	v, err := GetArtifact(m, "vocab.txt", load)
	require.NoError(t, err)
	assert.Nil(t, v)
	v, err = GetArtifact(m, "vocab.txt", load)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, calls)
}

func TestGetArtifact_Errors(t *testing.T) {
	m, _ := loadedModel(t)

	_, err := GetArtifact(m, "synset.txt", readLines)
	require.NoError(t, err)

	_, err = GetArtifact(m, "synset.txt", func(io.Reader) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, ErrArtifactType)
	var typeErr *ArtifactTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "synset.txt", typeErr.Name)

	_, err = GetArtifact(m, "missing.txt", readLines)
	assert.ErrorIs(t, err, ErrIO)

	_, err = GetArtifact(m, "../etc/passwd", readLines)
	assert.ErrorIs(t, err, ErrInvalidArtifactName)

	boom := errors.New("boom")
	calls := 0
	failing := func(io.Reader) (string, error) {
		calls++
		return "", boom
	}
	_, err = GetArtifact(m, "vocab.txt", failing)
	assert.ErrorIs(t, err, boom)
	_, err = GetArtifact(m, "vocab.txt", failing)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls, "loader errors are not cached")
}

func TestGetArtifact_ConcurrentCallersShareOneLoad(t *testing.T) {
	m, _ := loadedModel(t)

	var calls atomic.Int32
	load := func(r io.Reader) ([]string, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return readLines(r)
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([][]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = GetArtifact(m, "synset.txt", load)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, &results[0][0], &results[i][0])
	}
}

func TestSave_CopiesArtifacts(t *testing.T) {
	m, _ := loadedModel(t)
	out := t.TempDir()
	require.NoError(t, m.Save(out, "copy"))

	assert.FileExists(t, filepath.Join(out, "synset.txt"))
	assert.FileExists(t, filepath.Join(out, "copy-symbol.json"))
	assert.Equal(t, "copy", m.Name())
}

func TestSave_Errors(t *testing.T) {
	m := newTestModel(t, "m")
	assert.ErrorIs(t, m.Save(t.TempDir(), "m"), ErrNoBlock)

	m = newMLP(t, "m")
	require.NoError(t, m.SetProperty(PropertyEpoch, "later"))
	assert.Error(t, m.Save(t.TempDir(), "m"))

	require.NoError(t, m.SetProperty(PropertyEpoch, "1"))
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.ErrorIs(t, m.Save(file, "m"), ErrIO)
}

func TestPredictor(t *testing.T) {
	m := newMLP(t, "m")
	tr := &vectorTranslator{}
	used := m.NDManager().MemoryUsage()
	p, err := NewPredictor[[]float32, []float32](m, tr)
	require.NoError(t, err)

	out, err := p.BatchPredict(context.Background(), [][]float32{{1, 2, 3, 4}, {4, 3, 2, 1}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Len(t, out[0], 2)
	assert.Equal(t, int32(1), tr.prepared.Load(), "Prepare runs once")
	assert.Equal(t, used, m.NDManager().MemoryUsage(), "scratch tensors are released")

	_, err = p.Predict(context.Background(), []float32{1, 2})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.BatchPredict(ctx, [][]float32{{1, 2, 3, 4}})
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	_, err = p.Predict(context.Background(), []float32{1, 2, 3, 4})
	assert.Error(t, err)
}

func TestPredictor_RequiresInitializedBlock(t *testing.T) {
	m := newTestModel(t, "m")
	_, err := NewPredictor[[]float32, []float32](m, &vectorTranslator{})
	assert.ErrorIs(t, err, ErrNoBlock)

	require.NoError(t, m.SetBlock(nn.NewLinear(2, true)))
	_, err = NewPredictor[[]float32, []float32](m, &vectorTranslator{})
	assert.Error(t, err)
}

func linearData(n int) ([][]float32, [][]float32) {
	features := make([][]float32, n)
	labels := make([][]float32, n)
	for i := range features {
		x := float32(i) / float32(n)
		features[i] = []float32{x}
		labels[i] = []float32{2*x + 1}
	}
	return features, labels
}

func TestTrainer_Fit(t *testing.T) {
	m := newTestModel(t, "regression")
	require.NoError(t, m.SetBlock(nn.NewLinear(1, true)))

	trainer, err := m.NewTrainer(TrainingConfig{
		Optimizer:   optim.NewSGD(optim.SGDConfig{LR: 0.5}),
		Initializer: nn.NewXavier(3),
	})
	require.NoError(t, err)
	defer trainer.Close()

	ds, err := dataset.NewArrayDataset(linearData(16))
	require.NoError(t, err)

	first, err := trainer.Fit(context.Background(), ds, FitConfig{Epochs: 1, BatchSize: 4})
	require.NoError(t, err)
	last, err := trainer.Fit(context.Background(), ds, FitConfig{
		Epochs:    60,
		BatchSize: 4,
		Sampler: func(size int64) dataset.Sampler {
			s, _ := dataset.NewRandomSampler(size, 11)
			return s
		},
		Validation: ds,
	})
	require.NoError(t, err)

	assert.Less(t, last.TrainLoss, first.TrainLoss)
	assert.Less(t, last.ValidationLoss, float32(1e-2))
	assert.Equal(t, 61, last.Epoch)
	assert.Equal(t, int64(61*4), trainer.Steps())

	epoch, _ := m.Property(PropertyEpoch)
	assert.Equal(t, "61", epoch)

	dir := t.TempDir()
	require.NoError(t, m.Save(dir, ""))
	assert.FileExists(t, filepath.Join(dir, "regression-0061.born"))
}

func TestTrainer_Errors(t *testing.T) {
	m := newTestModel(t, "m")
	_, err := m.NewTrainer(TrainingConfig{})
	assert.ErrorIs(t, err, ErrNoBlock)

	require.NoError(t, m.SetBlock(nn.NewLinear(1, true)))
	_, err = m.NewTrainer(TrainingConfig{Devices: []tensor.Device{tensor.GPUDevice(0)}})
	assert.ErrorIs(t, err, tensor.ErrUnsupportedDevice)

	trainer, err := m.NewTrainer(TrainingConfig{})
	require.NoError(t, err)
	assert.Equal(t, "l2", trainer.Config().Loss.Name())
	assert.Equal(t, "sgd", trainer.Config().Optimizer.Name())

	ds, err := dataset.NewArrayDataset(linearData(4))
	require.NoError(t, err)
	_, err = trainer.Fit(context.Background(), ds, FitConfig{})
	assert.Error(t, err, "zero epochs")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = trainer.Fit(ctx, ds, FitConfig{Epochs: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/born-ml/forge/internal/envconfig"
	"github.com/born-ml/forge/internal/nn"
	"github.com/born-ml/forge/internal/serialization"
	"github.com/born-ml/forge/internal/tensor"
)

// PropertyEpoch is the property holding the training epoch. Save uses it to
// number the parameter file and Load sets it from the file it picked.
const PropertyEpoch = "Epoch"

// Load option keys.
const (
	OptionEpoch          = "epoch"          // parameter file epoch, default: highest
	OptionFormat         = "format"         // "born" (default) or "safetensors"
	OptionVerifyChecksum = "verifyChecksum" // "true"/"false", default FORGE_VERIFY_CHECKSUM
	OptionDataType       = "dataType"       // cast parameters after loading
)

const (
	symbolSuffix   = "-symbol.json"
	safeTensorsExt = ".safetensors"
)

var paramFilePattern = regexp.MustCompile(`^(.+)-(\d{4,})\.born$`)

func paramFileName(name string, epoch int) string {
	return fmt.Sprintf("%s-%04d%s", name, epoch, serialization.FileExtension)
}

// isModelFile reports whether a directory entry is part of the graph or
// parameters rather than an artifact.
func isModelFile(base string) bool {
	return strings.HasSuffix(base, symbolSuffix) ||
		strings.HasSuffix(base, serialization.FileExtension) ||
		strings.HasSuffix(base, safeTensorsExt) ||
		strings.Contains(base, serialization.FileExtension+".tmp-")
}

// LoadOptions selects what Load reads. Name defaults to the model name, or
// to the file stem when Load is given a single file. Options holds the
// format variants listed by the Option* constants.
type LoadOptions struct {
	Name    string
	Options map[string]string
}

type loadSource struct {
	dir    string
	name   string
	format string
	epoch  int // -1 selects the highest epoch
	verify bool
	castTo tensor.DataType
	cast   bool
}

// Load reads a persisted model from path, which is either a model
// directory or one of its files.
//
// The graph is read from <name>-symbol.json and rebuilds the block unless
// one was set with SetBlock. Parameters come from <name>-NNNN.born (or
// <name>.safetensors with format=safetensors) and must match the block
// parameter for parameter.
//
// Storage failures wrap ErrIO; content that does not decode into a
// consistent graph and parameter set wraps ErrMalformedModel. Load may be
// called once per Model.
func (m *Model) Load(path string, opts LoadOptions) (err error) {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if m.loaded {
		return fmt.Errorf("load %s: %w", path, ErrModelLoaded)
	}

	epoch := -1
	defer func() { m.logger.LogLoad(context.Background(), path, epoch, err) }()

	src, err := m.resolve(path, opts)
	if err != nil {
		return err
	}

	graph, block, err := m.readGraph(src)
	if err != nil {
		return err
	}

	var (
		named []serialization.NamedTensor
		dtype = m.dataType
		props map[string]string
	)
	switch src.format {
	case "safetensors":
		file := filepath.Join(src.dir, src.name+safeTensorsExt)
		f, err := serialization.ReadSafeTensors(file, m.device)
		if err != nil {
			return classify("read "+file, err)
		}
		named, props = f.Tensors, f.Metadata
		if len(named) > 0 {
			dtype = named[0].Tensor.DType()
		}
	default:
		file, fileEpoch, err := findParamFile(src.dir, src.name, src.epoch)
		if err != nil {
			return err
		}
		r, err := serialization.Open(file, serialization.ReaderOptions{
			SkipChecksumValidation: !src.verify,
			Device:                 m.device,
		})
		if err != nil {
			return classify("read "+file, err)
		}
		if named, err = r.Tensors(); err != nil {
			return classify("read "+file, err)
		}
		epoch = fileEpoch
		dtype = r.Header().DataType
		props = r.Properties()
	}

	if src.cast {
		if named, err = castLoaded(named, dtype, src.castTo); err != nil {
			return err
		}
		m.logger.Debug("model cast", "from", dtype, "to", src.castTo, "parameters", len(named))
		dtype = src.castTo
	}

	if err := m.bindParameters(block, graph, named); err != nil {
		return err
	}

	m.block = block
	m.graph = graph
	m.dataType = dtype
	maps.Copy(m.props, props)
	if _, ok := m.props[PropertyEpoch]; !ok && epoch >= 0 {
		m.props[PropertyEpoch] = strconv.Itoa(epoch)
	}
	if epoch < 0 {
		if n, err := strconv.Atoi(m.props[PropertyEpoch]); err == nil {
			epoch = n
		}
	}
	m.name = src.name
	m.modelDir = src.dir
	m.loaded = true
	return nil
}

// castLoaded converts freshly read parameters to dt. The inputs are
// released in every case; on error nothing is returned.
func castLoaded(named []serialization.NamedTensor, from, dt tensor.DataType) ([]serialization.NamedTensor, error) {
	release := func(list []serialization.NamedTensor) {
		for _, nt := range list {
			nt.Tensor.Release()
		}
	}
	if !tensor.CanCast(from, dt) {
		release(named)
		return nil, fmt.Errorf("load option %s: %w", OptionDataType, &tensor.CastError{From: from, To: dt})
	}

	out := make([]serialization.NamedTensor, 0, len(named))
	for _, nt := range named {
		c, err := tensor.Cast(nt.Tensor, dt)
		if err != nil {
			release(out)
			release(named)
			return nil, fmt.Errorf("load option %s: cast %s: %w", OptionDataType, nt.Name, err)
		}
		out = append(out, serialization.NamedTensor{Name: nt.Name, Tensor: c})
	}
	release(named)
	return out, nil
}

func (m *Model) resolve(path string, opts LoadOptions) (loadSource, error) {
	src := loadSource{
		epoch:  -1,
		format: strings.ToLower(opts.Options[OptionFormat]),
		verify: envconfig.VerifyChecksum(true),
	}
	if v := opts.Options[OptionEpoch]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return src, fmt.Errorf("load option %s: invalid epoch %q", OptionEpoch, v)
		}
		src.epoch = n
	}
	if v := opts.Options[OptionVerifyChecksum]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return src, fmt.Errorf("load option %s: %w", OptionVerifyChecksum, err)
		}
		src.verify = b
	}
	if v := opts.Options[OptionDataType]; v != "" {
		dt, err := tensor.ParseDataType(v)
		if err != nil {
			return src, fmt.Errorf("load option %s: %w", OptionDataType, err)
		}
		src.castTo, src.cast = dt, true
	}

	info, err := os.Stat(path)
	if err != nil {
		return src, ioError("load", err)
	}

	stem := ""
	if info.IsDir() {
		src.dir = path
	} else {
		src.dir = filepath.Dir(path)
		base := filepath.Base(path)
		switch match := paramFilePattern.FindStringSubmatch(base); {
		case match != nil:
			stem = match[1]
			if src.epoch < 0 {
				src.epoch, _ = strconv.Atoi(match[2])
			}
		case strings.HasSuffix(base, symbolSuffix):
			stem = strings.TrimSuffix(base, symbolSuffix)
		case strings.HasSuffix(base, safeTensorsExt):
			stem = strings.TrimSuffix(base, safeTensorsExt)
			if src.format == "" {
				src.format = "safetensors"
			}
		default:
			stem = strings.TrimSuffix(base, filepath.Ext(base))
		}
	}

	switch {
	case opts.Name != "":
		src.name = opts.Name
	case stem != "":
		src.name = stem
	case m.name != "":
		src.name = m.name
	default:
		abs, err := filepath.Abs(src.dir)
		if err != nil {
			return src, ioError("load", err)
		}
		src.name = filepath.Base(abs)
	}

	switch src.format {
	case "":
		src.format = "born"
	case "born", "safetensors":
	default:
		return src, fmt.Errorf("load option %s: unknown format %q", OptionFormat, src.format)
	}
	return src, nil
}

// readGraph decodes the symbol file. A block set with SetBlock takes
// precedence over the decoded one, and makes the symbol file optional.
func (m *Model) readGraph(src loadSource) (*nn.Graph, nn.Block, error) {
	file := filepath.Join(src.dir, src.name+symbolSuffix)
	data, err := os.ReadFile(file) //nolint:gosec // G304: model paths come from the caller
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && m.block != nil {
			return nil, m.block, nil
		}
		return nil, nil, ioError("read graph", err)
	}

	graph, block, err := nn.DecodeGraph(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w: %w", file, ErrMalformedModel, err)
	}
	if m.block != nil {
		block = m.block
	}
	return graph, block, nil
}

// findParamFile returns the parameter file for epoch, or the one with the
// highest epoch when epoch is negative.
func findParamFile(dir, name string, epoch int) (string, int, error) {
	if epoch >= 0 {
		file := filepath.Join(dir, paramFileName(name, epoch))
		if _, err := os.Stat(file); err != nil {
			return "", 0, ioError("find parameters", err)
		}
		return file, epoch, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, ioError("find parameters", err)
	}
	best := -1
	for _, e := range entries {
		match := paramFilePattern.FindStringSubmatch(e.Name())
		if match == nil || match[1] != name || !e.Type().IsRegular() {
			continue
		}
		if n, _ := strconv.Atoi(match[2]); n > best {
			best = n
		}
	}
	if best < 0 {
		return "", 0, ioError("find parameters",
			fmt.Errorf("no %s-NNNN%s in %s: %w", name, serialization.FileExtension, dir, fs.ErrNotExist))
	}
	return filepath.Join(dir, paramFileName(name, best)), best, nil
}

// bindParameters initializes block from the graph input descriptors and
// replaces its parameters with the loaded tensors. The parameter set is
// checked before block is touched, so a mismatch leaves it as it was.
func (m *Model) bindParameters(block nn.Block, graph *nn.Graph, named []serialization.NamedTensor) error {
	pending := make(map[string]*tensor.RawTensor, len(named))
	for _, nt := range named {
		pending[nt.Name] = nt.Tensor
	}
	defer func() {
		for _, t := range pending {
			t.Release()
		}
	}()

	if !block.IsInitialized() {
		if graph == nil || len(graph.Inputs) == 0 {
			if len(named) == 0 {
				return nil
			}
			return malformed("block %s has parameters but no input descriptors", block.Kind())
		}
		dtype := graph.Inputs[0].DType
		shapes := make([]tensor.Shape, len(graph.Inputs))
		for i, d := range graph.Inputs {
			shapes[i] = concrete(d.Shape)
		}
		if err := m.checkFresh(block, dtype, shapes, pending); err != nil {
			return err
		}
		if err := block.Initialize(m.manager, dtype, shapes...); err != nil {
			return fmt.Errorf("%w: initialize %s: %w", ErrMalformedModel, block.Kind(), err)
		}
	}

	params := block.Parameters()
	if err := matchParameters(params, pending); err != nil {
		return err
	}

	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		t := pending[pair.Key]
		if err := m.manager.Attach(t); err != nil {
			return fmt.Errorf("load parameter %s: %w", pair.Key, err)
		}
		delete(pending, pair.Key)
		t.SetName(pair.Value.Name())
		if err := pair.Value.SetTensor(t); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedModel, err)
		}
	}
	return nil
}

// checkFresh initializes a copy of an uninitialized block in a scratch
// manager and matches its parameters against pending. Blocks whose kind is
// not registered cannot be copied and are matched after Initialize.
func (m *Model) checkFresh(block nn.Block, dtype tensor.DataType, shapes []tensor.Shape, pending map[string]*tensor.RawTensor) error {
	scratch, err := nn.DecodeBlock(block.Config())
	if err != nil {
		return nil //nolint:nilerr // unregistered kinds are checked after Initialize
	}
	sub, err := m.manager.NewSubManager()
	if err != nil {
		return err
	}
	defer sub.Close()

	if err := scratch.Initialize(sub, dtype, shapes...); err != nil {
		return fmt.Errorf("%w: initialize %s: %w", ErrMalformedModel, block.Kind(), err)
	}
	return matchParameters(scratch.Parameters(), pending)
}

// matchParameters reports a malformed model unless pending holds exactly
// one tensor of the right shape per parameter.
func matchParameters(params *nn.ParameterMap, pending map[string]*tensor.RawTensor) error {
	if params.Len() != len(pending) {
		return malformed("block has %d parameters, file has %d tensors", params.Len(), len(pending))
	}
	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		t, ok := pending[pair.Key]
		if !ok {
			return malformed("parameter %s missing from file", pair.Key)
		}
		if !t.Shape().Equal(pair.Value.Shape()) {
			return malformed("parameter %s is %v, file has %v", pair.Key, pair.Value.Shape(), t.Shape())
		}
	}
	return nil
}

// classify maps a serialization failure to ErrIO when the file system was
// at fault and to ErrMalformedModel otherwise.
func classify(op string, err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return ioError(op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrMalformedModel, err)
}

// Save writes the graph, parameters, properties and artifacts of the model
// under dir, using name as the file prefix (the model name if empty).
//
// Parameters go to <name>-NNNN.born where NNNN is the Epoch property (0 if
// unset), compressed as configured by FORGE_COMPRESSION. Artifacts of a
// loaded model are copied along when dir differs from where it was loaded.
// Existing files are overwritten.
func (m *Model) Save(dir, name string) (err error) {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if m.block == nil {
		return fmt.Errorf("save: %w", ErrNoBlock)
	}
	if name == "" {
		name = m.name
	}
	epoch := 0
	if v, ok := m.props[PropertyEpoch]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("save: invalid %s property %q", PropertyEpoch, v)
		}
		epoch = n
	}
	defer func() { m.logger.LogSave(context.Background(), dir, epoch, err) }()

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: model directories are shared
		return ioError("save", err)
	}

	var outputs []string
	for _, d := range m.DescribeOutput() {
		outputs = append(outputs, d.Name)
	}
	graph, err := nn.EncodeGraph(m.block, outputs)
	if err != nil {
		return fmt.Errorf("save: encode graph: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+symbolSuffix), graph, 0o644); err != nil { //nolint:gosec // G306: model files are not secret
		return ioError("save graph", err)
	}

	params := m.block.Parameters()
	tensors := make([]serialization.NamedTensor, 0, params.Len())
	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		tensors = append(tensors, serialization.NamedTensor{Name: pair.Key, Tensor: pair.Value.Tensor()})
	}
	codec, err := serialization.ParseCompression(envconfig.Compression())
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	header := serialization.Header{
		ModelName:  name,
		BlockKind:  m.block.Kind(),
		DataType:   m.dataType,
		Properties: maps.Clone(m.props),
	}
	file := filepath.Join(dir, paramFileName(name, epoch))
	if err := serialization.WriteFile(file, tensors, header, serialization.WriterOptions{Compression: codec}); err != nil {
		var vErr *serialization.ValidationError
		if errors.As(err, &vErr) {
			return fmt.Errorf("save parameters: %w", err)
		}
		return ioError("save parameters", err)
	}

	if m.modelDir != "" && !samePath(m.modelDir, dir) {
		if err := m.copyArtifacts(dir); err != nil {
			return err
		}
	}
	if m.modelDir == "" {
		m.modelDir = dir
	}
	m.name = name
	return nil
}

func (m *Model) copyArtifacts(dst string) error {
	names, err := m.ArtifactNames()
	if err != nil {
		return err
	}
	for _, n := range names {
		if err := copyFile(filepath.Join(m.modelDir, n), filepath.Join(dst, n)); err != nil {
			return ioError("copy artifact "+n, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304: artifact names are validated plain file names
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst) //nolint:gosec // G304: destination chosen by the caller
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

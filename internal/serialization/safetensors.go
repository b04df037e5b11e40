package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/forge/internal/tensor"
)

// SafeTensors format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]

// SafeTensorInfo describes a tensor in SafeTensors format.
type SafeTensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end]
}

// SafeTensorsFile is a decoded SafeTensors file.
type SafeTensorsFile struct {
	Metadata map[string]string
	Tensors  []NamedTensor // sorted by data offset
}

// ReadSafeTensors decodes the SafeTensors file at path. Tensors are created
// on device and are not owned by any manager.
func ReadSafeTensors(path string, device tensor.Device) (*SafeTensorsFile, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawMap); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	out := &SafeTensorsFile{}
	metas := make([]TensorMeta, 0, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			if err := json.Unmarshal(value, &out.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		dtype, err := safeTensorsDType(info.DType)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", key, err)
		}
		metas = append(metas, TensorMeta{
			Name:   key,
			DType:  dtype,
			Shape:  info.Shape,
			Offset: info.DataOffsets[0],
			Size:   info.DataOffsets[1] - info.DataOffsets[0],
		})
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Offset < metas[j].Offset })

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	header := Header{Tensors: metas, RawSize: int64(len(data))}
	if err := ValidateHeader(&header, ValidationStrict); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	r := &Reader{header: header, data: data, opts: ReaderOptions{Device: device}}
	tensors, err := r.Tensors()
	if err != nil {
		return nil, err
	}
	out.Tensors = tensors
	return out, nil
}

// WriteSafeTensors writes tensors to a SafeTensors file.
// Tensors are written in alphabetical order by name.
func WriteSafeTensors(path string, tensors []NamedTensor, metadata map[string]string) error {
	sorted := make([]NamedTensor, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	header := make(map[string]any, len(sorted)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}

	var currentOffset int64
	for _, nt := range sorted {
		dtype, err := dtypeToSafeTensors(nt.Tensor.DType())
		if err != nil {
			return fmt.Errorf("tensor %s: %w", nt.Name, err)
		}
		size := int64(nt.Tensor.ByteSize())
		header[nt.Name] = SafeTensorInfo{
			DType:       dtype,
			Shape:       []int(nt.Tensor.Shape()),
			DataOffsets: [2]int64{currentOffset, currentOffset + size},
		}
		currentOffset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	w := bufio.NewWriter(file)

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, nt := range sorted {
		if _, err := w.Write(nt.Tensor.Data()[:nt.Tensor.ByteSize()]); err != nil {
			_ = file.Close()
			return fmt.Errorf("failed to write tensor %s: %w", nt.Name, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return file.Close()
}

func safeTensorsDType(s string) (tensor.DataType, error) {
	switch s {
	case "F32":
		return tensor.Float32, nil
	case "F64":
		return tensor.Float64, nil
	case "F16":
		return tensor.Float16, nil
	case "I32":
		return tensor.Int32, nil
	case "I64":
		return tensor.Int64, nil
	case "I8":
		return tensor.Int8, nil
	case "U8":
		return tensor.Uint8, nil
	case "BOOL":
		return tensor.Bool, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, s)
	}
}

func dtypeToSafeTensors(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float32:
		return "F32", nil
	case tensor.Float64:
		return "F64", nil
	case tensor.Float16:
		return "F16", nil
	case tensor.Int32:
		return "I32", nil
	case tensor.Int64:
		return "I64", nil
	case tensor.Int8:
		return "I8", nil
	case tensor.Uint8:
		return "U8", nil
	case tensor.Bool:
		return "BOOL", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDType, dt)
	}
}

package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/forge/internal/tensor"
)

// ReaderOptions configures the behavior of Open and Read.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
	Device                 tensor.Device   // Device for created tensors (default: CPU)
}

// Reader gives access to the tensors of a decoded .born file.
type Reader struct {
	header   Header
	flags    uint32
	checksum [32]byte
	data     []byte // uncompressed data section
	opts     ReaderOptions
}

// Open reads and decodes the .born file at path.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	r, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Read decodes a .born stream.
func Read(src io.Reader, opts ReaderOptions) (*Reader, error) {
	r := &Reader{opts: opts}

	header, stored, err := r.readSections(src)
	if err != nil {
		return nil, err
	}
	r.header = header

	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(ComputeChecksum(stored), r.checksum); err != nil {
			return nil, err
		}
	}

	data, err := decompress(header.Compression, stored, header.RawSize)
	if err != nil {
		return nil, err
	}
	r.data = data

	if err := ValidateHeader(&r.header, opts.ValidationLevel); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return r, nil
}

// ReadHeader decodes only the fixed and JSON headers of the file at path.
func ReadHeader(path string) (Header, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	fixed, err := readFixedHeader(f)
	if err != nil {
		return Header{}, err
	}
	return readJSONHeader(f, fixed.headerSize)
}

type fixedHeader struct {
	flags      uint32
	codec      Compression
	headerSize uint64
	dataSize   uint64
	checksum   [32]byte
}

func readFixedHeader(src io.Reader) (fixedHeader, error) {
	buf := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(src, buf); err != nil {
		return fixedHeader{}, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(buf[0:4]) != MagicBytes {
		return fixedHeader{}, ErrInvalidMagic
	}
	if version := binary.LittleEndian.Uint32(buf[4:8]); version != FormatVersion {
		return fixedHeader{}, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}

	fh := fixedHeader{
		flags:      binary.LittleEndian.Uint32(buf[8:12]),
		codec:      Compression(binary.LittleEndian.Uint32(buf[12:16])),
		headerSize: binary.LittleEndian.Uint64(buf[16:24]),
		dataSize:   binary.LittleEndian.Uint64(buf[24:32]),
	}
	copy(fh.checksum[:], buf[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if fh.headerSize > MaxHeaderSize {
		return fixedHeader{}, ErrHeaderTooLarge
	}
	return fh, nil
}

func readJSONHeader(src io.Reader, size uint64) (Header, error) {
	headerBytes := make([]byte, size)
	if _, err := io.ReadFull(src, headerBytes); err != nil {
		return Header{}, fmt.Errorf("failed to read header JSON: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return Header{}, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	return header, nil
}

func (r *Reader) readSections(src io.Reader) (Header, []byte, error) {
	fh, err := readFixedHeader(src)
	if err != nil {
		return Header{}, nil, err
	}
	r.flags = fh.flags
	r.checksum = fh.checksum

	header, err := readJSONHeader(src, fh.headerSize)
	if err != nil {
		return Header{}, nil, err
	}
	if header.Compression != fh.codec {
		return Header{}, nil, fmt.Errorf("%w: fixed header says %s, JSON header says %s",
			ErrUnknownCompression, fh.codec, header.Compression)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	padding := alignedDataOffset(int64(fh.headerSize)) - int64(FixedHeaderSize) - int64(fh.headerSize)
	if _, err := io.CopyN(io.Discard, src, padding); err != nil {
		return Header{}, nil, fmt.Errorf("failed to read padding: %w", err)
	}

	var stored bytes.Buffer
	//nolint:gosec // G115: data size fits in int64 for any readable file
	if _, err := io.CopyN(&stored, src, int64(fh.dataSize)); err != nil {
		return Header{}, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	return header, stored.Bytes(), nil
}

// Header returns the file header.
func (r *Reader) Header() Header {
	return r.header
}

// Flags returns the fixed-header flags.
func (r *Reader) Flags() uint32 {
	return r.flags
}

// Properties returns the model properties from the header.
func (r *Reader) Properties() map[string]string {
	return r.header.Properties
}

// TensorNames returns the tensor names in file order.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *Reader) TensorInfo(name string) (*TensorMeta, error) {
	for i := range r.header.Tensors {
		if r.header.Tensors[i].Name == name {
			return &r.header.Tensors[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
}

// Tensor returns a copy of the named tensor. The result is not owned by
// any manager.
func (r *Reader) Tensor(name string) (*tensor.RawTensor, error) {
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	return r.load(meta)
}

// Tensors returns every tensor in file order.
func (r *Reader) Tensors() ([]NamedTensor, error) {
	out := make([]NamedTensor, 0, len(r.header.Tensors))
	for i := range r.header.Tensors {
		meta := &r.header.Tensors[i]
		raw, err := r.load(meta)
		if err != nil {
			tensors := make([]*tensor.RawTensor, len(out))
			for j, nt := range out {
				tensors[j] = nt.Tensor
			}
			tensor.NDList(tensors).Release()
			return nil, err
		}
		out = append(out, NamedTensor{Name: meta.Name, Tensor: raw})
	}
	return out, nil
}

func (r *Reader) load(meta *TensorMeta) (*tensor.RawTensor, error) {
	if meta.Offset < 0 || meta.Size < 0 || meta.Offset+meta.Size > int64(len(r.data)) {
		return nil, &ValidationError{
			Type:    "out_of_bounds",
			Tensor:  meta.Name,
			Details: fmt.Sprintf("offset %d + size %d > data_size %d", meta.Offset, meta.Size, len(r.data)),
		}
	}
	raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), meta.DType, r.opts.Device)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", meta.Name, err)
	}
	if int64(raw.ByteSize()) != meta.Size {
		raw.Release()
		return nil, &ValidationError{Type: "size_mismatch", Tensor: meta.Name, Details: "size does not match shape"}
	}
	copy(raw.Data(), r.data[meta.Offset:meta.Offset+meta.Size])
	raw.SetName(meta.Name)
	return raw, nil
}

package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// WriterOptions configures Write.
type WriterOptions struct {
	Compression Compression // Codec for the data section (default: none)
}

// Write encodes tensors in order into the .born v2 format.
//
// FormatVersion, ForgeVersion, CreatedAt, Compression, RawSize and Tensors
// in header are filled in by Write; the remaining fields are kept.
func Write(w io.Writer, tensors []NamedTensor, header Header, opts WriterOptions) error {
	header.FormatVersion = FormatVersion
	header.ForgeVersion = ForgeVersion
	header.CreatedAt = time.Now().UTC()

	// Calculate tensor offsets and collect tensor data
	var data []byte
	header.Tensors = make([]TensorMeta, 0, len(tensors))
	for _, nt := range tensors {
		if err := ValidateTensorName(nt.Name); err != nil {
			return err
		}
		raw := nt.Tensor
		size := int64(raw.ByteSize())
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   nt.Name,
			DType:  raw.DType(),
			Shape:  []int(raw.Shape().Clone()),
			Offset: int64(len(data)),
			Size:   size,
		})
		data = append(data, raw.Data()[:size]...)
	}
	header.RawSize = int64(len(data))

	stored, codec, err := compress(opts.Compression, data)
	if err != nil {
		return err
	}
	header.Compression = codec

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	checksum := ComputeChecksum(stored)

	fixedHeader := make([]byte, FixedHeaderSize)
	// 0x00-0x03: Magic bytes "BORN"
	copy(fixedHeader[0:4], MagicBytes)
	// 0x04-0x07: Version
	binary.LittleEndian.PutUint32(fixedHeader[4:8], uint32(FormatVersion))
	// 0x08-0x0B: Flags
	flags := uint32(0)
	if codec != CompressionNone {
		flags |= FlagCompressed
	}
	if len(header.Properties) > 0 {
		flags |= FlagHasProperties
	}
	binary.LittleEndian.PutUint32(fixedHeader[8:12], flags)
	// 0x0C-0x0F: Compression codec
	binary.LittleEndian.PutUint32(fixedHeader[12:16], uint32(codec))
	// 0x10-0x17: Header size
	binary.LittleEndian.PutUint64(fixedHeader[16:24], uint64(len(headerJSON)))
	// 0x18-0x1F: Stored data size
	binary.LittleEndian.PutUint64(fixedHeader[24:32], uint64(len(stored)))
	// 0x20-0x3F: SHA-256 checksum
	copy(fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := w.Write(fixedHeader); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}

	headerEnd := int64(FixedHeaderSize) + int64(len(headerJSON))
	if padding := alignedDataOffset(int64(len(headerJSON))) - headerEnd; padding > 0 {
		if _, err := w.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	if _, err := w.Write(stored); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// WriteFile writes a .born file atomically: data goes to a temporary file in
// the same directory which is renamed over path on success.
func WriteFile(path string, tensors []NamedTensor, header Header, opts WriterOptions) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName) // no-op after a successful rename
	}()

	bw := bufio.NewWriter(tmp)
	if err := Write(bw, tensors, header, opts); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}

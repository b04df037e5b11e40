package serialization

import (
	"time"

	"github.com/born-ml/forge/internal/tensor"
)

// Format constants.
const (
	MagicBytes       = "BORN"
	FormatVersion    = 2    // v2: fixed header with SHA-256 checksum
	HeaderAlignment  = 64   // Align tensor data to 64 bytes
	FixedHeaderSize  = 64   // Fixed header size (0x40 bytes)
	ChecksumSize     = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset   = 0x20 // Checksum offset in the fixed header
	FileExtension    = ".born"
	ForgeVersion     = "0.3.0"
)

// Flags for the .born format.
const (
	FlagCompressed    uint32 = 1 << 0 // bit 0: data section is compressed
	FlagHasProperties uint32 = 1 << 2 // bit 2: model properties included
)

// Header represents the JSON header in a .born file.
type Header struct {
	FormatVersion int               `json:"format_version"`       // Version of the .born format
	ForgeVersion  string            `json:"forge_version"`        // Version of Forge that created this file
	ModelName     string            `json:"model_name"`           // Name of the saved model
	BlockKind     string            `json:"block_kind,omitempty"` // Kind of the root block (e.g., "Sequential")
	DataType      tensor.DataType   `json:"data_type"`            // Model precision
	CreatedAt     time.Time         `json:"created_at"`           // When the file was created
	Compression   Compression       `json:"compression"`          // Codec of the data section
	RawSize       int64             `json:"raw_size"`             // Uncompressed data section size
	Tensors       []TensorMeta      `json:"tensors"`              // Tensor metadata
	Properties    map[string]string `json:"properties,omitempty"` // Model properties
}

// TensorMeta describes a tensor in the .born file.
type TensorMeta struct {
	Name   string          `json:"name"`   // Tensor name (e.g., "01Linear.weight")
	DType  tensor.DataType `json:"dtype"`  // Data type
	Shape  []int           `json:"shape"`  // Tensor shape
	Offset int64           `json:"offset"` // Offset in the uncompressed data section
	Size   int64           `json:"size"`   // Size in bytes
}

// NamedTensor pairs a tensor with the name it is stored under.
type NamedTensor struct {
	Name   string
	Tensor *tensor.RawTensor
}

func alignedDataOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return pos + (HeaderAlignment-(pos%HeaderAlignment))%HeaderAlignment
}

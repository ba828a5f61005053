package serialization

import (
	"encoding/json"
	"time"
)

// Format constants.
const (
	MagicBytes       = "BORN"
	FormatVersion    = 2    // Fixed 64-byte header with SHA-256 checksum
	HeaderAlignment  = 64   // Align tensor data to 64 bytes
	FixedHeaderSize  = 64   // Fixed header size (0x40 bytes)
	ChecksumSize     = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset   = 0x20 // Checksum offset in the fixed header
	headerSizeOffset = 0x10
	dataSizeOffset   = 0x18
)

// Data type string constants for serialization.
const (
	DTypeFloat32 = "float32"
	DTypeFloat16 = "float16"
)

// Flags for the .born format.
const (
	FlagHalf        uint32 = 1 << 0 // bit 0: tensors stored as float16
	FlagHasMetadata uint32 = 1 << 2 // bit 2: custom metadata included
)

// Header represents the JSON header in a .born file.
type Header struct {
	FormatVersion int               `json:"format_version"`   // Version of the .born format
	EngineVersion string            `json:"engine_version"`   // Version of the engine that wrote the file
	ModelType     string            `json:"model_type"`       // e.g. "resnet"
	ModelID       string            `json:"model_id"`         // UUID assigned when the model was created
	CreatedAt     time.Time         `json:"created_at"`       // When the file was created
	Config        json.RawMessage   `json:"config,omitempty"` // Architecture configuration
	Tensors       []TensorMeta      `json:"tensors"`          // Tensor metadata
	Metadata      map[string]string `json:"metadata"`         // Custom metadata
}

// TensorMeta describes a tensor in the .born file.
type TensorMeta struct {
	Name   string `json:"name"`   // Tensor name (e.g., "stages.0.blocks.1.conv2.conv.weight")
	DType  string `json:"dtype"`  // "float32" or "float16"
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Offset in the data section
	Size   int64  `json:"size"`   // Size in bytes
}

// dtypeSize returns the element size in bytes, or 0 for unknown types.
func dtypeSize(dtype string) int {
	switch dtype {
	case DTypeFloat32:
		return 4
	case DTypeFloat16:
		return 2
	default:
		return 0
	}
}

// alignedOffset returns the start of the data section for a header of the
// given size.
func alignedOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return pos + (HeaderAlignment-(pos%HeaderAlignment))%HeaderAlignment
}

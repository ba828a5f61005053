package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/born-ml/resnet/internal/tensor"
)

// ReaderOptions configures the behavior of Reader.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// Reader reads state dicts from .born files.
type Reader struct {
	file       *os.File
	header     Header
	flags      uint32
	dataOffset int64 // Offset where tensor data starts
	dataSize   int64 // Size of the data section
	checksum   [32]byte
	opts       ReaderOptions
	closed     bool
}

// NewReader opens a .born file with strict validation.
func NewReader(path string) (*Reader, error) {
	return NewReaderWithOptions(path, ReaderOptions{ValidationLevel: ValidationStrict})
}

// NewReaderWithOptions opens a .born file with custom options.
func NewReaderWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}

	r := &Reader{file: file, opts: opts}
	if err := r.parseHeader(); err != nil {
		_ = file.Close()
		return nil, errors.WithMessagef(err, "failed to parse %s", path)
	}
	return r, nil
}

func (r *Reader) parseHeader() error {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r.file, fixed); err != nil {
		return errors.Wrap(err, "failed to read fixed header")
	}
	headerSize, err := r.parseFixedHeader(fixed)
	if err != nil {
		return err
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return errors.Wrap(err, "failed to read header JSON")
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return errors.Wrap(err, "failed to parse header JSON")
	}
	r.dataOffset = alignedOffset(headerSize)

	info, err := r.file.Stat()
	if err != nil {
		return errors.Wrap(err, "failed to stat file")
	}
	if info.Size()-r.dataOffset < r.dataSize {
		return errors.Wrapf(ErrOutOfBounds, "data section truncated: %d of %d bytes", info.Size()-r.dataOffset, r.dataSize)
	}

	if err := ValidateHeader(&r.header, r.dataSize, r.opts.ValidationLevel); err != nil {
		return errors.WithMessage(err, "validation failed")
	}

	if !r.opts.SkipChecksumValidation {
		data := make([]byte, r.dataSize)
		if _, err := r.file.ReadAt(data, r.dataOffset); err != nil {
			return errors.Wrap(err, "failed to read tensor data for checksum")
		}
		if err := ValidateChecksum(ComputeChecksum(data), r.checksum); err != nil {
			return err
		}
	}
	return nil
}

// parseFixedHeader decodes the first 64 bytes and returns the JSON header size.
func (r *Reader) parseFixedHeader(fixed []byte) (int64, error) {
	if string(fixed[0:4]) != MagicBytes {
		return 0, errors.Wrapf(ErrInvalidMagic, "got %q, expected %q", fixed[0:4], MagicBytes)
	}
	if version := binary.LittleEndian.Uint32(fixed[4:8]); version != FormatVersion {
		return 0, errors.Wrapf(ErrUnsupportedVersion, "got %d, expected %d", version, FormatVersion)
	}
	r.flags = binary.LittleEndian.Uint32(fixed[8:12])
	headerSize := binary.LittleEndian.Uint64(fixed[headerSizeOffset : headerSizeOffset+8])
	if headerSize > MaxHeaderSize {
		return 0, errors.Wrapf(ErrHeaderTooLarge, "%d bytes", headerSize)
	}
	dataSize := binary.LittleEndian.Uint64(fixed[dataSizeOffset : dataSizeOffset+8])
	if dataSize > math.MaxInt64 {
		return 0, errors.Wrapf(ErrOutOfBounds, "data size %d", dataSize)
	}
	r.dataSize = int64(dataSize)
	copy(r.checksum[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])
	return int64(headerSize), nil
}

// Header returns the file header.
func (r *Reader) Header() Header {
	return r.header
}

// Metadata returns the metadata map from the header.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// Half reports whether tensors are stored as float16.
func (r *Reader) Half() bool {
	return r.flags&FlagHalf != 0
}

// TensorNames returns a list of all tensor names in the file.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *Reader) TensorInfo(name string) (*TensorMeta, error) {
	for _, meta := range r.header.Tensors {
		if meta.Name == name {
			return &meta, nil
		}
	}
	return nil, errors.Errorf("tensor %s not found", name)
}

// LoadTensor decodes a single tensor as float32.
func (r *Reader) LoadTensor(name string) (*tensor.RawTensor, error) {
	if r.closed {
		return nil, ErrClosed
	}
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	data := make([]byte, meta.Size)
	if _, err := r.file.ReadAt(data, r.dataOffset+meta.Offset); err != nil {
		return nil, errors.Wrapf(err, "failed to read tensor %s", name)
	}
	return decodeTensor(*meta, data)
}

// ReadStateDict decodes every tensor into a state dictionary.
func (r *Reader) ReadStateDict() (map[string]*tensor.RawTensor, error) {
	if r.closed {
		return nil, ErrClosed
	}
	stateDict := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		raw, err := r.LoadTensor(meta.Name)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to load tensor %s", meta.Name)
		}
		stateDict[meta.Name] = raw
	}
	return stateDict, nil
}

// Close closes the reader and the underlying file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// ReadFrom reads a state dictionary and its header from an io.Reader with
// strict validation.
func ReadFrom(reader io.Reader) (map[string]*tensor.RawTensor, Header, error) {
	buf, err := io.ReadAll(reader)
	if err != nil {
		return nil, Header{}, errors.Wrap(err, "failed to read input")
	}
	if len(buf) < FixedHeaderSize {
		return nil, Header{}, errors.Wrapf(ErrInvalidMagic, "input too short (%d bytes)", len(buf))
	}

	var r Reader
	headerSize, err := r.parseFixedHeader(buf[:FixedHeaderSize])
	if err != nil {
		return nil, Header{}, err
	}
	dataOffset := alignedOffset(headerSize)
	if dataOffset > int64(len(buf)) || r.dataSize > int64(len(buf))-dataOffset {
		return nil, Header{}, errors.Wrapf(ErrOutOfBounds, "input truncated: %d bytes", len(buf))
	}
	if err := json.Unmarshal(buf[FixedHeaderSize:FixedHeaderSize+headerSize], &r.header); err != nil {
		return nil, Header{}, errors.Wrap(err, "failed to parse header JSON")
	}
	data := buf[dataOffset : dataOffset+r.dataSize]
	if err := ValidateHeader(&r.header, r.dataSize, ValidationStrict); err != nil {
		return nil, Header{}, err
	}
	if err := ValidateChecksum(ComputeChecksum(data), r.checksum); err != nil {
		return nil, Header{}, err
	}

	stateDict := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		raw, err := decodeTensor(meta, data[meta.Offset:meta.Offset+meta.Size])
		if err != nil {
			return nil, Header{}, err
		}
		stateDict[meta.Name] = raw
	}
	return stateDict, r.header, nil
}

func decodeTensor(meta TensorMeta, data []byte) (*tensor.RawTensor, error) {
	if err := ValidateTensorMeta(meta); err != nil {
		return nil, err
	}
	raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), tensor.CPU)
	if err != nil {
		return nil, errors.Wrapf(err, "tensor %s", meta.Name)
	}
	out := raw.Float32()
	rd := bytes.NewReader(data)
	switch meta.DType {
	case DTypeFloat16:
		bits := make([]uint16, len(out))
		if err := binary.Read(rd, binary.LittleEndian, bits); err != nil {
			return nil, errors.Wrapf(err, "tensor %s", meta.Name)
		}
		for i, b := range bits {
			out[i] = float16.Frombits(b).Float32()
		}
	default:
		if err := binary.Read(rd, binary.LittleEndian, out); err != nil {
			return nil, errors.Wrapf(err, "tensor %s", meta.Name)
		}
	}
	return raw, nil
}

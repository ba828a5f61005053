package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"

	"github.com/born-ml/resnet/internal/tensor"
)

// EngineVersion is recorded in every header written by this package.
const EngineVersion = "0.1.0"

// WriteOptions controls tensor encoding.
type WriteOptions struct {
	Half bool // store tensors as float16
}

// Writer writes state dicts in .born format.
type Writer struct {
	file   *os.File
	closed bool
}

// NewWriter creates a new .born file writer.
func NewWriter(path string) (*Writer, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", path)
	}
	return &Writer{file: file}, nil
}

// WriteStateDict writes stateDict with the given header fields.
//
// FormatVersion, EngineVersion, CreatedAt (if zero) and Tensors are filled
// in by the writer.
func (w *Writer) WriteStateDict(stateDict map[string]*tensor.RawTensor, header Header, opts WriteOptions) error {
	if w.closed {
		return ErrClosed
	}
	return WriteTo(w.file, stateDict, header, opts)
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// WriteTo writes a state dictionary in .born format to an io.Writer.
// Tensors are written in sorted name order so output is reproducible for a
// fixed header.
func WriteTo(writer io.Writer, stateDict map[string]*tensor.RawTensor, header Header, opts WriteOptions) error {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	dtype := DTypeFloat32
	if opts.Half {
		dtype = DTypeFloat16
	}

	header.FormatVersion = FormatVersion
	header.EngineVersion = EngineVersion
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}
	header.Tensors = make([]TensorMeta, 0, len(names))

	var data bytes.Buffer
	for _, name := range names {
		raw := stateDict[name]
		offset := int64(data.Len())
		encodeTensor(&data, raw.Float32(), opts.Half)
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  dtype,
			Shape:  []int(raw.Shape().Clone()),
			Offset: offset,
			Size:   int64(data.Len()) - offset,
		})
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal header")
	}

	flags := uint32(0)
	if opts.Half {
		flags |= FlagHalf
	}
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}

	checksum := ComputeChecksum(data.Bytes())

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[headerSizeOffset:headerSizeOffset+8], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[dataSizeOffset:dataSizeOffset+8], uint64(data.Len()))
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := writer.Write(fixed); err != nil {
		return errors.Wrap(err, "failed to write fixed header")
	}
	if _, err := writer.Write(headerJSON); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	padding := alignedOffset(int64(len(headerJSON))) - int64(FixedHeaderSize) - int64(len(headerJSON))
	if padding > 0 {
		if _, err := writer.Write(make([]byte, padding)); err != nil {
			return errors.Wrap(err, "failed to write padding")
		}
	}
	if _, err := writer.Write(data.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write tensor data")
	}

	klog.V(1).Infof("wrote %d tensors (%s, %d bytes of data)", len(names), dtype, data.Len())
	return nil
}

func encodeTensor(buf *bytes.Buffer, values []float32, half bool) {
	if half {
		b := make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(b[2*i:], float16.Fromfloat32(v).Bits())
		}
		buf.Write(b)
		return
	}
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	buf.Write(b)
}

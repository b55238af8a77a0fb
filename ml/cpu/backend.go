// Package cpu implements a concrete, host-memory ml.Backend used by the
// demo CLI and the cache's integration tests. It backs float32 tensors with
// pdevine/tensor's Dense type and converts the half-precision element types
// through x448/float16 and d4l3k/go-bfloat16, so the cache genuinely
// exercises more than one element type the way the data model's
// independent type_k/type_v fields imply.
package cpu

import (
	"fmt"

	"github.com/d4l3k/go-bfloat16"
	"github.com/pdevine/tensor"
	"github.com/x448/float16"

	"github.com/inferd/kvcache/ml"
)

// Backend is a single-process, host-memory tensor backend. Every domain
// requested via NewContext gets its own Context; Close releases every
// buffer any of those contexts allocated.
type Backend struct {
	buffers []*Buffer
}

// New creates an empty CPU backend.
func New() *Backend {
	return &Backend{}
}

func (b *Backend) NewContext(dev ml.DeviceID) ml.Context {
	return &Context{backend: b, dev: dev}
}

func (b *Backend) Close() error {
	for _, buf := range b.buffers {
		buf.data = nil
	}
	b.buffers = nil
	return nil
}

// Context accumulates tensor declarations for one device-memory domain and
// allocates them together, mirroring the ctx-per-buffer-type grouping the
// original performs before a single ggml_backend_alloc_ctx_tensors_from_buft
// call.
type Context struct {
	backend *Backend
	dev     ml.DeviceID
	pending []*Tensor
}

func (c *Context) NewTensor(name string, dtype ml.DType, length int) (ml.Tensor, error) {
	if length <= 0 {
		return nil, fmt.Errorf("cpu: tensor %q: length must be positive, got %d", name, length)
	}
	t := &Tensor{name: name, dtype: dtype, length: length}
	c.pending = append(c.pending, t)
	return t, nil
}

func (c *Context) AllocBuffer() (ml.Buffer, error) {
	var total uint64
	offsets := make([]uint64, len(c.pending))
	for i, t := range c.pending {
		offsets[i] = total
		total += t.dtype.RowSize(t.length)
	}

	buf := &Buffer{dev: c.dev, data: make([]byte, total)}
	for i, t := range c.pending {
		size := t.dtype.RowSize(t.length)
		t.bytes = buf.data[offsets[i] : offsets[i]+size]
		if t.dtype == ml.DTypeF32 {
			t.dense = tensor.New(tensor.WithShape(t.length), tensor.WithBacking(make([]float32, t.length)))
		}
	}

	c.backend.buffers = append(c.backend.buffers, buf)
	c.pending = nil
	return buf, nil
}

// Buffer is a single host allocation shared by every tensor declared
// against one Context.
type Buffer struct {
	dev  ml.DeviceID
	data []byte
}

func (b *Buffer) Clear() {
	for i := range b.data {
		b.data[i] = 0
	}
}

func (b *Buffer) Size() uint64 {
	return uint64(len(b.data))
}

// Tensor is a flat, typed tensor declared against a Context. F16 and BF16
// values live in its slice of the Buffer's storage; F32 values live in a
// separate tensor.Dense backing, so Buffer.Clear does not zero them.
type Tensor struct {
	name   string
	dtype  ml.DType
	length int
	bytes  []byte
	dense  *tensor.Dense // populated only for DTypeF32 tensors
}

func (t *Tensor) Name() string    { return t.name }
func (t *Tensor) DType() ml.DType { return t.dtype }
func (t *Tensor) Len() int        { return t.length }

// SetFloats writes vals into the tensor, converting to the tensor's element
// type. len(vals) must equal t.Len().
func (t *Tensor) SetFloats(vals []float32) error {
	if len(vals) != t.length {
		return fmt.Errorf("cpu: tensor %q: expected %d values, got %d", t.name, t.length, len(vals))
	}
	switch t.dtype {
	case ml.DTypeF32:
		data := t.dense.Data().([]float32)
		copy(data, vals)
	case ml.DTypeF16:
		for i, v := range vals {
			bits := float16.Fromfloat32(v)
			off := i * 2
			t.bytes[off] = byte(bits)
			t.bytes[off+1] = byte(bits >> 8)
		}
	case ml.DTypeBF16:
		copy(t.bytes, bfloat16.EncodeFloat32(vals))
	default:
		return fmt.Errorf("cpu: SetFloats not supported for %s tensors", t.dtype)
	}
	return nil
}

// Floats reads the tensor back out as float32, the inverse of SetFloats.
func (t *Tensor) Floats() ([]float32, error) {
	switch t.dtype {
	case ml.DTypeF32:
		data := t.dense.Data().([]float32)
		out := make([]float32, len(data))
		copy(out, data)
		return out, nil
	case ml.DTypeF16:
		out := make([]float32, t.length)
		for i := range out {
			off := i * 2
			bits := uint16(t.bytes[off]) | uint16(t.bytes[off+1])<<8
			out[i] = float16.Frombits(bits).Float32()
		}
		return out, nil
	case ml.DTypeBF16:
		return bfloat16.DecodeFloat32(t.bytes), nil
	default:
		return nil, fmt.Errorf("cpu: Floats not supported for %s tensors", t.dtype)
	}
}

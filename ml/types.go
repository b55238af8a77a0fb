// Package ml defines the narrow collaborator interfaces the key-value cache
// depends on: a model's architecture metadata, the micro-batch structure the
// slot finder consumes, and the tensor-allocation surface the cache drives at
// init time. The actual compute graph and tensor math live outside this
// module; ml only names the boundary.
package ml

import "fmt"

// DType identifies the element type of a cache tensor.
type DType int

const (
	DTypeF32 DType = iota
	DTypeF16
	DTypeBF16
	DTypeQ80
	DTypeQ40
)

func (t DType) String() string {
	switch t {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	case DTypeBF16:
		return "bf16"
	case DTypeQ80:
		return "q8_0"
	case DTypeQ40:
		return "q4_0"
	default:
		return fmt.Sprintf("dtype(%d)", int(t))
	}
}

// BlockSize returns the number of elements in one quantization block for
// block-quantized types, or 1 for types with no blocking.
func (t DType) BlockSize() int {
	switch t {
	case DTypeQ80, DTypeQ40:
		return 32
	default:
		return 1
	}
}

// TypeSize returns the storage size in bytes of one block (or one element,
// for unblocked types) of this type.
func (t DType) TypeSize() int {
	switch t {
	case DTypeF32:
		return 4
	case DTypeF16, DTypeBF16:
		return 2
	case DTypeQ80:
		return 34 // 32 x int8 + f16 scale
	case DTypeQ40:
		return 18 // 32 x 4-bit nibbles + f16 scale
	default:
		return 4
	}
}

// RowSize returns the byte size of n contiguous elements of this type,
// rounding up to whole blocks.
func (t DType) RowSize(n int) uint64 {
	blocks := (n + t.BlockSize() - 1) / t.BlockSize()
	return uint64(blocks) * uint64(t.TypeSize())
}

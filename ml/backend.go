package ml

// Tensor is a flat, 1-D, fixed-length buffer of a single element type. The
// cache only ever allocates, zeroes, and addresses offsets into these; the
// arithmetic that reads and writes them belongs to the compute graph named
// in the out-of-scope list, not to this module.
type Tensor interface {
	DType() DType
	Len() int
	Name() string
}

// Buffer is the backend allocation backing one or more tensors that share a
// device-memory domain. The cache treats it purely as "clear to zero" and
// "report byte size", matching the external-collaborator boundary.
type Buffer interface {
	Clear()
	Size() uint64
}

// Context allocates tensors within a single device-memory domain and, once
// every tensor for that domain has been declared, allocates the backing
// buffer that covers all of them in one shot. This mirrors the two-phase
// allocation the original performs per ggml_backend_buffer_type_t: tensors
// are described against a no-alloc context first, then a single buffer is
// carved out for all of them together.
type Context interface {
	// NewTensor declares a flat tensor of the given type and length. The
	// tensor has no backing storage until AllocBuffer is called.
	NewTensor(name string, dtype DType, length int) (Tensor, error)

	// AllocBuffer allocates and zero-fills a buffer covering every tensor
	// declared against this context.
	AllocBuffer() (Buffer, error)
}

// Backend is the tensor storage backend named at the out-of-scope boundary:
// it owns the device-memory domains the cache allocates into.
type Backend interface {
	// NewContext opens an allocation context for the given device-memory
	// domain.
	NewContext(dev DeviceID) Context

	// Close releases every buffer this backend has allocated.
	Close() error
}

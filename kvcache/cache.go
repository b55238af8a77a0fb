// Package kvcache implements the key-value attention cache for a large
// language model inference engine: the in-memory cell table that stores
// per-layer key and value activations across the tokens of one or more
// concurrent generation sequences, and the slot-finding algorithm that
// assigns physical storage to incoming batches.
//
// The cache is single-threaded with external serialization: callers must
// not invoke two operations against the same Cache concurrently. It never
// performs I/O and every operation is short and non-blocking.
package kvcache

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/inferd/kvcache/ml"
)

// Sentinel errors for the five kinds of failure this component can report.
// Call sites wrap these with fmt.Errorf("%w: ...") to add detail.
var (
	// ErrAllocationFailure is returned by Init when a tensor context or
	// backend buffer could not be created.
	ErrAllocationFailure = errors.New("kvcache: allocation failure")

	// ErrSlotTooLarge is returned by FindSlot in attention mode when the
	// batch is larger than the cache's capacity.
	ErrSlotTooLarge = errors.New("kvcache: slot too large for cache")

	// ErrNoSlot is returned by FindSlot when no usable range exists: in
	// attention mode, no contiguous run of empty cells of the requested
	// size; in recurrent mode, the assigned span is smaller than the
	// number of sequences in the batch.
	ErrNoSlot = errors.New("kvcache: no slot available")

	// ErrSeqIDOutOfRange is returned by FindSlot in recurrent mode when a
	// batch references a sequence id >= the cache's capacity.
	ErrSeqIDOutOfRange = errors.New("kvcache: sequence id out of range")

	// ErrPartialRecurrentErase is returned by SeqRm in recurrent mode when
	// the requested range would split a sequence's single state snapshot.
	ErrPartialRecurrentErase = errors.New("kvcache: cannot partially erase recurrent state")
)

// DebugVerifyTails enables the tail-consistency check original lines
// 485-504 perform under #ifndef NDEBUG. Off by default; tests that want the
// stronger check flip it for the duration of the test.
var DebugVerifyTails = false

// domainBuffer is one device-memory domain's backing allocation.
type domainBuffer struct {
	buf ml.Buffer
}

// Cache is the key-value attention cache. Zero value is not usable; create
// one with New and call Init before any other method.
type Cache struct {
	id uuid.UUID

	size uint32
	cells []cell

	head uint32
	used uint32
	n    uint32

	hasShift bool
	doDefrag bool

	recurrent bool
	vTrans    bool
	canShift  bool

	typeK, typeV ml.DType

	kLayers []ml.Tensor
	vLayers []ml.Tensor

	bufs []domainBuffer

	logger *slog.Logger
}

// New creates an uninitialized cache. Call Init to allocate storage.
func New() *Cache {
	return &Cache{id: uuid.New()}
}

// ID returns this cache instance's diagnostic session id.
func (c *Cache) ID() uuid.UUID {
	return c.id
}

// Init allocates the cell table and the per-layer K/V tensors, following
// the original's init(): derive recurrent/vTrans/canShift from the model,
// allocate kvSize empty cells, group layers by device-memory domain,
// allocate one flat 1-D tensor per layer per K/V, and allocate one backend
// buffer per domain covering every tensor assigned to it.
//
// Domains are allocated concurrently with an errgroup since each buffer
// allocation is an independent, blocking, one-shot startup call.
func (c *Cache) Init(backend ml.Backend, model ml.ModelConfig, typeK, typeV ml.DType, kvSize uint32, offload bool) error {
	numLayers := model.NumLayers()

	c.size = kvSize
	c.used = 0
	c.head = 0
	c.hasShift = false
	c.typeK = typeK
	c.typeV = typeV
	c.recurrent = model.Recurrent()
	c.vTrans = !c.recurrent && !model.FlashAttention()
	c.canShift = !c.recurrent && model.Architecture() != "deepseek2"
	c.logger = slog.With("cache", c.id)

	c.cells = make([]cell, kvSize)
	for i := range c.cells {
		c.cells[i] = newCell()
	}

	domains := ml.NewLayerDomains(numLayers, func(layer int) ml.DeviceID {
		if offload {
			return model.DeviceLayer(layer)
		}
		return ml.Host
	})

	c.kLayers = make([]ml.Tensor, numLayers)
	c.vLayers = make([]ml.Tensor, numLayers)

	type domainResult struct {
		dev ml.DeviceID
		buf ml.Buffer
	}
	results := make([]domainResult, len(domains.Domains()))

	var g errgroup.Group
	for i, dev := range domains.Domains() {
		i, dev := i, dev
		g.Go(func() error {
			ctx := backend.NewContext(dev)
			for _, layer := range domains.Layers(dev) {
				kLen := model.NEmbdKGQA(layer) * int(kvSize)
				vLen := model.NEmbdVGQA(layer) * int(kvSize)

				k, err := ctx.NewTensor(fmt.Sprintf("cache_k_l%d", layer), typeK, kLen)
				if err != nil {
					return fmt.Errorf("%w: layer %d K tensor: %v", ErrAllocationFailure, layer, err)
				}
				v, err := ctx.NewTensor(fmt.Sprintf("cache_v_l%d", layer), typeV, vLen)
				if err != nil {
					return fmt.Errorf("%w: layer %d V tensor: %v", ErrAllocationFailure, layer, err)
				}
				c.kLayers[layer] = k
				c.vLayers[layer] = v
			}

			buf, err := ctx.AllocBuffer()
			if err != nil {
				return fmt.Errorf("%w: domain %s: %v", ErrAllocationFailure, dev, err)
			}
			buf.Clear()
			results[i] = domainResult{dev: dev, buf: buf}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.bufs = c.bufs[:0]
	for _, r := range results {
		c.bufs = append(c.bufs, domainBuffer{buf: r.buf})
	}

	c.logger.Info("kv cache initialized",
		"kv_size", kvSize, "offload", offload,
		"type_k", typeK, "type_v", typeV,
		"n_layer", numLayers, "can_shift", c.canShift)

	return nil
}

// Clear resets every cell's contents and zeroes every backing buffer; it
// does not deallocate.
func (c *Cache) Clear() {
	for i := range c.cells {
		c.cells[i].reset()
	}
	c.head = 0
	c.used = 0

	for _, b := range c.bufs {
		b.buf.Clear()
	}
}

// ResetShift clears has_shift and every cell's delta, the entry point the
// design notes require: the cache never resets these itself, the host must
// call this after folding the shifts into RoPE frequencies at graph-build
// time.
func (c *Cache) ResetShift() {
	c.hasShift = false
	for i := range c.cells {
		c.cells[i].delta = 0
	}
}

// HasShift reports whether any live cell's position was altered by an
// additive shift since the last ResetShift.
func (c *Cache) HasShift() bool {
	return c.hasShift
}

// DoDefrag reports whether defrag() has raised the rebuild flag.
func (c *Cache) DoDefrag() bool {
	return c.doDefrag
}

// ClearDefrag is called by the host once it has rebuilt the cache into a
// compact layout, to lower the flag defrag() raised.
func (c *Cache) ClearDefrag() {
	c.doDefrag = false
}

// Size returns the cache's fixed capacity.
func (c *Cache) Size() uint32 {
	return c.size
}

// Used returns the number of cells with pos >= 0.
func (c *Cache) Used() uint32 {
	return c.used
}

// Recurrent reports whether this cache uses one-cell-per-sequence-state
// storage instead of one-cell-per-token.
func (c *Cache) Recurrent() bool {
	return c.recurrent
}

// CanShift reports whether positions may be altered by seq_add/seq_div.
func (c *Cache) CanShift() bool {
	return c.canShift
}

// GetPadding returns the padding requirement find_slot callers must round
// batch sizes up to: 256 when flash attention is enabled, else 32. It takes
// only the flash-attention flag, not cache state, matching the original's
// signature of taking cparams rather than this.
func GetPadding(flashAttn bool) int32 {
	if flashAttn {
		return 256
	}
	return 32
}

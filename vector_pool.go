// This file implements the vector pool: an arena for the (fingerprint,
// weight) entries of the document refs kept in memory during scoring.
//
// WHY A POOL?
// The load phase materializes one DocumentRef per translated document, which
// for real corpora means millions of small short-lived-then-immortal slices.
// Placing each ref's storage into large shared chunks removes almost all of
// that allocator traffic and keeps the entries of neighboring refs adjacent
// in memory for the scoring scans. Refs hold subslices of the chunks; a
// chunk stays alive for as long as any ref points into it.
//
// QUANTIZATION:
// A quantizing pool stores the weights as IEEE 754 half floats, halving the
// resident size of the dominant data structure. Scoring decodes the halves
// inline during the merge. This perturbs scores around the fourth decimal,
// which is why it is opt-in.
package docalign

import (
	"sync"

	"github.com/x448/float16"
)

// poolChunkEntries is the default number of entries per backing chunk.
const poolChunkEntries = 1 << 16

// VectorPool hands out storage for document vectors from shared chunks.
// Place is safe for concurrent use by the load workers.
type VectorPool struct {
	quantize bool

	mu     sync.Mutex
	idx    []uint32
	vals   []float32
	halves []float16.Float16
}

// NewVectorPool returns a pool. A quantizing pool packs weights into half
// floats; see PackedVector.
func NewVectorPool(quantize bool) *VectorPool {
	return &VectorPool{quantize: quantize}
}

// slots reserves n entries in the current chunks, starting fresh chunks when
// the current ones cannot fit n more. Callers must hold p.mu.
func (p *VectorPool) slots(n int) (idx []uint32, vals []float32, halves []float16.Float16) {
	if cap(p.idx)-len(p.idx) < n {
		size := poolChunkEntries
		if n > size {
			size = n
		}
		p.idx = make([]uint32, 0, size)
		if p.quantize {
			p.halves = make([]float16.Float16, 0, size)
		} else {
			p.vals = make([]float32, 0, size)
		}
	}
	start := len(p.idx)
	p.idx = p.idx[:start+n]
	idx = p.idx[start : start+n : start+n]
	if p.quantize {
		p.halves = p.halves[:start+n]
		halves = p.halves[start : start+n : start+n]
	} else {
		p.vals = p.vals[:start+n]
		vals = p.vals[start : start+n : start+n]
	}
	return idx, vals, halves
}

// Place moves ref's vector storage into the pool. For a quantizing pool the
// ref's weights are packed into half floats and the float32 form is
// released; otherwise the entries are copied into pooled chunks verbatim.
func (p *VectorPool) Place(ref *DocumentRef) {
	n := ref.WordVec.Len()

	p.mu.Lock()
	idx, vals, halves := p.slots(n)
	p.mu.Unlock()

	copy(idx, ref.WordVec.indices)
	if p.quantize {
		for i, v := range ref.WordVec.values {
			halves[i] = float16.Fromfloat32(v)
		}
		ref.packed = &PackedVector{indices: idx, values: halves}
		ref.WordVec = SparseVector{}
		return
	}
	copy(vals, ref.WordVec.values)
	ref.WordVec = SparseVector{indices: idx, values: vals}
}

// PackedVector is a sparse vector whose values are stored as half floats.
// It supports exactly what the scoring loop needs: a dot product against a
// regular float32 sparse vector, decoding the halves inline.
type PackedVector struct {
	indices []uint32
	values  []float16.Float16
}

// Len returns the number of stored entries.
func (p *PackedVector) Len() int {
	return len(p.indices)
}

// Dot returns the dot product with a float32 sparse vector.
func (p *PackedVector) Dot(o *SparseVector) float32 {
	var sum float32
	li, ri := 0, 0
	for li < len(p.indices) && ri < len(o.indices) {
		switch {
		case p.indices[li] < o.indices[ri]:
			li++
		case o.indices[ri] < p.indices[li]:
			ri++
		default:
			sum += p.values[li].Float32() * o.values[ri]
			li++
			ri++
		}
	}
	return sum
}

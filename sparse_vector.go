// This file implements the sparse vector used for document scoring.
//
// HOW SCORING WORKS:
// Every document becomes a sparse vector of (n-gram fingerprint, TF-IDF
// weight) pairs with strictly ascending fingerprints. Because both sides are
// L2-normalized, the alignment score of two documents is simply the dot
// product of their vectors, which reduces to intersecting two sorted index
// arrays.
//
// KERNEL SELECTION:
// Three intersection kernels are provided:
//   - linear: classic two-pointer merge, used when both sides are of
//     comparable size
//   - gallop: linear walk of the short side with a binary search into the
//     remaining suffix of the long side, used when the long side is more
//     than ten times larger
//   - vectorized: gathers the intersecting value pairs and hands the
//     multiply-accumulate to vek's SIMD dot kernel
//
// The scalar kernels are authoritative. The vectorized kernel is enabled
// only if a startup self-check reproduces the linear kernel's results
// exactly on a deterministic pseudo-random sample; if the platform's SIMD
// accumulation order changes the result even in the last bit, the kernel
// stays disabled.
package docalign

import (
	"errors"
	"sort"
	"sync"

	"github.com/viterin/vek/vek32"
)

// ErrDivideByZero is returned when a sparse vector is divided by zero.
var ErrDivideByZero = errors.New("divide by zero")

// gallopRatio is the size ratio of the two operands beyond which the
// galloping intersection beats the linear merge.
const gallopRatio = 10

// SparseVector is a mostly-zero vector stored as parallel arrays of strictly
// ascending indices and their values. The zero value is an empty vector
// ready for use. Absent indices read as the fill value 0.
//
// SparseVector is not safe for concurrent mutation; the aligner only shares
// vectors read-only after construction.
type SparseVector struct {
	indices []uint32
	values  []float32
}

// Len returns the number of stored entries.
func (v *SparseVector) Len() int {
	return len(v.indices)
}

// Reserve grows the backing arrays to hold at least n entries.
func (v *SparseVector) Reserve(n int) {
	if cap(v.indices) >= n {
		return
	}
	indices := make([]uint32, len(v.indices), n)
	copy(indices, v.indices)
	v.indices = indices
	values := make([]float32, len(v.values), n)
	copy(values, v.values)
	v.values = values
}

// Clear removes all entries, keeping the backing arrays.
func (v *SparseVector) Clear() {
	v.indices = v.indices[:0]
	v.values = v.values[:0]
}

// Insert returns a pointer to the value slot for index, creating the slot
// (initialized to 0) if it does not exist yet. The sorted-unique invariant
// is preserved. The returned pointer is only valid until the next mutation
// of the vector.
func (v *SparseVector) Insert(index uint32) *float32 {
	i := sort.Search(len(v.indices), func(i int) bool { return v.indices[i] >= index })
	if i < len(v.indices) && v.indices[i] == index {
		return &v.values[i]
	}
	v.indices = append(v.indices, 0)
	copy(v.indices[i+1:], v.indices[i:])
	v.indices[i] = index
	v.values = append(v.values, 0)
	copy(v.values[i+1:], v.values[i:])
	v.values[i] = 0
	return &v.values[i]
}

// Read returns the value at index, or 0 if the index is absent.
func (v *SparseVector) Read(index uint32) float32 {
	i := sort.Search(len(v.indices), func(i int) bool { return v.indices[i] >= index })
	if i < len(v.indices) && v.indices[i] == index {
		return v.values[i]
	}
	return 0
}

// DivideBy divides every value in place. Dividing an empty vector is a
// no-op; the only error case is d == 0.
func (v *SparseVector) DivideBy(d float32) error {
	if d == 0 {
		return ErrDivideByZero
	}
	for i := range v.values {
		v.values[i] /= d
	}
	return nil
}

// Dot returns the dot product of two sparse vectors: the sum over all
// intersecting indices of the element-wise products. Either side being
// empty yields 0.
func (v *SparseVector) Dot(o *SparseVector) float32 {
	if v.Len() == 0 || o.Len() == 0 {
		return 0
	}
	left, right := v, o
	if left.Len() > right.Len() {
		left, right = right, left
	}
	if right.Len()/left.Len() > gallopRatio {
		return dotGallop(left, right)
	}
	if vectorizedDotEnabled {
		return dotVectorized(left, right)
	}
	return dotLinear(left, right)
}

// dotLinear is the two-pointer merge kernel for operands of comparable size.
func dotLinear(left, right *SparseVector) float32 {
	var sum float32
	li, ri := 0, 0
	for li < len(left.indices) && ri < len(right.indices) {
		switch {
		case left.indices[li] < right.indices[ri]:
			li++
		case right.indices[ri] < left.indices[li]:
			ri++
		default:
			sum += left.values[li] * right.values[ri]
			li++
			ri++
		}
	}
	return sum
}

// dotGallop walks the short left side linearly and binary-searches each of
// its indices in the remaining suffix of the much larger right side.
func dotGallop(left, right *SparseVector) float32 {
	var sum float32
	li, ri := 0, 0
	for li < len(left.indices) && ri < len(right.indices) {
		switch {
		case left.indices[li] < right.indices[ri]:
			li++
		case right.indices[ri] < left.indices[li]:
			target := left.indices[li]
			ri += sort.Search(len(right.indices)-ri, func(k int) bool {
				return right.indices[ri+k] >= target
			})
		default:
			sum += left.values[li] * right.values[ri]
			li++
			ri++
		}
	}
	return sum
}

// dotScratch holds reusable gather buffers for the vectorized kernel.
type dotScratch struct {
	l, r []float32
}

var dotScratchPool = sync.Pool{
	New: func() any { return &dotScratch{} },
}

// dotVectorized gathers the values of all intersecting indices into two
// dense buffers and computes their dot product with vek's SIMD kernel. The
// intersection itself is still a scalar merge; the win is the vectorized
// multiply-accumulate on documents with large overlaps.
func dotVectorized(left, right *SparseVector) float32 {
	scratch := dotScratchPool.Get().(*dotScratch)
	lbuf, rbuf := scratch.l[:0], scratch.r[:0]

	li, ri := 0, 0
	for li < len(left.indices) && ri < len(right.indices) {
		switch {
		case left.indices[li] < right.indices[ri]:
			li++
		case right.indices[ri] < left.indices[li]:
			ri++
		default:
			lbuf = append(lbuf, left.values[li])
			rbuf = append(rbuf, right.values[ri])
			li++
			ri++
		}
	}

	var sum float32
	if len(lbuf) > 0 {
		sum = vek32.Dot(lbuf, rbuf)
	}
	scratch.l, scratch.r = lbuf, rbuf
	dotScratchPool.Put(scratch)
	return sum
}

// vectorizedDotEnabled gates the vek-backed kernel. The scalar path is
// authoritative; the vectorized kernel is trusted only after it reproduces
// the scalar results bit-for-bit on a deterministic sample.
var vectorizedDotEnabled = verifyVectorizedDot()

// verifyVectorizedDot compares the vectorized kernel against the linear one
// on deterministic pseudo-random vectors and reports whether every result
// matched exactly.
func verifyVectorizedDot() bool {
	rng := uint32(0x9747b28c)
	next := func() uint32 {
		rng ^= rng << 13
		rng ^= rng >> 17
		rng ^= rng << 5
		return rng
	}
	build := func(n int) *SparseVector {
		var v SparseVector
		v.Reserve(n)
		for i := 0; i < n; i++ {
			*v.Insert(next() % 8192) = float32(next()%2000)/1000 - 1
		}
		return &v
	}
	for trial := 0; trial < 8; trial++ {
		left := build(64 + int(next()%64))
		right := build(512 + int(next()%128))
		if dotLinear(left, right) != dotVectorized(left, right) {
			return false
		}
	}
	return true
}

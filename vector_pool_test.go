package docalign

import (
	"math"
	"sync"
	"testing"
)

// TestVectorPoolPlace checks that pooled refs keep their exact entries.
func TestVectorPoolPlace(t *testing.T) {
	rng := testRNG(0x5eed1e55)
	pool := NewVectorPool(false)

	type snapshot struct {
		ref     DocumentRef
		indices []uint32
		values  []float32
	}
	var snaps []snapshot

	for i := 0; i < 200; i++ {
		ref := DocumentRef{ID: uint32(i + 1)}
		ref.WordVec = *randomSparseVector(&rng, 1+int(rng.next()%100), 1<<20)
		snap := snapshot{
			indices: append([]uint32(nil), ref.WordVec.indices...),
			values:  append([]float32(nil), ref.WordVec.values...),
		}
		pool.Place(&ref)
		snap.ref = ref
		snaps = append(snaps, snap)
	}

	for i, snap := range snaps {
		if snap.ref.WordVec.Len() != len(snap.indices) {
			t.Fatalf("ref %d: Len() = %d, want %d", i, snap.ref.WordVec.Len(), len(snap.indices))
		}
		for j, index := range snap.indices {
			if snap.ref.WordVec.indices[j] != index {
				t.Fatalf("ref %d entry %d: index %d, want %d", i, j, snap.ref.WordVec.indices[j], index)
			}
			if snap.ref.WordVec.values[j] != snap.values[j] {
				t.Fatalf("ref %d entry %d: value %v, want %v", i, j, snap.ref.WordVec.values[j], snap.values[j])
			}
		}
	}
}

// TestVectorPoolLargeVector checks vectors bigger than a chunk still fit.
func TestVectorPoolLargeVector(t *testing.T) {
	pool := NewVectorPool(false)

	ref := DocumentRef{ID: 1}
	n := poolChunkEntries + 100
	ref.WordVec.Reserve(n)
	for i := 0; i < n; i++ {
		*ref.WordVec.Insert(uint32(i)) = float32(i)
	}

	pool.Place(&ref)
	if ref.WordVec.Len() != n {
		t.Fatalf("Len() = %d, want %d", ref.WordVec.Len(), n)
	}
	if got := ref.WordVec.Read(uint32(n - 1)); got != float32(n-1) {
		t.Errorf("Read(%d) = %v, want %v", n-1, got, float32(n-1))
	}
}

// TestVectorPoolQuantize checks half-float packing: the packed dot stays
// close to the exact one and the float32 storage is released.
func TestVectorPoolQuantize(t *testing.T) {
	rng := testRNG(0xfeedf00d)
	pool := NewVectorPool(true)

	exact := randomSparseVector(&rng, 300, 4096)
	ref := DocumentRef{ID: 1}
	ref.WordVec = *exact

	// Normalize so values are in half-float comfort territory.
	var sum float64
	for _, v := range exact.values {
		sum += float64(v) * float64(v)
	}
	_ = ref.WordVec.DivideBy(float32(math.Sqrt(sum)))
	want := append([]float32(nil), ref.WordVec.values...)
	wantIdx := append([]uint32(nil), ref.WordVec.indices...)

	pool.Place(&ref)
	if ref.packed == nil {
		t.Fatal("quantizing pool did not pack the ref")
	}
	if ref.WordVec.Len() != 0 {
		t.Errorf("WordVec.Len() after packing = %d, want 0", ref.WordVec.Len())
	}
	if ref.packed.Len() != len(wantIdx) {
		t.Fatalf("packed.Len() = %d, want %d", ref.packed.Len(), len(wantIdx))
	}

	other := &DocumentRef{ID: 2}
	other.WordVec = SparseVector{indices: wantIdx, values: want}

	got := CalculateAlignment(&ref, other)
	exactDot := other.WordVec.Dot(&SparseVector{indices: wantIdx, values: want})
	if math.Abs(float64(got-exactDot)) > 2e-3 {
		t.Errorf("packed dot = %v, exact = %v, diff beyond half-float tolerance", got, exactDot)
	}
}

// TestVectorPoolConcurrent exercises Place from several goroutines, the way
// the load workers use it.
func TestVectorPoolConcurrent(t *testing.T) {
	pool := NewVectorPool(false)
	refs := make([]DocumentRef, 64)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w * 8; i < (w+1)*8; i++ {
				ref := &refs[i]
				ref.ID = uint32(i + 1)
				for j := 0; j < 50; j++ {
					*ref.WordVec.Insert(uint32(i*1000 + j)) = float32(i) + float32(j)/100
				}
				pool.Place(ref)
			}
		}(w)
	}
	wg.Wait()

	for i := range refs {
		if refs[i].WordVec.Len() != 50 {
			t.Errorf("ref %d: Len() = %d, want 50", i, refs[i].WordVec.Len())
		}
	}
}

package completer

import (
	"testing"

	"github.com/ioruntime/ringrt/internal/ref"
)

func TestAllocateExtractFree(t *testing.T) {
	r := New(4)
	owner := ref.Task{Index: 1, Gen: 1}

	c, ok := r.Allocate(owner, KindOp)
	if !ok {
		t.Fatal("Allocate failed on an empty registry")
	}

	if out, ok := r.Extract(c); !ok || out.State != Pending {
		t.Fatalf("Extract before Post = %+v, ok=%v; want Pending", out, ok)
	}

	if !r.Post(c.Encode(), 6) {
		t.Fatal("Post on a live completer should succeed")
	}

	out, ok := r.Extract(c)
	if !ok || out.State != Ready || out.Value != 6 {
		t.Fatalf("Extract after Post = %+v, ok=%v; want Ready/6", out, ok)
	}

	// A second Extract without another Post sees Pending again: the
	// value was cleared.
	if out, _ := r.Extract(c); out.State != Pending {
		t.Fatalf("Extract should clear the value; got %+v", out)
	}

	if !r.Free(c) {
		t.Fatal("Free on a live completer should succeed")
	}
}

func TestPost_NegativeResultIsFailed(t *testing.T) {
	r := New(2)
	c, _ := r.Allocate(ref.Task{}, KindOp)
	r.Post(c.Encode(), -5)

	out, _ := r.Extract(c)
	if out.State != Failed || out.Value != -5 {
		t.Fatalf("Extract = %+v, want Failed/-5", out)
	}
}

func TestPost_StaleGenerationIsDiscarded(t *testing.T) {
	r := New(2)
	c, _ := r.Allocate(ref.Task{}, KindOp)
	r.Free(c)

	// c's generation is now stale; posting to it must be silently
	// ignored per spec.md section 4.D.
	if r.Post(c.Encode(), 42) {
		t.Fatal("Post with a stale generation should be discarded")
	}
}

func TestAllocate_ExhaustionReturnsFalse(t *testing.T) {
	r := New(2)
	if _, ok := r.Allocate(ref.Task{}, KindOp); !ok {
		t.Fatal("first Allocate should succeed")
	}
	if _, ok := r.Allocate(ref.Task{}, KindOp); !ok {
		t.Fatal("second Allocate should succeed")
	}
	if _, ok := r.Allocate(ref.Task{}, KindOp); ok {
		t.Fatal("third Allocate on a 2-slot registry should fail")
	}
}

func TestFree_RecyclesSlotWithNewGeneration(t *testing.T) {
	r := New(1)
	first, _ := r.Allocate(ref.Task{Index: 1}, KindOp)
	r.Free(first)

	second, ok := r.Allocate(ref.Task{Index: 2}, KindQueue)
	if !ok {
		t.Fatal("Allocate after Free should reuse the freed slot")
	}
	if second.Index != first.Index {
		t.Fatalf("expected slot reuse, got index %d want %d", second.Index, first.Index)
	}
	if second.Gen == first.Gen {
		t.Fatal("recycled slot must carry a new generation")
	}
}

func TestLiveCountMatchesAllocateMinusFree(t *testing.T) {
	r := New(8)
	var live []ref.Completer

	for i := 0; i < 5; i++ {
		c, ok := r.Allocate(ref.Task{}, KindOp)
		if !ok {
			t.Fatal("unexpected allocation failure")
		}
		live = append(live, c)
	}
	if r.Live() != 5 {
		t.Fatalf("Live() = %d, want 5", r.Live())
	}

	r.Free(live[0])
	r.Free(live[1])
	if r.Live() != 3 {
		t.Fatalf("Live() = %d, want 3", r.Live())
	}
}

func TestOwnerAndKindLookup(t *testing.T) {
	r := New(2)
	owner := ref.Task{Index: 9, Gen: 3}
	c, _ := r.Allocate(owner, KindExecute)

	got, ok := r.Owner(c)
	if !ok || got != owner {
		t.Fatalf("Owner() = %+v, ok=%v; want %+v", got, ok, owner)
	}

	kind, ok := r.Kind(c)
	if !ok || kind != KindExecute {
		t.Fatalf("Kind() = %v, ok=%v; want KindExecute", kind, ok)
	}
}

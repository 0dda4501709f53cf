package pgtable

import (
	"testing"

	"mem"
)

func TestFindFreeRangeAndMap(t *testing.T) {
	as := NewFakeAddressSpace(16 * PageSize)

	va, ok := as.FindFreeRange(3)
	if !ok {
		t.Fatal("expected a free range of 3 pages")
	}

	frames := []mem.Frame{1, 2, 3}
	if err := as.MapRange(va, frames, PTE_P|PTE_U|PTE_W); err != nil {
		t.Fatalf("MapRange failed: %v", err)
	}

	for i, want := range frames {
		got, perm, ok := as.Lookup(va + VA(i)*PageSize)
		if !ok || got != want {
			t.Fatalf("Lookup(page %d) = (%v, %v), want (%v, true)", i, got, ok, want)
		}
		if perm != PTE_P|PTE_U|PTE_W {
			t.Fatalf("Lookup(page %d) perm = %#x, want %#x", i, perm, PTE_P|PTE_U|PTE_W)
		}
	}
}

func TestMapRangeReadOnlyClearsWritableBit(t *testing.T) {
	as := NewFakeAddressSpace(4 * PageSize)
	if err := as.MapRange(0, []mem.Frame{1}, PTE_P|PTE_U); err != nil {
		t.Fatalf("MapRange failed: %v", err)
	}
	_, perm, ok := as.Lookup(0)
	if !ok {
		t.Fatal("expected mapping to be present")
	}
	if perm&PTE_W != 0 {
		t.Fatalf("perm = %#x, want PTE_W cleared for a read-only mapping", perm)
	}
}

func TestMapRangeRejectsOverlap(t *testing.T) {
	as := NewFakeAddressSpace(4 * PageSize)
	if err := as.MapRange(0, []mem.Frame{1}, PTE_P); err != nil {
		t.Fatalf("first map failed: %v", err)
	}
	if err := as.MapRange(0, []mem.Frame{2}, PTE_P); err == nil {
		t.Fatal("expected overlap to be rejected")
	}
	// the rejected call must leave no partial mapping behind
	if f, _, ok := as.Lookup(0); !ok || f != 1 {
		t.Fatalf("Lookup(0) = (%v, %v), want (1, true)", f, ok)
	}
}

func TestUnmapThenReuse(t *testing.T) {
	as := NewFakeAddressSpace(4 * PageSize)
	as.MapRange(0, []mem.Frame{1, 2}, PTE_P)
	as.Unmap(0, 2)

	if _, _, ok := as.Lookup(0); ok {
		t.Fatal("expected page to be unmapped")
	}
	if err := as.MapRange(0, []mem.Frame{9, 10}, PTE_P); err != nil {
		t.Fatalf("remap after unmap should succeed: %v", err)
	}
}

func TestFindFreeRangeExhausted(t *testing.T) {
	as := NewFakeAddressSpace(2 * PageSize)
	as.MapRange(0, []mem.Frame{1, 2}, PTE_P)
	if _, ok := as.FindFreeRange(1); ok {
		t.Fatal("expected no free range left")
	}
}

// Package pgtable models the page-table helper spec.md's collaborator
// interfaces describe, the way the teacher's vm.Vm_t wraps the hardware
// page table behind Page_insert/Page_remove/Userdmap8 calls instead of
// exposing raw PTEs to callers.
package pgtable

import (
	"sync"

	"mem"
)

// PTE bit layout, carried over from the teacher's mem package PTE_* consts.
const (
	PTE_P = 1 << 0 // present
	PTE_W = 1 << 1 // writable
	PTE_U = 1 << 2 // user-accessible
)

// VA is a user virtual address.
type VA uintptr

// PageSize matches mem.PageSize; every VA passed across this package's API
// must already be page-aligned, as in the teacher's Pg_t.
const PageSize = mem.PageSize

// AddressSpace is the capability ksm and proc depend on to map and unmap
// physical frames into a process's virtual address range, decoupling them
// from the real hardware walker the way vm.Vm_t's Lock_pmap/Page_insert
// pair decouples the rest of the kernel from raw CR3 manipulation.
type AddressSpace interface {
	// MapRange maps the frames in order starting at va, each with the given
	// permission bits. On partial failure (e.g. VA already mapped, or the
	// space is exhausted) it unmaps everything it mapped in this call
	// before returning an error, leaving the address space unchanged.
	MapRange(va VA, frames []mem.Frame, perm int) error
	// Unmap removes n consecutive pages starting at va. Unmapping a page
	// that was not mapped is a no-op, matching the original's
	// "detach a range that's partially gone" tolerance.
	Unmap(va VA, n int)
	// Lookup returns the frame and permission bits mapped at va, if any.
	Lookup(va VA) (f mem.Frame, perm int, ok bool)
	// FindFreeRange returns a VA such that the following n pages are all
	// currently unmapped, or ok=false if no such range exists below the
	// space's configured ceiling. The returned VA is never 0, since callers
	// such as ksm use VA 0 to mean "not attached".
	FindFreeRange(n int) (va VA, ok bool)
}

// mapping_t is one mapped page: its backing frame and the permission bits
// it was installed with.
type mapping_t struct {
	frame mem.Frame
	perm  int
}

// FakeAddressSpace is an in-memory reference AddressSpace, the test-only
// stand-in the teacher's capability pattern (mem.Page_i, fdops.Fdops_i)
// exists to make possible: no hardware page table required to exercise the
// ksm/sem logic above it.
type FakeAddressSpace struct {
	mu    sync.Mutex
	ceil  VA
	pages map[VA]mapping_t
}

// NewFakeAddressSpace creates an address space spanning [0, ceil) in
// page-sized units.
func NewFakeAddressSpace(ceil VA) *FakeAddressSpace {
	return &FakeAddressSpace{
		ceil:  ceil,
		pages: make(map[VA]mapping_t),
	}
}

func (s *FakeAddressSpace) MapRange(va VA, frames []mem.Frame, perm int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mapped := make([]VA, 0, len(frames))
	for i, f := range frames {
		cur := va + VA(i)*PageSize
		if _, taken := s.pages[cur]; taken {
			for _, m := range mapped {
				delete(s.pages, m)
			}
			return errRangeTaken
		}
		s.pages[cur] = mapping_t{frame: f, perm: perm}
		mapped = append(mapped, cur)
	}
	return nil
}

func (s *FakeAddressSpace) Unmap(va VA, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		delete(s.pages, va+VA(i)*PageSize)
	}
}

func (s *FakeAddressSpace) Lookup(va VA) (mem.Frame, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pages[va]
	return m.frame, m.perm, ok
}

func (s *FakeAddressSpace) FindFreeRange(n int) (VA, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := 0
	var start VA
	for v := VA(PageSize); v < s.ceil; v += PageSize {
		if _, taken := s.pages[v]; taken {
			run = 0
			continue
		}
		if run == 0 {
			start = v
		}
		run++
		if run == n {
			return start, true
		}
	}
	return 0, false
}

type pgtableError string

func (e pgtableError) Error() string { return string(e) }

const errRangeTaken = pgtableError("pgtable: requested range already mapped")

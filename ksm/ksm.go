// Package ksm implements the kernel-resident shared-memory segment (KSM)
// service: a fixed table of named, reference-counted segments that
// processes get, attach into their own address space, detach, and delete.
//
// The table mirrors xv6's ksm_sgtable/ksm_globalinfo design one-for-one,
// but trades raw pgdir pokes for the pgtable.AddressSpace and mem.Allocator
// capabilities, the way the teacher's vm.Vm_t sits between kernel logic and
// the hardware.
package ksm

import (
	"sync"

	"defs"
	"mem"
	"pgtable"
	"ticks"
)

// NSeg is the maximum number of live segments, carried over from
// KSM_SEG_MAX_NUM.
const NSeg = 64

// SegMaxSize is the largest size (in bytes) a single Get may request,
// carried over from KSM_SEG_MAXSZ.
const SegMaxSize = 2 * 1024 * 1024

// FreeBitmapBits is the number of page slots tracked per process for
// attachment placement, carried over from KSM_FREEBM_SZ (one page's worth
// of bits): up to 128MiB of page-granular attachments per process. See
// SPEC_FULL.md §5 item 3.
const FreeBitmapBits = 32768

// toBeDeleted is the sentinel segment key meaning "marked for deletion,
// waiting on outstanding attachments", carried over from KSM_TOBE_DEL.
const toBeDeleted = -1

// Info_t is the public snapshot returned by Table_t.Info, mirroring
// struct ksminfo_t.
type Info_t struct {
	Size          int
	CreatorPid    defs.Pid_t
	ModifierPid   defs.Pid_t
	AttachedNum   int
	GetTime       int
	AttachTime    int
	DetachTime    int
	DeleteTime    int
	TotalSegments int
	TotalPages    int
}

type segment_t struct {
	key         int
	frames      []mem.Frame
	alloc       mem.Allocator
	size        int
	creatorPid  defs.Pid_t
	modifierPid defs.Pid_t
	attachedNum int
	attachTime  int
	detachTime  int
	deleteTime  int
}

// Attach_t is one process's bookkeeping for one segment slot, mirroring
// xv6's struct ksm_mstable entry (bottom/pgnum/gettime).
type Attach_t struct {
	VA      pgtable.VA
	PageNum int
	GetTime int
}

// ProcState_t is the per-process KSM state spec.md's data model requires:
// one Attach_t per segment slot. It is embedded into the owning proc.Proc_t.
type ProcState_t struct {
	Attach [NSeg]Attach_t
}

// Clone copies attach bookkeeping from src into ps, the way ksm_copy_proc
// propagates ksm_mstable into a forked child. It does not copy VA mappings
// or bump attachedNum; callers that also copy the address space (as the
// caller of proc.Fork does) are responsible for keeping the two in sync.
func (ps *ProcState_t) Clone(src *ProcState_t) {
	ps.Attach = src.Attach
}

// Table_t is the global segment table, mirroring ksm_sgtable plus
// ksm_globalinfo, guarded by a single lock exactly as ksmlock guards both
// in the original.
type Table_t struct {
	mu     sync.Mutex
	segs   [NSeg]segment_t
	ticks  *ticks.Counter_t
	totSeg int
	totPg  int
}

// NewTable creates an empty segment table driven by the given tick source.
func NewTable(tk *ticks.Counter_t) *Table_t {
	return &Table_t{ticks: tk}
}

func pageCount(size int) int {
	return (size + mem.PageSize - 1) / mem.PageSize
}

// Get finds or creates the segment named by key, exactly as ksmget does:
// size == 0 means "look up an existing segment only"; a size mismatch
// against an existing segment of the same key is an error, not a resize.
// Returns a 1-based handle.
func (t *Table_t) Get(caller defs.Pid_t, ps *ProcState_t, key int, size int, alloc mem.Allocator) (int, defs.Err_t) {
	if key <= 0 {
		return 0, defs.EBADKEY
	}
	if size > SegMaxSize {
		return 0, defs.EWRONGSIZE
	}

	t.mu.Lock()

	handle := -1
	for i := 0; i < NSeg; i++ {
		if handle < 0 && t.segs[i].key == 0 {
			handle = i
		}
		if t.segs[i].key == key {
			if size == 0 || t.segs[i].size == size {
				t.segs[i].modifierPid = caller
				ps.Attach[i].GetTime = t.ticks.Tick()
				t.mu.Unlock()
				return i + 1, 0
			}
			t.mu.Unlock()
			return 0, defs.EKEYTAKEN
		}
	}
	if handle < 0 {
		t.mu.Unlock()
		return 0, defs.ENOTAVAILABLE
	}
	if size == 0 {
		t.mu.Unlock()
		return 0, defs.ENOTCREATED
	}
	t.mu.Unlock()

	// Allocation happens outside the lock, as in the original (kalloc can
	// block); roll back cleanly on any failure.
	npg := pageCount(size)
	frames := make([]mem.Frame, 0, npg)
	for i := 0; i < npg; i++ {
		f, ok := alloc.AllocFrame()
		if !ok {
			for _, f := range frames {
				alloc.FreeFrame(f)
			}
			return 0, defs.EMEMORYFULL
		}
		frames = append(frames, f)
	}

	t.mu.Lock()

	// Another Get may have raced us to this slot; re-validate.
	if t.segs[handle].key != 0 {
		for _, f := range frames {
			alloc.FreeFrame(f)
		}
		t.mu.Unlock()
		return t.Get(caller, ps, key, size, alloc)
	}

	ps.Attach[handle].GetTime = t.ticks.Tick()
	t.segs[handle] = segment_t{
		key:         key,
		frames:      frames,
		alloc:       alloc,
		size:        size,
		creatorPid:  caller,
		modifierPid: caller,
	}
	t.totSeg++
	t.totPg += npg
	t.mu.Unlock()
	return handle + 1, 0
}

// Attach maps the segment identified by handle into as, at a
// FindFreeRange-chosen VA, exactly as ksmattach does. Re-attaching an
// already-attached segment returns the existing VA idempotently.
func (t *Table_t) Attach(caller defs.Pid_t, ps *ProcState_t, handle int, as pgtable.AddressSpace, writable bool) (pgtable.VA, defs.Err_t) {
	hd := handle - 1
	if hd < 0 || hd >= NSeg {
		return 0, defs.EBADHANDLE
	}
	if ps.Attach[hd].VA != 0 {
		return ps.Attach[hd].VA, 0
	}

	t.mu.Lock()
	if t.segs[hd].key == 0 {
		t.mu.Unlock()
		return 0, defs.ENOTCREATED
	}
	if ps.Attach[hd].GetTime <= t.segs[hd].deleteTime {
		t.mu.Unlock()
		return 0, defs.ENOTELIGIBLE
	}
	npg := pageCount(t.segs[hd].size)
	frames := t.segs[hd].frames
	t.mu.Unlock()

	// free_bitmap is sized to FreeBitmapBits (see SPEC_FULL.md §5 item 3);
	// the per-process attachment table is process-private, so this total is
	// read without t.mu, the same way the bitmap itself needs no cross-
	// process locking.
	attachedPages := npg
	for i := range ps.Attach {
		attachedPages += ps.Attach[i].PageNum
	}
	if attachedPages > FreeBitmapBits {
		return 0, defs.EUSERMEMORYFULL
	}

	t.mu.Lock()
	t.segs[hd].attachedNum++
	t.mu.Unlock()

	va, ok := as.FindFreeRange(npg)
	if !ok {
		t.mu.Lock()
		t.segs[hd].attachedNum--
		t.mu.Unlock()
		return 0, defs.EUSERMEMORYFULL
	}

	perm := pgtable.PTE_P | pgtable.PTE_U
	if writable {
		perm |= pgtable.PTE_W
	}
	if err := as.MapRange(va, frames, perm); err != nil {
		t.mu.Lock()
		t.segs[hd].attachedNum--
		t.mu.Unlock()
		return 0, defs.EUSERMEMORYFULL
	}

	ps.Attach[hd].VA = va
	ps.Attach[hd].PageNum = npg

	t.mu.Lock()
	t.segs[hd].modifierPid = caller
	t.segs[hd].attachTime = t.ticks.Tick()
	t.mu.Unlock()

	return va, 0
}

// Detach unmaps the segment previously attached at handle, exactly as
// ksmdetach does, destroying the segment if it was marked for deletion and
// this was the last attachment.
func (t *Table_t) Detach(caller defs.Pid_t, ps *ProcState_t, handle int, as pgtable.AddressSpace) defs.Err_t {
	hd := handle - 1
	if hd < 0 || hd >= NSeg {
		return defs.EBADHANDLE
	}
	if ps.Attach[hd].VA == 0 {
		return defs.EWRONGDETACH
	}

	t.mu.Lock()
	if t.segs[hd].key == 0 {
		t.mu.Unlock()
		return defs.ENOTCREATED
	}
	t.mu.Unlock()

	as.Unmap(ps.Attach[hd].VA, ps.Attach[hd].PageNum)
	ps.Attach[hd].VA = 0
	ps.Attach[hd].PageNum = 0

	t.mu.Lock()
	defer t.mu.Unlock()
	t.segs[hd].modifierPid = caller
	t.segs[hd].detachTime = t.ticks.Tick()
	t.segs[hd].attachedNum--

	if t.segs[hd].attachedNum == 0 && t.segs[hd].key == toBeDeleted {
		t.destroySeg(hd)
	}
	return 0
}

// Delete marks the segment for deletion, destroying it immediately if
// nothing is attached, exactly as ksmdelete does. Caller must hold no
// lock; Table_t.mu is acquired internally.
func (t *Table_t) Delete(ps *ProcState_t, handle int) defs.Err_t {
	hd := handle - 1
	if hd < 0 || hd >= NSeg {
		return defs.EBADHANDLE
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.segs[hd].key == 0 {
		return defs.ENOTCREATED
	}
	if ps.Attach[hd].GetTime <= t.segs[hd].deleteTime {
		return defs.ENOTELIGIBLE
	}

	t.segs[hd].key = toBeDeleted
	if t.segs[hd].attachedNum == 0 {
		t.destroySeg(hd)
	}
	return 0
}

// destroySeg frees the segment's frames and resets the slot to a zero
// value stamped with the delete time, matching the original's "zero the
// slot, then stamp t_delete into the zeroed struct" ordering (see
// SPEC_FULL.md §5 item 1). Caller must hold t.mu.
func (t *Table_t) destroySeg(hd int) {
	t.totSeg--
	t.totPg -= pageCount(t.segs[hd].size)

	frames, alloc := t.segs[hd].frames, t.segs[hd].alloc
	t.segs[hd] = segment_t{}
	t.segs[hd].deleteTime = t.ticks.Tick()

	for _, f := range frames {
		alloc.FreeFrame(f)
	}
}

// Info returns a snapshot of segment handle's bookkeeping plus the table's
// global counters, exactly as ksminfo does, refusing any handle that is
// absent or not eligible for this process.
func (t *Table_t) Info(ps *ProcState_t, handle int) (Info_t, defs.Err_t) {
	if handle <= 0 || handle > NSeg {
		return Info_t{}, defs.EBADHANDLE
	}
	hd := handle - 1

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.segs[hd].key == 0 {
		return Info_t{}, defs.ENOTCREATED
	}
	if ps.Attach[hd].GetTime <= t.segs[hd].deleteTime {
		return Info_t{}, defs.ENOTELIGIBLE
	}

	return Info_t{
		Size:          t.segs[hd].size,
		CreatorPid:    t.segs[hd].creatorPid,
		ModifierPid:   t.segs[hd].modifierPid,
		AttachedNum:   t.segs[hd].attachedNum,
		GetTime:       ps.Attach[hd].GetTime,
		AttachTime:    t.segs[hd].attachTime,
		DetachTime:    t.segs[hd].detachTime,
		DeleteTime:    t.segs[hd].deleteTime,
		TotalSegments: t.totSeg,
		TotalPages:    t.totPg,
	}, 0
}

// ForkCopy propagates attach bookkeeping (and bumps attachedNum/mpid/atime
// for every slot the child inherits mapped) from parent to child, mirroring
// ksm_copy_proc. The caller is responsible for having already copied the
// underlying address-space mappings themselves; proc.Fork does not copy
// them either and takes a child address space that already holds them.
func (t *Table_t) ForkCopy(child defs.Pid_t, childPS, parentPS *ProcState_t) {
	childPS.Clone(parentPS)

	t.mu.Lock()
	defer t.mu.Unlock()
	for hd := 0; hd < NSeg; hd++ {
		if childPS.Attach[hd].VA != 0 {
			t.segs[hd].attachedNum++
			t.segs[hd].modifierPid = child
			t.segs[hd].attachTime = t.ticks.Tick()
		}
	}
}

// ExitAll detaches every segment ps still holds, as a process-exit hook
// would, unmapping each attachment from as through Detach.
func (t *Table_t) ExitAll(caller defs.Pid_t, ps *ProcState_t, as pgtable.AddressSpace) {
	for hd := 0; hd < NSeg; hd++ {
		if ps.Attach[hd].VA != 0 {
			t.Detach(caller, ps, hd+1, as)
		}
	}
}

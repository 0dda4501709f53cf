// Package sem implements the kernel-resident named counting-semaphore
// service: a fixed table of semaphores that processes get, signal, wait
// on, and delete.
//
// xv6's sem.c blocks waiters with sleep(chan, lock)/wakeup(chan); this
// package uses sync.Cond tied to the table's own lock, the idiomatic Go
// rendition of that same cooperative-blocking pattern.
package sem

import (
	"sync"

	"defs"
	"ticks"
)

// NSem is the maximum number of live semaphores, carried over from
// MAXSEMNUM.
const NSem = 64

// MaxVal is the largest value a semaphore may be created or signalled up
// to. sem.h was not available in the retrieved original source, so this
// ceiling is a reimplementation choice (see SPEC_FULL.md §5 item 5), not a
// carried-over constant.
const MaxVal = 1 << 20

type slot_t struct {
	name    uint
	value   int
	delTime int
}

// ProcState_t is the per-process SEM state: one get-time per slot,
// mirroring proc->sem_gettimes.
type ProcState_t struct {
	GetTime [NSem]int
}

// Table_t is the global semaphore table, guarded by a single lock exactly
// as semlock guards sem_table in the original. cond is used to block and
// wake waiters instead of xv6's sleep/wakeup pair.
type Table_t struct {
	mu    sync.Mutex
	cond  *sync.Cond
	slots [NSem]slot_t
	ticks *ticks.Counter_t
}

// NewTable creates an empty semaphore table driven by the given tick
// source.
func NewTable(tk *ticks.Counter_t) *Table_t {
	t := &Table_t{ticks: tk}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Get finds or creates the semaphore named by name, exactly as sem_get
// does: a new semaphore is created with the given initial value if no
// semaphore with this name exists yet. Returns a 1-based handle.
func (t *Table_t) Get(ps *ProcState_t, name uint, value int) (int, defs.Err_t) {
	if name == 0 {
		return 0, defs.ESEMBADNAME
	}
	if value < 0 || value > MaxVal {
		return 0, defs.ESEMBADVAL
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	handle := -1
	for i := 0; i < NSem; i++ {
		if handle < 0 && t.slots[i].name == 0 {
			handle = i
		}
		if t.slots[i].name == name {
			ps.GetTime[i] = t.ticks.Tick()
			return i + 1, 0
		}
	}
	if handle < 0 {
		return 0, defs.EOUTOFSEM
	}

	t.slots[handle].name = name
	t.slots[handle].value = value
	ps.GetTime[handle] = t.ticks.Tick()
	return handle + 1, 0
}

func (t *Table_t) eligible(ps *ProcState_t, hd int) defs.Err_t {
	if t.slots[hd].name == 0 {
		return defs.ESEMDOESNOTEXIST
	}
	if ps.GetTime[hd] <= t.slots[hd].delTime {
		return defs.ESEMNOTELIGIBLE
	}
	return 0
}

// Delete removes the semaphore at handle, exactly as sem_delete does,
// waking any waiters so they observe the semaphore is gone.
func (t *Table_t) Delete(ps *ProcState_t, handle int) defs.Err_t {
	hd := handle - 1
	if hd < 0 || hd >= NSem {
		return defs.ESEMBADHANDLE
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.eligible(ps, hd); err != 0 {
		return err
	}

	t.slots[hd] = slot_t{}
	t.slots[hd].delTime = t.ticks.Tick()
	t.cond.Broadcast()
	return 0
}

// Signal increments the semaphore's value and wakes any waiters, exactly
// as sem_signal does.
func (t *Table_t) Signal(ps *ProcState_t, handle int) defs.Err_t {
	hd := handle - 1
	if hd < 0 || hd >= NSem {
		return defs.ESEMBADHANDLE
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.eligible(ps, hd); err != 0 {
		return err
	}

	t.slots[hd].value++
	t.cond.Broadcast()
	return 0
}

// Wait blocks until the semaphore's value is positive, then decrements it,
// exactly as sem_wait does. If the semaphore is deleted (or replaced by a
// new semaphore under the same handle) while waiting, Wait returns
// ESEMDOESNOTEXIST rather than blocking forever.
func (t *Table_t) Wait(ps *ProcState_t, handle int) defs.Err_t {
	hd := handle - 1
	if hd < 0 || hd >= NSem {
		return defs.ESEMBADHANDLE
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.eligible(ps, hd); err != 0 {
		return err
	}

	for t.slots[hd].value == 0 {
		if err := t.eligible(ps, hd); err != 0 {
			return defs.ESEMDOESNOTEXIST
		}
		t.cond.Wait()
	}

	t.slots[hd].value--
	return 0
}

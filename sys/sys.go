// Package sys is the syscall-facing glue layer: it decodes the fixed
// argument lists spec.md §6.1 lists (mirroring sysksm.c/syssem.c's
// argint/argptr decoding), dispatches to the ksm/sem tables, and encodes
// the ksminfo record into a flat byte buffer the way accnt.To_rusage
// packs its fields with util.Writen.
package sys

import (
	"sync"

	"defs"
	"ksm"
	"mem"
	"pgtable"
	"proc"
	"sem"
	"ticks"
	"util"
)

// wordSize is the machine-word width info records are packed in, matching
// accnt.To_rusage's use of a constant stride per field.
const wordSize = 8

// infoWords is the number of machine words ksm.Info_t packs into, per
// spec.md §6.2's ten named fields (despite the section header's "eleven
// machine-word fields" — an inconsistency in spec.md that SPEC_FULL.md
// does not attempt to silently resolve by inventing an eleventh field).
const infoWords = 10

// InfoRecordSize is the size in bytes of an encoded ksm.Info_t.
const InfoRecordSize = infoWords * wordSize

// Kernel bundles the KSM/SEM tables and a process table, the minimal
// environment a syscall dispatch needs.
type Kernel struct {
	mu    sync.Mutex
	KSM   *ksm.Table_t
	SEM   *sem.Table_t
	alloc mem.Allocator
	procs map[defs.Pid_t]*proc.Proc_t
}

// NewKernel creates a Kernel backed by alloc for frame allocation.
func NewKernel(alloc mem.Allocator) *Kernel {
	tk := &ticks.Counter_t{}
	return &Kernel{
		KSM:   ksm.NewTable(tk),
		SEM:   sem.NewTable(tk),
		alloc: alloc,
		procs: make(map[defs.Pid_t]*proc.Proc_t),
	}
}

// AddProc registers a process with the kernel, as fork/exec would.
func (k *Kernel) AddProc(p *proc.Proc_t) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.procs[p.Pid] = p
}

// RemoveProc drops a process's bookkeeping. Callers should have already
// invoked p.Exit to detach its KSM segments.
func (k *Kernel) RemoveProc(pid defs.Pid_t) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.procs, pid)
}

func (k *Kernel) proc(pid defs.Pid_t) (*proc.Proc_t, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.procs[pid]
	return p, ok
}

// Ksmget implements the ksmget(key, size) syscall.
func (k *Kernel) Ksmget(caller defs.Pid_t, key int, size int) (int, defs.Err_t) {
	p, ok := k.proc(caller)
	if !ok {
		return 0, defs.EBADHANDLE
	}
	return k.KSM.Get(caller, &p.KSM, key, size, k.alloc)
}

// Ksmattach implements the ksmattach(handle, flag) syscall; flag != 0
// requests a writable mapping, mirroring the original's non-zero "flag"
// meaning "copy with write permission".
func (k *Kernel) Ksmattach(caller defs.Pid_t, handle int, flag int) (pgtable.VA, defs.Err_t) {
	p, ok := k.proc(caller)
	if !ok {
		return 0, defs.EBADHANDLE
	}
	return k.KSM.Attach(caller, &p.KSM, handle, p.AS, flag != 0)
}

// Ksmdetach implements the ksmdetach(handle) syscall.
func (k *Kernel) Ksmdetach(caller defs.Pid_t, handle int) defs.Err_t {
	p, ok := k.proc(caller)
	if !ok {
		return defs.EBADHANDLE
	}
	return k.KSM.Detach(caller, &p.KSM, handle, p.AS)
}

// Ksmdelete implements the ksmdelete(handle) syscall.
func (k *Kernel) Ksmdelete(caller defs.Pid_t, handle int) defs.Err_t {
	p, ok := k.proc(caller)
	if !ok {
		return defs.EBADHANDLE
	}
	return k.KSM.Delete(&p.KSM, handle)
}

// Ksminfo implements the ksminfo(handle) syscall, returning the encoded
// fixed-width record a user-space caller would read out of a supplied
// buffer.
func (k *Kernel) Ksminfo(caller defs.Pid_t, handle int) ([]byte, defs.Err_t) {
	p, ok := k.proc(caller)
	if !ok {
		return nil, defs.EBADHANDLE
	}
	info, err := k.KSM.Info(&p.KSM, handle)
	if err != 0 {
		return nil, err
	}
	return encodeInfo(info), 0
}

// Pgused implements the pgused() syscall: the total number of physical
// pages currently backing all live KSM segments, regardless of the
// caller's own attachments.
func (k *Kernel) Pgused(caller defs.Pid_t) (int, defs.Err_t) {
	if _, ok := k.proc(caller); !ok {
		return 0, defs.EBADHANDLE
	}
	return k.alloc.InUse(), 0
}

// SemGet implements the sem_get(name, value) syscall.
func (k *Kernel) SemGet(caller defs.Pid_t, name uint, value int) (int, defs.Err_t) {
	p, ok := k.proc(caller)
	if !ok {
		return 0, defs.ESEMBADHANDLE
	}
	return k.SEM.Get(&p.SEM, name, value)
}

// SemDelete implements the sem_delete(handle) syscall.
func (k *Kernel) SemDelete(caller defs.Pid_t, handle int) defs.Err_t {
	p, ok := k.proc(caller)
	if !ok {
		return defs.ESEMBADHANDLE
	}
	return k.SEM.Delete(&p.SEM, handle)
}

// SemSignal implements the sem_signal(handle) syscall.
func (k *Kernel) SemSignal(caller defs.Pid_t, handle int) defs.Err_t {
	p, ok := k.proc(caller)
	if !ok {
		return defs.ESEMBADHANDLE
	}
	return k.SEM.Signal(&p.SEM, handle)
}

// SemWait implements the sem_wait(handle) syscall. It blocks the calling
// goroutine until the semaphore is available, deleted, or replaced.
func (k *Kernel) SemWait(caller defs.Pid_t, handle int) defs.Err_t {
	p, ok := k.proc(caller)
	if !ok {
		return defs.ESEMBADHANDLE
	}
	return k.SEM.Wait(&p.SEM, handle)
}

// encodeInfo packs a ksm.Info_t into a flat word-per-field buffer, the way
// accnt.Accnt_t.To_rusage packs Utime/Stime/... with util.Writen rather
// than a general-purpose serialization format.
func encodeInfo(info ksm.Info_t) []byte {
	buf := make([]byte, InfoRecordSize)
	fields := []int{
		info.Size,
		int(info.CreatorPid),
		int(info.ModifierPid),
		info.AttachedNum,
		info.GetTime,
		info.AttachTime,
		info.DetachTime,
		info.DeleteTime,
		info.TotalSegments,
		info.TotalPages,
	}
	for i, v := range fields {
		util.Writen(buf, wordSize, i*wordSize, v)
	}
	return buf
}

// DecodeInfo unpacks a buffer produced by encodeInfo, for tests and for
// any caller that received the record across a boundary that only passes
// bytes.
func DecodeInfo(buf []byte) ksm.Info_t {
	read := func(i int) int { return util.Readn(buf, wordSize, i*wordSize) }
	return ksm.Info_t{
		Size:          read(0),
		CreatorPid:    defs.Pid_t(read(1)),
		ModifierPid:   defs.Pid_t(read(2)),
		AttachedNum:   read(3),
		GetTime:       read(4),
		AttachTime:    read(5),
		DetachTime:    read(6),
		DeleteTime:    read(7),
		TotalSegments: read(8),
		TotalPages:    read(9),
	}
}

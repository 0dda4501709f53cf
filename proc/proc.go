// Package proc provides the minimal process abstraction the ksm and sem
// tables are exercised through: a pid, an address space, and the two
// subsystems' per-process state, wired together the way the teacher's
// vm.Vm_t is one field of a much larger (and, in the retrieved sources,
// only partially present) process struct.
package proc

import (
	"defs"
	"ksm"
	"pgtable"
	"sem"
)

// Proc_t is one process's worth of state relevant to the KSM/SEM
// subsystems.
type Proc_t struct {
	Pid defs.Pid_t
	AS  pgtable.AddressSpace
	KSM ksm.ProcState_t
	SEM sem.ProcState_t
}

// New creates a process with the given pid, backed by as.
func New(pid defs.Pid_t, as pgtable.AddressSpace) *Proc_t {
	return &Proc_t{Pid: pid, AS: as}
}

// Fork creates a child process that inherits parent's KSM attachment
// bookkeeping, as ksm_copy_proc propagates ksm_mstable. Fork maps no pages:
// childAS must already contain a copy of parent's address space (including
// the segments' mappings) before Fork is called;
// Fork's job is purely to update the KSM table's bookkeeping for the newly
// shared attachments; see SPEC_FULL.md §5 item 6 for why SEM state is not
// propagated here.
func Fork(childPid defs.Pid_t, childAS pgtable.AddressSpace, parent *Proc_t, table *ksm.Table_t) *Proc_t {
	child := New(childPid, childAS)
	table.ForkCopy(childPid, &child.KSM, &parent.KSM)
	return child
}

// Exit tears down p's KSM attachments, as a process-exit hook would.
func (p *Proc_t) Exit(table *ksm.Table_t) {
	table.ExitAll(p.Pid, &p.KSM, p.AS)
}

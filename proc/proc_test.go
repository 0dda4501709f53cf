package proc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"defs"
	"ksm"
	"mem"
	"pgtable"
	"ticks"
)

func TestForkPropagatesAttachment(t *testing.T) {
	table := ksm.NewTable(&ticks.Counter_t{})
	alloc := mem.NewFreeListAllocator(1024)
	parentAS := pgtable.NewFakeAddressSpace(pgtable.VA(4096 * 4096))
	childAS := pgtable.NewFakeAddressSpace(pgtable.VA(4096 * 4096))

	parent := New(1, parentAS)
	h, err := table.Get(parent.Pid, &parent.KSM, 1, 4096, alloc)
	require.Equal(t, defs.Err_t(0), err)
	va, err := table.Attach(parent.Pid, &parent.KSM, h, parentAS, true)
	require.Equal(t, defs.Err_t(0), err)

	// A real fork would also copy parentAS's mappings into childAS before
	// ForkCopy runs; the fake address space used here needs that spelled
	// out explicitly since it has no copy-on-write machinery of its own.
	f, perm, ok := parentAS.Lookup(va)
	require.True(t, ok)
	require.NoError(t, childAS.MapRange(va, []mem.Frame{f}, perm))

	child := Fork(2, childAS, parent, table)

	info, err := table.Info(&child.KSM, h)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, 2, info.AttachedNum)
}

func TestExitDetachesAllSegments(t *testing.T) {
	table := ksm.NewTable(&ticks.Counter_t{})
	alloc := mem.NewFreeListAllocator(1024)
	as := pgtable.NewFakeAddressSpace(pgtable.VA(4096 * 4096))

	p := New(1, as)
	h, err := table.Get(p.Pid, &p.KSM, 9, 4096, alloc)
	require.Equal(t, defs.Err_t(0), err)
	_, err = table.Attach(p.Pid, &p.KSM, h, as, true)
	require.Equal(t, defs.Err_t(0), err)

	p.Exit(table)

	require.Equal(t, pgtable.VA(0), p.KSM.Attach[h-1].VA)
}

// Package defs holds the types and error codes shared by the ksm and sem
// subsystems: the sort of small, dependency-free package every other
// kernel package imports.
package defs

/// Err_t is a negative kernel error code. Zero means success.
type Err_t int

/// Pid_t identifies a process.
type Pid_t int

/// KSM error codes. Disjoint from the SEM codes below.
const (
	EBADKEY Err_t = -(10 + iota)
	EBADHANDLE
	EMEMORYFULL
	EUSERMEMORYFULL
	EKEYTAKEN
	EWRONGSIZE
	ENOTCREATED
	EWRONGDETACH
	ENOTELIGIBLE
	ENOTAVAILABLE
)

/// SEM error codes. Disjoint from the KSM codes above.
const (
	ESEMBADHANDLE Err_t = -(30 + iota)
	ESEMDOESNOTEXIST
	ESEMNOTELIGIBLE
	EOUTOFSEM
	ESEMBADNAME
	ESEMBADVAL
)

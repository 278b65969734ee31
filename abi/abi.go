package abi

// Word is one machine word as passed across the syscall boundary.
type Word uint64

// Args is the fixed-size syscall argument vector.
type Args [6]Word

// MaxArgs is the number of argument registers in the syscall convention.
const MaxArgs = 6

// The syscall number space is partitioned into contiguous ranges, one per
// owning subsystem.
const (
	ProcessBase  = 0x1000
	FileIOBase   = 0x2000
	MemoryBase   = 0x3000
	NetworkBase  = 0x4000
	SignalBase   = 0x5000
	TimeBase     = 0x6000
	FsBase       = 0x7000
	ThreadBase   = 0x8000
	IpcBase      = 0xD000
	SecurityBase = 0xF000

	RangeSize = 0x1000
)

// Well-known syscall numbers.
const (
	SysFork   = 0x1000
	SysExit   = 0x1003
	SysGetpid = 0x1004
	SysYield  = 0x1005

	SysOpen  = 0x2000
	SysClose = 0x2001
	SysRead  = 0x2002
	SysWrite = 0x2003

	SysMmap   = 0x3000
	SysMunmap = 0x3001
	SysBrk    = 0x3002

	SysKill = 0x5000

	SysClockGetTime = 0x6000
	SysNanosleep    = 0x6001

	SysMqOpen = 0xD000
	SysMqSend = 0xD003
)

var names = map[uint32]string{
	SysFork:         "fork",
	SysExit:         "exit",
	SysGetpid:       "getpid",
	SysYield:        "yield",
	SysOpen:         "open",
	SysClose:        "close",
	SysRead:         "read",
	SysWrite:        "write",
	SysMmap:         "mmap",
	SysMunmap:       "munmap",
	SysBrk:          "brk",
	SysKill:         "kill",
	SysClockGetTime: "clock_gettime",
	SysNanosleep:    "nanosleep",
	SysMqOpen:       "mq_open",
	SysMqSend:       "mq_send",
}

// Name returns a human readable name for a syscall number, for logging.
func Name(num uint32) string {
	if n, ok := names[num]; ok {
		return n
	}

	return "unknown"
}

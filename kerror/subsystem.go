package kerror

import (
	"github.com/pkg/errors"
)

// Subsystem error types. Each subsystem reports failures with its own
// vocabulary; every variant collapses to exactly one unified Kind in Map.

type MemoryError int

const (
	MemOutOfMemory MemoryError = iota
	MemInvalidAlignment
	MemInvalidSize
	MemTooFragmented
	MemInvalidAddress
	MemInvalidProtection
	MemMappingFailed
	MemUnmappingFailed
)

var memoryNames = map[MemoryError]string{
	MemOutOfMemory:       "out of memory",
	MemInvalidAlignment:  "invalid alignment",
	MemInvalidSize:       "invalid size",
	MemTooFragmented:     "memory too fragmented",
	MemInvalidAddress:    "invalid address",
	MemInvalidProtection: "invalid protection",
	MemMappingFailed:     "mapping failed",
	MemUnmappingFailed:   "unmapping failed",
}

func (e MemoryError) Error() string {
	if s, ok := memoryNames[e]; ok {
		return "memory: " + s
	}

	return "memory: unknown error"
}

type FilesystemError int

const (
	FsPathNotFound FilesystemError = iota
	FsFileNotFound
	FsPermissionDenied
	FsFileExists
	FsNotADirectory
	FsIsADirectory
	FsDirectoryNotEmpty
	FsInvalidPath
	FsFilesystemFull
	FsIoError
	FsResourceBusy
	FsNotSupported
)

var fsNames = map[FilesystemError]string{
	FsPathNotFound:      "path not found",
	FsFileNotFound:      "file not found",
	FsPermissionDenied:  "permission denied",
	FsFileExists:        "file exists",
	FsNotADirectory:     "not a directory",
	FsIsADirectory:      "is a directory",
	FsDirectoryNotEmpty: "directory not empty",
	FsInvalidPath:       "invalid path",
	FsFilesystemFull:    "filesystem full",
	FsIoError:           "io error",
	FsResourceBusy:      "resource busy",
	FsNotSupported:      "operation not supported",
}

func (e FilesystemError) Error() string {
	if s, ok := fsNames[e]; ok {
		return "fs: " + s
	}

	return "fs: unknown error"
}

type NetworkError int

const (
	NetConnectionRefused NetworkError = iota
	NetConnectionReset
	NetTimedOut
	NetHostUnreachable
	NetAddressInUse
	NetNoBufferSpace
	NetProtocolError
	NetNetworkDown
)

var netNames = map[NetworkError]string{
	NetConnectionRefused: "connection refused",
	NetConnectionReset:   "connection reset",
	NetTimedOut:          "timed out",
	NetHostUnreachable:   "host unreachable",
	NetAddressInUse:      "address in use",
	NetNoBufferSpace:     "no buffer space",
	NetProtocolError:     "protocol error",
	NetNetworkDown:       "network down",
}

func (e NetworkError) Error() string {
	if s, ok := netNames[e]; ok {
		return "net: " + s
	}

	return "net: unknown error"
}

type ProcessError int

const (
	ProcNotFound ProcessError = iota
	ProcPermissionDenied
	ProcInvalidArgument
	ProcResourceLimit
	ProcAlreadyExists
	ProcTerminated
	ProcInvalidState
)

var procNames = map[ProcessError]string{
	ProcNotFound:         "process not found",
	ProcPermissionDenied: "permission denied",
	ProcInvalidArgument:  "invalid argument",
	ProcResourceLimit:    "resource limit exceeded",
	ProcAlreadyExists:    "process already exists",
	ProcTerminated:       "process terminated",
	ProcInvalidState:     "invalid process state",
}

func (e ProcessError) Error() string {
	if s, ok := procNames[e]; ok {
		return "process: " + s
	}

	return "process: unknown error"
}

type SecurityError int

const (
	SecAccessDenied SecurityError = iota
	SecCapabilityMissing
	SecInvalidCredential
)

var secNames = map[SecurityError]string{
	SecAccessDenied:      "access denied",
	SecCapabilityMissing: "capability missing",
	SecInvalidCredential: "invalid credential",
}

func (e SecurityError) Error() string {
	if s, ok := secNames[e]; ok {
		return "security: " + s
	}

	return "security: unknown error"
}

type IpcError int

const (
	IpcQueueFull IpcError = iota
	IpcQueueEmpty
	IpcNoSuchQueue
	IpcQueueExists
	IpcMessageTooLarge
	IpcPeerGone
)

var ipcNames = map[IpcError]string{
	IpcQueueFull:       "queue full",
	IpcQueueEmpty:      "queue empty",
	IpcNoSuchQueue:     "no such queue",
	IpcQueueExists:     "queue exists",
	IpcMessageTooLarge: "message too large",
	IpcPeerGone:        "peer gone",
}

func (e IpcError) Error() string {
	if s, ok := ipcNames[e]; ok {
		return "ipc: " + s
	}

	return "ipc: unknown error"
}

// Map collapses a subsystem error into a Unified error. It is total: any
// error value has exactly one mapping, and anything outside the known
// subsystem types becomes OtherKind carrying the error text.
func Map(err error) Unified {
	switch e := errors.Cause(err).(type) {
	case Unified:
		return e
	case MemoryError:
		return mapMemory(e)
	case FilesystemError:
		return mapFilesystem(e)
	case NetworkError:
		return mapNetwork(e)
	case ProcessError:
		return mapProcess(e)
	case SecurityError:
		return mapSecurity(e)
	case IpcError:
		return mapIpc(e)
	default:
		return Other(err.Error())
	}
}

func mapMemory(e MemoryError) Unified {
	switch e {
	case MemOutOfMemory, MemTooFragmented, MemMappingFailed:
		return Unified{Kind: OutOfMemory}
	case MemInvalidAddress:
		return Unified{Kind: InvalidAddress}
	case MemInvalidAlignment, MemInvalidSize, MemInvalidProtection, MemUnmappingFailed:
		return Unified{Kind: InvalidArgument}
	}

	return Other(e.Error())
}

func mapFilesystem(e FilesystemError) Unified {
	switch e {
	case FsPathNotFound, FsFileNotFound:
		return Unified{Kind: NotFound}
	case FsPermissionDenied:
		return Unified{Kind: PermissionDenied}
	case FsFileExists:
		return Unified{Kind: AlreadyExists}
	case FsNotADirectory, FsIsADirectory, FsDirectoryNotEmpty, FsInvalidPath:
		return Unified{Kind: InvalidArgument}
	case FsFilesystemFull:
		return Unified{Kind: ResourceUnavailable}
	case FsResourceBusy:
		return Unified{Kind: ResourceBusy}
	case FsNotSupported:
		return Unified{Kind: NotSupported}
	case FsIoError:
		return Other(e.Error())
	}

	return Other(e.Error())
}

func mapNetwork(e NetworkError) Unified {
	switch e {
	case NetConnectionRefused, NetHostUnreachable, NetNetworkDown:
		return Unified{Kind: ResourceUnavailable}
	case NetConnectionReset, NetTimedOut:
		return Unified{Kind: ResourceUnavailable}
	case NetAddressInUse:
		return Unified{Kind: AlreadyExists}
	case NetNoBufferSpace:
		return Unified{Kind: OutOfMemory}
	case NetProtocolError:
		return Unified{Kind: InvalidArgument}
	}

	return Other(e.Error())
}

func mapProcess(e ProcessError) Unified {
	switch e {
	case ProcNotFound:
		return Unified{Kind: NotFound}
	case ProcPermissionDenied:
		return Unified{Kind: PermissionDenied}
	case ProcInvalidArgument, ProcInvalidState:
		return Unified{Kind: InvalidArgument}
	case ProcResourceLimit:
		return Unified{Kind: ResourceUnavailable}
	case ProcAlreadyExists:
		return Unified{Kind: AlreadyExists}
	case ProcTerminated:
		return Other(e.Error())
	}

	return Other(e.Error())
}

func mapSecurity(e SecurityError) Unified {
	switch e {
	case SecAccessDenied, SecCapabilityMissing, SecInvalidCredential:
		return Unified{Kind: PermissionDenied}
	}

	return Other(e.Error())
}

func mapIpc(e IpcError) Unified {
	switch e {
	case IpcQueueFull, IpcQueueEmpty:
		return Unified{Kind: ResourceUnavailable}
	case IpcNoSuchQueue:
		return Unified{Kind: NotFound}
	case IpcQueueExists:
		return Unified{Kind: AlreadyExists}
	case IpcMessageTooLarge:
		return Unified{Kind: InvalidArgument}
	case IpcPeerGone:
		return Other(e.Error())
	}

	return Other(e.Error())
}

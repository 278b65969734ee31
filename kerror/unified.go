package kerror

import (
	"fmt"

	"github.com/evanphx/yukon/abi"
)

// Kind is the closed set of kernel-level error kinds. Every subsystem error
// collapses to exactly one Kind before it reaches user space.
type Kind int

const (
	InvalidArgument Kind = iota
	InvalidAddress
	PermissionDenied
	NotFound
	AlreadyExists
	ResourceBusy
	ResourceUnavailable
	OutOfMemory
	NotSupported
	OtherKind

	numKinds
)

var kindNames = [numKinds]string{
	InvalidArgument:     "invalid argument",
	InvalidAddress:      "invalid address",
	PermissionDenied:    "permission denied",
	NotFound:            "not found",
	AlreadyExists:       "already exists",
	ResourceBusy:        "resource busy",
	ResourceUnavailable: "resource unavailable",
	OutOfMemory:         "out of memory",
	NotSupported:        "not supported",
	OtherKind:           "other",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "invalid kind"
	}

	return kindNames[k]
}

// Unified is one kernel error as seen by user space: a kind plus, for
// OtherKind, a diagnostic detail.
type Unified struct {
	Kind   Kind
	Detail string
}

func (u Unified) Error() string {
	if u.Kind == OtherKind && u.Detail != "" {
		return fmt.Sprintf("%s: %s", u.Kind, u.Detail)
	}

	return u.Kind.String()
}

// Other builds an OtherKind error carrying a diagnostic detail.
func Other(detail string) Unified {
	return Unified{Kind: OtherKind, Detail: detail}
}

// Errno returns the stable numeric code for a unified error. The switch is
// exhaustive over the closed kind set; an out-of-range kind is a bug in the
// caller and maps to the generic fallback rather than panicking.
func (u Unified) Errno() int32 {
	switch u.Kind {
	case InvalidArgument:
		return abi.EINVAL
	case InvalidAddress:
		return abi.EFAULT
	case PermissionDenied:
		return abi.EPERM
	case NotFound:
		return abi.ENOENT
	case AlreadyExists:
		return abi.EEXIST
	case ResourceBusy:
		return abi.EBUSY
	case ResourceUnavailable:
		return abi.EAGAIN
	case OutOfMemory:
		return abi.ENOMEM
	case NotSupported:
		return abi.ENOSYS
	case OtherKind:
		return abi.EIO
	}

	return abi.EIO
}

// Kinds lists every kind in the closed set, for totality tests.
func Kinds() []Kind {
	out := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		out = append(out, k)
	}

	return out
}

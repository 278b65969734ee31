package registry

import (
	"context"
	"fmt"

	"github.com/evanphx/yukon/abi"
)

// ServiceId identifies one successful registration.
type ServiceId uint64

// Capability names a privilege a handler requires to run.
type Capability string

const CapSyscall Capability = "syscall"

// Handler is the capability every concrete syscall handler exposes. The
// returned error, when non-nil, is expected to be one of the kerror
// subsystem types; anything else is mapped to a generic failure.
type Handler interface {
	Invoke(ctx context.Context, args abi.Args) (abi.Word, error)
}

// HandlerFunc adapts a plain function to the Handler capability.
type HandlerFunc func(ctx context.Context, args abi.Args) (abi.Word, error)

func (f HandlerFunc) Invoke(ctx context.Context, args abi.Args) (abi.Word, error) {
	return f(ctx, args)
}

// Range is an inclusive span of syscall numbers.
type Range struct {
	Start, End uint32
}

func (r Range) Contains(num uint32) bool {
	return num >= r.Start && num <= r.End
}

func (r Range) Overlaps(o Range) bool {
	return r.Start <= o.End && o.Start <= r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[0x%x-0x%x]", r.Start, r.End)
}

// Binding associates one syscall number with the handler servicing it.
// Immutable once published.
type Binding struct {
	Syscall uint32
	Service string
	Version string
	Caps    []Capability
	Handler Handler

	owner *registration
}

// IncRef pins the binding's owning service against reclamation while an
// invocation is in flight.
func (b *Binding) IncRef() {
	if b.owner != nil {
		b.owner.incRef()
	}
}

// DecRef releases a pin taken with IncRef. Once an unregistered service's
// count reaches zero its drain waiters are notified.
func (b *Binding) DecRef() {
	if b.owner != nil {
		b.owner.decRef()
	}
}

// Registration declares a service: the ranges it owns and the bindings it
// publishes within them.
type Registration struct {
	Service  string
	Version  string
	Priority uint32
	Ranges   []Range
	Bindings []Binding
}

// RangeInfo is one row of the diagnostic range table snapshot.
type RangeInfo struct {
	Range    Range
	Service  string
	Version  string
	Priority uint32
}

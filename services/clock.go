package services

import (
	"context"
	"time"

	"github.com/evanphx/yukon/abi"
	"github.com/evanphx/yukon/kerror"
	"github.com/evanphx/yukon/registry"
)

var start = time.Now()

func sysClockGetTime(ctx context.Context, args abi.Args) (abi.Word, error) {
	clk := args[0]

	switch clk {
	case 0:
		return abi.Word(time.Now().UnixNano()), nil
	case 1, 6:
		return abi.Word(time.Since(start).Nanoseconds()), nil
	default:
		return 0, kerror.Unified{Kind: kerror.InvalidArgument}
	}
}

func sysNanosleep(ctx context.Context, args abi.Args) (abi.Word, error) {
	d := time.Duration(args[0])

	select {
	case <-time.After(d):
		return 0, nil
	case <-ctx.Done():
		return 0, kerror.Unified{Kind: kerror.ResourceUnavailable}
	}
}

// RegisterClock installs the time service.
func RegisterClock(reg *registry.Registry) (registry.ServiceId, error) {
	return reg.Register(&registry.Registration{
		Service:  "clock",
		Version:  "1.0.0",
		Priority: 10,
		Ranges: []registry.Range{
			{Start: abi.TimeBase, End: abi.TimeBase + abi.RangeSize - 1},
		},
		Bindings: []registry.Binding{
			{Syscall: abi.SysClockGetTime, Caps: []registry.Capability{registry.CapSyscall}, Handler: registry.HandlerFunc(sysClockGetTime)},
			{Syscall: abi.SysNanosleep, Caps: []registry.Capability{registry.CapSyscall}, Handler: registry.HandlerFunc(sysNanosleep)},
		},
	})
}

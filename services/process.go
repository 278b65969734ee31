package services

import (
	"context"
	"sync/atomic"

	"github.com/evanphx/yukon/abi"
	"github.com/evanphx/yukon/kerror"
	"github.com/evanphx/yukon/registry"
)

var nextPid uint64 = 1

func sysGetpid(ctx context.Context, args abi.Args) (abi.Word, error) {
	return abi.Word(atomic.LoadUint64(&nextPid)), nil
}

func sysFork(ctx context.Context, args abi.Args) (abi.Word, error) {
	return abi.Word(atomic.AddUint64(&nextPid, 1)), nil
}

func sysYield(ctx context.Context, args abi.Args) (abi.Word, error) {
	return 0, nil
}

func sysExit(ctx context.Context, args abi.Args) (abi.Word, error) {
	return 0, nil
}

func sysKill(ctx context.Context, args abi.Args) (abi.Word, error) {
	pid := uint64(args[0])

	if pid == 0 || pid > atomic.LoadUint64(&nextPid) {
		return 0, kerror.ProcNotFound
	}

	return 0, nil
}

// RegisterProcess installs the process management service over the process
// and signal ranges.
func RegisterProcess(reg *registry.Registry) (registry.ServiceId, error) {
	return reg.Register(&registry.Registration{
		Service:  "process",
		Version:  "1.0.0",
		Priority: 10,
		Ranges: []registry.Range{
			{Start: abi.ProcessBase, End: abi.ProcessBase + abi.RangeSize - 1},
			{Start: abi.SignalBase, End: abi.SignalBase + abi.RangeSize - 1},
		},
		Bindings: []registry.Binding{
			{Syscall: abi.SysGetpid, Caps: []registry.Capability{registry.CapSyscall}, Handler: registry.HandlerFunc(sysGetpid)},
			{Syscall: abi.SysFork, Caps: []registry.Capability{registry.CapSyscall}, Handler: registry.HandlerFunc(sysFork)},
			{Syscall: abi.SysYield, Caps: []registry.Capability{registry.CapSyscall}, Handler: registry.HandlerFunc(sysYield)},
			{Syscall: abi.SysExit, Caps: []registry.Capability{registry.CapSyscall}, Handler: registry.HandlerFunc(sysExit)},
			{Syscall: abi.SysKill, Caps: []registry.Capability{registry.CapSyscall}, Handler: registry.HandlerFunc(sysKill)},
		},
	})
}

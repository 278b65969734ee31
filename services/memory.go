package services

import (
	"context"
	"sync/atomic"

	"github.com/evanphx/yukon/abi"
	"github.com/evanphx/yukon/kerror"
	"github.com/evanphx/yukon/registry"
)

const pageSize = 4096

var nextMmap uint64 = 0x10000

func sysMmap(ctx context.Context, args abi.Args) (abi.Word, error) {
	size := uint64(args[1])

	if size == 0 {
		return 0, kerror.MemInvalidSize
	}

	rounded := (size + pageSize - 1) &^ (pageSize - 1)

	addr := atomic.AddUint64(&nextMmap, rounded) - rounded

	return abi.Word(addr), nil
}

func sysMunmap(ctx context.Context, args abi.Args) (abi.Word, error) {
	addr := uint64(args[0])

	if addr%pageSize != 0 {
		return 0, kerror.MemInvalidAlignment
	}

	return 0, nil
}

func sysBrk(ctx context.Context, args abi.Args) (abi.Word, error) {
	return 0, kerror.MemMappingFailed
}

// RegisterMemory installs the memory management service.
func RegisterMemory(reg *registry.Registry) (registry.ServiceId, error) {
	return reg.Register(&registry.Registration{
		Service:  "memory",
		Version:  "1.0.0",
		Priority: 10,
		Ranges: []registry.Range{
			{Start: abi.MemoryBase, End: abi.MemoryBase + abi.RangeSize - 1},
		},
		Bindings: []registry.Binding{
			{Syscall: abi.SysMmap, Caps: []registry.Capability{registry.CapSyscall}, Handler: registry.HandlerFunc(sysMmap)},
			{Syscall: abi.SysMunmap, Caps: []registry.Capability{registry.CapSyscall}, Handler: registry.HandlerFunc(sysMunmap)},
			{Syscall: abi.SysBrk, Caps: []registry.Capability{registry.CapSyscall}, Handler: registry.HandlerFunc(sysBrk)},
		},
	})
}

package dispatch

import (
	"time"

	"github.com/evanphx/yukon/registry"
)

// ProcessorStats is one processor's cache hit/miss count.
type ProcessorStats struct {
	Hits   uint64
	Misses uint64
}

// SyscallStat is cumulative volume and handler-inclusive time for one
// syscall number, aggregated across processors.
type SyscallStat struct {
	Calls uint64
	Time  time.Duration
}

// Stats is the read-only observability surface. Counter values may lag the
// processors that own them; the snapshot is diagnostic, not authoritative.
type Stats struct {
	Epoch             uint64
	FastPathOccupancy int
	Processors        []ProcessorStats
	Syscalls          map[uint32]SyscallStat
	Ranges            []registry.RangeInfo
}

func (d *Dispatcher) Stats() Stats {
	s := Stats{
		Epoch:             d.reg.Epoch(),
		FastPathOccupancy: d.fast.Occupancy(),
		Syscalls:          make(map[uint32]SyscallStat),
		Ranges:            d.reg.Table(),
	}

	for _, p := range d.procs {
		hits, misses := p.cache.stats()
		s.Processors = append(s.Processors, ProcessorStats{Hits: hits, Misses: misses})

		for num, calls := range p.cache.frequencies() {
			cur := s.Syscalls[num]
			cur.Calls += calls
			s.Syscalls[num] = cur
		}

		for num, ns := range p.cache.timings() {
			cur := s.Syscalls[num]
			cur.Time += time.Duration(ns)
			s.Syscalls[num] = cur
		}
	}

	return s
}

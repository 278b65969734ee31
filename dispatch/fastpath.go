package dispatch

import (
	"sort"
	"sync/atomic"

	"github.com/evanphx/yukon/log"
	"github.com/evanphx/yukon/registry"
)

type fastSlot struct {
	num     uint32
	binding *registry.Binding
	epoch   uint64
}

// FastPath is the fixed-capacity table serving the globally hottest
// syscalls in O(1). It is shared read-only by every processor; rebuilds
// construct a complete new slot array and swap it in atomically, so a
// reader sees either the old table or the new one, never a mixture.
type FastPath struct {
	slots atomic.Value // []fastSlot
}

func newFastPath(k int) *FastPath {
	f := &FastPath{}
	f.slots.Store(make([]fastSlot, k))

	return f
}

func (f *FastPath) index(num uint32, n int) int {
	return int(num % uint32(n))
}

// Lookup indexes by syscall number and validates the slot against the
// current registry epoch. A stale or mismatched slot is simply a miss.
func (f *FastPath) Lookup(num uint32, epoch uint64) (*registry.Binding, bool) {
	slots := f.slots.Load().([]fastSlot)

	s := slots[f.index(num, len(slots))]

	if s.binding == nil || s.num != num || s.epoch != epoch {
		return nil, false
	}

	return s.binding, true
}

// Rebuild selects the hottest syscalls from an aggregated frequency
// snapshot, resolves each against the registry, and publishes a new table.
// A syscall absent from the selection or no longer resolvable vanishes on
// the swap; slot collisions keep the higher-frequency entry.
func (f *FastPath) Rebuild(freq map[uint32]uint64, reg *registry.Registry) {
	k := len(f.slots.Load().([]fastSlot))

	type hot struct {
		num   uint32
		count uint64
	}

	hots := make([]hot, 0, len(freq))

	for num, count := range freq {
		hots = append(hots, hot{num: num, count: count})
	}

	sort.Slice(hots, func(i, j int) bool {
		if hots[i].count != hots[j].count {
			return hots[i].count > hots[j].count
		}

		return hots[i].num < hots[j].num
	})

	if len(hots) > k {
		hots = hots[:k]
	}

	slots := make([]fastSlot, k)

	var installed int

	for _, h := range hots {
		b, epoch, ok := reg.ResolveEpoch(h.num)
		if !ok {
			continue
		}

		i := f.index(h.num, k)
		if slots[i].binding != nil {
			continue
		}

		slots[i] = fastSlot{num: h.num, binding: b, epoch: epoch}
		installed++
	}

	f.slots.Store(slots)

	log.L.Debug("fast path rebuilt", "installed", installed, "candidates", len(hots))
}

// Occupancy reports how many slots currently hold a binding.
func (f *FastPath) Occupancy() int {
	slots := f.slots.Load().([]fastSlot)

	var n int

	for _, s := range slots {
		if s.binding != nil {
			n++
		}
	}

	return n
}

package registry

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/evanphx/yukon/log"
	"github.com/pkg/errors"
)

var (
	ErrRangeConflict       = errors.New("syscall range conflict")
	ErrServiceBusy         = errors.New("service has in-flight dispatches")
	ErrUnknownService      = errors.New("unknown service")
	ErrInvalidRegistration = errors.New("invalid registration")
)

// registration is the installed form of a Registration. It stays alive
// after unregistration until every in-flight invocation has released it.
type registration struct {
	id       ServiceId
	service  string
	version  string
	priority uint32
	ranges   []Range
	bindings map[uint32]*Binding

	inflight int64
	active   uint32
	drain    drainWaiter
}

func (r *registration) incRef() {
	atomic.AddInt64(&r.inflight, 1)
}

func (r *registration) decRef() {
	if atomic.AddInt64(&r.inflight, -1) == 0 && atomic.LoadUint32(&r.active) == 0 {
		r.drain.notify()
	}
}

func (r *registration) busy() bool {
	return atomic.LoadInt64(&r.inflight) > 0
}

// segment is one non-overlapping span of the resolved range table. Higher
// priority registrations shadow lower ones during snapshot construction,
// so a lookup never has to compare priorities.
type segment struct {
	start, end uint32
	reg        *registration
}

type snapshot struct {
	epoch    uint64
	segments []segment
}

// Registry is the single source of truth binding syscall numbers to
// handlers. Writers serialize on mu and publish a complete new snapshot;
// readers only ever touch the atomically published snapshot and epoch.
type Registry struct {
	mu sync.Mutex

	nextId   ServiceId
	services map[ServiceId]*registration

	epoch uint64
	snap  atomic.Value
}

func New() *Registry {
	r := &Registry{
		services: make(map[ServiceId]*registration),
	}

	r.snap.Store(&snapshot{})

	return r
}

// Epoch returns the current registry epoch. It increments exactly once per
// successful registration or unregistration; caches compare it to detect
// staleness without touching the registry.
func (r *Registry) Epoch() uint64 {
	return atomic.LoadUint64(&r.epoch)
}

func (r *Registry) validate(reg *Registration) error {
	if reg.Service == "" {
		return errors.Wrap(ErrInvalidRegistration, "empty service name")
	}

	if len(reg.Ranges) == 0 {
		return errors.Wrapf(ErrInvalidRegistration, "service %s declares no ranges", reg.Service)
	}

	for _, rng := range reg.Ranges {
		if rng.Start > rng.End {
			return errors.Wrapf(ErrInvalidRegistration, "service %s: inverted range %s", reg.Service, rng)
		}
	}

	seen := make(map[uint32]struct{}, len(reg.Bindings))

	for _, b := range reg.Bindings {
		if b.Handler == nil {
			return errors.Wrapf(ErrInvalidRegistration, "service %s: nil handler for 0x%x", reg.Service, b.Syscall)
		}

		if _, dup := seen[b.Syscall]; dup {
			return errors.Wrapf(ErrInvalidRegistration, "service %s: duplicate binding for 0x%x", reg.Service, b.Syscall)
		}

		seen[b.Syscall] = struct{}{}

		var covered bool

		for _, rng := range reg.Ranges {
			if rng.Contains(b.Syscall) {
				covered = true
				break
			}
		}

		if !covered {
			return errors.Wrapf(ErrInvalidRegistration, "service %s: binding 0x%x outside declared ranges", reg.Service, b.Syscall)
		}
	}

	return nil
}

// Register validates and publishes a service's bindings atomically. A range
// overlapping an installed registration of equal or higher priority fails
// the whole call with ErrRangeConflict; nothing is published on failure.
func (r *Registry) Register(reg *Registration) (ServiceId, error) {
	if err := r.validate(reg); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cur := range r.services {
		if atomic.LoadUint32(&cur.active) == 0 {
			continue
		}

		if cur.priority < reg.Priority {
			continue
		}

		for _, have := range cur.ranges {
			for _, want := range reg.Ranges {
				if have.Overlaps(want) {
					return 0, errors.Wrapf(ErrRangeConflict,
						"service %s range %s overlaps %s owned by %s (priority %d)",
						reg.Service, want, have, cur.service, cur.priority)
				}
			}
		}
	}

	r.nextId++

	inst := &registration{
		id:       r.nextId,
		service:  reg.Service,
		version:  reg.Version,
		priority: reg.Priority,
		ranges:   append([]Range(nil), reg.Ranges...),
		bindings: make(map[uint32]*Binding, len(reg.Bindings)),
		active:   1,
	}

	for i := range reg.Bindings {
		b := reg.Bindings[i]
		b.Service = reg.Service
		b.Version = reg.Version
		b.owner = inst

		inst.bindings[b.Syscall] = &b
	}

	r.services[inst.id] = inst

	r.publish()

	log.L.Info("service registered", "service", inst.service, "version", inst.version,
		"id", inst.id, "priority", inst.priority, "bindings", len(inst.bindings))

	return inst.id, nil
}

// Unregister removes a service lazily: the epoch bump makes its bindings
// unreachable for new dispatches immediately, while invocations already
// holding a reference run to completion.
func (r *Registry) Unregister(id ServiceId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(id)
}

// UnregisterSync removes a service only if nothing is in flight against it,
// failing with ErrServiceBusy otherwise. The registry is not mutated on
// failure.
func (r *Registry) UnregisterSync(id ServiceId) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.services[id]
	if !ok {
		return errors.Wrapf(ErrUnknownService, "id %d", id)
	}

	if inst.busy() {
		return errors.Wrapf(ErrServiceBusy, "service %s", inst.service)
	}

	return r.removeLocked(id)
}

// UnregisterWait removes a service lazily and then blocks until every
// in-flight invocation against it has drained, or ctx is done.
func (r *Registry) UnregisterWait(ctx context.Context, id ServiceId) error {
	r.mu.Lock()

	inst, ok := r.services[id]
	if !ok {
		r.mu.Unlock()
		return errors.Wrapf(ErrUnknownService, "id %d", id)
	}

	if err := r.removeLocked(id); err != nil {
		r.mu.Unlock()
		return err
	}

	r.mu.Unlock()

	return inst.drain.wait(ctx, inst)
}

func (r *Registry) removeLocked(id ServiceId) error {
	inst, ok := r.services[id]
	if !ok {
		return errors.Wrapf(ErrUnknownService, "id %d", id)
	}

	atomic.StoreUint32(&inst.active, 0)
	delete(r.services, id)

	r.publish()

	log.L.Info("service unregistered", "service", inst.service, "id", id,
		"inflight", atomic.LoadInt64(&inst.inflight))

	return nil
}

// publish rebuilds the resolved segment table and swaps it in. Caller holds
// mu. The epoch stored in the snapshot matches the counter so readers see a
// consistent pair.
func (r *Registry) publish() {
	epoch := atomic.AddUint64(&r.epoch, 1)

	// bounds are exclusive ends held as uint64: a range ending at
	// 0xffffffff has the exclusive end 1<<32, which a uint32 would wrap
	// to 0 and silently drop the top of the number space
	var bounds []uint64

	for _, inst := range r.services {
		for _, rng := range inst.ranges {
			bounds = append(bounds, uint64(rng.Start), uint64(rng.End)+1)
		}
	}

	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })

	var segs []segment

	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		if lo == hi {
			continue
		}

		win := r.winner(uint32(lo))
		if win == nil {
			continue
		}

		// merge with the previous segment when the same service
		// continues across a boundary
		if n := len(segs); n > 0 && segs[n-1].reg == win && uint64(segs[n-1].end)+1 == lo {
			segs[n-1].end = uint32(hi - 1)
			continue
		}

		segs = append(segs, segment{start: uint32(lo), end: uint32(hi - 1), reg: win})
	}

	r.snap.Store(&snapshot{epoch: epoch, segments: segs})
}

// winner picks the registration owning syscall number n: highest priority,
// then earliest registration. Caller holds mu.
func (r *Registry) winner(n uint32) *registration {
	var best *registration

	for _, inst := range r.services {
		for _, rng := range inst.ranges {
			if !rng.Contains(n) {
				continue
			}

			if best == nil || inst.priority > best.priority ||
				(inst.priority == best.priority && inst.id < best.id) {
				best = inst
			}
		}
	}

	return best
}

// Resolve returns the active binding for a syscall number, if any. It reads
// the published snapshot only, so it is safe against concurrent writers and
// never observes a half-published registration.
func (r *Registry) Resolve(num uint32) (*Binding, bool) {
	b, _, ok := r.ResolveEpoch(num)
	return b, ok
}

// ResolveEpoch is Resolve plus the epoch the answer is valid for. The epoch
// comes from the same snapshot as the binding, so a cache entry tagged with
// it can never outlive the registration that produced it.
func (r *Registry) ResolveEpoch(num uint32) (*Binding, uint64, bool) {
	snap := r.snap.Load().(*snapshot)

	segs := snap.segments

	i := sort.Search(len(segs), func(i int) bool { return segs[i].end >= num })
	if i == len(segs) || num < segs[i].start {
		return nil, snap.epoch, false
	}

	b, ok := segs[i].reg.bindings[num]
	if !ok {
		return nil, snap.epoch, false
	}

	return b, snap.epoch, true
}

// Table returns a diagnostic snapshot of the resolved range table.
func (r *Registry) Table() []RangeInfo {
	snap := r.snap.Load().(*snapshot)

	out := make([]RangeInfo, 0, len(snap.segments))

	for _, s := range snap.segments {
		out = append(out, RangeInfo{
			Range:    Range{Start: s.start, End: s.end},
			Service:  s.reg.service,
			Version:  s.reg.version,
			Priority: s.reg.priority,
		})
	}

	return out
}

package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/evanphx/yukon/abi"
	"github.com/evanphx/yukon/kerror"
	"github.com/evanphx/yukon/log"
	"github.com/evanphx/yukon/registry"
)

var ErrBadConfig = errors.New("invalid dispatcher configuration")

// Config is applied once at dispatcher construction and not re-validated
// per call.
type Config struct {
	// Processors is the number of logical processors to build private
	// caches for.
	Processors int

	// FastPathSlots is K, the fixed capacity of the shared fast-path
	// table.
	FastPathSlots int

	// CacheCapacity bounds each per-processor cache.
	CacheCapacity int

	// RebuildThreshold triggers a fast-path rebuild every time this many
	// dispatches have been executed across all processors.
	RebuildThreshold uint64

	// BatchMaxSize bounds DispatchBatch request sequences.
	BatchMaxSize int
}

const (
	DefaultFastPathSlots    = 256
	DefaultCacheCapacity    = 64
	DefaultRebuildThreshold = 4096
	DefaultBatchMaxSize     = 64
)

func (c *Config) setDefaults() {
	if c.Processors == 0 {
		c.Processors = 1
	}

	if c.FastPathSlots == 0 {
		c.FastPathSlots = DefaultFastPathSlots
	}

	if c.CacheCapacity == 0 {
		c.CacheCapacity = DefaultCacheCapacity
	}

	if c.RebuildThreshold == 0 {
		c.RebuildThreshold = DefaultRebuildThreshold
	}

	if c.BatchMaxSize == 0 {
		c.BatchMaxSize = DefaultBatchMaxSize
	}
}

func (c *Config) validate() error {
	if c.Processors < 1 {
		return errors.Wrap(ErrBadConfig, "need at least one processor")
	}

	if c.FastPathSlots < 1 {
		return errors.Wrap(ErrBadConfig, "fast path needs at least one slot")
	}

	if c.CacheCapacity < 1 {
		return errors.Wrap(ErrBadConfig, "cache capacity must be positive")
	}

	if c.BatchMaxSize < 1 {
		return errors.Wrap(ErrBadConfig, "batch max size must be positive")
	}

	return nil
}

// Dispatcher routes syscall requests to registered handlers: fast path
// first, then the calling processor's cache, then the registry. It is built
// once, after the registry, and before any dispatch may occur.
type Dispatcher struct {
	reg  *registry.Registry
	fast *FastPath
	cfg  Config

	procs []*Processor

	calls       uint64
	rebuildGate uint32
}

func New(reg *registry.Registry, cfg Config) (*Dispatcher, error) {
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		reg:  reg,
		fast: newFastPath(cfg.FastPathSlots),
		cfg:  cfg,
	}

	d.procs = make([]*Processor, cfg.Processors)

	for i := range d.procs {
		d.procs[i] = &Processor{
			id:    i,
			d:     d,
			cache: newCache(cfg.CacheCapacity),
		}
	}

	log.L.Info("dispatcher initialized", "processors", cfg.Processors,
		"fast-path-slots", cfg.FastPathSlots, "cache-capacity", cfg.CacheCapacity)

	return d, nil
}

// Processor returns the dispatch context owned by one logical processor.
// Each processor must only ever use its own.
func (d *Dispatcher) Processor(i int) *Processor {
	return d.procs[i]
}

func (d *Dispatcher) Registry() *registry.Registry {
	return d.reg
}

// RebuildFastPath aggregates frequency counters from every processor and
// swaps in a new fast-path table. Safe to call from anywhere; concurrent
// callers collapse to a single rebuild.
func (d *Dispatcher) RebuildFastPath() {
	if !atomic.CompareAndSwapUint32(&d.rebuildGate, 0, 1) {
		return
	}

	defer atomic.StoreUint32(&d.rebuildGate, 0)

	d.fast.Rebuild(d.aggregate(), d.reg)
}

func (d *Dispatcher) aggregate() map[uint32]uint64 {
	out := make(map[uint32]uint64)

	for _, p := range d.procs {
		for num, count := range p.cache.frequencies() {
			out[num] += count
		}
	}

	return out
}

func (d *Dispatcher) countCall() {
	if atomic.AddUint64(&d.calls, 1)%d.cfg.RebuildThreshold == 0 {
		d.RebuildFastPath()
	}
}

// Processor is one logical processor's view of the dispatcher: the shared
// fast path and registry plus a private cache nothing else touches.
type Processor struct {
	id    int
	d     *Dispatcher
	cache *Cache
}

// Dispatch resolves a syscall number and invokes its handler. The returned
// error, when non-nil, is always a kerror.Unified. An unresolvable number
// yields NotSupported without invoking anything.
func (p *Processor) Dispatch(ctx context.Context, num uint32, args abi.Args) (abi.Word, error) {
	start := time.Now()

	epoch := p.d.reg.Epoch()

	b, ok := p.d.fast.Lookup(num, epoch)
	if !ok {
		b, ok = p.cache.Lookup(num, epoch)
	}

	if !ok {
		var resolved uint64

		b, resolved, ok = p.d.reg.ResolveEpoch(num)
		if !ok {
			log.L.Trace("syscall unresolved", "cpu", p.id, "num", num, "name", abi.Name(num))
			return 0, kerror.Unified{Kind: kerror.NotSupported}
		}

		p.cache.Fill(num, b, resolved)
	}

	log.L.Trace("syscall", "cpu", p.id, "num", num, "name", abi.Name(num), "service", b.Service)

	res, err := invoke(ctx, b, args)

	p.cache.recordCall(num, uint64(time.Since(start).Nanoseconds()))
	p.d.countCall()

	if err != nil {
		return 0, kerror.Map(err)
	}

	return res, nil
}

// DispatchABI is Dispatch under the trap-return convention: non-negative
// on success, negated errno on failure.
func (p *Processor) DispatchABI(ctx context.Context, num uint32, args abi.Args) int64 {
	res, err := p.Dispatch(ctx, num, args)
	if err != nil {
		return -int64(kerror.Map(err).Errno())
	}

	return int64(res)
}

// Request is one element of a batch dispatch.
type Request struct {
	Syscall uint32
	Args    abi.Args
}

// Result is the outcome of one batch element, at the same position as its
// request.
type Result struct {
	Value abi.Word
	Err   error
}

// DispatchBatch executes requests in order through the single-call path.
// One request failing does not stop the rest; results preserve request
// order. A batch over the configured maximum is rejected whole.
func (p *Processor) DispatchBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	if len(reqs) > p.d.cfg.BatchMaxSize {
		return nil, kerror.Unified{Kind: kerror.InvalidArgument,
			Detail: fmt.Sprintf("batch of %d exceeds limit %d", len(reqs), p.d.cfg.BatchMaxSize)}
	}

	out := make([]Result, len(reqs))

	for i, req := range reqs {
		res, err := p.Dispatch(ctx, req.Syscall, req.Args)
		out[i] = Result{Value: res, Err: err}
	}

	return out, nil
}

// invoke runs the handler with the service pinned so unregistration cannot
// reclaim it mid-call. A handler panic is contained here and surfaces as a
// generic fault; it never takes down the dispatcher or poisons cache state
// for other syscalls.
func invoke(ctx context.Context, b *registry.Binding, args abi.Args) (res abi.Word, err error) {
	b.IncRef()
	defer b.DecRef()

	defer func() {
		if r := recover(); r != nil {
			log.L.Error("handler fault", "service", b.Service, "syscall", b.Syscall, "panic", r)

			res = 0
			err = kerror.Other(fmt.Sprintf("handler fault: %v", r))
		}
	}()

	return b.Handler.Invoke(ctx, args)
}

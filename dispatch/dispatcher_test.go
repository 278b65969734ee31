package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/evanphx/yukon/abi"
	"github.com/evanphx/yukon/kerror"
	"github.com/evanphx/yukon/registry"
)

type recordingHandler struct {
	calls int64
	args  abi.Args
	ret   abi.Word
	err   error
}

func (h *recordingHandler) Invoke(ctx context.Context, args abi.Args) (abi.Word, error) {
	atomic.AddInt64(&h.calls, 1)
	h.args = args

	return h.ret, h.err
}

func oneBinding(service string, num uint32, h registry.Handler) *registry.Registration {
	return &registry.Registration{
		Service:  service,
		Version:  "1.0.0",
		Priority: 10,
		Ranges:   []registry.Range{{Start: num &^ 0xfff, End: num | 0xfff}},
		Bindings: []registry.Binding{{Syscall: num, Handler: h}},
	}
}

func TestDispatcher(t *testing.T) {
	n := neko.Modern(t)

	ctx := context.Background()

	n.It("invokes the bound handler with the exact arguments, once", func(t *testing.T) {
		reg := registry.New()

		h := &recordingHandler{ret: 42}

		_, err := reg.Register(oneBinding("process", abi.SysGetpid, h))
		require.NoError(t, err)

		d, err := New(reg, Config{})
		require.NoError(t, err)

		args := abi.Args{1, 2, 3, 4, 5, 6}

		res, derr := d.Processor(0).Dispatch(ctx, abi.SysGetpid, args)
		require.NoError(t, derr)
		require.Equal(t, abi.Word(42), res)
		require.Equal(t, int64(1), atomic.LoadInt64(&h.calls))
		require.Equal(t, args, h.args)
	})

	n.It("returns not-supported for an unbound number without invoking anything", func(t *testing.T) {
		reg := registry.New()

		h := &recordingHandler{}

		_, err := reg.Register(oneBinding("process", abi.SysGetpid, h))
		require.NoError(t, err)

		d, err := New(reg, Config{})
		require.NoError(t, err)

		ret := d.Processor(0).DispatchABI(ctx, 0xbeef, abi.Args{})
		require.Equal(t, int64(-abi.ENOSYS), ret)
		require.Equal(t, int64(0), atomic.LoadInt64(&h.calls))
	})

	n.It("maps subsystem errors to negative errnos", func(t *testing.T) {
		reg := registry.New()

		h := &recordingHandler{err: kerror.FsFileNotFound}

		_, err := reg.Register(oneBinding("fs", abi.SysOpen, h))
		require.NoError(t, err)

		d, err := New(reg, Config{})
		require.NoError(t, err)

		ret := d.Processor(0).DispatchABI(ctx, abi.SysOpen, abi.Args{})
		require.Equal(t, int64(-abi.ENOENT), ret)
	})

	n.It("refreshes a cached binding after an epoch bump", func(t *testing.T) {
		reg := registry.New()

		first := &recordingHandler{ret: 1}

		id, err := reg.Register(oneBinding("process", abi.SysGetpid, first))
		require.NoError(t, err)

		d, err := New(reg, Config{})
		require.NoError(t, err)

		p := d.Processor(0)

		res, derr := p.Dispatch(ctx, abi.SysGetpid, abi.Args{})
		require.NoError(t, derr)
		require.Equal(t, abi.Word(1), res)

		require.NoError(t, reg.Unregister(id))

		_, derr = p.Dispatch(ctx, abi.SysGetpid, abi.Args{})
		require.Error(t, derr)
		require.Equal(t, kerror.NotSupported, derr.(kerror.Unified).Kind)

		second := &recordingHandler{ret: 2}

		_, err = reg.Register(oneBinding("process2", abi.SysGetpid, second))
		require.NoError(t, err)

		res, derr = p.Dispatch(ctx, abi.SysGetpid, abi.Args{})
		require.NoError(t, derr)
		require.Equal(t, abi.Word(2), res)
		require.Equal(t, int64(1), atomic.LoadInt64(&first.calls))
	})

	n.It("contains a handler panic and keeps dispatching", func(t *testing.T) {
		reg := registry.New()

		bomb := registry.HandlerFunc(func(ctx context.Context, args abi.Args) (abi.Word, error) {
			panic("boom")
		})

		_, err := reg.Register(oneBinding("bad", abi.SysOpen, bomb))
		require.NoError(t, err)

		ok := &recordingHandler{ret: 7}

		_, err = reg.Register(oneBinding("process", abi.SysGetpid, ok))
		require.NoError(t, err)

		d, err := New(reg, Config{})
		require.NoError(t, err)

		p := d.Processor(0)

		_, derr := p.Dispatch(ctx, abi.SysOpen, abi.Args{})
		require.Error(t, derr)
		require.Equal(t, kerror.OtherKind, derr.(kerror.Unified).Kind)
		require.Contains(t, derr.(kerror.Unified).Detail, "handler fault")

		res, derr := p.Dispatch(ctx, abi.SysGetpid, abi.Args{})
		require.NoError(t, derr)
		require.Equal(t, abi.Word(7), res)
	})

	n.It("executes a batch in order with independent failures", func(t *testing.T) {
		reg := registry.New()

		h := &recordingHandler{ret: 9}

		_, err := reg.Register(oneBinding("process", abi.SysGetpid, h))
		require.NoError(t, err)

		d, err := New(reg, Config{})
		require.NoError(t, err)

		results, derr := d.Processor(0).DispatchBatch(ctx, []Request{
			{Syscall: abi.SysGetpid},
			{Syscall: 0xbeef},
			{Syscall: abi.SysGetpid},
		})
		require.NoError(t, derr)
		require.Len(t, results, 3)

		require.NoError(t, results[0].Err)
		require.Equal(t, abi.Word(9), results[0].Value)

		require.Error(t, results[1].Err)
		require.Equal(t, kerror.NotSupported, results[1].Err.(kerror.Unified).Kind)

		require.NoError(t, results[2].Err)
		require.Equal(t, abi.Word(9), results[2].Value)

		require.Equal(t, int64(2), atomic.LoadInt64(&h.calls))
	})

	n.It("rejects an oversized batch whole", func(t *testing.T) {
		reg := registry.New()

		h := &recordingHandler{}

		_, err := reg.Register(oneBinding("process", abi.SysGetpid, h))
		require.NoError(t, err)

		d, err := New(reg, Config{BatchMaxSize: 2})
		require.NoError(t, err)

		results, derr := d.Processor(0).DispatchBatch(ctx, []Request{
			{Syscall: abi.SysGetpid},
			{Syscall: abi.SysGetpid},
			{Syscall: abi.SysGetpid},
		})
		require.Error(t, derr)
		require.Nil(t, results)
		require.Equal(t, kerror.InvalidArgument, derr.(kerror.Unified).Kind)
		require.Equal(t, int64(0), atomic.LoadInt64(&h.calls))
	})

	n.It("rejects nonsense configuration", func(t *testing.T) {
		_, err := New(registry.New(), Config{Processors: -1})
		require.Error(t, err)
	})

	n.Meow()
}

func TestDispatcherFastPathPromotion(t *testing.T) {
	ctx := context.Background()

	reg := registry.New()

	hot := &recordingHandler{ret: 1}
	cold := &recordingHandler{ret: 2}

	id, err := reg.Register(&registry.Registration{
		Service:  "process",
		Version:  "1.0.0",
		Priority: 10,
		Ranges:   []registry.Range{{Start: 0x1000, End: 0x1fff}},
		Bindings: []registry.Binding{
			{Syscall: abi.SysGetpid, Handler: hot},
			{Syscall: abi.SysYield, Handler: cold},
		},
	})
	require.NoError(t, err)

	d, err := New(reg, Config{FastPathSlots: 4})
	require.NoError(t, err)

	p := d.Processor(0)

	for i := 0; i < 1000; i++ {
		_, derr := p.Dispatch(ctx, abi.SysGetpid, abi.Args{})
		require.NoError(t, derr)
	}

	_, derr := p.Dispatch(ctx, abi.SysYield, abi.Args{})
	require.NoError(t, derr)

	d.RebuildFastPath()

	b, ok := d.fast.Lookup(abi.SysGetpid, reg.Epoch())
	require.True(t, ok)
	require.Equal(t, uint32(abi.SysGetpid), b.Syscall)

	// removing the service invalidates the slot immediately via the epoch
	require.NoError(t, reg.Unregister(id))

	_, ok = d.fast.Lookup(abi.SysGetpid, reg.Epoch())
	require.False(t, ok)

	// and the next rebuild drops it from the table entirely
	d.RebuildFastPath()
	require.Equal(t, 0, d.fast.Occupancy())

	ret := p.DispatchABI(ctx, abi.SysGetpid, abi.Args{})
	require.Equal(t, int64(-abi.ENOSYS), ret)
}

func TestDispatcherRebuildsOnCallThreshold(t *testing.T) {
	ctx := context.Background()

	reg := registry.New()

	h := &recordingHandler{ret: 1}

	_, err := reg.Register(oneBinding("process", abi.SysGetpid, h))
	require.NoError(t, err)

	d, err := New(reg, Config{FastPathSlots: 4, RebuildThreshold: 64})
	require.NoError(t, err)

	p := d.Processor(0)

	// crossing the threshold promotes the hot syscall with no explicit
	// rebuild call
	for i := 0; i < 100; i++ {
		_, derr := p.Dispatch(ctx, abi.SysGetpid, abi.Args{})
		require.NoError(t, derr)
	}

	b, ok := d.fast.Lookup(abi.SysGetpid, reg.Epoch())
	require.True(t, ok)
	require.Equal(t, uint32(abi.SysGetpid), b.Syscall)
	require.Equal(t, 1, d.fast.Occupancy())
}

func TestDispatcherConcurrentUnregisterStress(t *testing.T) {
	ctx := context.Background()

	reg := registry.New()

	h := registry.HandlerFunc(func(ctx context.Context, args abi.Args) (abi.Word, error) {
		return 5, nil
	})

	id, err := reg.Register(oneBinding("process", abi.SysGetpid, h))
	require.NoError(t, err)

	d, err := New(reg, Config{Processors: 4})
	require.NoError(t, err)

	var wg sync.WaitGroup

	start := make(chan struct{})

	for cpu := 0; cpu < 4; cpu++ {
		wg.Add(1)

		go func(cpu int) {
			defer wg.Done()

			p := d.Processor(cpu)

			<-start

			for i := 0; i < 5000; i++ {
				ret := p.DispatchABI(ctx, abi.SysGetpid, abi.Args{})

				if ret != 5 && ret != -abi.ENOSYS {
					t.Errorf("unexpected result %d", ret)
					return
				}
			}
		}(cpu)
	}

	close(start)

	// removal is lazy, then blocks until every dispatch that entered
	// before it has returned
	require.NoError(t, reg.UnregisterWait(ctx, id))

	wg.Wait()
}

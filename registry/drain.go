package registry

import (
	"context"

	"github.com/evanphx/yukon/pkg/waiter"
)

// drainWaiter tracks callers waiting for a removed service to quiesce.
type drainWaiter struct {
	w waiter.Waiter
}

func (d *drainWaiter) notify() {
	d.w.Notify(waiter.EventQuiesced)
}

func (d *drainWaiter) wait(ctx context.Context, inst *registration) error {
	c := make(chan struct{}, 1)

	e := d.w.RegisterChannel(waiter.EventQuiesced, c)
	defer d.w.Unregister(e)

	for {
		if !inst.busy() {
			return nil
		}

		select {
		case <-c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

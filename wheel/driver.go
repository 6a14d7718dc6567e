package wheel

import (
	"context"
	"sync"
	"time"
)

// Driver advances a Wheel on its own ticker and hands each fired RetryAction
// to a callback, so retransmission scheduling runs independently of the
// dispatcher's ingress loop.
type Driver struct {
	wheel    *Wheel
	onAction func(RetryAction)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDriver(w *Wheel, onAction func(RetryAction)) *Driver {
	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{wheel: w, onAction: onAction, ctx: ctx, cancel: cancel}
}

func (d *Driver) Start() {
	d.wg.Add(1)
	go d.loop()
}

func (d *Driver) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.wheel.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, action := range d.wheel.Tick() {
				if d.onAction != nil {
					d.onAction(action)
				}
			}
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Driver) Stop() {
	d.cancel()
	d.wg.Wait()
}

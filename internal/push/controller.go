package push

import (
	"fmt"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
)

// RefreshController is the externally visible entry point for one
// folder's pusher (spec §4.5): start, refresh, stop.
type RefreshController struct {
	folder   Folder
	receiver PushReceiver
	config   StoreConfig
	wakeLock WakeLock

	started atomic.Bool
	stopped atomic.Bool

	stop   atomic.Bool
	idling atomic.Bool

	loop *PushLoop
	wg   conc.WaitGroup
}

// NewRefreshController builds a controller for folder. It does not
// start the worker; call Start for that.
func NewRefreshController(folder Folder, receiver PushReceiver, config StoreConfig, wakeLock WakeLock) *RefreshController {
	return &RefreshController{
		folder:   folder,
		receiver: receiver,
		config:   config,
		wakeLock: wakeLock,
	}
}

// Start launches the worker thread. Calling Start a second time is an
// invariant violation.
func (c *RefreshController) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: start called more than once", ErrInvariant)
	}

	c.loop = NewPushLoop(c.folder, c.receiver, c.config, c.wakeLock, &c.stop, &c.idling)
	c.wg.Go(c.loop.Run)
	return nil
}

// Refresh ends an outstanding IDLE via DONE, causing the worker's next
// iteration to poll immediately. A no-op when not currently idling.
func (c *RefreshController) Refresh() {
	if !c.idling.Load() || c.loop == nil {
		return
	}

	_ = c.wakeLock.Acquire(briefWakeLockTimeout)
	defer c.wakeLock.Release()

	if session := c.loop.currentSession(); session != nil {
		_ = session.StopIdle()
	}
}

// Stop requests the worker to terminate and blocks until it does.
// Calling Stop a second time is an invariant violation.
func (c *RefreshController) Stop() error {
	if !c.stopped.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: stop called more than once", ErrInvariant)
	}

	c.stop.Store(true)

	if c.loop != nil {
		if session := c.loop.currentSession(); session != nil {
			_ = session.StopIdle()
		}
	}

	// Break any blocking read the worker might be parked in.
	_ = c.folder.Close()

	c.wg.Wait()
	return nil
}

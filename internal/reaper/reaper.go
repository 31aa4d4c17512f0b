package reaper

import (
	"context"
	"sync"
	"time"

	"agencydesk/pkg/config"
	"agencydesk/pkg/logger"
)

// LockSweeper deactivates locks whose TTL has run out.
type LockSweeper interface {
	ReapExpired(ctx context.Context) (int, error)
}

// SlotSweeper moves started slots of today out of the available list.
type SlotSweeper interface {
	RetireElapsed(ctx context.Context) (int, error)
}

type Reaper struct {
	locks        LockSweeper
	slots        SlotSweeper
	lockInterval time.Duration
	slotInterval time.Duration
	log          *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReaper(locks LockSweeper, slots SlotSweeper, cfg *config.Config) *Reaper {
	return &Reaper{
		locks:        locks,
		slots:        slots,
		lockInterval: cfg.ReaperLockInterval,
		slotInterval: cfg.ReaperSlotInterval,
		log:          cfg.Log.With("component", "reaper"),
	}
}

// Start launches both sweep loops. They stop when ctx is canceled or Stop is called.
func (r *Reaper) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(2)
	go r.loop(ctx, "locks", r.lockInterval, r.SweepLocks)
	go r.loop(ctx, "slots", r.slotInterval, r.SweepSlots)

	r.log.Info("Reaper started", "lock_interval", r.lockInterval, "slot_interval", r.slotInterval)
}

// Stop cancels the loops and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("Reaper stopped")
}

func (r *Reaper) SweepLocks(ctx context.Context) (int, error) {
	n, err := r.locks.ReapExpired(ctx)
	if err != nil {
		r.log.Error("Lock sweep failed", "released", n, "error", err)
		return n, err
	}
	if n > 0 {
		r.log.Info("Expired locks released", "count", n)
	}
	return n, nil
}

func (r *Reaper) SweepSlots(ctx context.Context) (int, error) {
	n, err := r.slots.RetireElapsed(ctx)
	if err != nil {
		r.log.Error("Slot sweep failed", "retired", n, "error", err)
		return n, err
	}
	if n > 0 {
		r.log.Info("Elapsed slots retired", "count", n)
	}
	return n, nil
}

func (r *Reaper) loop(ctx context.Context, name string, every time.Duration, sweep func(context.Context) (int, error)) {
	defer r.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Debug("Sweep loop exiting", "loop", name)
			return
		case <-ticker.C:
			// errors are already logged; the next tick retries
			_, _ = sweep(ctx)
		}
	}
}

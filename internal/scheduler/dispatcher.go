package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"merchbot/internal/database/models"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
)

// jobTimeout bounds a single firing of any registered job.
const jobTimeout = 5 * time.Minute

// SlotSource provides the currently active publication slots.
type SlotSource interface {
	GetActiveSlots(ctx context.Context) ([]models.ScheduleSlot, error)
}

// JobFunc is a scheduled handler. The context carries the per-firing
// timeout.
type JobFunc func(ctx context.Context)

// Dispatcher owns the cron runner: fixed daily jobs registered at
// startup plus one job per active schedule slot, hot-reloaded from
// storage without a restart.
type Dispatcher struct {
	cron         *cron.Cron
	slots        SlotSource
	publish      JobFunc
	pollInterval time.Duration

	mu            sync.Mutex
	slotEntries   map[SlotKey]cron.EntryID
	lastSignature string
	started       bool

	cancelPoll context.CancelFunc
	pollDone   chan struct{}
}

// NewDispatcher creates a dispatcher. publish is the handler invoked by
// every slot job; misfireGrace bounds how long a delayed firing may
// still run before being dropped.
func NewDispatcher(slots SlotSource, publish JobFunc, pollInterval, misfireGrace time.Duration) *Dispatcher {
	if slots == nil || publish == nil {
		panic("scheduler: nil dependency passed to NewDispatcher")
	}
	d := &Dispatcher{
		slots:        slots,
		publish:      publish,
		pollInterval: pollInterval,
		slotEntries:  make(map[SlotKey]cron.EntryID),
	}
	d.cron = cron.New(cron.WithChain(
		recoverPanics(),
		skipStaleFirings(misfireGrace),
	))
	return d
}

// recoverPanics contains a panic inside one firing so it affects neither
// that job's next firing nor sibling jobs.
func recoverPanics() cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		return cron.FuncJob(func() {
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("panic in scheduled job: %v", r)
					log.Printf("[Dispatcher] %v", err)
					sentry.CaptureException(err)
				}
			}()
			j.Run()
		})
	}
}

// skipStaleFirings makes a job non-overlapping with itself. A firing
// that has to wait on the previous run fires once if the wait stays
// within the grace window; beyond it the firing is dropped instead of
// bursting a backlog.
func skipStaleFirings(grace time.Duration) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		sem := make(chan struct{}, 1)
		sem <- struct{}{}
		return cron.FuncJob(func() {
			timer := time.NewTimer(grace)
			defer timer.Stop()
			select {
			case <-sem:
				defer func() { sem <- struct{}{} }()
				j.Run()
			case <-timer.C:
				log.Printf("[Dispatcher] Dropped a firing delayed past the %s grace window", grace)
			}
		})
	}
}

// RegisterDailyJob adds a fixed job that fires every day at the given
// slot time. Fixed jobs are registered once at startup and never removed.
func (d *Dispatcher) RegisterDailyJob(name string, at SlotKey, fn JobFunc) error {
	_, err := d.cron.AddFunc(at.cronSpec(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		log.Printf("[Dispatcher] Firing daily job %s", name)
		fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to register daily job %s: %w", name, err)
	}
	return nil
}

// RefreshSlots reconciles the registered slot jobs with the active
// ScheduleSlot rows. Reapplying an unchanged set is a no-op.
func (d *Dispatcher) RefreshSlots(ctx context.Context) error {
	rows, err := d.slots.GetActiveSlots(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedule slots: %w", err)
	}

	keys := make([]SlotKey, 0, len(rows))
	for _, row := range rows {
		key, err := ParseSlot(row.TimeStr)
		if err != nil {
			log.Printf("[Dispatcher RefreshSlots] Skipping slot: %v", err)
			continue
		}
		keys = append(keys, key)
	}
	keys = normalizeSlots(keys)
	sig := signature(keys)

	d.mu.Lock()
	defer d.mu.Unlock()

	if sig == d.lastSignature {
		return nil
	}

	for key, entryID := range d.slotEntries {
		d.cron.Remove(entryID)
		delete(d.slotEntries, key)
	}
	for _, key := range keys {
		entryID, err := d.cron.AddFunc(key.cronSpec(), func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			d.publish(ctx)
		})
		if err != nil {
			return fmt.Errorf("failed to register slot job %s: %w", key, err)
		}
		d.slotEntries[key] = entryID
	}

	log.Printf("[Dispatcher RefreshSlots] Slot set changed %q -> %q (%d jobs)", d.lastSignature, sig, len(keys))
	d.lastSignature = sig
	return nil
}

// SlotEntryIDs returns the currently registered slot jobs keyed by slot.
func (d *Dispatcher) SlotEntryIDs() map[SlotKey]cron.EntryID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[SlotKey]cron.EntryID, len(d.slotEntries))
	for k, v := range d.slotEntries {
		out[k] = v
	}
	return out
}

// Start runs the cron scheduler, applies the slot set once, and begins
// polling for slot changes.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = true
	d.mu.Unlock()

	if err := d.RefreshSlots(ctx); err != nil {
		// A failed first load is not fatal; the poll loop retries.
		log.Printf("[Dispatcher Start] Initial slot load failed: %v", err)
		sentry.CaptureException(err)
	}

	d.cron.Start()

	pollCtx, cancel := context.WithCancel(context.Background())
	d.cancelPoll = cancel
	d.pollDone = make(chan struct{})
	go d.pollLoop(pollCtx)

	log.Println("[Dispatcher Start] Scheduler started")
	return nil
}

func (d *Dispatcher) pollLoop(ctx context.Context) {
	defer close(d.pollDone)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := d.RefreshSlots(refreshCtx); err != nil {
				log.Printf("[Dispatcher Poll] %v", err)
				sentry.CaptureException(err)
			}
			cancel()
		}
	}
}

// Stop halts slot polling and the cron runner, waiting for in-flight
// jobs until ctx is done.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	cancel, done := d.cancelPoll, d.pollDone
	d.cancelPoll = nil
	d.pollDone = nil
	d.started = false
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	stopped := d.cron.Stop()
	select {
	case <-stopped.Done():
		log.Println("[Dispatcher Stop] Scheduler stopped")
	case <-ctx.Done():
		log.Println("[Dispatcher Stop] Gave up waiting for in-flight jobs")
	}
}

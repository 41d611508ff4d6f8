package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrEngineStopped = errors.New("schedule engine stopped")

type Notifier interface {
	Notify(subscriberID int64, text string) error
}

// ScheduleEngine keeps at most one runner per subscriber. A runner waits for
// its next fire time and hands each fire to its own goroutine, so a slow fetch
// or send never delays arming or cancelling other subscribers.
type ScheduleEngine struct {
	store       *SubscriberStore
	reporter    *Reporter
	notifier    Notifier
	clock       clockwork.Clock
	fireTimeout time.Duration
	logger      *zap.Logger

	fireCtx    context.Context
	cancelFire context.CancelFunc
	fires      sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	runners map[int64]*scheduleRunner
}

type scheduleRunner struct {
	handle domain.JobHandle
	spec   domain.ScheduleSpec
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	next time.Time
}

func NewScheduleEngine(store *SubscriberStore, reporter *Reporter, notifier Notifier, clock clockwork.Clock, fireTimeout time.Duration, logger *zap.Logger) *ScheduleEngine {
	fireCtx, cancelFire := context.WithCancel(context.Background())
	return &ScheduleEngine{
		store:       store,
		reporter:    reporter,
		notifier:    notifier,
		clock:       clock,
		fireTimeout: fireTimeout,
		logger:      logger,
		fireCtx:     fireCtx,
		cancelFire:  cancelFire,
		runners:     make(map[int64]*scheduleRunner),
	}
}

// Install replaces whatever timer the subscriber had with one for spec. The
// previous runner has exited before the new one starts.
func (e *ScheduleEngine) Install(id int64, spec domain.ScheduleSpec) (domain.JobHandle, error) {
	first, err := firstFire(spec, e.clock.Now())
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return "", ErrEngineStopped
	}
	return e.installLocked(id, spec, first), nil
}

// Activate is Install for user requests: the subscriber must have a non-empty
// watchlist. A rejected request leaves both the store and the runner alone.
func (e *ScheduleEngine) Activate(id int64, spec domain.ScheduleSpec) (domain.JobHandle, error) {
	first, err := firstFire(spec, e.clock.Now())
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.checkWatchlist(id); err != nil {
		return "", err
	}
	if e.stopped {
		return "", ErrEngineStopped
	}
	return e.installLocked(id, spec, first), nil
}

func firstFire(spec domain.ScheduleSpec, now time.Time) (time.Time, error) {
	if spec == nil {
		return time.Time{}, fmt.Errorf("%w: no schedule given", domain.ErrInvalidSchedule)
	}
	if err := spec.Validate(); err != nil {
		return time.Time{}, err
	}
	first, err := spec.Next(now)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", domain.ErrInvalidSchedule, err)
	}
	return first, nil
}

// installLocked must be called with e.mu held.
func (e *ScheduleEngine) installLocked(id int64, spec domain.ScheduleSpec, first time.Time) domain.JobHandle {
	e.stopLocked(id, "schedule replaced")

	ctx, cancel := context.WithCancel(context.Background())
	runner := &scheduleRunner{
		handle: domain.JobHandle(uuid.NewString()),
		spec:   spec,
		cancel: cancel,
		done:   make(chan struct{}),
		next:   first,
	}
	e.runners[id] = runner
	e.store.bindJob(id, spec, runner.handle)

	go func() {
		defer close(runner.done)
		e.run(ctx, id, runner)
	}()

	e.logger.Info(
		"schedule installed",
		zap.Int64("subscriber_id", id),
		zap.String("handle", string(runner.handle)),
		zap.String("kind", string(spec.Kind())),
		zap.Stringer("schedule", spec),
		zap.Time("next_fire", first),
	)
	return runner.handle
}

// stopLocked must be called with e.mu held.
func (e *ScheduleEngine) stopLocked(id int64, msg string) bool {
	runner, ok := e.runners[id]
	if !ok {
		return false
	}
	delete(e.runners, id)
	runner.stop()
	e.logger.Info(msg, zap.Int64("subscriber_id", id), zap.String("handle", string(runner.handle)))
	return true
}

// Cancel stops the subscriber's runner. It reports whether one existed. A fire
// already in flight finishes; no new fire starts once Cancel returns.
func (e *ScheduleEngine) Cancel(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked(id, "schedule cancelled")
}

// Remove stops the subscriber's runner and clears its schedule in the store in
// one step, so a concurrent Activate lands either before or after it. It
// reports whether the subscriber had a runner or was marked active.
func (e *ScheduleEngine) Remove(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	cancelled := e.stopLocked(id, "schedule cancelled")
	wasActive := e.store.ClearSchedule(id)
	return cancelled || wasActive
}

// Rearm installs timers for every active subscriber in the store. It is meant
// to run once after the store is restored.
func (e *ScheduleEngine) Rearm() int {
	armed := 0
	for _, sub := range e.store.All() {
		if !sub.Active || sub.Schedule == nil {
			continue
		}
		if _, err := e.Install(sub.ID, sub.Schedule); err != nil {
			e.logger.Warn("failed to rearm schedule", zap.Int64("subscriber_id", sub.ID), zap.Error(err))
			continue
		}
		armed++
	}
	e.logger.Info("schedules rearmed", zap.Int("count", armed))
	return armed
}

// FireNow runs one fetch, format and deliver cycle in the caller's goroutine.
func (e *ScheduleEngine) FireNow(ctx context.Context, id int64) error {
	if e.fireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.fireTimeout)
		defer cancel()
	}
	return e.deliver(ctx, id)
}

func (e *ScheduleEngine) NextFire(id int64) (time.Time, bool) {
	e.mu.Lock()
	runner, ok := e.runners[id]
	e.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return runner.nextFire(), true
}

func (e *ScheduleEngine) Handle(id int64) (domain.JobHandle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	runner, ok := e.runners[id]
	if !ok {
		return "", false
	}
	return runner.handle, true
}

func (e *ScheduleEngine) RunnerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runners)
}

// StopAll stops every runner and waits up to the fire timeout for in-flight
// fires. Store flags stay as they are so the schedules persist.
func (e *ScheduleEngine) StopAll() {
	e.mu.Lock()
	e.stopped = true
	runners := e.runners
	e.runners = make(map[int64]*scheduleRunner)
	e.mu.Unlock()

	for _, runner := range runners {
		runner.stop()
	}

	done := make(chan struct{})
	go func() {
		e.fires.Wait()
		close(done)
	}()

	wait := e.fireTimeout
	if wait <= 0 {
		wait = 5 * time.Second
	}
	select {
	case <-done:
	case <-time.After(wait):
		e.logger.Warn("timeout waiting for in-flight fires")
	}
	e.cancelFire()
	e.logger.Info("schedule engine stopped", zap.Int("runners", len(runners)))
}

func (e *ScheduleEngine) run(ctx context.Context, id int64, runner *scheduleRunner) {
	next := runner.nextFire()
	for {
		timer := e.clock.NewTimer(next.Sub(e.clock.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
		if ctx.Err() != nil {
			return
		}

		e.dispatch(id, runner.handle)

		now := e.clock.Now()
		following, err := runner.spec.Next(next)
		for err == nil && !following.After(now) {
			following, err = runner.spec.Next(following)
		}
		if err != nil {
			e.logger.Error("failed to compute next fire", zap.Int64("subscriber_id", id), zap.String("handle", string(runner.handle)), zap.Error(err))
			return
		}
		next = following
		runner.setNext(next)
	}
}

func (e *ScheduleEngine) dispatch(id int64, handle domain.JobHandle) {
	e.fires.Add(1)
	go func() {
		defer e.fires.Done()
		e.fire(id, handle)
	}()
}

func (e *ScheduleEngine) fire(id int64, handle domain.JobHandle) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("scheduled fire panicked", zap.Int64("subscriber_id", id), zap.String("handle", string(handle)), zap.Any("panic", r))
		}
	}()

	ctx := e.fireCtx
	if e.fireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.fireTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := e.deliver(ctx, id); err != nil {
		e.logger.Warn("scheduled fire skipped", zap.Int64("subscriber_id", id), zap.String("handle", string(handle)), zap.Error(err))
		return
	}
	e.logger.Info("scheduled fire delivered", zap.Int64("subscriber_id", id), zap.String("handle", string(handle)), zap.Duration("duration", time.Since(start)))
}

func (e *ScheduleEngine) deliver(ctx context.Context, id int64) error {
	watchlist := e.store.Watchlist(id)
	if len(watchlist) == 0 {
		return domain.ErrEmptyWatchlist
	}

	text, err := e.reporter.Report(ctx, ScheduledReportTitle, watchlist)
	if err != nil {
		return err
	}

	if err := e.notifier.Notify(id, text); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}
	return nil
}

func (r *scheduleRunner) stop() {
	r.cancel()
	<-r.done
}

func (r *scheduleRunner) nextFire() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

func (r *scheduleRunner) setNext(next time.Time) {
	r.mu.Lock()
	r.next = next
	r.mu.Unlock()
}

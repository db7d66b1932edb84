package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"adhanbot/internal/eventbus"
	"adhanbot/internal/prayer"
	logx "adhanbot/pkg/logx"
)

type State string

const (
	StateStarting    State = "starting"
	StateWaitingNext State = "waiting_next_event"
	StateSleeping    State = "sleeping"
	StateDelivering  State = "delivering"
	StateStopped     State = "stopped"
	StateFailed      State = "failed"
)

type handle struct {
	userID    string
	runID     string
	cancel    context.CancelCauseFunc
	done      chan struct{}
	startedAt time.Time

	mu    sync.Mutex
	state State
	next  prayer.Event
}

func (h *handle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *handle) setNext(ev prayer.Event) {
	h.mu.Lock()
	h.next = ev
	h.mu.Unlock()
}

func (h *handle) info() LoopInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return LoopInfo{
		UserID:    h.userID,
		RunID:     h.runID,
		State:     h.state,
		Next:      h.next,
		StartedAt: h.startedAt,
	}
}

// run hosts one loop until cancellation or a fatal error.
func (r *Registry) run(ctx context.Context, h *handle) {
	defer close(h.done)
	defer h.cancel(nil)
	log := r.log.With(logx.String("user", h.userID), logx.String("run", h.runID))

	err := r.iterate(ctx, h, log)
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		h.setState(StateStopped)
		log.Info("loop stopped", logx.String("cause", cause.Error()))
		r.bus.Publish(eventbus.Event{Type: eventbus.LoopStopped, UserID: h.userID, Data: cause.Error()})
		return
	}

	h.setState(StateFailed)
	log.Error("loop failed", logx.Err(err))
	r.bus.Publish(eventbus.Event{Type: eventbus.LoopFailed, UserID: h.userID, Data: err.Error()})

	bg := context.WithoutCancel(ctx)
	nctx, cancel := context.WithTimeout(bg, 30*time.Second)
	if derr := r.deliver.SendDirect(nctx, h.userID, failureText); derr != nil {
		log.Warn("failure notice not delivered", logx.Err(derr))
	}
	cancel()

	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()
	if r.release(h) {
		pctx, cancel := context.WithTimeout(bg, 10*time.Second)
		defer cancel()
		if perr := r.store.SetLoopActive(pctx, h.userID, false); perr != nil {
			log.Warn("persist loop flag failed", logx.Err(perr))
		}
	}
}

// iterate is the loop body. It returns the cancellation cause or a fatal error.
func (r *Registry) iterate(ctx context.Context, h *handle, log logx.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("loop panicked", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("loop panic: %v", p)
		}
	}()

	var last time.Time
	for {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		cfg := r.config()
		h.setState(StateWaitingNext)

		settings, loc, err := r.loadSettings(ctx, h.userID)
		if err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			return err
		}

		ref := r.clock.Now()
		if last.After(ref) {
			ref = last
		}
		ev, err := r.planner.Next(ctx, settings, loc, ref)
		if err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			if !prayer.IsTransient(err) {
				return err
			}
			log.Warn("timings unavailable; backing off", logx.Duration("backoff", cfg.Backoff), logx.Err(err))
			h.setState(StateSleeping)
			if r.clock.Sleep(ctx, cfg.Backoff) != nil {
				return context.Cause(ctx)
			}
			continue
		}

		h.setNext(ev)
		h.setState(StateSleeping)
		target := ev.At.Add(cfg.PostEventOffset)
		log.Debug("next prayer scheduled",
			logx.String("prayer", string(ev.Prayer)),
			logx.Time("at", ev.At),
			logx.Duration("in", max(target.Sub(r.clock.Now()), 0)),
		)
		if r.sleepUntil(ctx, target, cfg.EarlyTolerance) != nil {
			return context.Cause(ctx)
		}

		h.setState(StateDelivering)
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if derr := r.deliver.SendDirect(ctx, h.userID, ReminderText(ev, settings.City)); derr != nil {
			log.Warn("reminder not delivered", logx.String("prayer", string(ev.Prayer)), logx.Err(derr))
		} else {
			r.bus.Publish(eventbus.Event{Type: eventbus.LoopDelivered, UserID: h.userID, Data: ev})
		}
		last = ev.At

		h.setState(StateSleeping)
		if r.clock.Sleep(ctx, cfg.DeliveryPause) != nil {
			return context.Cause(ctx)
		}
	}
}

// sleepUntil sleeps until target, then keeps sleeping the residual while
// more than tol remains (timers may fire early after host suspend).
func (r *Registry) sleepUntil(ctx context.Context, target time.Time, tol time.Duration) error {
	if err := r.clock.Sleep(ctx, max(target.Sub(r.clock.Now()), 0)); err != nil {
		return err
	}
	for {
		rem := target.Sub(r.clock.Now())
		if rem <= tol {
			return nil
		}
		if err := r.clock.Sleep(ctx, rem); err != nil {
			return err
		}
	}
}

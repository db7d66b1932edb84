package scheduler

import (
	"context"
	"strings"
	"time"

	"adhanbot/internal/eventbus"
	"adhanbot/internal/prayer"
	logx "adhanbot/pkg/logx"
)

type onceJob struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

func (j *onceJob) finished() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// NotifyOnce plans the user's next prayer and schedules exactly one reminder
// for it. A pending reminder for the same user is replaced. Provider failures
// are returned as is; there is no retry.
func (r *Registry) NotifyOnce(ctx context.Context, userID string) (prayer.Event, time.Duration, error) {
	userID = strings.TrimSpace(userID)
	r.mu.Lock()
	closing := r.closing
	r.mu.Unlock()
	if closing {
		return prayer.Event{}, 0, ErrShuttingDown
	}

	settings, _, err := r.loadSettings(ctx, userID)
	if err != nil {
		return prayer.Event{}, 0, err
	}
	ev, delay, err := r.planner.Plan(ctx, settings, r.clock.Now())
	if err != nil {
		return prayer.Event{}, 0, err
	}

	jctx, cancel := context.WithCancelCause(r.sup.Context())
	job := &onceJob{cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		cancel(ErrShutdown)
		return prayer.Event{}, 0, ErrShuttingDown
	}
	if prev := r.once[userID]; prev != nil {
		prev.cancel(errReplaced)
	}
	r.once[userID] = job
	r.mu.Unlock()

	text := ReminderText(ev, settings.City)
	r.bus.Publish(eventbus.Event{Type: eventbus.OnceScheduled, UserID: userID, Data: ev})
	r.sup.Go("once."+userID, func(context.Context) error {
		defer func() {
			cancel(nil)
			close(job.done)
			r.mu.Lock()
			if r.once[userID] == job {
				delete(r.once, userID)
			}
			r.mu.Unlock()
		}()
		if r.clock.Sleep(jctx, delay) != nil || jctx.Err() != nil {
			r.log.Debug("single reminder cancelled", logx.String("user", userID), logx.String("cause", context.Cause(jctx).Error()))
			return nil
		}
		if err := r.deliver.SendDirect(jctx, userID, text); err != nil {
			r.log.Warn("single reminder not delivered", logx.String("user", userID), logx.Err(err))
			return nil
		}
		r.bus.Publish(eventbus.Event{Type: eventbus.OnceDelivered, UserID: userID, Data: ev})
		return nil
	})
	return ev, delay, nil
}

// PendingOnce reports whether userID has a scheduled single reminder.
func (r *Registry) PendingOnce(userID string) bool {
	r.mu.Lock()
	j := r.once[strings.TrimSpace(userID)]
	r.mu.Unlock()
	return j != nil && !j.finished()
}

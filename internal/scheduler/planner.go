package scheduler

import (
	"context"
	"fmt"
	"time"

	"adhanbot/internal/prayer"
	"adhanbot/internal/storage"
)

// Planner turns a user's settings into their next prayer event.
type Planner struct {
	provider TimingsProvider
}

func NewPlanner(p TimingsProvider) *Planner {
	return &Planner{provider: p}
}

func QueryFor(s storage.UserSettings) prayer.Query {
	return prayer.Query{
		City:     s.City,
		Country:  s.Country,
		Method:   s.CalculationMethod,
		School:   s.AsrSchool,
		Timezone: s.Timezone,
	}
}

// Location is s.Location with failures mapped to prayer.ErrConfigMissing.
func Location(s storage.UserSettings) (*time.Location, error) {
	loc, err := s.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", prayer.ErrConfigMissing, err)
	}
	return loc, nil
}

// Schedule fetches today's five canonical timings for s.
func (p *Planner) Schedule(ctx context.Context, s storage.UserSettings) (prayer.Schedule, error) {
	raw, err := p.provider.FetchTimings(ctx, QueryFor(s))
	if err != nil {
		if !prayer.IsTransient(err) {
			err = &prayer.ProviderError{Op: "fetch timings", Err: err}
		}
		return nil, err
	}
	return prayer.ScheduleFromTimings(raw), nil
}

// Next returns the earliest event strictly after ref.
func (p *Planner) Next(ctx context.Context, s storage.UserSettings, loc *time.Location, ref time.Time) (prayer.Event, error) {
	sched, err := p.Schedule(ctx, s)
	if err != nil {
		return prayer.Event{}, err
	}
	return sched.Next(ref, loc)
}

// Plan is Next plus the delay from ref, for one-off requests.
func (p *Planner) Plan(ctx context.Context, s storage.UserSettings, ref time.Time) (prayer.Event, time.Duration, error) {
	loc, err := Location(s)
	if err != nil {
		return prayer.Event{}, 0, err
	}
	ev, err := p.Next(ctx, s, loc, ref)
	if err != nil {
		return prayer.Event{}, 0, err
	}
	return ev, ev.Delay(ref), nil
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"adhanbot/internal/prayer"
	"adhanbot/internal/scheduler"
	"adhanbot/internal/storage"
	logx "adhanbot/pkg/logx"
)

const (
	msgSetupFirst    = "Please set up your region using /setup first."
	msgProviderDown  = "Could not fetch prayer times right now. Please try again later."
	msgShuttingDown  = "The bot is restarting. Please try again in a minute."
	msgLoopStarted   = "Prayer notification loop activated. You will be notified for all upcoming salahs in your direct messages."
	msgLoopDuplicate = "You already have an active prayer notification loop. Use /notifyloopstop to stop it first."
	msgLoopStopped   = "Prayer notification loop has been stopped."
	msgLoopNone      = "You don't have an active prayer notification loop."
	msgInternal      = "Something went wrong. Please try again later."
)

// Loops is the part of the scheduler the commands drive.
type Loops interface {
	Start(ctx context.Context, userID string) error
	Stop(ctx context.Context, userID string) error
	IsActive(userID string) bool
	Info(userID string) (scheduler.LoopInfo, bool)
	NotifyOnce(ctx context.Context, userID string) (prayer.Event, time.Duration, error)
	PendingOnce(userID string) bool
}

// Timetable fetches a user's daily schedule.
type Timetable interface {
	Schedule(ctx context.Context, s storage.UserSettings) (prayer.Schedule, error)
}

// Locator resolves the coordinates of a user's configured city.
type Locator interface {
	Locate(ctx context.Context, q prayer.Query) (prayer.Coordinates, error)
}

type Store interface {
	GetUser(ctx context.Context, userID string) (storage.UserSettings, error)
	PutUser(ctx context.Context, s storage.UserSettings) error
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Handlers struct {
	Store     Store
	Loops     Loops
	Timetable Timetable
	Locator   Locator
	Platform  string
	// Defaults for users who have never picked a method or school.
	DefaultMethod int
	DefaultSchool int
	Now           func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Commands returns the user-facing command set.
func (h *Handlers) Commands() []Command {
	return []Command{
		{Name: "setup", Usage: "/setup <country> | <city> | <timezone>", Description: "Set up your region settings (country, city and timezone).", Handle: h.setup},
		{Name: "method", Usage: "/method [code]", Description: "Show or change the prayer time calculation method.", Handle: h.method},
		{Name: "school", Usage: "/school [0|1]", Description: "Show or change the Asr juristic method (0 Standard, 1 Hanafi).", Handle: h.school},
		{Name: "region", Description: "View your current region settings.", Handle: h.region},
		{Name: "timings", Description: "Get all the salah timings for your region.", Handle: h.timings},
		{Name: "upcoming", Aliases: []string{"next"}, Description: "Get the upcoming salah time for your region.", Handle: h.upcoming},
		{Name: "notify", Description: "Schedule a DM notification for the next salah time.", Handle: h.notify},
		{Name: "notifyloop", Description: "Set a notification chain for all upcoming salahs.", Handle: h.notifyLoop},
		{Name: "notifyloopstop", Description: "Stop the notification chain for upcoming salahs.", Handle: h.notifyLoopStop},
		{Name: "qibla", Description: "Show the qibla direction for your city.", Handle: h.qibla},
		{Name: "status", Description: "Show your notification status.", Handle: h.status},
	}
}

func (h *Handlers) audit(ctx context.Context, req *Request, action, detail string, err error) {
	e := storage.AuditEntry{
		At:       h.now().UTC(),
		UserID:   req.UserID,
		Platform: h.Platform,
		Action:   action,
		Detail:   detail,
		OK:       err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := h.Store.AppendAudit(ctx, e); aerr != nil {
		req.Logger.Warn("audit append failed", logx.String("action", action), logx.Err(aerr))
	}
}

// settings loads the user's settings. ok is false when a reply was already sent.
func (h *Handlers) settings(ctx context.Context, req *Request) (storage.UserSettings, bool, error) {
	s, err := h.Store.GetUser(ctx, req.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return s, false, req.Reply(ctx, msgSetupFirst)
	}
	if err != nil {
		return s, false, errors.Join(err, req.Reply(ctx, msgInternal))
	}
	return s, true, nil
}

func (h *Handlers) setup(ctx context.Context, req *Request) error {
	parts := splitFields(req.RawArgs)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return req.Reply(ctx, "Usage: /setup <country> | <city> | <timezone>\n"+
			"Example: /setup Turkey | Istanbul | Europe/Istanbul\n\n"+
			"Common timezones:\n"+strings.Join(prayer.SuggestedTimezones, ", "))
	}
	country, city, tz := parts[0], parts[1], parts[2]
	if _, err := time.LoadLocation(tz); err != nil || strings.EqualFold(tz, "local") {
		return req.Reply(ctx, fmt.Sprintf("Unknown timezone %q. Use an IANA name such as Europe/Istanbul or America/New_York.", tz))
	}

	s, err := h.Store.GetUser(ctx, req.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s = storage.UserSettings{
			UserID:            req.UserID,
			CalculationMethod: h.DefaultMethod,
			AsrSchool:         h.DefaultSchool,
		}
	case err != nil:
		return errors.Join(err, req.Reply(ctx, msgInternal))
	}
	s.Country, s.City, s.Timezone = country, city, tz
	s.UpdatedAt = h.now().UTC()

	err = h.Store.PutUser(ctx, s)
	h.audit(ctx, req, "setup", country+"|"+city+"|"+tz, err)
	if err != nil {
		req.Logger.Warn("setup rejected", logx.Err(err))
		return req.Reply(ctx, "Those settings could not be saved: "+err.Error())
	}
	return req.Reply(ctx, fmt.Sprintf("Setup complete! Your settings have been saved.\n\n%s\n\nChange the calculation method with /method or the Asr method with /school.",
		describeSettings(s)))
}

func (h *Handlers) method(ctx context.Context, req *Request) error {
	s, ok, err := h.settings(ctx, req)
	if !ok {
		return err
	}
	if len(req.Args) == 0 {
		return req.Reply(ctx, fmt.Sprintf("Current calculation method: %s\n\nAvailable methods:\n%s\n\nUse /method <code> to change it.",
			prayer.MethodName(s.CalculationMethod), prayer.MethodList()))
	}
	code, cerr := strconv.Atoi(req.Args[0])
	if _, known := prayer.Methods[code]; cerr != nil || !known {
		return req.Reply(ctx, "Unknown method code. Available methods:\n"+prayer.MethodList())
	}
	s.CalculationMethod = code
	s.UpdatedAt = h.now().UTC()
	err = h.Store.PutUser(ctx, s)
	h.audit(ctx, req, "method", strconv.Itoa(code), err)
	if err != nil {
		return errors.Join(err, req.Reply(ctx, msgInternal))
	}
	return req.Reply(ctx, "Calculation method set to "+prayer.MethodName(code)+".")
}

func (h *Handlers) school(ctx context.Context, req *Request) error {
	s, ok, err := h.settings(ctx, req)
	if !ok {
		return err
	}
	if len(req.Args) == 0 {
		return req.Reply(ctx, fmt.Sprintf("Current Asr method: %s\n\n0 - %s\n1 - %s\n\nUse /school <0|1> to change it.",
			prayer.SchoolName(s.AsrSchool), prayer.SchoolName(0), prayer.SchoolName(1)))
	}
	code, cerr := strconv.Atoi(req.Args[0])
	if _, known := prayer.Schools[code]; cerr != nil || !known {
		return req.Reply(ctx, "Asr method must be 0 (Standard) or 1 (Hanafi).")
	}
	s.AsrSchool = code
	s.UpdatedAt = h.now().UTC()
	err = h.Store.PutUser(ctx, s)
	h.audit(ctx, req, "school", strconv.Itoa(code), err)
	if err != nil {
		return errors.Join(err, req.Reply(ctx, msgInternal))
	}
	return req.Reply(ctx, "Asr method set to "+prayer.SchoolName(code)+".")
}

func describeSettings(s storage.UserSettings) string {
	tz := s.Timezone
	if tz == "" {
		tz = "(not set)"
	}
	return fmt.Sprintf("Country: %s\nCity: %s\nTimezone: %s\nAsr Method: %s\nCalculation Method: %s",
		s.Country, s.City, tz, prayer.SchoolName(s.AsrSchool), prayer.MethodName(s.CalculationMethod))
}

func (h *Handlers) region(ctx context.Context, req *Request) error {
	s, ok, err := h.settings(ctx, req)
	if !ok {
		return err
	}
	return req.Reply(ctx, "Current Region Settings\n"+describeSettings(s))
}

// located loads settings that include a usable timezone.
func (h *Handlers) located(ctx context.Context, req *Request) (storage.UserSettings, *time.Location, bool, error) {
	s, ok, err := h.settings(ctx, req)
	if !ok {
		return s, nil, false, err
	}
	loc, lerr := scheduler.Location(s)
	if lerr != nil {
		return s, nil, false, req.Reply(ctx, msgSetupFirst)
	}
	return s, loc, true, nil
}

func (h *Handlers) timings(ctx context.Context, req *Request) error {
	s, loc, ok, err := h.located(ctx, req)
	if !ok {
		return err
	}
	sched, err := h.Timetable.Schedule(ctx, s)
	if err != nil {
		return errors.Join(err, req.Reply(ctx, msgProviderDown))
	}
	today := sched.Today(h.now(), loc)
	if len(today) == 0 {
		return req.Reply(ctx, "No salah times found for "+s.City+".")
	}
	var b strings.Builder
	b.WriteString("Adhan Timings\n")
	for _, ev := range today {
		fmt.Fprintf(&b, "%s: %s\n", ev.Prayer, prayer.FormatClock12(ev.At))
	}
	b.WriteString("\nTimings for " + s.City)
	return req.Reply(ctx, b.String())
}

func (h *Handlers) upcoming(ctx context.Context, req *Request) error {
	s, loc, ok, err := h.located(ctx, req)
	if !ok {
		return err
	}
	sched, err := h.Timetable.Schedule(ctx, s)
	if err != nil {
		return errors.Join(err, req.Reply(ctx, msgProviderDown))
	}
	now := h.now()
	ev, err := sched.Next(now, loc)
	if err != nil {
		return errors.Join(err, req.Reply(ctx, "No upcoming salah times found for "+s.City+"."))
	}
	return req.Reply(ctx, fmt.Sprintf("Next upcoming salah for %s is %s at %s (in %s).",
		s.City, ev.Prayer, prayer.FormatClock12(ev.At), humanDuration(ev.Delay(now))))
}

func (h *Handlers) qibla(ctx context.Context, req *Request) error {
	s, ok, err := h.settings(ctx, req)
	if !ok {
		return err
	}
	if h.Locator == nil {
		return req.Reply(ctx, "Qibla lookup is not available on this bot.")
	}
	at, err := h.Locator.Locate(ctx, scheduler.QueryFor(s))
	if err != nil {
		return errors.Join(err, req.Reply(ctx, "Could not locate "+s.City+" right now. Please try again later."))
	}
	b := prayer.QiblaBearing(at.Latitude, at.Longitude)
	return req.Reply(ctx, fmt.Sprintf("Qibla direction for %s (%s): %.0f° from true north (%s).",
		s.City, at, b, prayer.CompassPoint(b)))
}

func (h *Handlers) notify(ctx context.Context, req *Request) error {
	ev, delay, err := h.Loops.NotifyOnce(ctx, req.UserID)
	switch {
	case err == nil:
	case errors.Is(err, prayer.ErrConfigMissing):
		return req.Reply(ctx, msgSetupFirst)
	case errors.Is(err, scheduler.ErrShuttingDown):
		return req.Reply(ctx, msgShuttingDown)
	case prayer.IsTransient(err):
		return errors.Join(err, req.Reply(ctx, msgProviderDown))
	default:
		return errors.Join(err, req.Reply(ctx, msgInternal))
	}
	return req.Reply(ctx, fmt.Sprintf("Next upcoming salah is %s at %s (in %s). You will be notified in your direct messages when it's time.",
		ev.Prayer, prayer.FormatClock12(ev.At), humanDuration(delay)))
}

func (h *Handlers) notifyLoop(ctx context.Context, req *Request) error {
	err := h.Loops.Start(ctx, req.UserID)
	h.audit(ctx, req, "notifyloop", "", err)
	switch {
	case err == nil:
		return req.Reply(ctx, msgLoopStarted)
	case errors.Is(err, scheduler.ErrAlreadyActive):
		return req.Reply(ctx, msgLoopDuplicate)
	case errors.Is(err, prayer.ErrConfigMissing):
		return req.Reply(ctx, msgSetupFirst)
	case errors.Is(err, scheduler.ErrShuttingDown):
		return req.Reply(ctx, msgShuttingDown)
	default:
		return errors.Join(err, req.Reply(ctx, msgInternal))
	}
}

func (h *Handlers) notifyLoopStop(ctx context.Context, req *Request) error {
	err := h.Loops.Stop(ctx, req.UserID)
	h.audit(ctx, req, "notifyloopstop", "", err)
	switch {
	case err == nil:
		return req.Reply(ctx, msgLoopStopped)
	case errors.Is(err, scheduler.ErrNotActive):
		return req.Reply(ctx, msgLoopNone)
	default:
		return errors.Join(err, req.Reply(ctx, msgInternal))
	}
}

func (h *Handlers) status(ctx context.Context, req *Request) error {
	var b strings.Builder
	if info, ok := h.Loops.Info(req.UserID); ok {
		b.WriteString("Notification loop: active\n")
		if !info.Next.IsZero() {
			fmt.Fprintf(&b, "Next: %s at %s (in %s)\n", info.Next.Prayer, prayer.FormatClock12(info.Next.At), humanDuration(info.Next.Delay(h.now())))
		}
		fmt.Fprintf(&b, "State: %s\nRunning since: %s\n", info.State, info.StartedAt.UTC().Format(time.RFC3339))
	} else {
		b.WriteString("Notification loop: inactive\n")
	}
	if h.Loops.PendingOnce(req.UserID) {
		b.WriteString("Single reminder: scheduled\n")
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

// humanDuration renders d as "2h 30m", rounding to minutes.
func humanDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "less than a minute"
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

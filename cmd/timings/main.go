// Package main implements timings, a CLI that prints one city's prayer
// timetable and highlights the next prayer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"adhanbot/internal/config"
	"adhanbot/internal/prayer"
	"adhanbot/internal/provider/aladhan"
	logx "adhanbot/pkg/logx"
)

var (
	country  = flag.String("country", "", "country name (required)")
	city     = flag.String("city", "", "city name (required)")
	tz       = flag.String("tz", "", "IANA timezone, e.g. Europe/Istanbul (required)")
	method   = flag.Int("method", prayer.DefaultMethod, "calculation method code")
	school   = flag.Int("school", prayer.DefaultSchool, "Asr school: 0 standard, 1 Hanafi")
	baseURL  = flag.String("base-url", config.DefaultProviderBaseURL, "timings API base URL")
	timeout  = flag.Duration("timeout", 10*time.Second, "request timeout")
	verbose  = flag.Bool("verbose", false, "enable debug logging")
	noColor  = flag.Bool("no-color", false, "disable colored output")
	listOnly = flag.Bool("methods", false, "list calculation methods and exit")
)

func main() {
	flag.Parse()

	if *listOnly {
		fmt.Println(prayer.MethodList())
		return
	}
	if strings.TrimSpace(*country) == "" || strings.TrimSpace(*city) == "" || strings.TrimSpace(*tz) == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -country <name> -city <name> -tz <zone> [flags]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *noColor {
		color.NoColor = true
	}

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unknown timezone %q: %v\n", *tz, err)
		os.Exit(2)
	}

	level := "error"
	if *verbose {
		level = "debug"
	}
	log := logx.NewConsole(level)

	client := aladhan.New(aladhan.Options{
		BaseURL:       *baseURL,
		Timeout:       *timeout,
		RetryAttempts: 3,
		RetryDelay:    500 * time.Millisecond,
		CacheTTL:      time.Hour,
		CacheSize:     1,
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 2*(*timeout))
	defer cancel()
	q := prayer.Query{
		City:     *city,
		Country:  *country,
		Method:   *method,
		School:   *school,
		Timezone: *tz,
	}
	raw, err := client.FetchTimings(ctx, q)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fetch failed:", err)
		os.Exit(1)
	}

	now := time.Now()
	render(os.Stdout, prayer.ScheduleFromTimings(raw), now, loc)

	// served from the client cache
	if at, err := client.Locate(ctx, q); err == nil {
		b := prayer.QiblaBearing(at.Latitude, at.Longitude)
		fmt.Fprintf(os.Stdout, "Qibla: %.0f° (%s) from %s\n", b, prayer.CompassPoint(b), at)
	}
}

func render(w *os.File, s prayer.Schedule, now time.Time, loc *time.Location) {
	title := color.New(color.Bold)
	past := color.New(color.FgHiBlack)
	upcoming := color.New(color.FgGreen, color.Bold)

	next, nextErr := s.Next(now, loc)

	title.Fprintf(w, "Prayer times for %s, %s (%s)\n", *city, *country, now.In(loc).Format("Mon 02 Jan 2006"))
	fmt.Fprintf(w, "Method: %s, Asr: %s\n\n", prayer.MethodName(*method), prayer.SchoolName(*school))

	for _, ev := range s.Today(now, loc) {
		line := fmt.Sprintf("  %-8s %s", ev.Prayer, prayer.FormatClock12(ev.At))
		switch {
		case nextErr == nil && ev.Prayer == next.Prayer && ev.At.Equal(next.At):
			upcoming.Fprintln(w, line+"  <- next")
		case !ev.At.After(now):
			past.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}

	if nextErr != nil {
		return
	}
	fmt.Fprintln(w)
	if !sameDay(next.At, now, loc) {
		fmt.Fprintf(w, "Next: %s tomorrow at %s (in %s)\n", next.Prayer, prayer.FormatClock12(next.At), next.Delay(now).Round(time.Minute))
		return
	}
	fmt.Fprintf(w, "Next: %s at %s (in %s)\n", next.Prayer, prayer.FormatClock12(next.At), next.Delay(now).Round(time.Minute))
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

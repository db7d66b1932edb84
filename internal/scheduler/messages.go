package scheduler

import (
	"fmt"

	"adhanbot/internal/prayer"
)

const (
	failureText = "There was an error with your prayer notification loop. Please use /notifyloop to restart it."

	restoredText = "Your prayer notification loop has been restored after a bot restart.\n\n" +
		"Apologies if a notification was missed during the downtime."
)

// ReminderText is the DM sent when a prayer time arrives.
func ReminderText(ev prayer.Event, city string) string {
	return fmt.Sprintf("It's time for %s (%s) in %s!", ev.Prayer, prayer.FormatClock12(ev.At), city)
}

// Package notifier delivers direct messages to users.
//
// Every DM the bot sends on its own initiative (prayer reminders, loop
// failure notices, restore notices) goes through Service.SendDirect, which
// applies one process-wide rate limit, retries transient adapter failures
// with jittered exponential backoff, and drops exact duplicates sent to the
// same user within a short window.
//
// The service keeps a small in-memory history for /status.
package notifier

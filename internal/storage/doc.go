// Package storage provides the persistence layer used by the bot.
//
// It stores:
//   - Per-user prayer settings (location, method, school, timezone)
//   - The "loop active" flag that lets loops resume after a restart
//   - An append-only audit log of user actions
package storage

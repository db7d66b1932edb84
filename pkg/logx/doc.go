// Package logx is the bot's structured logging layer on top of zerolog.
//
// A Service owns the sinks (console, JSON file, operator chat) and can be
// reconfigured while running; every Logger derived from it follows along.
// The chat sink only forwards lines at or above its minimum level, is rate
// limited, and never blocks the caller.
package logx

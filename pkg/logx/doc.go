// Package logx provides the daemon's structured logging.
//
// It wraps zerolog behind a small Logger value type so call sites can pass
// loggers around without caring about sink configuration. The Service owns
// the sinks (console, optional file) and can swap them at runtime via Apply,
// which keeps every Logger derived from it live across config reloads.
package logx

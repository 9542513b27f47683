package logger

import (
	"context"
	"log/slog"
)

// nopHandler discards every record and disables every level.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }

// Nop returns a *slog.Logger that discards everything. Useful as a default
// when a caller does not care about log output.
func Nop() *slog.Logger {
	return slog.New(nopHandler{})
}

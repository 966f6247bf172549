package floodsub

import (
	"context"
	"log/slog"
)

// discardHandler drops every record, so the library stays silent until a
// caller installs a logger via WithLogger.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

func defaultLogger() *slog.Logger {
	return slog.New(discardHandler{})
}

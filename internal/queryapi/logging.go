package queryapi

import (
	"context"
	"log/slog"

	"github.com/sirupsen/logrus"
)

// logrusHandler adapts slog's structured logging calls onto the ambient
// logrus logger the rest of the replica uses, so internal/peer's sessions
// (which take a *slog.Logger so they do not import internal/peer's own
// logging choice) still end up in the same JSON log stream as everything
// else.
type logrusHandler struct {
	entry *logrus.Entry
}

func newSlogLogger() *slog.Logger {
	return slog.New(&logrusHandler{entry: logrus.WithField("component", "peer")})
}

func (h *logrusHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *logrusHandler) Handle(_ context.Context, record slog.Record) error {
	fields := logrus.Fields{}
	record.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})
	entry := h.entry.WithFields(fields)
	switch {
	case record.Level >= slog.LevelError:
		entry.Error(record.Message)
	case record.Level >= slog.LevelWarn:
		entry.Warn(record.Message)
	case record.Level >= slog.LevelInfo:
		entry.Info(record.Message)
	default:
		entry.Debug(record.Message)
	}
	return nil
}

func (h *logrusHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := logrus.Fields{}
	for _, a := range attrs {
		fields[a.Key] = a.Value.Any()
	}
	return &logrusHandler{entry: h.entry.WithFields(fields)}
}

func (h *logrusHandler) WithGroup(name string) slog.Handler {
	return &logrusHandler{entry: h.entry.WithField("group", name)}
}

package helpers

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"code.cloudfoundry.org/lager/v3"
)

// textWriterSink renders lager entries as logfmt lines through slog. It is
// meant for operators tailing a terminal; unlike the JSON sink it does not
// redact data keys.
type textWriterSink struct {
	logger *slog.Logger
}

var _ lager.Sink = &textWriterSink{}

func NewTextWriterSink(writer io.Writer, logLevel lager.LogLevel) lager.Sink {
	opts := &slog.HandlerOptions{
		Level: toSlogLevel(logLevel),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}
	return &textWriterSink{logger: slog.New(slog.NewTextHandler(writer, opts))}
}

func toSlogLevel(l lager.LogLevel) slog.Level {
	switch l {
	case lager.DEBUG:
		return slog.LevelDebug
	case lager.ERROR, lager.FATAL:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (sink *textWriterSink) Log(log lager.LogFormat) {
	sink.logger.LogAttrs(context.Background(), toSlogLevel(log.LogLevel), log.Message, dataToAttrs(log)...)
}

func dataToAttrs(log lager.LogFormat) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(log.Data)+1)
	if log.Source != "" {
		attrs = append(attrs, slog.String("source", log.Source))
	}

	keys := make([]string, 0, len(log.Data))
	for key := range log.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := log.Data[key]
		if s, ok := value.(string); ok {
			value = RedactBotToken(s)
		}
		attrs = append(attrs, slog.Any(key, value))
	}
	return attrs
}

package logging

import (
	"io"
	"log/slog"
)

type LogCode string

const (
	// SYSTEM EVENTS
	SYSTEM LogCode = "SYSTEM"
	SEED   LogCode = "SEED"

	// ACCOUNT OPERATIONS
	AUTH     LogCode = "AUTH"
	PASSWORD LogCode = "PASSWORD"

	// TENANT DATA OPERATIONS
	INVENTORY    LogCode = "INVENTORY"
	RECIPE       LogCode = "RECIPE"
	SALES        LogCode = "SALES"
	SALES_IMPORT LogCode = "SALES_IMPORT"
	WASTAGE      LogCode = "WASTAGE"

	// UPSTREAM COLLABORATORS
	FORECAST LogCode = "FORECAST"
	CALENDAR LogCode = "CALENDAR"
)

func Code(code LogCode) slog.Attr {
	return slog.String("code", string(code))
}

// VictoriaLogs has fixed field name for time (_time) and message(_msg). This function maps fields msg -> _msg and time -> _time.
func convertKeysToVictoriaLogs(keys []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{Key: "_time", Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05"))}
	}
	if a.Key == slog.MessageKey {
		return slog.Attr{Key: "_msg", Value: a.Value}
	}
	return a
}

func GetVictoriaLogsOptions(addSource bool, level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: convertKeysToVictoriaLogs,
		AddSource:   addSource,
	}
}

func NewJsonLogger(w io.Writer, addSource bool, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, GetVictoriaLogsOptions(addSource, level)))
}

func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

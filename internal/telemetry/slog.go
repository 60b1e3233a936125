package telemetry

import (
	"fmt"
	"log/slog"
)

// SlogAPI writes reports to the default slog logger. KV params become named
// attributes, errors become "err", anything else is positional.
type SlogAPI struct{}

func attrs(head []any, params []any) []any {
	out := head
	positional := 0
	for _, p := range params {
		switch p := p.(type) {
		case KV:
			out = append(out, p.Key, p.Value)
		case error:
			out = append(out, "err", p.Error())
		default:
			out = append(out, fmt.Sprintf("params.%d", positional), p)
			positional++
		}
	}
	return out
}

func (SlogAPI) ReportBroken(id string, params ...any) {
	slog.Error("broken component", attrs([]any{"id", id}, params)...)
}

func (SlogAPI) ReportWarning(id string, params ...any) {
	slog.Warn("warning", attrs([]any{"id", id}, params)...)
}

func (SlogAPI) ReportDebug(message string, params ...any) {
	slog.Debug(message, attrs(nil, params)...)
}

func (SlogAPI) ReportCount(id string, count int64) {
	slog.Info("count", "id", id, "n", count)
}

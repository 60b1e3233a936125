package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	recorder := &Recorder{}
	scoped := NewScopedAPI("engine", recorder)

	scoped.ReportBroken("dispatch", "boom")
	scoped.ReportWarning("admission", 1)
	scoped.ReportCount("students", 3)

	require.Len(t, recorder.Find("broken", "engine:dispatch"), 1)
	require.Equal(t, []any{"boom"}, recorder.Find("broken", "engine:dispatch")[0].Params)
	require.Len(t, recorder.Find("warning", "engine:admission"), 1)
	require.Equal(t, []any{int64(3)}, recorder.Find("count", "engine:students")[0].Params)
	require.Empty(t, recorder.Find("broken", "dispatch"))
}

func TestNestedScopes(t *testing.T) {
	recorder := &Recorder{}
	scoped := NewScopedAPI("grading", NewScopedAPI("engine", recorder))
	scoped.ReportWarning("alert")
	require.Len(t, recorder.Find("warning", "engine.grading:alert"), 1)
}

func TestSlogAttrs(t *testing.T) {
	got := attrs([]any{"id", "x"}, []any{"Lab 1", KV{Key: "student", Value: "jdoe"}, errors.New("boom"), 2})
	require.Equal(t, []any{
		"id", "x",
		"params.0", "Lab 1",
		"student", "jdoe",
		"err", "boom",
		"params.1", 2,
	}, got)
}

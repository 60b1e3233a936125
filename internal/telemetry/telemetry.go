package telemetry

import "strings"

// API is where components report what happened to them. Tests swap in a
// Recorder to assert on reports.
type API interface {
	// ReportBroken reports a failure that needs fixing, such as a page the
	// adapters no longer understand.
	ReportBroken(id string, params ...any)
	// ReportWarning reports something worth a look that is not a bug.
	ReportWarning(id string, params ...any)
	ReportDebug(message string, params ...any)
	// ReportCount reports a point-in-time count. Counts are samples, not
	// increments.
	ReportCount(id string, count int64)
}

// KV attaches a named value to a report.
type KV struct {
	Key   string
	Value any
}

// ScopedAPI prefixes every report id with a namespace, "engine:dispatch".
// Scopes nest: scoping "grading" under "engine" yields "engine.grading:<id>".
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	if parent, ok := inner.(ScopedAPI); ok {
		return ScopedAPI{namespace: parent.namespace + "." + namespace, inner: parent.inner}
	}
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) id(id string) string {
	var b strings.Builder
	b.Grow(len(s.namespace) + 1 + len(id))
	b.WriteString(s.namespace)
	b.WriteByte(':')
	b.WriteString(id)
	return b.String()
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.id(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.id(id), params...)
}

func (s ScopedAPI) ReportDebug(message string, params ...any) {
	s.inner.ReportDebug(s.namespace+": "+message, params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.id(id), count)
}

package telemetry

import "sync"

// Report is a single call recorded by Recorder.
type Report struct {
	Level  string
	Id     string
	Params []any
}

// Recorder is an API that keeps every report in memory, tests use it to
// assert that failures were reported.
type Recorder struct {
	mutex   sync.Mutex
	reports []Report
}

func (r *Recorder) add(level, id string, params []any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, Report{Level: level, Id: id, Params: params})
}

func (r *Recorder) ReportBroken(id string, params ...any)  { r.add("broken", id, params) }
func (r *Recorder) ReportWarning(id string, params ...any) { r.add("warning", id, params) }
func (r *Recorder) ReportDebug(message string, params ...any) {
	r.add("debug", message, params)
}
func (r *Recorder) ReportCount(id string, count int64) { r.add("count", id, []any{count}) }

// Find returns the reports of the given level and id.
func (r *Recorder) Find(level, id string) []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var out []Report
	for _, report := range r.reports {
		if report.Level == level && report.Id == id {
			out = append(out, report)
		}
	}
	return out
}

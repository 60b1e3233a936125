package chrono

import (
	"sort"
	"sync"
	"time"

	"sakaibot/lib/timezone"
)

// Timer is a pending callback created by AfterFunc.
type Timer interface {
	// Stop prevents the callback from firing, it reports false if the
	// callback already fired or was already stopped.
	Stop() bool
}

// TimeAPI is the interface that anything depending on the system clock should use.
//
// note: fault injection point
type TimeAPI interface {
	// Now returns the current time in the portal's timezone.
	Now() time.Time
	// AfterFunc calls f on its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct{}

// NewStandardTime is the constructor of StandardTime.
func NewStandardTime() StandardTime {
	return StandardTime{}
}

func (StandardTime) Now() time.Time {
	return timezone.Now()
}

func (StandardTime) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ManualTime is a TimeAPI whose clock only moves when Advance is called.
// Timers fire synchronously inside Advance, in deadline order.
type ManualTime struct {
	mutex  sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	owner    *ManualTime
	deadline time.Time
	f        func()
	stopped  bool
	fired    bool
}

func (t *manualTimer) Stop() bool {
	t.owner.mutex.Lock()
	defer t.owner.mutex.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func NewManualTime(start time.Time) *ManualTime {
	return &ManualTime{now: start}
}

func (m *ManualTime) Now() time.Time {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.now
}

func (m *ManualTime) AfterFunc(d time.Duration, f func()) Timer {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	t := &manualTimer{owner: m, deadline: m.now.Add(d), f: f}
	m.timers = append(m.timers, t)
	return t
}

// Pending is the number of timers that have neither fired nor been stopped.
func (m *ManualTime) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	count := 0
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			count++
		}
	}
	return count
}

// Advance moves the clock forward by d and fires every timer that came due.
func (m *ManualTime) Advance(d time.Duration) {
	m.mutex.Lock()
	m.now = m.now.Add(d)
	var due []*manualTimer
	var remaining []*manualTimer
	for _, t := range m.timers {
		switch {
		case t.stopped || t.fired:
		case !t.deadline.After(m.now):
			t.fired = true
			due = append(due, t)
		default:
			remaining = append(remaining, t)
		}
	}
	m.timers = remaining
	m.mutex.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, t := range due {
		t.f()
	}
}

// FireAll fires every pending timer regardless of its deadline, including
// ones whose Stop was called.
func (m *ManualTime) FireAll() {
	m.mutex.Lock()
	var due []*manualTimer
	for _, t := range m.timers {
		if t.fired {
			continue
		}
		t.fired = true
		due = append(due, t)
	}
	m.timers = nil
	m.mutex.Unlock()

	for _, t := range due {
		t.f()
	}
}

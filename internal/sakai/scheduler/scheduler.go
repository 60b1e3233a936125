// Package scheduler issues the engine's delayed re-entries.
//
// At most one continuation is outstanding. Timers never run the
// continuation themselves: on expiry they hand a task to the engine's loop
// through Post, and that task runs the continuation only if its handle is
// still the current one.
package scheduler

import (
	"context"
	"sync"
	"time"

	"sakaibot/internal/assert"
	"sakaibot/internal/chrono"
)

// Task runs on the engine's loop.
type Task func(ctx context.Context) error

// Post marshals a task onto the engine's loop.
type Post func(task Task)

type handle struct {
	timer chrono.Timer
	run   Task
	label string
}

type Scheduler struct {
	clock chrono.TimeAPI
	post  Post

	mutex   sync.Mutex
	current *handle
}

func New(clock chrono.TimeAPI, post Post) *Scheduler {
	assert.NotNil(clock, "clock")
	assert.NotNil(post, "post")
	return &Scheduler{clock: clock, post: post}
}

// After replaces any outstanding continuation with run, due after delay.
// label only serves diagnostics.
func (s *Scheduler) After(delay time.Duration, label string, run Task) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.current != nil {
		s.current.timer.Stop()
	}
	h := &handle{run: run, label: label}
	s.current = h
	h.timer = s.clock.AfterFunc(delay, func() {
		s.post(func(ctx context.Context) error { return s.fire(ctx, h) })
	})
}

func (s *Scheduler) fire(ctx context.Context, h *handle) error {
	s.mutex.Lock()
	if s.current != h {
		s.mutex.Unlock()
		return nil
	}
	s.current = nil
	s.mutex.Unlock()

	return h.run(ctx)
}

// Cancel invalidates the outstanding continuation, it reports whether there
// was one.
func (s *Scheduler) Cancel() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.current == nil {
		return false
	}
	s.current.timer.Stop()
	s.current = nil
	return true
}

// Pending returns the label of the outstanding continuation.
func (s *Scheduler) Pending() (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.current == nil {
		return "", false
	}
	return s.current.label, true
}

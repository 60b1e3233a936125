package engine

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopStopped is returned by Call once Run has returned.
var ErrLoopStopped = errors.New("engine loop stopped")

// Task runs on the engine's loop. A task that returns an error stops Run.
type Task func(ctx context.Context) error

// mailbox serializes every mutation of the engine onto the goroutine running
// Run. Post never blocks, tasks run in the order they were posted.
type mailbox struct {
	mutex   sync.Mutex
	tasks   []Task
	notify  chan struct{}
	stopped chan struct{}
	err     error
	running bool
}

func newMailbox() *mailbox {
	return &mailbox{
		notify:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

func (m *mailbox) Post(task Task) {
	m.mutex.Lock()
	m.tasks = append(m.tasks, task)
	m.mutex.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) pop() (Task, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if len(m.tasks) == 0 {
		return nil, false
	}
	task := m.tasks[0]
	m.tasks[0] = nil
	m.tasks = m.tasks[1:]
	return task, true
}

// Run executes tasks until ctx is done or a task fails. It must be called at
// most once.
func (m *mailbox) Run(ctx context.Context) error {
	m.mutex.Lock()
	if m.running {
		m.mutex.Unlock()
		return errors.New("engine loop already running")
	}
	m.running = true
	m.mutex.Unlock()

	err := m.loop(ctx)

	m.mutex.Lock()
	m.err = err
	m.mutex.Unlock()
	close(m.stopped)
	return err
}

func (m *mailbox) loop(ctx context.Context) error {
	for {
		task, ok := m.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.notify:
				continue
			}
		}
		if err := task(ctx); err != nil {
			return err
		}
	}
}

// Call runs fn on the loop and waits for its result. An error from fn is
// returned to the caller and does not stop the loop.
func (m *mailbox) Call(ctx context.Context, fn Task) error {
	done := make(chan error, 1)
	m.Post(func(loopCtx context.Context) error {
		done <- fn(loopCtx)
		return nil
	})
	select {
	case err := <-done:
		return err
	case <-m.stopped:
		m.mutex.Lock()
		defer m.mutex.Unlock()
		return errors.Join(ErrLoopStopped, m.err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped is closed once Run has returned.
func (m *mailbox) Stopped() <-chan struct{} {
	return m.stopped
}

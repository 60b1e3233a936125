// Package admission decides which completion signals of the render source
// the engine acts on.
//
// A completion is admitted when it reports the document the engine is
// waiting for, or when the engine armed a skip-wait beforehand because its
// next step is a scripted mutation that produces no navigation of its own.
package admission

import (
	"net/url"
	"strings"
	"sync"

	"sakaibot/internal/sakai/render"

	"github.com/PuerkitoBio/purell"
)

const normalizeFlags = purell.FlagsSafe |
	purell.FlagsUsuallySafeNonGreedy |
	purell.FlagRemoveDirectoryIndex |
	purell.FlagRemoveFragment |
	purell.FlagSortQuery

// Normalize puts a URL in the form admission compares on. Unparsable input
// is returned trimmed.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return purell.NormalizeURL(parsed, normalizeFlags)
}

// Synchronizer holds the tracked target and the single-use skip-wait.
// Its methods are safe for concurrent use although the engine only calls them
// from its own loop.
type Synchronizer struct {
	mutex  sync.Mutex
	target string
	any    bool
}

func New() *Synchronizer {
	return &Synchronizer{}
}

// Expect tracks url as the document the engine waits for. It does not touch
// an armed skip-wait.
func (s *Synchronizer) Expect(target string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.target = Normalize(target)
}

// ExpectAny arms the skip-wait: the next completion is admitted whatever it
// reports.
func (s *Synchronizer) ExpectAny() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.any = true
}

// Disarm clears a pending skip-wait and reports whether one was armed.
func (s *Synchronizer) Disarm() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	armed := s.any
	s.any = false
	return armed
}

// Armed reports whether a skip-wait is pending.
func (s *Synchronizer) Armed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.any
}

// Target is the normalized tracked url.
func (s *Synchronizer) Target() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.target
}

// Reset forgets the target and the skip-wait.
func (s *Synchronizer) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.target = ""
	s.any = false
}

// Admit decides on one completion. An armed skip-wait admits it and is
// consumed. Otherwise the completion must carry a non-blank title and report
// the tracked target, either as its final or as its requested url.
// Failed navigations are admitted on the same terms so the engine can
// report them.
func (s *Synchronizer) Admit(c render.Completion) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.any {
		s.any = false
		return true
	}
	if s.target == "" {
		return false
	}
	if c.Err == nil && strings.TrimSpace(c.Title) == "" {
		return false
	}
	return Normalize(c.URL) == s.target || Normalize(c.Requested) == s.target
}

// Package fixture is an in-memory render source that serves canned markup.
// It is used by tests and for replaying saved pages offline.
package fixture

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"sakaibot/internal/sakai/render"
	"sakaibot/internal/sakai/render/dom"
	"sakaibot/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Request is what a Handler is asked to respond to.
type Request = dom.Request

// Handler renders the markup of a route. It may inspect the request (form
// values of a submission) and keep state across calls.
type Handler func(req Request) string

// Static is a Handler that always returns body.
func Static(body string) Handler {
	return func(Request) string { return body }
}

// Source serves routes registered with Handle. Completions are delivered
// synchronously from Navigate and Execute unless the source is held.
type Source struct {
	mutex    sync.Mutex
	routes   map[string]Handler
	top      *render.Page
	callback func(render.Completion)
	held     bool
	actions  []Performed
	requests []Request
}

// Performed is an action executed against the source.
type Performed struct {
	Frame  render.FramePath
	Action render.Action
}

func New() *Source {
	return &Source{
		routes: map[string]Handler{},
		top:    &render.Page{},
	}
}

// Handle registers a route. Query strings are part of the key.
func (s *Source) Handle(u string, h Handler) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.routes[u] = h
}

// Hold stops completion delivery until Release is called, completions that
// happen meanwhile are dropped. It emulates a page that never finishes.
func (s *Source) Hold() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.held = true
}

func (s *Source) Release() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.held = false
}

// Emit delivers an arbitrary completion, used to simulate spurious signals.
func (s *Source) Emit(c render.Completion) {
	s.mutex.Lock()
	callback := s.callback
	s.mutex.Unlock()
	if callback != nil {
		callback(c)
	}
}

// Actions returns every action executed so far.
func (s *Source) Actions() []Performed {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]Performed(nil), s.actions...)
}

// Requests returns every request served so far, frames included.
func (s *Source) Requests() []Request {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Source) OnCompleted(callback func(render.Completion)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.callback = callback
}

func (s *Source) Navigate(ctx context.Context, frame render.FramePath, target string) error {
	if _, err := url.Parse(target); err != nil {
		return err
	}
	return s.load(frame, Request{Method: "GET", URL: s.resolve(frame, target)})
}

func (s *Source) Execute(ctx context.Context, frame render.FramePath, action render.Action) error {
	s.mutex.Lock()
	page := s.top.Frame(frame)
	if page == nil || page.Doc == nil {
		s.mutex.Unlock()
		return fmt.Errorf("%w: %s", render.ErrFrameNotFound, frame)
	}
	s.actions = append(s.actions, Performed{Frame: frame, Action: action})

	next, err := dom.Apply(page, action)
	s.mutex.Unlock()

	if err != nil || next == nil {
		return err
	}
	return s.load(frame, *next)
}

func (s *Source) Snapshot(ctx context.Context) (*render.Page, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.top, nil
}

func (s *Source) Close() error { return nil }

func (s *Source) resolve(frame render.FramePath, target string) string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	base := ""
	if page := s.top.Frame(frame); page != nil {
		base = page.URL
	}
	if base == "" && len(frame) > 0 {
		base = s.top.URL
	}
	return htmlutil.Resolve(base, target)
}

func (s *Source) load(frame render.FramePath, req Request) error {
	s.mutex.Lock()
	page, err := s.render(req, 0)
	if err != nil {
		s.mutex.Unlock()
		s.deliver(render.Completion{Requested: req.URL, URL: req.URL, Frame: frame, Err: err})
		return nil
	}

	if len(frame) == 0 {
		s.top = page
	} else {
		parent := s.top.Frame(frame[:len(frame)-1])
		idx := frame[len(frame)-1]
		if parent == nil || idx < 0 || idx >= len(parent.Frames) {
			s.mutex.Unlock()
			return fmt.Errorf("%w: %s", render.ErrFrameNotFound, frame)
		}
		parent.Frames[idx] = page
	}
	s.mutex.Unlock()

	s.deliver(render.Completion{
		Requested: req.URL,
		URL:       page.URL,
		Title:     page.Title,
		Frame:     frame,
	})
	return nil
}

func (s *Source) deliver(c render.Completion) {
	s.mutex.Lock()
	callback := s.callback
	held := s.held
	s.mutex.Unlock()
	if held || callback == nil {
		return
	}
	callback(c)
}

const maxFrameDepth = 4

// render must be called with the mutex held.
func (s *Source) render(req Request, depth int) (*render.Page, error) {
	s.requests = append(s.requests, req)
	handler, ok := s.routes[req.URL]
	if !ok {
		return nil, fmt.Errorf("no route for %s", req.URL)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(handler(req)))
	if err != nil {
		return nil, err
	}
	page := &render.Page{
		URL:   req.URL,
		Title: htmlutil.Text(doc.Find("title").First()),
		Doc:   doc,
	}
	if depth >= maxFrameDepth {
		return page, nil
	}
	doc.Find("iframe, frame").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		child := &render.Page{}
		if src != "" {
			loaded, err := s.render(Request{Method: "GET", URL: htmlutil.Resolve(req.URL, src)}, depth+1)
			if err == nil {
				child = loaded
			}
		}
		page.Frames = append(page.Frames, child)
	})
	return page, nil
}

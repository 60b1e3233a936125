// Package render is the contract between the workflow engine and whatever
// renders the portal (a headless browser, an HTTP emulation or fixtures).
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FramePath addresses a document by frame indexes starting from the top
// document. A nil path is the top document, {1} is the top document's second
// frame, {1, 0} is the first frame nested inside it.
type FramePath []int

var Top FramePath

func (p FramePath) String() string {
	if len(p) == 0 {
		return "top"
	}
	parts := make([]string, len(p))
	for i, idx := range p {
		parts[i] = fmt.Sprint(idx)
	}
	return "frames[" + strings.Join(parts, "][") + "]"
}

// Child returns the path of the idx-th frame of p.
func (p FramePath) Child(idx int) FramePath {
	out := make(FramePath, len(p), len(p)+1)
	copy(out, p)
	return append(out, idx)
}

// Page is a snapshot of a rendered document and its frames.
type Page struct {
	URL    string
	Title  string
	Doc    *goquery.Document
	Frames []*Page
}

// Frame resolves path relative to p, it returns nil when any index is out of
// range.
func (p *Page) Frame(path FramePath) *Page {
	current := p
	for _, idx := range path {
		if current == nil || idx < 0 || idx >= len(current.Frames) {
			return nil
		}
		current = current.Frames[idx]
	}
	return current
}

// Find runs a selector against the document at path, it returns an empty
// selection when the frame does not exist or has no document.
func (p *Page) Find(path FramePath, selector string) *goquery.Selection {
	frame := p.Frame(path)
	if frame == nil || frame.Doc == nil {
		return (&goquery.Selection{}).Find(selector)
	}
	return frame.Doc.Find(selector)
}

// Completion reports that a navigation finished rendering. Sources may
// report completions for sub-frames and for navigations the engine did not
// initiate.
type Completion struct {
	// URL is the document's final location.
	URL string
	// Requested is the URL the navigation was started with, if known.
	Requested string
	Title     string
	Frame     FramePath
	// Err is set when the navigation failed.
	Err error
}

// Action is an in-page mutation that does not itself start a navigation
// through Navigate. Clicks and submits may still cause one.
type Action interface {
	fmt.Stringer
	action()
}

// SetValue sets the value of an input or the text of a textarea.
type SetValue struct {
	Selector string
	Value    string
}

// Click clicks the first element matching Selector.
type Click struct {
	Selector string
}

// Submit submits the form matching Selector.
type Submit struct {
	Selector string
}

// Select marks the options of a select whose value is in Values as selected
// and every other option as unselected.
type Select struct {
	Selector string
	Values   []string
}

// SetChecked sets the checked state of a checkbox or radio.
type SetChecked struct {
	Selector string
	Checked  bool
}

// SetHTML replaces the inner html of an element (rich text editor bodies).
type SetHTML struct {
	Selector string
	HTML     string
}

func (SetValue) action()   {}
func (Click) action()      {}
func (Submit) action()     {}
func (Select) action()     {}
func (SetChecked) action() {}
func (SetHTML) action()    {}

func (a SetValue) String() string   { return fmt.Sprintf("set-value(%s)", a.Selector) }
func (a Click) String() string      { return fmt.Sprintf("click(%s)", a.Selector) }
func (a Submit) String() string     { return fmt.Sprintf("submit(%s)", a.Selector) }
func (a Select) String() string     { return fmt.Sprintf("select(%s=%v)", a.Selector, a.Values) }
func (a SetChecked) String() string { return fmt.Sprintf("set-checked(%s=%v)", a.Selector, a.Checked) }
func (a SetHTML) String() string    { return fmt.Sprintf("set-html(%s)", a.Selector) }

// Source renders the portal.
//
// Navigate and Execute return once the request has been dispatched; the
// outcome arrives later through the completion callback, at most once per
// navigation. Implementations must be safe for use from multiple goroutines.
type Source interface {
	// OnCompleted registers the completion callback, replacing any
	// previous one. The callback may be invoked from any goroutine.
	OnCompleted(callback func(Completion))
	// Navigate loads url into the document at frame.
	Navigate(ctx context.Context, frame FramePath, url string) error
	// Execute performs an action on the document at frame.
	Execute(ctx context.Context, frame FramePath, action Action) error
	// Snapshot returns the current state of the top document and its frames.
	Snapshot(ctx context.Context) (*Page, error)
	Close() error
}

// ErrElementNotFound is returned by Execute when the selector matches
// nothing.
var ErrElementNotFound = fmt.Errorf("element not found")

// ErrFrameNotFound is returned when a FramePath does not resolve.
var ErrFrameNotFound = fmt.Errorf("frame not found")

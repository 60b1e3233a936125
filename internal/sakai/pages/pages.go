// Package pages holds one extractor per portal screen. Every extractor reads
// a render.Page snapshot and either returns what it found or an error
// wrapping ErrStructuralDrift when the screen is not in the expected shape.
//
// Portal tools render inside frames, so extractors locate the frame that
// carries the screen's landmark element instead of assuming fixed frame
// indexes. The frame is returned so the caller can act on that document.
package pages

import (
	"fmt"
	"strings"

	"sakaibot/internal/sakai/render"
	"sakaibot/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

var ErrStructuralDrift = fmt.Errorf("structural drift")

func drift(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructuralDrift, fmt.Sprintf(format, args...))
}

// FindFrame returns the path of the first document, in depth-first order
// starting with the top document, where selector matches.
func FindFrame(page *render.Page, selector string) (render.FramePath, bool) {
	if page == nil {
		return nil, false
	}
	return findFrame(page, render.Top, selector)
}

func findFrame(page *render.Page, path render.FramePath, selector string) (render.FramePath, bool) {
	if page.Doc != nil && page.Doc.Find(selector).Length() > 0 {
		return path, true
	}
	for i, child := range page.Frames {
		if child == nil {
			continue
		}
		if found, ok := findFrame(child, path.Child(i), selector); ok {
			return found, true
		}
	}
	return nil, false
}

// landmark resolves the frame carrying selector and returns its document.
func landmark(page *render.Page, selector string) (render.FramePath, *goquery.Selection, error) {
	path, ok := FindFrame(page, selector)
	if !ok {
		return nil, nil, drift("%s not found", selector)
	}
	return path, page.Frame(path).Doc.Selection, nil
}

// ContainsText reports whether any document of the page contains text.
func ContainsText(page *render.Page, text string) bool {
	if page == nil {
		return false
	}
	if page.Doc != nil && strings.Contains(page.Doc.Text(), text) {
		return true
	}
	for _, child := range page.Frames {
		if ContainsText(child, text) {
			return true
		}
	}
	return false
}

// Banner is the result message a tool shows after a form submission.
type Banner struct {
	Frame   render.FramePath
	Success bool
	Text    string
}

const (
	successBanner = "div.success"
	alertBanner   = "div.alertMessage"
)

// ResultBanner finds the success or alert message of a submission. It
// reports false when the page carries neither.
func ResultBanner(page *render.Page) (Banner, bool) {
	if path, ok := FindFrame(page, alertBanner); ok {
		return Banner{
			Frame: path,
			Text:  htmlutil.Text(page.Find(path, alertBanner).First()),
		}, true
	}
	if path, ok := FindFrame(page, successBanner); ok {
		return Banner{
			Frame:   path,
			Success: true,
			Text:    htmlutil.Text(page.Find(path, successBanner).First()),
		}, true
	}
	return Banner{}, false
}

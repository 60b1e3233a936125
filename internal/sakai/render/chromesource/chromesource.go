// Package chromesource renders the portal in a real headless Chrome through
// the devtools protocol. Scripts on the page run, so controls that only work
// with javascript enabled behave as they would for a user.
package chromesource

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"sakaibot/internal/sakai/render"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("sakai/render/chromesource")

type Options struct {
	// RemoteURL is the devtools endpoint of an already running browser
	// (ws://host:9222), when empty a local browser is started.
	RemoteURL string
	ExecPath  string
	Headless  bool
	UserAgent string
}

type Source struct {
	ctx    context.Context
	cancel context.CancelFunc

	mutex    sync.Mutex
	callback func(render.Completion)
	// requested url of the top document navigation in flight
	pendingTop string
	// frame navigations in flight keyed by FramePath.String()
	pendingFrames map[string]pendingFrame
}

type pendingFrame struct {
	path      render.FramePath
	requested string
}

func New(ctx context.Context, opts Options) (*Source, error) {
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		allocOpts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if opts.ExecPath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
		}
		if opts.UserAgent != "" {
			allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, allocOpts...)
	}

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	s := &Source{
		ctx: browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
		pendingFrames: map[string]pendingFrame{},
	}

	chromedp.ListenTarget(browserCtx, func(ev any) {
		// the listener runs on the event loop, devtools calls from it would
		// deadlock
		switch ev.(type) {
		case *page.EventLoadEventFired:
			go s.reportTop()
		case *page.EventFrameStoppedLoading:
			go s.reportFrames()
		}
	})

	// starts the browser
	if err := chromedp.Run(browserCtx, page.Enable()); err != nil {
		s.cancel()
		return nil, err
	}
	return s, nil
}

func (s *Source) OnCompleted(callback func(render.Completion)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.callback = callback
}

func (s *Source) deliver(c render.Completion) {
	s.mutex.Lock()
	callback := s.callback
	s.mutex.Unlock()
	if callback != nil {
		callback(c)
	}
}

type location struct {
	Found      bool   `json:"found"`
	Href       string `json:"href"`
	Title      string `json:"title"`
	ReadyState string `json:"readyState"`
}

func (s *Source) locate(path render.FramePath) (location, error) {
	var loc location
	script := fmt.Sprintf(`(function() {
		try {
			var w = %s;
			if (!w) return {found: false};
			return {found: true, href: w.location.href, title: w.document.title, readyState: w.document.readyState};
		} catch (e) {
			return {found: false};
		}
	})()`, windowExpr(path))
	err := chromedp.Run(s.ctx, chromedp.Evaluate(script, &loc))
	return loc, err
}

func (s *Source) reportTop() {
	loc, err := s.locate(render.Top)
	if s.ctx.Err() != nil {
		return
	}
	s.mutex.Lock()
	requested := s.pendingTop
	s.pendingTop = ""
	s.mutex.Unlock()

	s.deliver(render.Completion{
		Requested: requested,
		URL:       loc.Href,
		Title:     loc.Title,
		Frame:     render.Top,
		Err:       err,
	})
}

func (s *Source) reportFrames() {
	s.mutex.Lock()
	pending := make([]pendingFrame, 0, len(s.pendingFrames))
	for _, p := range s.pendingFrames {
		pending = append(pending, p)
	}
	s.mutex.Unlock()

	for _, p := range pending {
		loc, err := s.locate(p.path)
		if s.ctx.Err() != nil {
			return
		}
		if err == nil && (!loc.Found || loc.ReadyState != "complete") {
			continue
		}

		s.mutex.Lock()
		current, ok := s.pendingFrames[p.path.String()]
		if ok && current.requested == p.requested {
			delete(s.pendingFrames, p.path.String())
		}
		s.mutex.Unlock()
		if !ok || current.requested != p.requested {
			continue
		}

		s.deliver(render.Completion{
			Requested: p.requested,
			URL:       loc.Href,
			Title:     loc.Title,
			Frame:     p.path,
			Err:       err,
		})
	}
}

func (s *Source) Navigate(ctx context.Context, frame render.FramePath, target string) error {
	ctx, span := tracer.Start(ctx, "chromesource:Navigate")
	defer span.End()
	span.SetAttributes(attribute.String("url", target), attribute.String("frame", frame.String()))

	s.mutex.Lock()
	if len(frame) == 0 {
		s.pendingTop = target
	} else {
		s.pendingFrames[frame.String()] = pendingFrame{path: frame, requested: target}
	}
	s.mutex.Unlock()

	if len(frame) == 0 {
		err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errorText, err := page.Navigate(target).Do(ctx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return fmt.Errorf("navigate %s: %s", target, errorText)
			}
			return nil
		}))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to navigate")
		}
		return err
	}

	encoded, _ := json.Marshal(target)
	var ok bool
	script := fmt.Sprintf(`(function() {
		var w = %s;
		if (!w) return false;
		w.location.href = %s;
		return true;
	})()`, windowExpr(frame), encoded)
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(script, &ok)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to navigate frame")
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", render.ErrFrameNotFound, frame)
	}
	return nil
}

func (s *Source) Execute(ctx context.Context, frame render.FramePath, action render.Action) error {
	ctx, span := tracer.Start(ctx, "chromesource:Execute")
	defer span.End()
	span.SetAttributes(attribute.String("action", action.String()), attribute.String("frame", frame.String()))

	body, selector, err := actionScript(action)
	if err != nil {
		return err
	}
	encodedSelector, _ := json.Marshal(selector)

	var result string
	script := fmt.Sprintf(`(function() {
		var w = %s;
		if (!w) return "no-frame";
		var d = w.document;
		var el = d.querySelector(%s);
		if (!el) return "no-element";
		%s
		return "ok";
	})()`, windowExpr(frame), encodedSelector, body)
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(script, &result)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to execute action")
		return err
	}

	switch result {
	case "no-frame":
		return fmt.Errorf("%w: %s", render.ErrFrameNotFound, frame)
	case "no-element":
		return fmt.Errorf("%w: %s", render.ErrElementNotFound, selector)
	}
	return nil
}

func actionScript(action render.Action) (body string, selector string, err error) {
	quote := func(v any) string {
		out, _ := json.Marshal(v)
		return string(out)
	}
	const changed = `el.dispatchEvent(new Event("input", {bubbles: true})); el.dispatchEvent(new Event("change", {bubbles: true}));`

	switch a := action.(type) {
	case render.SetValue:
		return "el.value = " + quote(a.Value) + "; " + changed, a.Selector, nil
	case render.SetHTML:
		return "el.innerHTML = " + quote(a.HTML) + ";", a.Selector, nil
	case render.SetChecked:
		return "el.checked = " + quote(a.Checked) + "; " + changed, a.Selector, nil
	case render.Select:
		return `var values = ` + quote(a.Values) + `;
			for (var i = 0; i < el.options.length; i++) {
				el.options[i].selected = values.indexOf(el.options[i].value) >= 0;
			}
			` + changed, a.Selector, nil
	case render.Click:
		return "el.click();", a.Selector, nil
	case render.Submit:
		return "if (el.requestSubmit) { el.requestSubmit(); } else { el.submit(); }", a.Selector, nil
	}
	return "", "", fmt.Errorf("unsupported action %s", action)
}

// windowExpr is a javascript expression evaluating to the window of the
// document at path, or null.
func windowExpr(path render.FramePath) string {
	var b strings.Builder
	b.WriteString("(function() { var w = window;")
	for _, idx := range path {
		fmt.Fprintf(&b, " if (!w || w.frames.length <= %d) return null; w = w.frames[%d];", idx, idx)
	}
	b.WriteString(" return w; })()")
	return b.String()
}

type snapshotNode struct {
	URL    string          `json:"url"`
	Title  string          `json:"title"`
	HTML   string          `json:"html"`
	Frames []*snapshotNode `json:"frames"`
}

const snapshotScript = `(function snapshot(w, depth) {
	var node = {url: "", title: "", html: "", frames: []};
	try {
		node.url = w.location.href;
		node.title = w.document.title;
		node.html = w.document.documentElement ? w.document.documentElement.outerHTML : "";
	} catch (e) {
		return node;
	}
	if (depth < 4) {
		for (var i = 0; i < w.frames.length; i++) {
			node.frames.push(snapshot(w.frames[i], depth + 1));
		}
	}
	return node;
})(window, 0)`

func (s *Source) Snapshot(ctx context.Context) (*render.Page, error) {
	ctx, span := tracer.Start(ctx, "chromesource:Snapshot")
	defer span.End()

	var root snapshotNode
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(snapshotScript, &root)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to snapshot")
		return nil, err
	}
	return toPage(&root)
}

func toPage(node *snapshotNode) (*render.Page, error) {
	p := &render.Page{URL: node.URL, Title: node.Title}
	if node.HTML != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(node.HTML))
		if err != nil {
			return nil, err
		}
		p.Doc = doc
	}
	for _, child := range node.Frames {
		frame, err := toPage(child)
		if err != nil {
			return nil, err
		}
		p.Frames = append(p.Frames, frame)
	}
	return p, nil
}

func (s *Source) Close() error {
	s.cancel()
	return nil
}

// Package httpsource renders the portal with plain HTTP requests. Pages are
// parsed with goquery, frames are fetched eagerly and scripted controls are
// emulated by the dom package. Nothing on the page runs.
package httpsource

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"sakaibot/internal/sakai/render"
	"sakaibot/internal/sakai/render/dom"
	"sakaibot/lib/htmlutil"
	"sakaibot/lib/restyutil"
	"sakaibot/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("sakai/render/httpsource")

type Options struct {
	BaseURL string
	// RequestsPerSecond limits the request rate, 2 when zero.
	RequestsPerSecond float64
	Timeout           time.Duration
	// DumpDir receives every http exchange when set.
	DumpDir string
}

type Source struct {
	http *resty.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mutex       sync.Mutex
	top         *render.Page
	callback    func(render.Completion)
	generations map[string]uint64
}

func New(opts Options) (*Source, error) {
	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseURL.Hostname()))
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	// max burst >= 2 just means that no requests will be dropped
	rateLimiter := rate.NewLimiter(rate.Limit(rps), 2)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, "sakai/render/httpsource/http")
	if opts.DumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(opts.DumpDir)
		if err != nil {
			return nil, fmt.Errorf("dump dir: %w", err)
		}
		restyutil.Dump(client, output)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Source{
		http:        client,
		ctx:         ctx,
		cancel:      cancel,
		top:         &render.Page{},
		generations: map[string]uint64{},
	}, nil
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
	s.mutex.Lock()
	base := s.top.URL
	if page := s.top.Frame(frame); page != nil && page.URL != "" {
		base = page.URL
	}
	s.mutex.Unlock()

	s.start(frame, dom.Request{Method: "GET", URL: htmlutil.Resolve(base, target)})
	return nil
}

func (s *Source) Execute(ctx context.Context, frame render.FramePath, action render.Action) error {
	s.mutex.Lock()
	page := s.top.Frame(frame)
	if page == nil || page.Doc == nil {
		s.mutex.Unlock()
		return fmt.Errorf("%w: %s", render.ErrFrameNotFound, frame)
	}
	next, err := dom.Apply(page, action)
	s.mutex.Unlock()

	if err != nil || next == nil {
		return err
	}
	s.start(frame, *next)
	return nil
}

func (s *Source) Snapshot(ctx context.Context) (*render.Page, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.top, nil
}

// Close cancels in-flight requests and waits for them to finish. No
// completion is delivered after Close returns.
func (s *Source) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// start fetches req in the background. Only the latest navigation of a frame
// is applied; earlier ones still in flight are discarded when they land.
func (s *Source) start(frame render.FramePath, req dom.Request) {
	key := frame.String()
	s.mutex.Lock()
	s.generations[key]++
	generation := s.generations[key]
	s.mutex.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		page, err := s.fetch(s.ctx, req, 0)
		if s.ctx.Err() != nil {
			return
		}

		s.mutex.Lock()
		if s.generations[key] != generation {
			s.mutex.Unlock()
			return
		}
		completion := render.Completion{Requested: req.URL, URL: req.URL, Frame: frame, Err: err}
		if err == nil {
			err = s.attach(frame, page)
			completion.Err = err
			if err == nil {
				completion.URL = page.URL
				completion.Title = page.Title
			}
		}
		callback := s.callback
		s.mutex.Unlock()

		if callback != nil {
			callback(completion)
		}
	}()
}

// attach must be called with the mutex held.
func (s *Source) attach(frame render.FramePath, page *render.Page) error {
	if len(frame) == 0 {
		s.top = page
		return nil
	}
	parent := s.top.Frame(frame[:len(frame)-1])
	idx := frame[len(frame)-1]
	if parent == nil || idx < 0 || idx >= len(parent.Frames) {
		return fmt.Errorf("%w: %s", render.ErrFrameNotFound, frame)
	}
	parent.Frames[idx] = page
	return nil
}

const maxFrameDepth = 3

func (s *Source) fetch(ctx context.Context, req dom.Request, depth int) (*render.Page, error) {
	ctx, span := tracer.Start(ctx, "httpsource:fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("method", req.Method),
		attribute.String("url", req.URL),
		attribute.Int("depth", depth),
	)

	r := s.http.R().SetContext(ctx)
	var res *resty.Response
	var err error
	if req.Method == "POST" {
		res, err = r.SetFormDataFromValues(req.Form).Post(req.URL)
	} else {
		res, err = r.Get(req.URL)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, err
	}
	if res.IsError() {
		err := fmt.Errorf("%s: %s", req.URL, res.Status())
		span.SetStatus(codes.Error, res.Status())
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}

	final := req.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		final = res.RawResponse.Request.URL.String()
	}
	page := &render.Page{
		URL:   final,
		Title: htmlutil.Text(doc.Find("title").First()),
		Doc:   doc,
	}
	if depth >= maxFrameDepth {
		return page, nil
	}

	doc.Find("iframe, frame").Each(func(_ int, sel *goquery.Selection) {
		src := strings.TrimSpace(sel.AttrOr("src", ""))
		child := &render.Page{}
		if src != "" && !strings.HasPrefix(src, "javascript:") && src != "about:blank" {
			loaded, err := s.fetch(ctx, dom.Request{Method: "GET", URL: htmlutil.Resolve(final, src)}, depth+1)
			if err != nil {
				span.RecordError(err)
			} else {
				child = loaded
			}
		}
		page.Frames = append(page.Frames, child)
	})
	return page, nil
}

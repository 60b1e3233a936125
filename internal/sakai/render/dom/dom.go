// Package dom applies render actions to a parsed document without a script
// engine. Clicks and submissions are turned into the request a browser would
// have made.
package dom

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"sakaibot/internal/sakai/render"
	"sakaibot/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Request is a navigation caused by an action.
type Request struct {
	Method string
	URL    string
	Form   url.Values
}

var locationAssignRegex = regexp.MustCompile(`location(?:\.href)?\s*=\s*('|")(.*?)('|")`)

// Apply performs action against page. It returns the request the action
// causes, or nil when the action only mutates the document.
func Apply(page *render.Page, action render.Action) (*Request, error) {
	if page == nil || page.Doc == nil {
		return nil, render.ErrFrameNotFound
	}

	switch a := action.(type) {
	case render.SetValue:
		return nil, mutate(page.Doc, a.Selector, func(sel *goquery.Selection) {
			if goquery.NodeName(sel) == "textarea" {
				sel.SetText(a.Value)
				return
			}
			sel.SetAttr("value", a.Value)
		})
	case render.SetHTML:
		return nil, mutate(page.Doc, a.Selector, func(sel *goquery.Selection) {
			sel.SetHtml(a.HTML)
		})
	case render.SetChecked:
		return nil, mutate(page.Doc, a.Selector, func(sel *goquery.Selection) {
			if a.Checked {
				sel.SetAttr("checked", "checked")
			} else {
				sel.RemoveAttr("checked")
			}
		})
	case render.Select:
		return nil, mutate(page.Doc, a.Selector, func(sel *goquery.Selection) {
			sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
				value, ok := opt.Attr("value")
				if !ok {
					value = htmlutil.Text(opt)
				}
				if contains(a.Values, value) {
					opt.SetAttr("selected", "selected")
				} else {
					opt.RemoveAttr("selected")
				}
			})
		})
	case render.Click:
		return click(page, a.Selector)
	case render.Submit:
		form := page.Doc.Find(a.Selector).First()
		if form.Length() == 0 {
			return nil, fmt.Errorf("%w: %s", render.ErrElementNotFound, a.Selector)
		}
		return Submission(page.URL, form, nil), nil
	}
	return nil, fmt.Errorf("unsupported action %s", action)
}

func mutate(doc *goquery.Document, selector string, f func(sel *goquery.Selection)) error {
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return fmt.Errorf("%w: %s", render.ErrElementNotFound, selector)
	}
	f(sel.First())
	return nil
}

func click(page *render.Page, selector string) (*Request, error) {
	sel := page.Doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", render.ErrElementNotFound, selector)
	}

	// handlers of the form onclick="window.location = '...'"
	if onclick, ok := sel.Attr("onclick"); ok {
		groups := locationAssignRegex.FindStringSubmatch(onclick)
		if len(groups) >= 3 && groups[2] != "" {
			return &Request{Method: "GET", URL: htmlutil.Resolve(page.URL, groups[2])}, nil
		}
	}

	name := goquery.NodeName(sel)
	if href, ok := sel.Attr("href"); ok && name == "a" {
		if href == "" || href == "#" || strings.HasPrefix(href, "javascript:") {
			return nil, nil
		}
		return &Request{Method: "GET", URL: htmlutil.Resolve(page.URL, href)}, nil
	}

	kind := strings.ToLower(sel.AttrOr("type", ""))
	isSubmit := (name == "input" && (kind == "submit" || kind == "image")) ||
		(name == "button" && (kind == "" || kind == "submit"))
	if !isSubmit {
		return nil, nil
	}
	form := sel.Closest("form")
	if form.Length() == 0 {
		return nil, nil
	}
	return Submission(page.URL, form, sel), nil
}

// Submission collects the request a browser would send for form, including
// the clicked submitter when there is one.
func Submission(base string, form *goquery.Selection, submitter *goquery.Selection) *Request {
	values := htmlutil.FormValues(form)
	if submitter != nil {
		if name, ok := submitter.Attr("name"); ok && name != "" {
			values.Set(name, submitter.AttrOr("value", ""))
		}
	}

	method := strings.ToUpper(form.AttrOr("method", "GET"))
	target := htmlutil.Resolve(base, form.AttrOr("action", base))
	if method != "POST" {
		return &Request{Method: "GET", URL: withQuery(target, values)}
	}
	return &Request{Method: method, URL: target, Form: values}
}

func withQuery(target string, values url.Values) string {
	if len(values) == 0 {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	u.RawQuery = values.Encode()
	return u.String()
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

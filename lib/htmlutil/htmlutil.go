package htmlutil

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

type Anchor struct {
	Name string
	Href string
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || c == '\n' || c == '\t' {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// Normalize trims text, drops non-printable runes and collapses inner runs
// of whitespace into a single space.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = removeNonPrintable(text)
	text = strings.TrimSpace(text)
	return innerWhitespace.ReplaceAllString(text, " ")
}

// Text is the normalized text content of a selection.
func Text(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
	}
	return Normalize(buffer.String())
}

// GetAnchors resolves every anchor in sel against base (which may be nil).
// Anchors without an href are skipped.
func GetAnchors(sel *goquery.Selection, base *url.URL) []Anchor {
	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = a.Val
				break
			}
		}
		if href == "" {
			continue
		}

		link, err := url.Parse(href)
		if err != nil {
			continue
		}
		if base != nil {
			link = base.ResolveReference(link)
		}

		anchors = append(anchors, Anchor{
			Name: Normalize(GetText(n)),
			Href: link.String(),
		})
	}
	return anchors
}

// Resolve returns href resolved against base, or href unchanged when either
// fails to parse.
func Resolve(base, href string) string {
	if base == "" {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// HeaderCells indexes the cells of a table row by their "headers" attribute.
// Cells without the attribute are ignored; the first cell wins on duplicates.
func HeaderCells(row *goquery.Selection) map[string]*goquery.Selection {
	cells := map[string]*goquery.Selection{}
	row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
		header, ok := cell.Attr("headers")
		if !ok {
			return
		}
		header = strings.TrimSpace(header)
		if _, exists := cells[header]; exists {
			return
		}
		cells[header] = cell
	})
	return cells
}

// HasClasses reports whether the selection's first node carries every class
// in classes.
func HasClasses(sel *goquery.Selection, classes ...string) bool {
	for _, c := range classes {
		if !sel.HasClass(c) {
			return false
		}
	}
	return true
}

// FormValues reads the successful controls of a form, submit buttons are
// left out.
func FormValues(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input, textarea, select").Each(func(_ int, field *goquery.Selection) {
		name, ok := field.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := field.Attr("disabled"); disabled {
			return
		}
		switch goquery.NodeName(field) {
		case "textarea":
			values.Add(name, field.Text())
		case "select":
			field.Find("option[selected]").Each(func(_ int, opt *goquery.Selection) {
				values.Add(name, opt.AttrOr("value", Text(opt)))
			})
		default:
			switch strings.ToLower(field.AttrOr("type", "text")) {
			case "submit", "image", "button", "reset", "file":
			case "checkbox", "radio":
				if _, checked := field.Attr("checked"); checked {
					values.Add(name, field.AttrOr("value", "on"))
				}
			default:
				values.Add(name, field.AttrOr("value", ""))
			}
		}
	})
	return values
}

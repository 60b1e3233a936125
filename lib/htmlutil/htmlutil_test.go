package htmlutil

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func mustDoc(t testing.TB, body string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in     string
		expect string
	}{
		{in: "  hello  ", expect: "hello"},
		{in: "a \n\t  b", expect: "a b"},
		{in: "Doe, John (jd1)", expect: "Doe, John (jd1)"},
		{in: "", expect: ""},
	}
	for _, c := range cases {
		require.Equal(t, c.expect, Normalize(c.in))
	}
}

func TestGetAnchors(t *testing.T) {
	doc := mustDoc(t, `<ul>
		<li><a href="/portal/site/a">  Site   A </a></li>
		<li><a>no href</a></li>
		<li><a href="https://other.example/x">X</a></li>
	</ul>`)
	base, _ := url.Parse("https://sakai.example/portal")

	anchors := GetAnchors(doc.Find("a"), base)
	require.Equal(t, []Anchor{
		{Name: "Site A", Href: "https://sakai.example/portal/site/a"},
		{Name: "X", Href: "https://other.example/x"},
	}, anchors)
}

func TestHeaderCells(t *testing.T) {
	doc := mustDoc(t, `<table><tr>
		<td headers="title">first</td>
		<td>ignored</td>
		<td headers=" status ">Draft</td>
		<td headers="title">second</td>
	</tr></table>`)

	cells := HeaderCells(doc.Find("tr"))
	require.Len(t, cells, 2)
	require.Equal(t, "first", Text(cells["title"]))
	require.Equal(t, "Draft", Text(cells["status"]))
}

func TestResolve(t *testing.T) {
	require.Equal(t, "https://s.example/a/b", Resolve("https://s.example/a/", "b"))
	require.Equal(t, "b", Resolve("", "b"))
}

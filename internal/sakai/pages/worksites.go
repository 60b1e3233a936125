package pages

import (
	"sakaibot/internal/sakai/model"
	"sakaibot/internal/sakai/render"
	"sakaibot/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// WorksiteList is one page of the membership tool's worksite listing.
type WorksiteList struct {
	Frame     render.FramePath
	Worksites []model.Worksite
	// Next is the selector of the next-page control, empty on the last page.
	Next string
}

const (
	worksiteTable = "#currentSites"
	worksiteNext  = "input[name=eventSubmit_doList_next]"
)

// ParseWorksites reads every cell with headers="worksite" in row order. Cells
// without an anchor or without text are skipped.
func ParseWorksites(page *render.Page) (WorksiteList, error) {
	path, doc, err := landmark(page, worksiteTable)
	if err != nil {
		return WorksiteList{}, err
	}
	base := page.Frame(path).URL

	list := WorksiteList{Frame: path}
	doc.Find(worksiteTable).First().Find("td[headers=worksite]").Each(func(_ int, cell *goquery.Selection) {
		anchor := cell.Find("a").First()
		href, ok := anchor.Attr("href")
		if !ok || href == "" {
			return
		}
		name := htmlutil.Text(cell)
		if name == "" {
			return
		}
		list.Worksites = append(list.Worksites, model.Worksite{
			Name: name,
			Link: htmlutil.Resolve(base, href),
		})
	})

	next := doc.Find(worksiteNext).First()
	if next.Length() > 0 {
		if _, disabled := next.Attr("disabled"); !disabled {
			list.Next = worksiteNext
		}
	}
	return list, nil
}

package pages

import (
	"regexp"
	"strings"

	"sakaibot/internal/sakai/model"
	"sakaibot/internal/sakai/render"
	"sakaibot/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	assignmentsForm  = "form#listAssignmentsForm"
	listTable        = "table.listHier.lines.nolines"
	assignmentsReset = "input[name=eventSubmit_doView_reset]"
	newAssignment    = "a[title='Add']"
)

// AssignmentList is the assignments tool's listing.
type AssignmentList struct {
	Frame render.FramePath
	Items []*model.Assignment
	// ResetFilter is set when the listing is split by a filter (more than
	// one listing table) and names the control that restores the full list.
	ResetFilter string
	// Add is the selector of the "add assignment" control, when present.
	Add string
}

var submissionsLocationRegex = regexp.MustCompile(`(?i)window.location\s*=\s*('|")(.*?)('|")`)

// ParseAssignments reads the assignment rows. A row is kept only when every
// column is present: title, status, open and due dates, the submissions
// link and its count, and the grading scale. Duplicate titles are returned
// as they appear, rejecting them is up to the caller.
func ParseAssignments(page *render.Page) (AssignmentList, error) {
	path, doc, err := landmark(page, assignmentsForm)
	if err != nil {
		return AssignmentList{}, err
	}
	base := page.Frame(path).URL
	form := doc.Find(assignmentsForm).First()

	list := AssignmentList{Frame: path}
	tables := form.Find(listTable)
	if tables.Length() > 1 && form.Find(assignmentsReset).Length() > 0 {
		list.ResetFilter = assignmentsReset
	}
	if doc.Find(newAssignment).Length() > 0 {
		list.Add = newAssignment
	}

	tables.Each(func(_ int, table *goquery.Selection) {
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := htmlutil.HeaderCells(row)
			titleCell, ok := cells["title"]
			if !ok {
				return
			}
			title := htmlutil.Text(titleCell.Find("a").First())

			var link, count string
			if cell, ok := cells["num_submissions"]; ok {
				link = submissionsLink(base, cell.Find("a").First())
				count = htmlutil.Text(cell)
			}

			status := cellText(cells, "status")
			open := cellText(cells, "openDate")
			due := cellText(cells, "dueDate")
			scale := cellText(cells, "maxgrade")
			if title == "" || status == "" || open == "" || due == "" || link == "" || count == "" || scale == "" {
				return
			}
			list.Items = append(list.Items, model.NewAssignment(title, link, status, open, due, count, scale))
		})
	})
	return list, nil
}

// submissionsLink reads the target of the submissions-count anchor from its
// onclick handler, or from href when that is a real location.
func submissionsLink(base string, anchor *goquery.Selection) string {
	if anchor.Length() == 0 {
		return ""
	}
	if groups := submissionsLocationRegex.FindStringSubmatch(anchor.AttrOr("onclick", "")); len(groups) >= 3 {
		return htmlutil.Resolve(base, strings.TrimSpace(groups[2]))
	}
	href := strings.TrimSpace(anchor.AttrOr("href", ""))
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	return htmlutil.Resolve(base, href)
}

func cellText(cells map[string]*goquery.Selection, header string) string {
	cell, ok := cells[header]
	if !ok {
		return ""
	}
	return htmlutil.Text(cell)
}

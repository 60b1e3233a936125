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
	submissionsForm = "form#listSubmissionsForm"
	groupFilter     = "select#viewgroup"
	attachmentsIcon = "attachments.gif"
	releasedIcon    = "checkon.gif"
)

// SubmissionList is the submissions listing of one assignment.
type SubmissionList struct {
	Frame    render.FramePath
	Students []model.StudentInfo
}

var studentIDRegex = regexp.MustCompile(`\(([\w|\.|\s]*)\)`)

// SplitStudentLabel splits "Doe, John (jdoe)" into its name and id.
func SplitStudentLabel(label string) (name, id string) {
	label = strings.TrimSpace(label)
	groups := studentIDRegex.FindStringSubmatch(label)
	if len(groups) < 2 {
		return "", ""
	}
	id = strings.TrimSpace(groups[1])
	if idx := strings.Index(label, " ("); idx >= 0 {
		name = strings.TrimSpace(label[:idx])
	}
	return name, id
}

// ParseSubmissions reads the student rows of a submissions listing. Rows
// without both a name and an id are skipped.
func ParseSubmissions(page *render.Page) (SubmissionList, error) {
	path, doc, err := landmark(page, submissionsForm)
	if err != nil {
		return SubmissionList{}, err
	}
	base := page.Frame(path).URL

	list := SubmissionList{Frame: path}
	doc.Find(submissionsForm).First().Find(listTable).Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := htmlutil.HeaderCells(row)
		nameCell, ok := cells["studentname"]
		if !ok {
			return
		}
		name, id := SplitStudentLabel(htmlutil.Text(nameCell))
		if name == "" || id == "" {
			return
		}

		info := model.StudentInfo{
			Name:      name,
			ID:        id,
			Submitted: cellText(cells, "submitted"),
			Status:    cellText(cells, "status"),
			Grade:     cellText(cells, "grade"),
		}
		if href, ok := nameCell.Find("a").First().Attr("href"); ok {
			info.GradeLink = htmlutil.Resolve(base, strings.TrimSpace(href))
		}
		if cell, ok := cells["gradereleased"]; ok {
			html, _ := cell.Html()
			info.Released = strings.Contains(html, releasedIcon)
		}
		rowHTML, _ := row.Html()
		info.FilesAttached = strings.Contains(rowHTML, attachmentsIcon)

		list.Students = append(list.Students, info)
	})
	return list, nil
}

// GroupFilter is the section/group selector above a submissions listing.
type GroupFilter struct {
	Frame    render.FramePath
	Selector string
	// Form is the selector of the form that applies the filter.
	Form string
	// Options maps option labels to their values.
	Options map[string]string
	// Selected is the value of the currently selected option.
	Selected string
}

func FindGroupFilter(page *render.Page) (GroupFilter, bool) {
	path, ok := FindFrame(page, groupFilter)
	if !ok {
		return GroupFilter{}, false
	}
	filter := GroupFilter{
		Frame:    path,
		Selector: groupFilter,
		Form:     "form",
		Options:  map[string]string{},
	}
	sel := page.Find(path, groupFilter).First()
	if id, ok := sel.Closest("form").Attr("id"); ok && id != "" {
		filter.Form = "form#" + id
	}
	sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
		label := htmlutil.Text(opt)
		value := opt.AttrOr("value", label)
		filter.Options[label] = value
		if _, selected := opt.Attr("selected"); selected {
			filter.Selected = value
		}
	})
	return filter, true
}

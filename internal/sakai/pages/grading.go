package pages

import (
	"regexp"
	"strings"
	"time"

	"sakaibot/internal/sakai/model"
	"sakaibot/internal/sakai/render"
	"sakaibot/lib/htmlutil"
	"sakaibot/lib/timezone"

	"github.com/PuerkitoBio/goquery"
)

const (
	gradeForm      = "form#gradeForm"
	attachmentList = "ul.attachList.indnt1"
	feedbackField  = "textarea#grade_submission_feedback_comment"
	gradeField     = "#grade"
	saveGrade      = "input[name=eventSubmit_doSave_grade_submission]"
	releaseGrade   = "input[name=eventSubmit_doRelease_grade_submission]"
)

// GradePage is a student's grading screen for one assignment.
type GradePage struct {
	Frame render.FramePath
	Files []model.SubmittedFile
	// Comment is the current text of the feedback field.
	Comment string
	// selectors of the form controls, empty when absent
	CommentField string
	GradeField   string
	Save         string
	Release      string
}

// ParseGradePage fails with drift when the grade form is missing.
func ParseGradePage(page *render.Page) (GradePage, error) {
	path, doc, err := landmark(page, gradeForm)
	if err != nil {
		return GradePage{}, err
	}
	form := doc.Find(gradeForm).First()

	result := GradePage{
		Frame: path,
		Files: ParseAttachments(form, page.Frame(path).URL),
	}
	if field := form.Find(feedbackField).First(); field.Length() > 0 {
		result.CommentField = feedbackField
		result.Comment = strings.TrimSpace(field.Text())
	}
	if form.Find(gradeField).Length() > 0 {
		result.GradeField = gradeField
	}
	if form.Find(saveGrade).Length() > 0 {
		result.Save = saveGrade
	}
	if form.Find(releaseGrade).Length() > 0 {
		result.Release = releaseGrade
	}
	return result, nil
}

// IsSelect reports whether the grade is picked from a list (letter grades)
// rather than typed in.
func (g GradePage) IsSelect(page *render.Page) bool {
	return goquery.NodeName(page.Find(g.Frame, g.GradeField).First()) == "select"
}

var attachmentMetaRegex = regexp.MustCompile(`\(([^;()]*);\s*([^()]*)\)`)

// layouts the portal has been seen to render attachment dates with
var attachmentDateLayouts = []string{
	"Jan 2, 2006 3:04 pm",
	"Jan 2, 2006 3:04 PM",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006",
}

func parseAttachmentDate(text string) time.Time {
	text = strings.TrimSpace(text)
	for _, layout := range attachmentDateLayouts {
		if t, err := time.ParseInLocation(layout, text, timezone.Location()); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ParseAttachments reads the attachment lists under sel. Each entry's size and
// date come from the "(size; date)" text that follows its anchor. Files are
// returned newest first, in descending canonical order.
func ParseAttachments(sel *goquery.Selection, base string) []model.SubmittedFile {
	var files []model.SubmittedFile
	sel.Find(attachmentList).Find("a").Each(func(_ int, anchor *goquery.Selection) {
		href, ok := anchor.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		file := model.SubmittedFile{
			Name: htmlutil.Text(anchor),
			Link: htmlutil.Resolve(base, strings.TrimSpace(href)),
		}
		item := anchor.Closest("li")
		if item.Length() > 0 {
			if groups := attachmentMetaRegex.FindStringSubmatch(htmlutil.Text(item)); len(groups) >= 3 {
				file.Size = strings.TrimSpace(groups[1])
				file.Date = parseAttachmentDate(groups[2])
			}
		}
		files = append(files, file)
	})
	model.SortFiles(files)
	return files
}

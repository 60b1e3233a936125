package pages

import (
	"strings"
	"time"

	"sakaibot/internal/sakai/model"
	"sakaibot/internal/sakai/render"
	"sakaibot/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	publishedTests   = "table[id$='publishedAssessments']"
	testSettingsLink = "a.settingsLink"
	testSettingsForm = "form#assessmentSettingsAction"
	testEndDate      = "input[id$='endDate']"
	testSave         = "input[id$='saveAndPublish']"
)

// TestDateLayout is how the tests tool renders and expects dates.
const TestDateLayout = "01/02/2006 03:04:05 PM"

type TestList struct {
	Frame render.FramePath
	Items []model.TestItem
}

// ParseTests reads the published tests in listing order. Titles repeat
// freely, tests are told apart by position only.
func ParseTests(page *render.Page) (TestList, error) {
	path, doc, err := landmark(page, publishedTests)
	if err != nil {
		return TestList{}, err
	}
	base := page.Frame(path).URL

	list := TestList{Frame: path}
	doc.Find(publishedTests).First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := htmlutil.HeaderCells(row)
		title := cellText(cells, "title")
		if title == "" {
			return
		}
		item := model.TestItem{Title: title}
		if href, ok := row.Find(testSettingsLink).First().Attr("href"); ok {
			href = strings.TrimSpace(href)
			if href != "" && href != "#" && !strings.HasPrefix(href, "javascript:") {
				item.SettingsLink = htmlutil.Resolve(base, href)
			}
		}
		list.Items = append(list.Items, item)
	})
	return list, nil
}

// TestSettings is the settings screen of a published test.
type TestSettings struct {
	Frame   render.FramePath
	EndDate string
	Save    string
	// Due is the current due date, zero when blank or unparsable.
	Due time.Time
}

func ParseTestSettings(page *render.Page, loc *time.Location) (TestSettings, error) {
	path, doc, err := landmark(page, testSettingsForm)
	if err != nil {
		return TestSettings{}, err
	}
	form := doc.Find(testSettingsForm).First()
	end := form.Find(testEndDate).First()
	if end.Length() == 0 || form.Find(testSave).Length() == 0 {
		return TestSettings{}, drift("test settings without %s or %s", testEndDate, testSave)
	}
	settings := TestSettings{Frame: path, EndDate: testEndDate, Save: testSave}
	if due, err := time.ParseInLocation(TestDateLayout, strings.TrimSpace(end.AttrOr("value", "")), loc); err == nil {
		settings.Due = due
	}
	return settings, nil
}

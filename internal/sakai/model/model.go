// Package model holds the entities extracted from the portal.
package model

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	StatusDraft        = "Draft"
	StatusNoSubmission = "No Submission"
	CourseRoleStudent  = "Student"
)

// Titled is implemented by entities that are identified by a title.
type Titled interface {
	GetTitle() string
}

type Worksite struct {
	Name string
	Link string
}

// SiteTools are the navigation anchors of a worksite's tools. Any of them
// may be empty when the worksite does not carry that tool.
type SiteTools struct {
	Assignments string
	SiteInfo    string
	Tests       string
	Users       string
}

// SubmittedFile is an attachment on a student's submission. Date is the zero
// time when the portal's date text could not be parsed.
type SubmittedFile struct {
	Name string
	Link string
	Size string
	Date time.Time
}

func (f SubmittedFile) Extension() string {
	return strings.ToUpper(strings.TrimPrefix(filepath.Ext(f.Name), "."))
}

// Canonical renders the file as `yyyy.MM.dd [EXT] "name"`, or just the quoted
// name when the date is unknown. Submission lists sort on this form.
func (f SubmittedFile) Canonical() string {
	if f.Date.IsZero() {
		return fmt.Sprintf("%q", f.Name)
	}
	return fmt.Sprintf("%s [%s] %q", f.Date.Format("2006.01.02"), f.Extension(), f.Name)
}

// SortFiles orders files by their canonical form, descending (newest first).
func SortFiles(files []SubmittedFile) {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Canonical() > files[j].Canonical()
	})
}

type StudentInfo struct {
	Name          string
	ID            string
	Submitted     string
	Status        string
	Grade         string
	Released      bool
	GradeLink     string
	FilesAttached bool
	Files         []SubmittedFile
	TutorComment  string
}

// Same reports whether both records describe the same student, only id and
// name take part in the comparison.
func (s StudentInfo) Same(other StudentInfo) bool {
	return s.ID == other.ID && s.Name == other.Name
}

// IsEmpty reports a record with nothing handed in and nothing graded.
func (s StudentInfo) IsEmpty() bool {
	return !s.FilesAttached &&
		!s.Released &&
		s.Grade == "" &&
		s.Submitted == "" &&
		s.Status == StatusNoSubmission
}

func (s StudentInfo) Label() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.ID)
}

type Assignment struct {
	Title string
	Link  string
	// Status is the portal's status column, e.g. "Open" or "Draft".
	Status string
	Open   string
	Due    string
	// InNew is the submissions-count label, e.g. "3/10".
	InNew string
	Scale string

	Students map[string]*StudentInfo
}

func NewAssignment(title, link, status, open, due, innew, scale string) *Assignment {
	return &Assignment{
		Title:    title,
		Link:     link,
		Status:   status,
		Open:     open,
		Due:      due,
		InNew:    innew,
		Scale:    scale,
		Students: map[string]*StudentInfo{},
	}
}

func (a *Assignment) GetTitle() string { return a.Title }

func (a *Assignment) IsDraft() bool {
	return a.Status == StatusDraft
}

// StudentIDs returns the ids of the assignment's students in ascending order.
func (a *Assignment) StudentIDs() []string {
	ids := make([]string, 0, len(a.Students))
	for id := range a.Students {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Records returns copies of the student records ordered by id.
func (a *Assignment) Records() []StudentInfo {
	records := make([]StudentInfo, 0, len(a.Students))
	for _, id := range a.StudentIDs() {
		records = append(records, *a.Students[id])
	}
	return records
}

type TestItem struct {
	Title string
	// SettingsLink opens the published settings of the test, it may be empty
	// when the settings action is rendered as a script-only control.
	SettingsLink string
}

func (t TestItem) GetTitle() string { return t.Title }

type UserInfo struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	Password     string
	Role         string
	CourseRole   string
	CourseStatus string
}

func (u UserInfo) IsStudent() bool {
	return u.CourseRole == CourseRoleStudent
}

func (u UserInfo) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type Group struct {
	Name string
	// ID is the value of the group's selection checkbox on the groups editor.
	ID string
}

// DateParts is a date split into the fields of the portal's date pickers.
type DateParts struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
}

func DatePartsOf(t time.Time) DateParts {
	return DateParts{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
	}
}

// Hour12 returns the hour on a 12 hour clock and whether it is PM.
func (d DateParts) Hour12() (hour int, pm bool) {
	hour = d.Hour % 12
	if hour == 0 {
		hour = 12
	}
	return hour, d.Hour >= 12
}

// NewAssignmentItem is the input of the assignment creation form.
type NewAssignmentItem struct {
	Title       string
	Description string
	// Grade is the maximum number of points, empty for an ungraded item.
	Grade string
	Open  DateParts
	Due   DateParts
	Close DateParts
}

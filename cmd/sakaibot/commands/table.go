package commands

import (
	"io"
	"strings"

	"sakaibot/internal/robot"
	"sakaibot/internal/sakai/model"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable(out io.Writer, header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row(header))
	return tw
}

func renderNames(out io.Writer, header string, names []string) {
	tw := newTable(out, "#", header)
	for i, name := range names {
		tw.AppendRow(table.Row{i + 1, name})
	}
	tw.Render()
}

func files(info model.StudentInfo) string {
	names := make([]string, len(info.Files))
	for i, f := range info.Files {
		names[i] = f.Canonical()
	}
	return strings.Join(names, "\n")
}

func renderRecords(out io.Writer, title string, records []model.StudentInfo) {
	tw := newTable(out, "ID", "Name", "Status", "Submitted", "Grade", "Released", "Files", "Comment")
	tw.SetTitle(title)
	for _, r := range records {
		tw.AppendRow(table.Row{r.ID, r.Name, r.Status, r.Submitted, r.Grade, r.Released, files(r), r.TutorComment})
	}
	tw.Render()
}

func renderAssignments(out io.Writer, rosters []robot.Roster) {
	tw := newTable(out, "Title", "Status", "Open", "Due", "Submissions", "Scale")
	for _, r := range rosters {
		tw.AppendRow(table.Row{r.Title, r.Status, r.Open, r.Due, r.InNew, r.Scale})
	}
	tw.Render()
}

func renderUsers(out io.Writer, users []model.UserInfo) {
	tw := newTable(out, "ID", "Last name", "First name", "Role", "Status")
	for _, u := range users {
		tw.AppendRow(table.Row{u.ID, u.LastName, u.FirstName, u.CourseRole, u.CourseStatus})
	}
	tw.Render()
}

package pages

import (
	"fmt"
	"strconv"

	"sakaibot/internal/sakai/model"
	"sakaibot/internal/sakai/render"
)

const (
	assignmentForm         = "form#newAssignmentForm"
	assignmentTitle        = "input#new_assignment_title"
	assignmentInstructions = "textarea#new_assignment_instructions"
	assignmentGradeType    = "select#new_assignment_grade_type"
	assignmentGradePoints  = "input#new_assignment_grade_points"
	assignmentPost         = "input[name=post]"
	editorBody             = "body.cke_editable"

	// value of the points option of the grade type select
	gradeTypePoints = "3"
)

// AssignmentForm is the new assignment screen.
type AssignmentForm struct {
	Frame render.FramePath
	// Editor is the frame of the rich text editor of the instructions,
	// nil while the editor has not rendered yet.
	Editor render.FramePath
	Post   string

	hasInstructions bool
	hasGrade        bool
}

func ParseAssignmentForm(page *render.Page) (AssignmentForm, error) {
	path, doc, err := landmark(page, assignmentForm)
	if err != nil {
		return AssignmentForm{}, err
	}
	form := doc.Find(assignmentForm).First()
	if form.Find(assignmentTitle).Length() == 0 || form.Find(assignmentPost).Length() == 0 {
		return AssignmentForm{}, drift("assignment form without %s or %s", assignmentTitle, assignmentPost)
	}
	result := AssignmentForm{
		Frame:           path,
		Post:            assignmentPost,
		hasInstructions: form.Find(assignmentInstructions).Length() > 0,
		hasGrade:        form.Find(assignmentGradeType).Length() > 0 && form.Find(assignmentGradePoints).Length() > 0,
	}
	if editor, ok := FindFrame(page.Frame(path), editorBody); ok && len(editor) > 0 {
		result.Editor = append(append(render.FramePath{}, path...), editor...)
	}
	return result, nil
}

// EditorReady reports whether the instructions editor has rendered.
func (f AssignmentForm) EditorReady() bool {
	return f.Editor != nil
}

func dateActions(prefix string, d model.DateParts) []render.Action {
	hour, pm := d.Hour12()
	ampm := "AM"
	if pm {
		ampm = "PM"
	}
	field := func(name string) string {
		return fmt.Sprintf("select#new_assignment_%s%s", prefix, name)
	}
	return []render.Action{
		render.Select{Selector: field("month"), Values: []string{strconv.Itoa(d.Month)}},
		render.Select{Selector: field("day"), Values: []string{strconv.Itoa(d.Day)}},
		render.Select{Selector: field("year"), Values: []string{strconv.Itoa(d.Year)}},
		render.Select{Selector: field("hour"), Values: []string{strconv.Itoa(hour)}},
		render.Select{Selector: field("min"), Values: []string{fmt.Sprintf("%02d", d.Minute)}},
		render.Select{Selector: field("ampm"), Values: []string{ampm}},
	}
}

// FillAssignment lists the actions on the form's own document that enter
// item. The instructions are also typed into the plain textarea so that the
// form posts them when the editor never renders.
func (f AssignmentForm) FillAssignment(item model.NewAssignmentItem) []render.Action {
	actions := []render.Action{
		render.SetValue{Selector: assignmentTitle, Value: item.Title},
	}
	if f.hasInstructions {
		actions = append(actions, render.SetValue{Selector: assignmentInstructions, Value: item.Description})
	}
	actions = append(actions, dateActions("open", item.Open)...)
	actions = append(actions, dateActions("due", item.Due)...)
	actions = append(actions, dateActions("close", item.Close)...)
	if item.Grade != "" && f.hasGrade {
		actions = append(actions,
			render.Select{Selector: assignmentGradeType, Values: []string{gradeTypePoints}},
			render.SetValue{Selector: assignmentGradePoints, Value: item.Grade},
		)
	}
	return actions
}

// FillEditor is the action that types the instructions into the editor.
func (f AssignmentForm) FillEditor(item model.NewAssignmentItem) render.Action {
	return render.SetHTML{Selector: editorBody, HTML: item.Description}
}

// Package session holds everything discovered about the portal during one
// login. A State is owned by a single engine and is not safe for concurrent
// use.
package session

import (
	"sort"
	"strings"

	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/model"
)

type State struct {
	worksites     map[string]model.Worksite
	worksiteOrder []string

	selected *model.Worksite
	tools    model.SiteTools

	assignments     map[string]*model.Assignment
	assignmentOrder []string

	participants []model.UserInfo
	tests        map[int]model.TestItem
	groups       []model.Group
}

func New() *State {
	s := &State{worksites: map[string]model.Worksite{}}
	s.Reset()
	return s
}

// Reset drops everything that belongs to the selected worksite. The list of
// worksites survives since it belongs to the login.
func (s *State) Reset() {
	s.selected = nil
	s.tools = model.SiteTools{}
	s.assignments = map[string]*model.Assignment{}
	s.assignmentOrder = nil
	s.participants = nil
	s.tests = map[int]model.TestItem{}
	s.groups = nil
}

// ClearWorksites forgets every known worksite, used before a fresh listing.
func (s *State) ClearWorksites() {
	s.worksites = map[string]model.Worksite{}
	s.worksiteOrder = nil
}

// AddWorksite records a worksite, it reports false and keeps the existing
// entry when the name was already seen.
func (s *State) AddWorksite(w model.Worksite) bool {
	if w.Name == "" {
		return false
	}
	if _, exists := s.worksites[w.Name]; exists {
		return false
	}
	s.worksites[w.Name] = w
	s.worksiteOrder = append(s.worksiteOrder, w.Name)
	return true
}

// Worksite looks a worksite up by name ignoring surrounding whitespace.
func (s *State) Worksite(name string) (model.Worksite, bool) {
	name = strings.TrimSpace(name)
	if w, ok := s.worksites[name]; ok {
		return w, true
	}
	for _, key := range s.worksiteOrder {
		if strings.TrimSpace(key) == name {
			return s.worksites[key], true
		}
	}
	return model.Worksite{}, false
}

// WorksiteNames returns worksite names in discovery order.
func (s *State) WorksiteNames() []string {
	out := make([]string, len(s.worksiteOrder))
	copy(out, s.worksiteOrder)
	return out
}

func (s *State) Select(w model.Worksite) {
	s.Reset()
	s.selected = &w
}

// Selected returns the selected worksite, if any.
func (s *State) Selected() (model.Worksite, bool) {
	if s.selected == nil {
		return model.Worksite{}, false
	}
	return *s.selected, true
}

func (s *State) SetTools(tools model.SiteTools) { s.tools = tools }
func (s *State) Tools() model.SiteTools         { return s.tools }

func (s *State) ClearAssignments() {
	s.assignments = map[string]*model.Assignment{}
	s.assignmentOrder = nil
}

// AddAssignment records an assignment. A title that is already present is
// rejected with TwoAssignmentsWithTheSameName and the first entry is kept.
func (s *State) AddAssignment(a *model.Assignment) error {
	if _, exists := s.assignments[a.Title]; exists {
		return failure.New(
			failure.TwoAssignmentsWithTheSameName,
			"assignment %q is listed more than once",
			a.Title,
		)
	}
	if a.Students == nil {
		a.Students = map[string]*model.StudentInfo{}
	}
	s.assignments[a.Title] = a
	s.assignmentOrder = append(s.assignmentOrder, a.Title)
	return nil
}

// Assignment looks an assignment up by title ignoring surrounding
// whitespace.
func (s *State) Assignment(title string) (*model.Assignment, bool) {
	if a, ok := s.assignments[title]; ok {
		return a, true
	}
	title = strings.TrimSpace(title)
	for _, key := range s.assignmentOrder {
		if strings.TrimSpace(key) == title {
			return s.assignments[key], true
		}
	}
	return nil, false
}

// Assignments returns the assignments in listing order.
func (s *State) Assignments() []*model.Assignment {
	out := make([]*model.Assignment, 0, len(s.assignmentOrder))
	for _, title := range s.assignmentOrder {
		out = append(out, s.assignments[title])
	}
	return out
}

func (s *State) AssignmentNames() []string {
	out := make([]string, len(s.assignmentOrder))
	copy(out, s.assignmentOrder)
	return out
}

// AssignmentDrafts returns the draft flag of each assignment, aligned with
// AssignmentNames.
func (s *State) AssignmentDrafts() []bool {
	out := make([]bool, len(s.assignmentOrder))
	for i, title := range s.assignmentOrder {
		out[i] = s.assignments[title].IsDraft()
	}
	return out
}

// ResetStudents clears the student map of an assignment, it is a no-op for
// unknown titles.
func (s *State) ResetStudents(title string) {
	a, ok := s.assignments[title]
	if !ok {
		return
	}
	a.Students = map[string]*model.StudentInfo{}
}

// PutStudent stores a student record under an assignment. Records with an
// empty id or name are refused.
func (s *State) PutStudent(title string, info model.StudentInfo) bool {
	a, ok := s.assignments[title]
	if !ok || info.ID == "" || info.Name == "" {
		return false
	}
	a.Students[info.ID] = &info
	return true
}

// Student returns the live record of a student under an assignment so that
// follow-up reads (attachments, comments) can fill it in.
func (s *State) Student(title, id string) (*model.StudentInfo, bool) {
	a, ok := s.assignments[title]
	if !ok {
		return nil, false
	}
	info, ok := a.Students[id]
	return info, ok
}

// Submissions returns copies of the records of an assignment ordered by id.
func (s *State) Submissions(title string) []model.StudentInfo {
	a, ok := s.assignments[title]
	if !ok {
		return nil
	}
	return a.Records()
}

// StudentIDs returns every known student id in ascending order without
// duplicates. The participant list is used when it was scanned, otherwise the
// ids come from the assignments' student maps.
func (s *State) StudentIDs() []string {
	seen := map[string]struct{}{}
	if len(s.participants) > 0 {
		for _, p := range s.participants {
			if p.IsStudent() && p.ID != "" {
				seen[p.ID] = struct{}{}
			}
		}
	} else {
		for _, a := range s.assignments {
			for id, info := range a.Students {
				if id != "" && info.Name != "" {
					seen[id] = struct{}{}
				}
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StudentName resolves a student id to a display name.
func (s *State) StudentName(id string) (string, bool) {
	for _, p := range s.participants {
		if p.ID == id {
			return p.FullName(), true
		}
	}
	for _, title := range s.assignmentOrder {
		if info, ok := s.assignments[title].Students[id]; ok && info.Name != "" {
			return info.Name, true
		}
	}
	return "", false
}

func (s *State) ResetParticipants() { s.participants = nil }

func (s *State) AddParticipant(u model.UserInfo) {
	s.participants = append(s.participants, u)
}

func (s *State) Participants() []model.UserInfo {
	out := make([]model.UserInfo, len(s.participants))
	copy(out, s.participants)
	return out
}

func (s *State) ClearTests() { s.tests = map[int]model.TestItem{} }

// AddTest records a test under the next discovery index and returns it.
func (s *State) AddTest(item model.TestItem) int {
	idx := len(s.tests)
	s.tests[idx] = item
	return idx
}

func (s *State) Test(idx int) (model.TestItem, bool) {
	item, ok := s.tests[idx]
	return item, ok
}

// FindTest returns the index of the first test with the given title.
func (s *State) FindTest(title string) (int, bool) {
	for i := 0; i < len(s.tests); i++ {
		if strings.TrimSpace(s.tests[i].Title) == strings.TrimSpace(title) {
			return i, true
		}
	}
	return -1, false
}

// TestNames returns test titles in discovery order.
func (s *State) TestNames() []string {
	out := make([]string, len(s.tests))
	for i := range out {
		out[i] = s.tests[i].Title
	}
	return out
}

func (s *State) SetGroups(groups []model.Group) {
	s.groups = append([]model.Group(nil), groups...)
}

func (s *State) Groups() []model.Group {
	return append([]model.Group(nil), s.groups...)
}

func (s *State) GroupNames() []string {
	out := make([]string, len(s.groups))
	for i, g := range s.groups {
		out[i] = g.Name
	}
	return out
}

package engine

import (
	"context"
	"fmt"

	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/model"
	"sakaibot/lib/textutil"
)

func (e *Engine) buildHandlers() map[State]func(ctx context.Context) error {
	return map[State]func(ctx context.Context) error{
		LogIn:                 e.handleLogIn,
		GetMembershipLink:     e.handleMembershipLink,
		ParseWorksites:        e.handleWorksites,
		ParseSelectedWorksite: e.handleSelectedWorksite,

		ParseAssignments:       e.handleAssignments,
		LoadStudents:           e.handleRoster,
		ReloadStudents:         e.handleRoster,
		LoadStudentAttachments: e.handleAttachments,

		ChoiceGroupAtAssignment:  e.handleChoiceGroup,
		ReadStudentSubmissions:   e.handleStudentSubmissions,
		ReadIndividualSubmission: e.handleIndividualSubmission,
		WaitIndividualSubmission: e.handleWaitSubmission,
		ReadSubmission:           e.handleSubmission,

		SelectStudentToGrade: e.handleSelectStudent,
		GradeStudent:         e.handleGradeStudent,
		GradeResultMessage:   e.handleGradeResult,

		OpenManageGroupsSection: e.handleManageGroups,
		AddParticipantUsernames: e.handleParticipantWizard,
		LoadGroupsEditor:        e.handleGroupsEditor,
		AddNewGroup:             e.handleNewGroup,
		NewGroupAdded:           e.handleGroupAdded,
		ConfirmGroupDeletion:    e.handleGroupDeletion,

		GetParticipants:      e.handleParticipants,
		RemovingParticipants: e.handleRemoveParticipants,
		RemovedParticipants:  e.handleRemovedParticipants,

		GoToAdministrationWorkspaceUsersTab: e.handleUsersTab,
		CreateUser:                          e.handleCreateUser,
		SetNewUserInfo:                      e.handleNewUserInfo,
		RenameStudent:                       e.handleRenameStudent,
		ContinueStudentRenaming:             e.handleContinueRenaming,
		SetNewFirstNameAndLastName:          e.handleNewName,

		ParseTestsAndQuizzes:       e.handleTests,
		OpenTestAndQuizzesSettings: e.handleTestSettings,
		SetTestAndQuizzesDueDate:   e.handleTestDueDate,

		AddAssignmentItems:              e.handleAddAssignment,
		ContinueAddAssignmentItems:      e.handleAssignmentForm,
		AddAssignmentItemsResultMessage: e.handleAssignmentPosted,

		LogOut: e.handleLogOut,
	}
}

// tool returns the link of a tool of the selected worksite.
func (e *Engine) tool(link, name string) (string, error) {
	w, ok := e.session.Selected()
	if !ok {
		return "", failure.New(failure.WorksiteNotFound, "no worksite selected")
	}
	if link == "" {
		return "", failure.New(failure.UnableToFindToolLink, "worksite %q has no %s tool", w.Name, name)
	}
	return link, nil
}

// assignment resolves a title of the selected worksite, ignoring
// surrounding whitespace.
func (e *Engine) assignment(title string) (*model.Assignment, error) {
	if a, ok := e.session.Assignment(title); ok {
		return a, nil
	}
	msg := fmt.Sprintf("assignment %q not found", title)
	if suggestion := textutil.Suggest(title, e.session.AssignmentNames()); suggestion != "" {
		msg += fmt.Sprintf(", did you mean %q?", suggestion)
	}
	return nil, failure.New(failure.AssignmentNotFound, "%s", msg)
}

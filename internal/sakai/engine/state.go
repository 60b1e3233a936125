package engine

// State is the step of the workflow the engine is in. The handler of the
// state runs on every admitted completion and on every continuation that
// re-enters it.
type State int

const (
	Idle State = iota
	// the next admitted completion is swallowed, then the engine moves to
	// its resume state
	Busy
	// a continuation is pending, completions are not admitted
	Waiting
	// the last operation was cancelled
	Stop

	LogIn
	GetMembershipLink
	ParseWorksites
	ParseSelectedWorksite

	ParseAssignments
	LoadStudents
	ReloadStudents
	LoadStudentAttachments

	ChoiceGroupAtAssignment
	ReadStudentSubmissions
	ReadIndividualSubmission
	WaitIndividualSubmission
	ReadSubmission

	SelectStudentToGrade
	GradeStudent
	GradeResultMessage

	OpenManageGroupsSection
	AddParticipantUsernames
	LoadGroupsEditor
	AddNewGroup
	NewGroupAdded
	ConfirmGroupDeletion

	GetParticipants
	RemovingParticipants
	RemovedParticipants

	GoToAdministrationWorkspaceUsersTab
	CreateUser
	SetNewUserInfo
	RenameStudent
	ContinueStudentRenaming
	SetNewFirstNameAndLastName

	ParseTestsAndQuizzes
	OpenTestAndQuizzesSettings
	SetTestAndQuizzesDueDate

	AddAssignmentItems
	ContinueAddAssignmentItems
	AddAssignmentItemsResultMessage

	LogOut
)

var stateNames = map[State]string{
	Idle:    "Idle",
	Busy:    "Busy",
	Waiting: "Waiting",
	Stop:    "Stop",

	LogIn:                 "LogIn",
	GetMembershipLink:     "GetMembershipLink",
	ParseWorksites:        "ParseWorksites",
	ParseSelectedWorksite: "ParseSelectedWorksite",

	ParseAssignments:       "ParseAssignments",
	LoadStudents:           "LoadStudents",
	ReloadStudents:         "ReloadStudents",
	LoadStudentAttachments: "LoadStudentAttachments",

	ChoiceGroupAtAssignment:  "ChoiceGroupAtAssignment",
	ReadStudentSubmissions:   "ReadStudentSubmissions",
	ReadIndividualSubmission: "ReadIndividualSubmission",
	WaitIndividualSubmission: "WaitIndividualSubmission",
	ReadSubmission:           "ReadSubmission",

	SelectStudentToGrade: "SelectStudentToGrade",
	GradeStudent:         "GradeStudent",
	GradeResultMessage:   "GradeResultMessage",

	OpenManageGroupsSection: "OpenManageGroupsSection",
	AddParticipantUsernames: "AddParticipantUsernames",
	LoadGroupsEditor:        "LoadGroupsEditor",
	AddNewGroup:             "AddNewGroup",
	NewGroupAdded:           "NewGroupAdded",
	ConfirmGroupDeletion:    "ConfirmGroupDeletion",

	GetParticipants:      "GetParticipants",
	RemovingParticipants: "RemovingParticipants",
	RemovedParticipants:  "RemovedParticipants",

	GoToAdministrationWorkspaceUsersTab: "GoToAdministrationWorkspaceUsersTab",
	CreateUser:                          "CreateUser",
	SetNewUserInfo:                      "SetNewUserInfo",
	RenameStudent:                       "RenameStudent",
	ContinueStudentRenaming:             "ContinueStudentRenaming",
	SetNewFirstNameAndLastName:          "SetNewFirstNameAndLastName",

	ParseTestsAndQuizzes:       "ParseTestsAndQuizzes",
	OpenTestAndQuizzesSettings: "OpenTestAndQuizzesSettings",
	SetTestAndQuizzesDueDate:   "SetTestAndQuizzesDueDate",

	AddAssignmentItems:              "AddAssignmentItems",
	ContinueAddAssignmentItems:      "ContinueAddAssignmentItems",
	AddAssignmentItemsResultMessage: "AddAssignmentItemsResultMessage",

	LogOut: "LogOut",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// idle reports whether a new operation may start.
func (s State) idle() bool {
	return s == Idle || s == Stop
}

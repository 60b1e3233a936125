// Package failure is the error taxonomy reported by the workflow engine.
package failure

import (
	"errors"
	"fmt"
)

// Kind names a class of failure. Kinds are comparable with errors.Is against
// any *Error carrying them.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	// navigation target unreachable or malformed
	IncorrectSakaiURL Kind = "IncorrectSakaiURL"
	// the post-login page carries the portal's invalid login marker
	IncorrectLoginOrPassword   Kind = "IncorrectLoginOrPassword"
	UnableToFindMembership     Kind = "UnableToFindMembership"
	UnableToFindLinkToUsersTab Kind = "UnableToFindLinkToUsersTab"
	// a worksite tool (assignments, site info, tests) anchor is missing
	UnableToFindToolLink Kind = "UnableToFindToolLink"
	// benign, reported as a warning only
	WorksiteNameAlreadyExist      Kind = "WorksiteNameAlreadyExist"
	WorksiteNotFound              Kind = "WorksiteNotFound"
	AssignmentNotFound            Kind = "AssignmentNotFound"
	StudentNotFound               Kind = "StudentNotFound"
	TestNotFound                  Kind = "TestNotFound"
	GroupNotFound                 Kind = "GroupNotFound"
	TwoAssignmentsWithTheSameName Kind = "TwoAssignmentsWithTheSameName"
	GradeFrameWasntFound          Kind = "GradeFrameWasntFound"
	GradeMessageWasntFound        Kind = "GradeMessageWasntFound"
	GradeUnsuccessful             Kind = "GradeUnsuccessful"
	// the user editor answered a save with an alert
	UserNotSaved Kind = "UserNotSaved"
	// the portal answered a form submission with an alert
	SubmissionRejected Kind = "SubmissionRejected"
	// a page did not have the shape its adapter expects
	StructuralDrift Kind = "StructuralDrift"
	// a command was issued while another operation is in flight
	OperationRejected Kind = "OperationRejected"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	var kind Kind
	if errors.As(err, &kind) {
		return kind
	}
	return ""
}

// Package service exposes the robot over connect. Messages are plain structs
// carried as JSON.
package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sakaibot/internal/assert"
	"sakaibot/internal/robot"
	"sakaibot/internal/sakai/events"
	"sakaibot/internal/sakai/failure"
	"sakaibot/internal/sakai/model"
	"sakaibot/internal/store"
	"sakaibot/internal/telemetry"

	"connectrpc.com/connect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("sakaibot/internal/service")

const report_service_call = "call"

var errInvalidToken = errors.New("invalid access token")

// RobotAPI is the part of the robot the service drives.
type RobotAPI interface {
	Worksites(ctx context.Context) ([]string, error)
	SelectWorksite(ctx context.Context, name string) error
	Assignments(ctx context.Context) (events.AssignmentItemsReady, error)
	Students(ctx context.Context, title string) ([]robot.Roster, error)
	Submissions(ctx context.Context, assignment, filter string, isGroup bool) (events.SubmissionsReady, error)
	WriteSubmissions(ctx context.Context, assignment string, comments map[string]string) (events.SubmissionsReady, error)
	Grade(ctx context.Context, assignment string, marks map[string]string) ([]events.StudentGraded, error)
	Groups(ctx context.Context) ([]string, error)
	CreateGroup(ctx context.Context, name string, studentIDs []string) error
	DeleteGroup(ctx context.Context, name string) error
	Participants(ctx context.Context) ([]model.UserInfo, error)
	RemoveParticipants(ctx context.Context, ids []string) ([]string, error)
	Tests(ctx context.Context) ([]string, error)
	SetTestDelay(ctx context.Context, name string, minutes int) (events.DelayOfTestAssigned, error)
	AddAssignment(ctx context.Context, item model.NewAssignmentItem) (events.AddNewAssignmentItem, error)
	CreateUser(ctx context.Context, info model.UserInfo) (string, error)
	RenameUser(ctx context.Context, id, first, last string) error
}

// SnapshotAPI reads stored submission snapshots.
type SnapshotAPI interface {
	Latest(ctx context.Context, worksite, assignment string, n int) ([]store.Snapshot, error)
}

const ServiceName = "sakaibot.v1.RobotService"

const (
	WorksitesProcedure          = "/" + ServiceName + "/Worksites"
	SelectWorksiteProcedure     = "/" + ServiceName + "/SelectWorksite"
	AssignmentsProcedure        = "/" + ServiceName + "/Assignments"
	StudentsProcedure           = "/" + ServiceName + "/Students"
	SubmissionsProcedure        = "/" + ServiceName + "/Submissions"
	CommentsProcedure           = "/" + ServiceName + "/Comments"
	GradeProcedure              = "/" + ServiceName + "/Grade"
	GroupsProcedure             = "/" + ServiceName + "/Groups"
	CreateGroupProcedure        = "/" + ServiceName + "/CreateGroup"
	DeleteGroupProcedure        = "/" + ServiceName + "/DeleteGroup"
	ParticipantsProcedure       = "/" + ServiceName + "/Participants"
	RemoveParticipantsProcedure = "/" + ServiceName + "/RemoveParticipants"
	TestsProcedure              = "/" + ServiceName + "/Tests"
	SetTestDelayProcedure       = "/" + ServiceName + "/SetTestDelay"
	AddAssignmentProcedure      = "/" + ServiceName + "/AddAssignment"
	CreateUserProcedure         = "/" + ServiceName + "/CreateUser"
	RenameUserProcedure         = "/" + ServiceName + "/RenameUser"
	SnapshotsProcedure          = "/" + ServiceName + "/Snapshots"
)

type Empty struct{}

type NamesResponse struct {
	Names []string `json:"names"`
}

type SelectWorksiteRequest struct {
	Name string `json:"name"`
}

type AssignmentsResponse struct {
	Names  []string `json:"names"`
	Drafts []bool   `json:"drafts"`
}

type StudentsRequest struct {
	Assignment string `json:"assignment"`
}

type StudentsResponse struct {
	Rosters []robot.Roster `json:"rosters"`
}

type SubmissionsRequest struct {
	Assignment string `json:"assignment"`
	Filter     string `json:"filter"`
	IsGroup    bool   `json:"is_group"`
}

type SubmissionsResponse struct {
	Assignment string              `json:"assignment"`
	Records    []model.StudentInfo `json:"records"`
}

type CommentsRequest struct {
	Assignment string            `json:"assignment"`
	Comments   map[string]string `json:"comments"`
}

type GradeRequest struct {
	Assignment string            `json:"assignment"`
	Marks      map[string]string `json:"marks"`
}

type GradeResult struct {
	StudentID string `json:"student_id"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

type GradeResponse struct {
	Results []GradeResult `json:"results"`
}

type GroupRequest struct {
	Name       string   `json:"name"`
	StudentIDs []string `json:"student_ids"`
}

type ParticipantsResponse struct {
	Participants []model.UserInfo `json:"participants"`
}

type IDsMessage struct {
	IDs []string `json:"ids"`
}

type SetTestDelayRequest struct {
	Name    string `json:"name"`
	Minutes int    `json:"minutes"`
}

type SetTestDelayResponse struct {
	Name string    `json:"name"`
	Due  time.Time `json:"due"`
}

type AddAssignmentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CreateUserResponse struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

type RenameUserRequest struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type SnapshotsRequest struct {
	Worksite   string `json:"worksite"`
	Assignment string `json:"assignment"`
	Limit      int    `json:"limit"`
}

type SnapshotsResponse struct {
	Snapshots []store.Snapshot `json:"snapshots"`
}

type Service struct {
	robot     RobotAPI
	snapshots SnapshotAPI
	tel       telemetry.API
	token     string
}

type Option func(s *Service)

// WithSnapshots serves the Snapshots procedure from api.
func WithSnapshots(api SnapshotAPI) Option {
	return func(s *Service) {
		s.snapshots = api
	}
}

// WithAccessToken requires every request to carry token.
func WithAccessToken(token string) Option {
	return func(s *Service) {
		s.token = token
	}
}

func NewService(robot RobotAPI, tel telemetry.API, options ...Option) Service {
	assert.NotNil(robot, "robot")
	assert.NotNil(tel, "telemetry")

	s := Service{
		robot: robot,
		tel:   telemetry.NewScopedAPI("service", tel),
	}
	for _, opt := range options {
		opt(&s)
	}
	return s
}

// connectError maps domain failures onto connect codes.
func connectError(err error) error {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, robot.ErrStopped):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, robot.ErrEngineStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, store.ErrNoSnapshot):
		return connect.NewError(connect.CodeNotFound, err)
	}

	switch failure.KindOf(err) {
	case failure.WorksiteNotFound,
		failure.AssignmentNotFound,
		failure.StudentNotFound,
		failure.TestNotFound,
		failure.GroupNotFound:
		return connect.NewError(connect.CodeNotFound, err)
	case failure.WorksiteNameAlreadyExist:
		return connect.NewError(connect.CodeAlreadyExists, err)
	case failure.OperationRejected:
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case failure.IncorrectLoginOrPassword:
		return connect.NewError(connect.CodePermissionDenied, err)
	case failure.SubmissionRejected, failure.UserNotSaved, failure.GradeUnsuccessful:
		return connect.NewError(connect.CodeAborted, err)
	case "":
		return connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewError(connect.CodeUnavailable, err)
}

func unary[Req, Res any](s Service, mux *http.ServeMux, procedure string, fn func(ctx context.Context, req *Req) (*Res, error)) {
	mux.Handle(procedure, connect.NewUnaryHandler(
		procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			ctx, span := tracer.Start(ctx, procedure)
			defer span.End()

			res, err := fn(ctx, req.Msg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				s.tel.ReportWarning(report_service_call, procedure, err)
				return nil, connectError(err)
			}
			return connect.NewResponse(res), nil
		},
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(newGenericAuthInterceptor(bearerToken(s.token))),
	))
}

// Register mounts every procedure on mux.
func (s Service) Register(mux *http.ServeMux) {
	unary(s, mux, WorksitesProcedure, func(ctx context.Context, _ *Empty) (*NamesResponse, error) {
		names, err := s.robot.Worksites(ctx)
		return &NamesResponse{Names: names}, err
	})
	unary(s, mux, SelectWorksiteProcedure, func(ctx context.Context, req *SelectWorksiteRequest) (*Empty, error) {
		return &Empty{}, s.robot.SelectWorksite(ctx, req.Name)
	})
	unary(s, mux, AssignmentsProcedure, func(ctx context.Context, _ *Empty) (*AssignmentsResponse, error) {
		ready, err := s.robot.Assignments(ctx)
		return &AssignmentsResponse{Names: ready.Names, Drafts: ready.Drafts}, err
	})
	unary(s, mux, StudentsProcedure, func(ctx context.Context, req *StudentsRequest) (*StudentsResponse, error) {
		rosters, err := s.robot.Students(ctx, req.Assignment)
		return &StudentsResponse{Rosters: rosters}, err
	})
	unary(s, mux, SubmissionsProcedure, func(ctx context.Context, req *SubmissionsRequest) (*SubmissionsResponse, error) {
		ready, err := s.robot.Submissions(ctx, req.Assignment, req.Filter, req.IsGroup)
		return &SubmissionsResponse{Assignment: ready.Assignment, Records: ready.Records}, err
	})
	unary(s, mux, CommentsProcedure, func(ctx context.Context, req *CommentsRequest) (*SubmissionsResponse, error) {
		ready, err := s.robot.WriteSubmissions(ctx, req.Assignment, req.Comments)
		return &SubmissionsResponse{Assignment: ready.Assignment, Records: ready.Records}, err
	})
	unary(s, mux, GradeProcedure, func(ctx context.Context, req *GradeRequest) (*GradeResponse, error) {
		graded, err := s.robot.Grade(ctx, req.Assignment, req.Marks)
		res := &GradeResponse{}
		for _, g := range graded {
			res.Results = append(res.Results, GradeResult{StudentID: g.StudentID, Success: g.Success, Message: g.Message})
		}
		return res, err
	})
	unary(s, mux, GroupsProcedure, func(ctx context.Context, _ *Empty) (*NamesResponse, error) {
		names, err := s.robot.Groups(ctx)
		return &NamesResponse{Names: names}, err
	})
	unary(s, mux, CreateGroupProcedure, func(ctx context.Context, req *GroupRequest) (*Empty, error) {
		return &Empty{}, s.robot.CreateGroup(ctx, req.Name, req.StudentIDs)
	})
	unary(s, mux, DeleteGroupProcedure, func(ctx context.Context, req *GroupRequest) (*Empty, error) {
		return &Empty{}, s.robot.DeleteGroup(ctx, req.Name)
	})
	unary(s, mux, ParticipantsProcedure, func(ctx context.Context, _ *Empty) (*ParticipantsResponse, error) {
		participants, err := s.robot.Participants(ctx)
		return &ParticipantsResponse{Participants: participants}, err
	})
	unary(s, mux, RemoveParticipantsProcedure, func(ctx context.Context, req *IDsMessage) (*IDsMessage, error) {
		removed, err := s.robot.RemoveParticipants(ctx, req.IDs)
		return &IDsMessage{IDs: removed}, err
	})
	unary(s, mux, TestsProcedure, func(ctx context.Context, _ *Empty) (*NamesResponse, error) {
		names, err := s.robot.Tests(ctx)
		return &NamesResponse{Names: names}, err
	})
	unary(s, mux, SetTestDelayProcedure, func(ctx context.Context, req *SetTestDelayRequest) (*SetTestDelayResponse, error) {
		assigned, err := s.robot.SetTestDelay(ctx, req.Name, req.Minutes)
		return &SetTestDelayResponse{Name: assigned.Name, Due: assigned.Due}, err
	})
	unary(s, mux, AddAssignmentProcedure, func(ctx context.Context, req *model.NewAssignmentItem) (*AddAssignmentResponse, error) {
		added, err := s.robot.AddAssignment(ctx, *req)
		return &AddAssignmentResponse{Success: added.Success, Message: added.Message}, err
	})
	unary(s, mux, CreateUserProcedure, func(ctx context.Context, req *model.UserInfo) (*CreateUserResponse, error) {
		password, err := s.robot.CreateUser(ctx, *req)
		return &CreateUserResponse{ID: req.ID, Password: password}, err
	})
	unary(s, mux, RenameUserProcedure, func(ctx context.Context, req *RenameUserRequest) (*Empty, error) {
		return &Empty{}, s.robot.RenameUser(ctx, req.ID, req.FirstName, req.LastName)
	})
	unary(s, mux, SnapshotsProcedure, func(ctx context.Context, req *SnapshotsRequest) (*SnapshotsResponse, error) {
		if s.snapshots == nil {
			return nil, connect.NewError(connect.CodeUnimplemented, errors.New("no snapshot store configured"))
		}
		limit := req.Limit
		if limit <= 0 {
			limit = 1
		}
		snapshots, err := s.snapshots.Latest(ctx, req.Worksite, req.Assignment, limit)
		return &SnapshotsResponse{Snapshots: snapshots}, err
	})
}

// Call invokes a procedure of a service at baseURL.
func Call[Req, Res any](ctx context.Context, client connect.HTTPClient, baseURL, procedure string, req *Req, options ...connect.ClientOption) (*Res, error) {
	options = append([]connect.ClientOption{WithJSON()}, options...)
	res, err := connect.NewClient[Req, Res](client, baseURL+procedure, options...).
		CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

// Package store keeps what the robot read from the portal: the worksites,
// the assignments of each worksite and timestamped snapshots of the
// submissions of an assignment.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"sakaibot/internal/assert"
	"sakaibot/internal/chrono"
	"sakaibot/internal/sakai/model"
	"sakaibot/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed schema.sql
var Schema string

var tracer = otel.Tracer("sakaibot/internal/store")

const (
	report_db_query      = "db.query"
	report_make_snapshot = "make-snapshot"
)

// ErrNoSnapshot is returned when an assignment was never snapshotted.
var ErrNoSnapshot = errors.New("no snapshot")

// Assignment is the stored row of an assignment listing.
type Assignment struct {
	Worksite string
	Title    string
	Status   string
	Open     string
	Due      string
	InNew    string
	Scale    string
	SeenAt   time.Time
}

// Snapshot is the state of the submissions of an assignment at TakenAt.
type Snapshot struct {
	ID         int64
	Worksite   string
	Assignment string
	TakenAt    time.Time
	Records    []model.StudentInfo
}

type Store struct {
	db     *sql.DB
	makeTx MakeTx
	time   chrono.TimeAPI
	tel    telemetry.API
}

func New(db *sql.DB, time chrono.TimeAPI, tel telemetry.API) Store {
	assert.NotNil(db, "db")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "telemetry")

	return Store{
		db:     db,
		makeTx: NewMakeTx(db),
		time:   time,
		tel:    telemetry.NewScopedAPI("store", tel),
	}
}

// SaveWorksites upserts the listed worksites.
func (s Store) SaveWorksites(ctx context.Context, worksites []model.Worksite) error {
	ctx, span := tracer.Start(ctx, "SaveWorksites")
	defer span.End()

	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return err
	}
	defer discard()

	now := s.time.Now().Unix()
	for _, w := range worksites {
		_, err := tx.ExecContext(ctx, `insert into worksite (name, link, seen_at) values (?, ?, ?)
			on conflict (name) do update set link = excluded.link, seen_at = excluded.seen_at`,
			w.Name, w.Link, now,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.tel.ReportBroken(report_db_query, err, "SaveWorksites", w.Name)
			return err
		}
	}
	return commit()
}

func (s Store) Worksites(ctx context.Context) ([]model.Worksite, error) {
	rows, err := s.db.QueryContext(ctx, `select name, link from worksite order by name`)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "Worksites")
		return nil, err
	}
	defer rows.Close()

	var out []model.Worksite
	for rows.Next() {
		var w model.Worksite
		if err := rows.Scan(&w.Name, &w.Link); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// SaveAssignments replaces the stored listing of a worksite.
func (s Store) SaveAssignments(ctx context.Context, worksite string, assignments []Assignment) error {
	ctx, span := tracer.Start(ctx, "SaveAssignments")
	defer span.End()
	span.SetAttributes(attribute.String("worksite", worksite))

	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return err
	}
	defer discard()

	if _, err := tx.ExecContext(ctx, `delete from assignment where worksite = ?`, worksite); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.tel.ReportBroken(report_db_query, err, "SaveAssignments", worksite)
		return err
	}
	now := s.time.Now().Unix()
	for _, a := range assignments {
		_, err := tx.ExecContext(ctx, `insert into assignment
			(worksite, title, status, open_date, due_date, in_new, scale, seen_at)
			values (?, ?, ?, ?, ?, ?, ?, ?)`,
			worksite, a.Title, a.Status, a.Open, a.Due, a.InNew, a.Scale, now,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.tel.ReportBroken(report_db_query, err, "SaveAssignments", worksite, a.Title)
			return err
		}
	}
	return commit()
}

func (s Store) Assignments(ctx context.Context, worksite string) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `select title, status, open_date, due_date, in_new, scale, seen_at
		from assignment where worksite = ? order by title`, worksite)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "Assignments", worksite)
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a := Assignment{Worksite: worksite}
		var seen int64
		if err := rows.Scan(&a.Title, &a.Status, &a.Open, &a.Due, &a.InNew, &a.Scale, &seen); err != nil {
			return nil, err
		}
		a.SeenAt = time.Unix(seen, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}

// MakeSnapshot stores the submissions of an assignment as they are now and
// returns the id of the snapshot.
func (s Store) MakeSnapshot(ctx context.Context, worksite, assignment string, records []model.StudentInfo) (int64, error) {
	ctx, span := tracer.Start(ctx, "MakeSnapshot")
	defer span.End()
	span.SetAttributes(
		attribute.String("worksite", worksite),
		attribute.String("assignment", assignment),
		attribute.Int("records", len(records)),
	)

	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return 0, err
	}
	defer discard()

	res, err := tx.ExecContext(ctx, `insert into snapshot (worksite, assignment, taken_at) values (?, ?, ?)`,
		worksite, assignment, s.time.Now().Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.tel.ReportBroken(report_make_snapshot, err, worksite, assignment)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		s.tel.ReportBroken(report_make_snapshot, err, worksite, assignment)
		return 0, err
	}

	for _, r := range records {
		_, err := tx.ExecContext(ctx, `insert into submission
			(snapshot_id, student_id, name, submitted, status, grade, released, comment)
			values (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, r.ID, r.Name, r.Submitted, r.Status, r.Grade, r.Released, r.TutorComment,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.tel.ReportBroken(report_db_query, err, "CreateSubmission", id, r.ID)
			return 0, err
		}
		for i, f := range r.Files {
			date := int64(0)
			if !f.Date.IsZero() {
				date = f.Date.Unix()
			}
			_, err := tx.ExecContext(ctx, `insert into submitted_file
				(snapshot_id, student_id, idx, name, link, size, date)
				values (?, ?, ?, ?, ?, ?, ?)`,
				id, r.ID, i, f.Name, f.Link, f.Size, date,
			)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				s.tel.ReportBroken(report_db_query, err, "CreateSubmittedFile", id, r.ID, f.Name)
				return 0, err
			}
		}
	}

	if err := commit(); err != nil {
		s.tel.ReportBroken(report_make_snapshot, err, worksite, assignment)
		return 0, err
	}
	s.tel.ReportDebug("snapshot", worksite, assignment, id, len(records))
	return id, nil
}

// Latest returns the newest snapshots of an assignment, newest first. Fewer
// than n are returned when fewer were taken, ErrNoSnapshot when none was.
func (s Store) Latest(ctx context.Context, worksite, assignment string, n int) ([]Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Latest")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `select id, taken_at from snapshot
		where worksite = ? and assignment = ?
		order by taken_at desc, id desc limit ?`, worksite, assignment, n)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "Latest", worksite, assignment)
		return nil, err
	}
	var snapshots []Snapshot
	for rows.Next() {
		snap := Snapshot{Worksite: worksite, Assignment: assignment}
		var taken int64
		if err := rows.Scan(&snap.ID, &taken); err != nil {
			rows.Close()
			return nil, err
		}
		snap.TakenAt = time.Unix(taken, 0)
		snapshots = append(snapshots, snap)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, ErrNoSnapshot
	}

	for i := range snapshots {
		records, err := s.records(ctx, snapshots[i].ID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		snapshots[i].Records = records
	}
	return snapshots, nil
}

func (s Store) records(ctx context.Context, snapshot int64) ([]model.StudentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `select student_id, name, submitted, status, grade, released, comment
		from submission where snapshot_id = ? order by student_id`, snapshot)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetSubmissions", snapshot)
		return nil, err
	}
	var records []model.StudentInfo
	index := map[string]int{}
	for rows.Next() {
		var r model.StudentInfo
		if err := rows.Scan(&r.ID, &r.Name, &r.Submitted, &r.Status, &r.Grade, &r.Released, &r.TutorComment); err != nil {
			rows.Close()
			return nil, err
		}
		index[r.ID] = len(records)
		records = append(records, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	files, err := s.db.QueryContext(ctx, `select student_id, name, link, size, date
		from submitted_file where snapshot_id = ? order by student_id, idx`, snapshot)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetSubmittedFiles", snapshot)
		return nil, err
	}
	defer files.Close()
	for files.Next() {
		var id string
		var f model.SubmittedFile
		var date int64
		if err := files.Scan(&id, &f.Name, &f.Link, &f.Size, &date); err != nil {
			return nil, err
		}
		if date != 0 {
			f.Date = time.Unix(date, 0)
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		records[i].Files = append(records[i].Files, f)
		records[i].FilesAttached = true
	}
	return records, files.Err()
}

// Prune deletes the snapshots taken before cutoff.
func (s Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return 0, err
	}
	defer discard()

	for _, table := range []string{"submitted_file", "submission"} {
		_, err := tx.ExecContext(ctx, `delete from `+table+` where snapshot_id in
			(select id from snapshot where taken_at < ?)`, cutoff.Unix())
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "Prune", table)
			return 0, err
		}
	}
	res, err := tx.ExecContext(ctx, `delete from snapshot where taken_at < ?`, cutoff.Unix())
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "Prune", "snapshot")
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, commit()
}

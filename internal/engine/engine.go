package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reportline/internal/cadence"
	"reportline/internal/config"
	"reportline/internal/domain"
	"reportline/internal/events"
	"reportline/internal/repo"
	"reportline/internal/validate"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) CreateOrg(ctx context.Context, name, email string, isWrangler bool, actorID string) (domain.Organization, error) {
	if name == "" {
		return domain.Organization{}, errors.New("name is required")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.Organization{}, errors.New("email is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()

	o := domain.Organization{
		ID:         uuid.NewString(),
		Name:       name,
		Email:      email,
		IsWrangler: isWrangler,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	wrangler := 0
	if o.IsWrangler {
		wrangler = 1
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO organizations(id,name,email,is_wrangler,created_at) VALUES (?,?,?,?,?)`,
		o.ID, o.Name, o.Email, wrangler, o.CreatedAt); err != nil {
		return domain.Organization{}, fmt.Errorf("insert organization: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "org.create", o.ID, "org", o.ID, actorID, events.EventPayload{"name": o.Name}); err != nil {
		return domain.Organization{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Organization{}, err
	}
	return o, nil
}

func (e Engine) CreateProject(ctx context.Context, name, description, actorID string) (domain.Project, error) {
	if name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p := domain.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,description,created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, p.Description, p.CreatedAt); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.create", "", "project", p.ID, actorID, events.EventPayload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) CreateExpectation(ctx context.Context, name string, columns []domain.ExpectationColumn, actorID string) (domain.Expectation, error) {
	if name == "" {
		return domain.Expectation{}, errors.New("name is required")
	}
	if err := validate.Columns(columns); err != nil {
		return domain.Expectation{}, err
	}
	exp := domain.Expectation{
		ID:        uuid.NewString(),
		Name:      name,
		Columns:   columns,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertExpectation(ctx, exp); err != nil {
		return domain.Expectation{}, fmt.Errorf("insert expectation: %w", err)
	}
	return exp, nil
}

// LinkOptions are parameters for linking an org to a project.
type LinkOptions struct {
	OrgID      string
	ProjectID  string
	Interval   string
	DayOfWeek  *int
	DayOfMonth *int
	ActorID    string
}

func (o LinkOptions) schedule() cadence.Schedule {
	return cadence.Schedule{
		Interval:   cadence.Interval(o.Interval),
		DayOfWeek:  o.DayOfWeek,
		DayOfMonth: o.DayOfMonth,
	}
}

// CreateLink links an org to a project it must report on. The schedule
// is validated before anything is written, and the first due date is
// anchored on the current time.
func (e Engine) CreateLink(ctx context.Context, opts LinkOptions) (domain.ReportingLink, error) {
	if opts.Interval == "" {
		opts.Interval = string(cadence.IntervalNone)
	}
	sched := opts.schedule()
	if err := sched.Validate(); err != nil {
		return domain.ReportingLink{}, err
	}
	if _, err := e.Repo.GetOrg(ctx, opts.OrgID); err != nil {
		return domain.ReportingLink{}, fmt.Errorf("org %s: %w", opts.OrgID, err)
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.ReportingLink{}, fmt.Errorf("project %s: %w", opts.ProjectID, err)
	}

	now := e.now()
	ts := now.UTC().Format(time.RFC3339)
	l := domain.ReportingLink{
		OrgID:      opts.OrgID,
		ProjectID:  opts.ProjectID,
		Interval:   opts.Interval,
		DayOfWeek:  opts.DayOfWeek,
		DayOfMonth: opts.DayOfMonth,
		History:    []domain.SubmissionRecord{},
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if due, ok := sched.NextDue(now); ok {
		s := due.Format(cadence.TimeLayout)
		l.NextDue = &s
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ReportingLink{}, err
	}
	defer tx.Rollback()
	history, _ := json.Marshal(l.History)
	if _, err := tx.ExecContext(ctx, `INSERT INTO report_links(org_id,project_id,reporting_interval,reporting_day_of_week,reporting_day_of_month,next_due_date,streak,history_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		l.OrgID, l.ProjectID, l.Interval, optInt(l.DayOfWeek), optInt(l.DayOfMonth), optStr(l.NextDue), l.Streak, string(history), l.CreatedAt, l.UpdatedAt); err != nil {
		return domain.ReportingLink{}, fmt.Errorf("insert link: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "link.create", l.OrgID, "link", l.ProjectID, opts.ActorID, events.EventPayload{
		"interval": l.Interval,
	}); err != nil {
		return domain.ReportingLink{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ReportingLink{}, err
	}
	return l, nil
}

// UpdateSchedule replaces a link's reporting schedule and recomputes
// the due date from the current time. An invalid schedule leaves the
// stored link untouched.
func (e Engine) UpdateSchedule(ctx context.Context, opts LinkOptions) (domain.ReportingLink, error) {
	if opts.Interval == "" {
		opts.Interval = string(cadence.IntervalNone)
	}
	sched := opts.schedule()
	if err := sched.Validate(); err != nil {
		return domain.ReportingLink{}, err
	}
	l, err := e.Repo.GetLink(ctx, opts.OrgID, opts.ProjectID)
	if err != nil {
		return domain.ReportingLink{}, err
	}

	now := e.now()
	l.Interval = opts.Interval
	l.DayOfWeek = opts.DayOfWeek
	l.DayOfMonth = opts.DayOfMonth
	l.NextDue = nil
	if due, ok := sched.NextDue(now); ok {
		s := due.Format(cadence.TimeLayout)
		l.NextDue = &s
	}
	l.UpdatedAt = now.UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ReportingLink{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateLinkTx(ctx, tx, l); err != nil {
		return domain.ReportingLink{}, err
	}
	if err := e.Events.Append(ctx, tx, "link.schedule", l.OrgID, "link", l.ProjectID, opts.ActorID, events.EventPayload{
		"interval": l.Interval,
	}); err != nil {
		return domain.ReportingLink{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ReportingLink{}, err
	}
	return l, nil
}

func (e Engine) Unlink(ctx context.Context, orgID, projectID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM report_links WHERE org_id=? AND project_id=?`, orgID, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	if err := e.Events.Append(ctx, tx, "link.delete", orgID, "link", projectID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordSubmission marks a report as submitted now. The returned bool
// is false when the link has no active schedule; in that case nothing
// is recorded and the link is returned unchanged. Timeliness is judged
// against the stored due date, and the next due date is anchored on
// the submission time rather than the old deadline.
func (e Engine) RecordSubmission(ctx context.Context, orgID, projectID, actorID string) (domain.ReportingLink, bool, error) {
	l, err := e.Repo.GetLink(ctx, orgID, projectID)
	if err != nil {
		return domain.ReportingLink{}, false, err
	}
	if !l.HasSchedule() || l.NextDue == nil {
		return l, false, nil
	}
	due, err := time.Parse(cadence.TimeLayout, *l.NextDue)
	if err != nil {
		return domain.ReportingLink{}, false, fmt.Errorf("stored due date: %w", err)
	}

	now := e.now()
	wasOnTime := !now.After(due)
	l.PushHistory(domain.SubmissionRecord{
		DueDate:       *l.NextDue,
		SubmittedDate: now.Format(cadence.TimeLayout),
		WasOnTime:     wasOnTime,
	})
	if wasOnTime {
		l.Streak++
	} else {
		l.Streak = 0
	}
	if next, ok := cadence.FromLink(l).NextDue(now); ok {
		s := next.Format(cadence.TimeLayout)
		l.NextDue = &s
	} else {
		l.NextDue = nil
	}
	l.UpdatedAt = now.UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ReportingLink{}, false, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateLinkTx(ctx, tx, l); err != nil {
		return domain.ReportingLink{}, false, err
	}
	if err := e.Events.Append(ctx, tx, "report.submitted", orgID, "link", projectID, actorID, events.EventPayload{
		"on_time": wasOnTime,
		"streak":  l.Streak,
	}); err != nil {
		return domain.ReportingLink{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ReportingLink{}, false, err
	}
	return l, true, nil
}

// Compliance reads a link and classifies it against the current time.
func (e Engine) Compliance(ctx context.Context, orgID, projectID string) (domain.ReportingLink, cadence.Compliance, error) {
	l, err := e.Repo.GetLink(ctx, orgID, projectID)
	if err != nil {
		return domain.ReportingLink{}, cadence.Compliance{}, err
	}
	return l, cadence.Classify(l, e.now()), nil
}

// DataOptions are parameters for recording collected data.
type DataOptions struct {
	ProjectID     string
	ExpectationID string
	Values        map[string]string
	ActorID       string
}

// RecordData validates a data row against the expectation's column
// rules and stores it.
func (e Engine) RecordData(ctx context.Context, opts DataOptions) (domain.CollectedEntry, error) {
	exp, err := e.Repo.GetExpectation(ctx, opts.ExpectationID)
	if err != nil {
		return domain.CollectedEntry{}, fmt.Errorf("expectation %s: %w", opts.ExpectationID, err)
	}
	attached, err := e.Repo.ListProjectExpectations(ctx, opts.ProjectID)
	if err != nil {
		return domain.CollectedEntry{}, err
	}
	found := false
	for _, a := range attached {
		if a.ID == exp.ID {
			found = true
			break
		}
	}
	if !found {
		return domain.CollectedEntry{}, fmt.Errorf("expectation %s not attached to project %s", opts.ExpectationID, opts.ProjectID)
	}
	if err := validate.Values(exp.Columns, opts.Values); err != nil {
		return domain.CollectedEntry{}, err
	}
	valuesJSON, err := json.Marshal(opts.Values)
	if err != nil {
		return domain.CollectedEntry{}, fmt.Errorf("marshal values: %w", err)
	}

	entry := domain.CollectedEntry{
		ID:            uuid.NewString(),
		ProjectID:     opts.ProjectID,
		ExpectationID: opts.ExpectationID,
		ValuesJSON:    string(valuesJSON),
		SubmittedBy:   opts.ActorID,
		CreatedAt:     e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CollectedEntry{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCollectedTx(ctx, tx, entry); err != nil {
		return domain.CollectedEntry{}, fmt.Errorf("insert data: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "data.recorded", "", "expectation", exp.ID, opts.ActorID, events.EventPayload{
		"project_id": opts.ProjectID,
	}); err != nil {
		return domain.CollectedEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CollectedEntry{}, err
	}
	return entry, nil
}

// CreateAPIKey mints a key for an org and returns the plaintext once.
func (e Engine) CreateAPIKey(ctx context.Context, orgID, name string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetOrg(ctx, orgID); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("org %s: %w", orgID, err)
	}
	plain := "rl_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

func optInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func optStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

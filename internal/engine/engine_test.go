package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reportline/internal/cadence"
	"reportline/internal/config"
	"reportline/internal/db"
	"reportline/internal/domain"
	"reportline/internal/engine"
	"reportline/internal/migrate"
	"reportline/internal/repo"
	"reportline/internal/validate"
)

type testEnv struct {
	Engine    engine.Engine
	Ctx       context.Context
	Clock     *time.Time
	OrgID     string
	ProjectID string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// a Monday
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	env := &testEnv{Ctx: context.Background(), Clock: &now}
	eng := engine.New(conn, config.Default("test"))
	eng.Now = func() time.Time { return *env.Clock }
	env.Engine = eng

	org, err := eng.CreateOrg(env.Ctx, "Acme", "acme@example.com", false, "tester")
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	proj, err := eng.CreateProject(env.Ctx, "census", "quarterly census", "tester")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	env.OrgID = org.ID
	env.ProjectID = proj.ID
	return env
}

func intPtr(v int) *int { return &v }

func (env *testEnv) linkWeeklyWednesday(t *testing.T) domain.ReportingLink {
	t.Helper()
	l, err := env.Engine.CreateLink(env.Ctx, engine.LinkOptions{
		OrgID: env.OrgID, ProjectID: env.ProjectID,
		Interval: "weekly", DayOfWeek: intPtr(3), ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create link: %v", err)
	}
	return l
}

func TestCreateLinkComputesInitialDue(t *testing.T) {
	env := newTestEnv(t)
	l := env.linkWeeklyWednesday(t)
	if l.NextDue == nil {
		t.Fatalf("expected initial due date")
	}
	due, err := time.Parse(cadence.TimeLayout, *l.NextDue)
	if err != nil {
		t.Fatalf("parse due: %v", err)
	}
	want := time.Date(2024, 1, 17, 23, 59, 59, 999_000_000, time.UTC)
	if !due.Equal(want) {
		t.Fatalf("initial due = %v, want %v", due, want)
	}
}

func TestCreateLinkRejectsInvalidSchedule(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateLink(env.Ctx, engine.LinkOptions{
		OrgID: env.OrgID, ProjectID: env.ProjectID,
		Interval: "weekly", DayOfWeek: intPtr(9), ActorID: "tester",
	})
	var ise cadence.InvalidScheduleError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidScheduleError, got %v", err)
	}
	if _, err := env.Engine.Repo.GetLink(env.Ctx, env.OrgID, env.ProjectID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("link written despite invalid schedule: %v", err)
	}
}

func TestRecordSubmissionOnTime(t *testing.T) {
	env := newTestEnv(t)
	env.linkWeeklyWednesday(t)

	// Wednesday morning, before the end-of-day deadline.
	*env.Clock = time.Date(2024, 1, 17, 9, 30, 0, 0, time.UTC)
	l, recorded, err := env.Engine.RecordSubmission(env.Ctx, env.OrgID, env.ProjectID, "tester")
	if err != nil || !recorded {
		t.Fatalf("record: recorded=%v err=%v", recorded, err)
	}
	if l.Streak != 1 {
		t.Fatalf("streak = %d, want 1", l.Streak)
	}
	if len(l.History) != 1 || !l.History[0].WasOnTime {
		t.Fatalf("history = %+v", l.History)
	}
	// Next due is anchored on the submission time: same weekday rolls a
	// full week ahead.
	due, _ := time.Parse(cadence.TimeLayout, *l.NextDue)
	want := time.Date(2024, 1, 24, 23, 59, 59, 999_000_000, time.UTC)
	if !due.Equal(want) {
		t.Fatalf("next due = %v, want %v", due, want)
	}

	stored, err := env.Engine.Repo.GetLink(env.Ctx, env.OrgID, env.ProjectID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Streak != 1 || len(stored.History) != 1 || *stored.NextDue != *l.NextDue {
		t.Fatalf("stored link does not match returned link: %+v", stored)
	}
}

func TestLateSubmissionResetsStreak(t *testing.T) {
	env := newTestEnv(t)
	env.linkWeeklyWednesday(t)

	*env.Clock = time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC)
	if _, _, err := env.Engine.RecordSubmission(env.Ctx, env.OrgID, env.ProjectID, "tester"); err != nil {
		t.Fatal(err)
	}
	// Miss the next Wednesday entirely.
	*env.Clock = time.Date(2024, 1, 26, 9, 0, 0, 0, time.UTC)
	l, recorded, err := env.Engine.RecordSubmission(env.Ctx, env.OrgID, env.ProjectID, "tester")
	if err != nil || !recorded {
		t.Fatalf("record: recorded=%v err=%v", recorded, err)
	}
	if l.Streak != 0 {
		t.Fatalf("streak = %d, want 0 after late submission", l.Streak)
	}
	if len(l.History) != 2 || l.History[0].WasOnTime || !l.History[1].WasOnTime {
		t.Fatalf("history newest-first broken: %+v", l.History)
	}
}

func TestHistoryStaysBounded(t *testing.T) {
	env := newTestEnv(t)
	env.linkWeeklyWednesday(t)
	for i := 0; i < 15; i++ {
		*env.Clock = env.Clock.AddDate(0, 0, 7)
		if _, _, err := env.Engine.RecordSubmission(env.Ctx, env.OrgID, env.ProjectID, "tester"); err != nil {
			t.Fatalf("submission %d: %v", i, err)
		}
	}
	l, err := env.Engine.Repo.GetLink(env.Ctx, env.OrgID, env.ProjectID)
	if err != nil {
		t.Fatal(err)
	}
	if len(l.History) != domain.HistoryLimit {
		t.Fatalf("history length = %d, want %d", len(l.History), domain.HistoryLimit)
	}
	// Newest first: each entry submitted after the one below it.
	for i := 0; i < len(l.History)-1; i++ {
		a, _ := time.Parse(cadence.TimeLayout, l.History[i].SubmittedDate)
		b, _ := time.Parse(cadence.TimeLayout, l.History[i+1].SubmittedDate)
		if !a.After(b) {
			t.Fatalf("history out of order at %d: %v !after %v", i, a, b)
		}
	}
}

func TestSubmissionWithoutScheduleIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateLink(env.Ctx, engine.LinkOptions{
		OrgID: env.OrgID, ProjectID: env.ProjectID, Interval: "none", ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	l, recorded, err := env.Engine.RecordSubmission(env.Ctx, env.OrgID, env.ProjectID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if recorded {
		t.Fatalf("submission recorded without an active schedule")
	}
	if l.Streak != 0 || len(l.History) != 0 || l.NextDue != nil {
		t.Fatalf("link mutated by no-op submission: %+v", l)
	}
}

func TestUpdateScheduleRecomputesDue(t *testing.T) {
	env := newTestEnv(t)
	env.linkWeeklyWednesday(t)
	l, err := env.Engine.UpdateSchedule(env.Ctx, engine.LinkOptions{
		OrgID: env.OrgID, ProjectID: env.ProjectID,
		Interval: "monthly", DayOfMonth: intPtr(31), ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	due, _ := time.Parse(cadence.TimeLayout, *l.NextDue)
	want := time.Date(2024, 1, 31, 23, 59, 59, 999_000_000, time.UTC)
	if !due.Equal(want) {
		t.Fatalf("due = %v, want %v", due, want)
	}

	// Switching to none clears the due date.
	l, err = env.Engine.UpdateSchedule(env.Ctx, engine.LinkOptions{
		OrgID: env.OrgID, ProjectID: env.ProjectID, Interval: "none", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if l.NextDue != nil {
		t.Fatalf("due date not cleared: %v", *l.NextDue)
	}
}

func TestUpdateScheduleInvalidLeavesStoredLink(t *testing.T) {
	env := newTestEnv(t)
	before := env.linkWeeklyWednesday(t)
	_, err := env.Engine.UpdateSchedule(env.Ctx, engine.LinkOptions{
		OrgID: env.OrgID, ProjectID: env.ProjectID,
		Interval: "monthly", DayOfMonth: intPtr(32), ActorID: "tester",
	})
	var ise cadence.InvalidScheduleError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidScheduleError, got %v", err)
	}
	after, err := env.Engine.Repo.GetLink(env.Ctx, env.OrgID, env.ProjectID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Interval != before.Interval || *after.NextDue != *before.NextDue {
		t.Fatalf("stored link changed after rejected schedule: %+v", after)
	}
}

func TestUnlink(t *testing.T) {
	env := newTestEnv(t)
	env.linkWeeklyWednesday(t)
	if err := env.Engine.Unlink(env.Ctx, env.OrgID, env.ProjectID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.RecordSubmission(env.Ctx, env.OrgID, env.ProjectID, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found after unlink, got %v", err)
	}
}

func TestDeleteOrgCascadesToLinks(t *testing.T) {
	env := newTestEnv(t)
	env.linkWeeklyWednesday(t)
	if err := env.Engine.Repo.DeleteOrg(env.Ctx, env.OrgID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Repo.GetLink(env.Ctx, env.OrgID, env.ProjectID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("link survived org deletion: %v", err)
	}
}

func TestComplianceReflectsClock(t *testing.T) {
	env := newTestEnv(t)
	env.linkWeeklyWednesday(t)

	_, c, err := env.Engine.Compliance(env.Ctx, env.OrgID, env.ProjectID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != cadence.StatusDueSoon {
		t.Fatalf("status = %s, want %s", c.Status, cadence.StatusDueSoon)
	}
	*env.Clock = time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)
	_, c, err = env.Engine.Compliance(env.Ctx, env.OrgID, env.ProjectID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != cadence.StatusOverdue {
		t.Fatalf("status = %s, want %s", c.Status, cadence.StatusOverdue)
	}
}

func TestRecordDataValidation(t *testing.T) {
	env := newTestEnv(t)
	exp, err := env.Engine.CreateExpectation(env.Ctx, "headcount", []domain.ExpectationColumn{
		{Name: "site"},
		{Name: "count", MustBeInt: true},
	}, "tester")
	if err != nil {
		t.Fatal(err)
	}

	// Not attached yet.
	_, err = env.Engine.RecordData(env.Ctx, engine.DataOptions{
		ProjectID: env.ProjectID, ExpectationID: exp.ID,
		Values: map[string]string{"site": "north", "count": "3"}, ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("data accepted for unattached expectation")
	}

	if err := env.Engine.Repo.AttachExpectation(env.Ctx, exp.ID, env.ProjectID); err != nil {
		t.Fatal(err)
	}
	entry, err := env.Engine.RecordData(env.Ctx, engine.DataOptions{
		ProjectID: env.ProjectID, ExpectationID: exp.ID,
		Values: map[string]string{"site": "north", "count": "3"}, ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if entry.SubmittedBy != "tester" {
		t.Fatalf("entry = %+v", entry)
	}

	_, err = env.Engine.RecordData(env.Ctx, engine.DataOptions{
		ProjectID: env.ProjectID, ExpectationID: exp.ID,
		Values: map[string]string{"site": "north", "count": "three"}, ActorID: "tester",
	})
	var verr validate.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"reportline/internal/domain"
)

const linkColumns = `org_id,project_id,reporting_interval,reporting_day_of_week,reporting_day_of_month,next_due_date,streak,history_json,created_at,updated_at`

func marshalHistory(history []domain.SubmissionRecord) (string, error) {
	if history == nil {
		history = []domain.SubmissionRecord{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("marshal submission history: %w", err)
	}
	return string(data), nil
}

func scanLink(scan func(dest ...any) error) (domain.ReportingLink, error) {
	var l domain.ReportingLink
	var (
		dow, dom sql.NullInt64
		nextDue  sql.NullString
		history  string
	)
	err := scan(&l.OrgID, &l.ProjectID, &l.Interval, &dow, &dom, &nextDue, &l.Streak, &history, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if dow.Valid {
		v := int(dow.Int64)
		l.DayOfWeek = &v
	}
	if dom.Valid {
		v := int(dom.Int64)
		l.DayOfMonth = &v
	}
	if nextDue.Valid {
		l.NextDue = &nextDue.String
	}
	if err := json.Unmarshal([]byte(history), &l.History); err != nil {
		return l, fmt.Errorf("unmarshal submission history: %w", err)
	}
	return l, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func (r Repo) InsertLink(ctx context.Context, l domain.ReportingLink) error {
	history, err := marshalHistory(l.History)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO report_links(`+linkColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		l.OrgID, l.ProjectID, l.Interval, nullableInt(l.DayOfWeek), nullableInt(l.DayOfMonth),
		nullableStr(l.NextDue), l.Streak, history, l.CreatedAt, l.UpdatedAt)
	return err
}

func (r Repo) GetLink(ctx context.Context, orgID, projectID string) (domain.ReportingLink, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM report_links WHERE org_id=? AND project_id=?`, orgID, projectID)
	return scanLink(row.Scan)
}

// UpdateLinkTx rewrites a link's mutable state inside the caller's
// transaction so schedule, streak and history change together or not
// at all.
func (r Repo) UpdateLinkTx(ctx context.Context, tx *sql.Tx, l domain.ReportingLink) error {
	history, err := marshalHistory(l.History)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE report_links
		SET reporting_interval=?,reporting_day_of_week=?,reporting_day_of_month=?,next_due_date=?,streak=?,history_json=?,updated_at=?
		WHERE org_id=? AND project_id=?`,
		l.Interval, nullableInt(l.DayOfWeek), nullableInt(l.DayOfMonth), nullableStr(l.NextDue),
		l.Streak, history, l.UpdatedAt, l.OrgID, l.ProjectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteLink(ctx context.Context, orgID, projectID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM report_links WHERE org_id=? AND project_id=?`, orgID, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) listLinks(ctx context.Context, where string, args ...any) ([]domain.ReportingLink, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+linkColumns+` FROM report_links `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ReportingLink
	for rows.Next() {
		l, err := scanLink(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) ListLinksByOrg(ctx context.Context, orgID string) ([]domain.ReportingLink, error) {
	return r.listLinks(ctx, `WHERE org_id=? ORDER BY project_id`, orgID)
}

func (r Repo) ListLinksByProject(ctx context.Context, projectID string) ([]domain.ReportingLink, error) {
	return r.listLinks(ctx, `WHERE project_id=? ORDER BY org_id`, projectID)
}

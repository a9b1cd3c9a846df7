package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"reportline/internal/domain"
)

func marshalColumns(cols []domain.ExpectationColumn) (string, error) {
	if cols == nil {
		cols = []domain.ExpectationColumn{}
	}
	data, err := json.Marshal(cols)
	if err != nil {
		return "", fmt.Errorf("marshal expectation columns: %w", err)
	}
	return string(data), nil
}

func unmarshalColumns(raw string) ([]domain.ExpectationColumn, error) {
	var cols []domain.ExpectationColumn
	if raw == "" {
		return cols, nil
	}
	if err := json.Unmarshal([]byte(raw), &cols); err != nil {
		return nil, fmt.Errorf("unmarshal expectation columns: %w", err)
	}
	return cols, nil
}

func (r Repo) InsertExpectation(ctx context.Context, e domain.Expectation) error {
	colsJSON, err := marshalColumns(e.Columns)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO expectations(id,name,columns_json,created_at) VALUES (?,?,?,?)`,
		e.ID, e.Name, colsJSON, e.CreatedAt)
	return err
}

func (r Repo) GetExpectation(ctx context.Context, id string) (domain.Expectation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,columns_json,created_at FROM expectations WHERE id=?`, id)
	var e domain.Expectation
	var colsJSON string
	err := row.Scan(&e.ID, &e.Name, &colsJSON, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.Columns, err = unmarshalColumns(colsJSON)
	return e, err
}

func (r Repo) ListExpectations(ctx context.Context) ([]domain.Expectation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,columns_json,created_at FROM expectations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Expectation
	for rows.Next() {
		var e domain.Expectation
		var colsJSON string
		if err := rows.Scan(&e.ID, &e.Name, &colsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Columns, err = unmarshalColumns(colsJSON); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) DeleteExpectation(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM expectations WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachExpectation links an expectation to a project. Re-attaching is
// a no-op.
func (r Repo) AttachExpectation(ctx context.Context, expectationID, projectID string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO project_expectations(expectation_id,project_id) VALUES (?,?)`,
		expectationID, projectID)
	return err
}

func (r Repo) DetachExpectation(ctx context.Context, expectationID, projectID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM project_expectations WHERE expectation_id=? AND project_id=?`,
		expectationID, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListProjectExpectations(ctx context.Context, projectID string) ([]domain.Expectation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT e.id,e.name,e.columns_json,e.created_at
		FROM expectations e JOIN project_expectations pe ON pe.expectation_id = e.id
		WHERE pe.project_id=? ORDER BY e.created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Expectation
	for rows.Next() {
		var e domain.Expectation
		var colsJSON string
		if err := rows.Scan(&e.ID, &e.Name, &colsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Columns, err = unmarshalColumns(colsJSON); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

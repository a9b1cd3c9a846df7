package repo

import (
	"context"
	"database/sql"

	"reportline/internal/domain"
)

// InsertCollectedTx stores a validated data row inside the caller's
// transaction.
func (r Repo) InsertCollectedTx(ctx context.Context, tx *sql.Tx, e domain.CollectedEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO collected_entries(id,project_id,expectation_id,values_json,submitted_by,created_at) VALUES (?,?,?,?,?,?)`,
		e.ID, e.ProjectID, e.ExpectationID, e.ValuesJSON, e.SubmittedBy, e.CreatedAt)
	return err
}

func (r Repo) ListCollected(ctx context.Context, projectID, expectationID string) ([]domain.CollectedEntry, error) {
	query := `SELECT id,project_id,expectation_id,values_json,submitted_by,created_at FROM collected_entries WHERE project_id=?`
	args := []any{projectID}
	if expectationID != "" {
		query += ` AND expectation_id=?`
		args = append(args, expectationID)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CollectedEntry
	for rows.Next() {
		var e domain.CollectedEntry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.ExpectationID, &e.ValuesJSON, &e.SubmittedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

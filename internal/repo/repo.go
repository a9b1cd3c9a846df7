package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"reportline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func scanOrg(row *sql.Row) (domain.Organization, error) {
	var o domain.Organization
	var wrangler int
	err := row.Scan(&o.ID, &o.Name, &o.Email, &wrangler, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	o.IsWrangler = wrangler != 0
	return o, err
}

func (r Repo) InsertOrg(ctx context.Context, o domain.Organization) error {
	wrangler := 0
	if o.IsWrangler {
		wrangler = 1
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO organizations(id,name,email,is_wrangler,created_at) VALUES (?,?,?,?,?)`,
		o.ID, o.Name, o.Email, wrangler, o.CreatedAt)
	return err
}

func (r Repo) GetOrg(ctx context.Context, id string) (domain.Organization, error) {
	return scanOrg(r.DB.QueryRowContext(ctx, `SELECT id,name,email,is_wrangler,created_at FROM organizations WHERE id=?`, id))
}

func (r Repo) GetOrgByEmail(ctx context.Context, email string) (domain.Organization, error) {
	return scanOrg(r.DB.QueryRowContext(ctx, `SELECT id,name,email,is_wrangler,created_at FROM organizations WHERE email=?`, strings.ToLower(strings.TrimSpace(email))))
}

func (r Repo) ListOrgs(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,email,is_wrangler,created_at FROM organizations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Organization
	for rows.Next() {
		var o domain.Organization
		var wrangler int
		if err := rows.Scan(&o.ID, &o.Name, &o.Email, &wrangler, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.IsWrangler = wrangler != 0
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) UpdateOrg(ctx context.Context, id string, name, email string, isWrangler *bool) error {
	var (
		fields []string
		args   []any
	)
	if name != "" {
		fields = append(fields, "name=?")
		args = append(args, name)
	}
	if email != "" {
		fields = append(fields, "email=?")
		args = append(args, strings.ToLower(strings.TrimSpace(email)))
	}
	if isWrangler != nil {
		wrangler := 0
		if *isWrangler {
			wrangler = 1
		}
		fields = append(fields, "is_wrangler=?")
		args = append(args, wrangler)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE organizations SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteOrg(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM organizations WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	err := row.Scan(&p.ID, &p.Name, &desc, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,name,description,created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT id,name,description,created_at FROM projects WHERE id=?`, id))
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,'') AS description,created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, id string, name string, description *string) error {
	var (
		fields []string
		args   []any
	)
	if name != "" {
		fields = append(fields, "name=?")
		args = append(args, name)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

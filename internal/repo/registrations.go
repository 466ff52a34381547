package repo

import (
	"context"
	"database/sql"
	"strings"

	"reforesta/internal/domain"
)

const registrationColumns = `id,user_id,project_id,name,phone,age,COALESCE(experience,''),COALESCE(availability,''),COALESCE(transport,''),COALESCE(comments,''),status,created_at,cancelled_at`

func scanRegistration(scan func(dest ...any) error) (domain.Registration, error) {
	var reg domain.Registration
	var cancelledAt sql.NullString
	err := scan(&reg.ID, &reg.UserID, &reg.ProjectID,
		&reg.Snapshot.Name, &reg.Snapshot.Phone, &reg.Snapshot.Age,
		&reg.Snapshot.Experience, &reg.Snapshot.Availability, &reg.Snapshot.Transport, &reg.Snapshot.Comments,
		&reg.Status, &reg.CreatedAt, &cancelledAt)
	if err == sql.ErrNoRows {
		return reg, ErrNotFound
	}
	if err != nil {
		return reg, err
	}
	if cancelledAt.Valid {
		reg.CancelledAt = &cancelledAt.String
	}
	return reg, nil
}

func (r Repo) InsertRegistration(ctx context.Context, tx *sql.Tx, reg domain.Registration) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO registrations(id,user_id,project_id,name,phone,age,experience,availability,transport,comments,status,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		reg.ID, reg.UserID, reg.ProjectID,
		reg.Snapshot.Name, reg.Snapshot.Phone, reg.Snapshot.Age,
		nullable(reg.Snapshot.Experience), nullable(reg.Snapshot.Availability),
		nullable(reg.Snapshot.Transport), nullable(reg.Snapshot.Comments),
		reg.Status, reg.CreatedAt)
	return err
}

func (r Repo) GetRegistration(ctx context.Context, id string) (domain.Registration, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id=?`, id)
	return scanRegistration(row.Scan)
}

// FindConfirmedRegistration returns the active registration for a
// (user, project) pair, if any.
func (r Repo) FindConfirmedRegistration(ctx context.Context, userID, projectID string) (domain.Registration, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE user_id=? AND project_id=? AND status=? LIMIT 1`,
		userID, projectID, domain.RegistrationConfirmed)
	return scanRegistration(row.Scan)
}

type RegistrationFilters struct {
	UserID          string
	ProjectID       string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListRegistrations(ctx context.Context, f RegistrationFilters) ([]domain.Registration, error) {
	var clauses []string
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + registrationColumns + ` FROM registrations ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, reg)
	}
	return res, rows.Err()
}

// CancelRegistration flips a confirmed registration to cancelled. The
// status guard makes cancelling an already-cancelled row affect nothing.
func (r Repo) CancelRegistration(ctx context.Context, tx *sql.Tx, id, cancelledAt string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE registrations SET status=?, cancelled_at=? WHERE id=? AND status=?`,
		domain.RegistrationCancelled, cancelledAt, id, domain.RegistrationConfirmed)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountConfirmedRegistrations(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM registrations WHERE project_id=? AND status=?`,
		projectID, domain.RegistrationConfirmed).Scan(&n)
	return n, err
}

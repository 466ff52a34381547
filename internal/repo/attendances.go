package repo

import (
	"context"
	"database/sql"

	"reforesta/internal/domain"
)

const attendanceColumns = `id,project_id,user_id,registration_id,trees_planted,recorded_at`

func scanAttendance(scan func(dest ...any) error) (domain.Attendance, error) {
	var a domain.Attendance
	err := scan(&a.ID, &a.ProjectID, &a.UserID, &a.RegistrationID, &a.TreesPlanted, &a.RecordedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

// UpsertAttendance writes the volunteer's current tree total. The
// UNIQUE(project_id, user_id) index turns a second submission into an
// in-place overwrite; the row keeps its original id and registration.
func (r Repo) UpsertAttendance(ctx context.Context, tx *sql.Tx, a domain.Attendance) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO attendances(id,project_id,user_id,registration_id,trees_planted,recorded_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(project_id,user_id) DO UPDATE SET trees_planted=excluded.trees_planted, recorded_at=excluded.recorded_at`,
		a.ID, a.ProjectID, a.UserID, a.RegistrationID, a.TreesPlanted, a.RecordedAt)
	return err
}

func (r Repo) GetAttendance(ctx context.Context, userID, projectID string) (domain.Attendance, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendances WHERE user_id=? AND project_id=?`, userID, projectID)
	return scanAttendance(row.Scan)
}

func (r Repo) ListAttendancesByUser(ctx context.Context, userID string) ([]domain.Attendance, error) {
	return r.listAttendances(ctx, `user_id=?`, userID)
}

func (r Repo) ListAttendancesByProject(ctx context.Context, projectID string) ([]domain.Attendance, error) {
	return r.listAttendances(ctx, `project_id=?`, projectID)
}

func (r Repo) listAttendances(ctx context.Context, clause string, arg any) ([]domain.Attendance, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendances WHERE `+clause+` ORDER BY recorded_at DESC, id DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) SumTreesPlanted(ctx context.Context, projectID string) (int, error) {
	var sum int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(trees_planted),0) FROM attendances WHERE project_id=?`, projectID).Scan(&sum)
	return sum, err
}

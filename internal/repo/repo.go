package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"reforesta/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// IsUniqueViolation reports whether err is a SQLite unique-constraint
// failure. The schema carries the real uniqueness invariants (active
// registration per user+project, attendance per user+project), so
// concurrent writers surface here rather than racing past a read check.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

const projectColumns = `id,name,location_name,lat,lng,COALESCE(description,''),tree_target,volunteer_target,species_json,scheduled_date,status,created_by,created_at`

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var species sql.NullString
	err := scan(&p.ID, &p.Name, &p.LocationName, &p.Lat, &p.Lng, &p.Description,
		&p.TreeTarget, &p.VolunteerTarget, &species, &p.ScheduledDate, &p.Status, &p.CreatedBy, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if species.Valid {
		p.Species = decodeStringSlice(species.String)
	}
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	species, err := marshalStringSlice(p.Species)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO projects(id,name,location_name,lat,lng,description,tree_target,volunteer_target,species_json,scheduled_date,status,created_by,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.LocationName, p.Lat, p.Lng, nullable(p.Description),
		p.TreeTarget, p.VolunteerTarget, nullableStringPtr(species), p.ScheduledDate, p.Status, p.CreatedBy, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	return scanProject(row.Scan)
}

type ProjectFilters struct {
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
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
	query := `SELECT ` + projectColumns + ` FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdateProject applies the provided non-nil fields.
type ProjectUpdate struct {
	Name            *string
	LocationName    *string
	Lat             *float64
	Lng             *float64
	Description     *string
	TreeTarget      *int
	VolunteerTarget *int
	Species         []string
	SpeciesSet      bool
	ScheduledDate   *string
	Status          *string
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id string, u ProjectUpdate) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
	}
	if u.Name != nil {
		set("name", *u.Name)
	}
	if u.LocationName != nil {
		set("location_name", *u.LocationName)
	}
	if u.Lat != nil {
		set("lat", *u.Lat)
	}
	if u.Lng != nil {
		set("lng", *u.Lng)
	}
	if u.Description != nil {
		set("description", nullable(*u.Description))
	}
	if u.TreeTarget != nil {
		set("tree_target", *u.TreeTarget)
	}
	if u.VolunteerTarget != nil {
		set("volunteer_target", *u.VolunteerTarget)
	}
	if u.SpeciesSet {
		species, err := marshalStringSlice(u.Species)
		if err != nil {
			return err
		}
		set("species_json", nullableStringPtr(species))
	}
	if u.ScheduledDate != nil {
		set("scheduled_date", *u.ScheduledDate)
	}
	if u.Status != nil {
		set("status", *u.Status)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func marshalStringSlice(in []string) (*string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func decodeStringSlice(raw string) []string {
	if raw == "" {
		return nil
	}
	var arr []string
	if err := json.Unmarshal([]byte(raw), &arr); err != nil {
		return nil
	}
	return arr
}

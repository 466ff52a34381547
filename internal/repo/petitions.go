package repo

import (
	"context"
	"database/sql"
	"strings"

	"reforesta/internal/domain"
)

const petitionColumns = `id,requester_id,name,location_name,lat,lng,COALESCE(description,''),tree_target,volunteer_target,species_json,scheduled_date,status,reviewer_id,reviewed_at,created_project_id,created_at`

func scanPetition(scan func(dest ...any) error) (domain.Petition, error) {
	var p domain.Petition
	var species, reviewer, reviewedAt, createdProject sql.NullString
	err := scan(&p.ID, &p.RequesterID, &p.Name, &p.LocationName, &p.Lat, &p.Lng, &p.Description,
		&p.TreeTarget, &p.VolunteerTarget, &species, &p.ScheduledDate, &p.Status,
		&reviewer, &reviewedAt, &createdProject, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if species.Valid {
		p.Species = decodeStringSlice(species.String)
	}
	if reviewer.Valid {
		p.ReviewerID = &reviewer.String
	}
	if reviewedAt.Valid {
		p.ReviewedAt = &reviewedAt.String
	}
	if createdProject.Valid {
		p.CreatedProjectID = &createdProject.String
	}
	return p, nil
}

func (r Repo) InsertPetition(ctx context.Context, tx *sql.Tx, p domain.Petition) error {
	species, err := marshalStringSlice(p.Species)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO petitions(id,requester_id,name,location_name,lat,lng,description,tree_target,volunteer_target,species_json,scheduled_date,status,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.RequesterID, p.Name, p.LocationName, p.Lat, p.Lng, nullable(p.Description),
		p.TreeTarget, p.VolunteerTarget, nullableStringPtr(species), p.ScheduledDate, p.Status, p.CreatedAt)
	return err
}

func (r Repo) GetPetition(ctx context.Context, id string) (domain.Petition, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+petitionColumns+` FROM petitions WHERE id=?`, id)
	return scanPetition(row.Scan)
}

func (r Repo) GetPetitionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Petition, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+petitionColumns+` FROM petitions WHERE id=?`, id)
	return scanPetition(row.Scan)
}

type PetitionFilters struct {
	Status          string
	RequesterID     string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListPetitions(ctx context.Context, f PetitionFilters) ([]domain.Petition, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.RequesterID != "" {
		clauses = append(clauses, "requester_id=?")
		args = append(args, f.RequesterID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + petitionColumns + ` FROM petitions ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Petition
	for rows.Next() {
		p, err := scanPetition(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// MarkPetitionReviewed records the terminal decision. The WHERE guard on
// status makes the terminal transition single-shot even under concurrent
// reviewers: the second writer affects zero rows.
func (r Repo) MarkPetitionReviewed(ctx context.Context, tx *sql.Tx, id, status, reviewerID, reviewedAt string, createdProjectID *string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE petitions SET status=?, reviewer_id=?, reviewed_at=?, created_project_id=? WHERE id=? AND status=?`,
		status, reviewerID, reviewedAt, nullableStringPtr(createdProjectID), id, domain.PetitionPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

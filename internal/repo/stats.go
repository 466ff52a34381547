package repo

import (
	"context"

	"reforesta/internal/domain"
)

func (r Repo) CountProjectsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM projects GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func (r Repo) CountRegistrations(ctx context.Context) (total, uniqueVolunteers int, err error) {
	err = r.DB.QueryRowContext(ctx,
		`SELECT count(*), count(DISTINCT user_id) FROM registrations WHERE status=?`,
		domain.RegistrationConfirmed).Scan(&total, &uniqueVolunteers)
	return total, uniqueVolunteers, err
}

func (r Repo) CountAttendances(ctx context.Context) (total, treesPlanted int, err error) {
	err = r.DB.QueryRowContext(ctx,
		`SELECT count(*), COALESCE(SUM(trees_planted),0) FROM attendances`).Scan(&total, &treesPlanted)
	return total, treesPlanted, err
}

package repo

import (
	"context"
	"database/sql"

	"reforesta/internal/domain"
)

func (r Repo) InsertDonation(ctx context.Context, tx *sql.Tx, d domain.Donation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO donations(id,user_id,project_id,amount_cents,currency,payment_method_id,note,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.UserID, nullableStringPtr(d.ProjectID), d.AmountCents, d.Currency,
		nullableStringPtr(d.PaymentMethodID), nullable(d.Note), d.CreatedAt)
	return err
}

func (r Repo) ListDonationsByUser(ctx context.Context, userID string) ([]domain.Donation, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,user_id,project_id,amount_cents,currency,payment_method_id,COALESCE(note,''),created_at
FROM donations WHERE user_id=? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Donation
	for rows.Next() {
		var d domain.Donation
		var projectID, methodID sql.NullString
		if err := rows.Scan(&d.ID, &d.UserID, &projectID, &d.AmountCents, &d.Currency, &methodID, &d.Note, &d.CreatedAt); err != nil {
			return nil, err
		}
		if projectID.Valid {
			d.ProjectID = &projectID.String
		}
		if methodID.Valid {
			d.PaymentMethodID = &methodID.String
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) SumDonationsByProject(ctx context.Context, projectID string) (int64, error) {
	var sum int64
	err := r.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents),0) FROM donations WHERE project_id=?`, projectID).Scan(&sum)
	return sum, err
}

func (r Repo) InsertPaymentMethod(ctx context.Context, m domain.PaymentMethod) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO payment_methods(id,user_id,kind,label,last4,created_at) VALUES (?,?,?,?,?,?)`,
		m.ID, m.UserID, m.Kind, m.Label, nullable(m.Last4), m.CreatedAt)
	return err
}

func (r Repo) GetPaymentMethod(ctx context.Context, id string) (domain.PaymentMethod, error) {
	var m domain.PaymentMethod
	var last4 sql.NullString
	err := r.DB.QueryRowContext(ctx,
		`SELECT id,user_id,kind,label,last4,created_at FROM payment_methods WHERE id=?`, id).
		Scan(&m.ID, &m.UserID, &m.Kind, &m.Label, &last4, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if last4.Valid {
		m.Last4 = last4.String
	}
	return m, nil
}

func (r Repo) ListPaymentMethods(ctx context.Context, userID string) ([]domain.PaymentMethod, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,user_id,kind,label,COALESCE(last4,''),created_at FROM payment_methods WHERE user_id=? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PaymentMethod
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(&m.ID, &m.UserID, &m.Kind, &m.Label, &m.Last4, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) DeletePaymentMethod(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM payment_methods WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

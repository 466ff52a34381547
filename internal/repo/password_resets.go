package repo

import (
	"context"
	"database/sql"

	"reforesta/internal/domain"
)

const passwordResetColumns = `id,user_id,token_hash,expires_at,used_at,created_at`

func scanPasswordReset(scan func(dest ...any) error) (domain.PasswordReset, error) {
	var pr domain.PasswordReset
	var usedAt sql.NullString
	err := scan(&pr.ID, &pr.UserID, &pr.TokenHash, &pr.ExpiresAt, &usedAt, &pr.CreatedAt)
	if err == sql.ErrNoRows {
		return pr, ErrNotFound
	}
	if err != nil {
		return pr, err
	}
	if usedAt.Valid {
		pr.UsedAt = &usedAt.String
	}
	return pr, nil
}

func (r Repo) InsertPasswordReset(ctx context.Context, tx *sql.Tx, pr domain.PasswordReset) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO password_resets(id,user_id,token_hash,expires_at,created_at) VALUES (?,?,?,?,?)`,
		pr.ID, pr.UserID, pr.TokenHash, pr.ExpiresAt, pr.CreatedAt)
	return err
}

func (r Repo) GetPasswordResetByHash(ctx context.Context, hash string) (domain.PasswordReset, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+passwordResetColumns+` FROM password_resets WHERE token_hash=?`, hash)
	return scanPasswordReset(row.Scan)
}

// MarkPasswordResetUsed burns a reset token. The used_at guard makes
// redemption single-shot: a second redeem of the same token sees zero
// rows and gets ErrNotFound.
func (r Repo) MarkPasswordResetUsed(ctx context.Context, tx *sql.Tx, id, usedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE password_resets SET used_at=? WHERE id=? AND used_at IS NULL`, usedAt, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

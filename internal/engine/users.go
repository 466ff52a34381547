package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"reforesta/internal/domain"
	"reforesta/internal/engine/identity"
	"reforesta/internal/events"
	"reforesta/internal/repo"
)

// SignUpOptions carries account creation fields. Role defaults to
// volunteer; organizer and admin sign-ups require the shared signup code
// from config.
type SignUpOptions struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
	SignupCode  string
}

// SignUp creates an account. Emails are unique case-insensitively.
func (e Engine) SignUp(ctx context.Context, opts SignUpOptions) (domain.User, error) {
	fields := map[string]string{}
	email := strings.TrimSpace(strings.ToLower(opts.Email))
	if email == "" || !strings.Contains(email, "@") {
		fields["email"] = "must be a valid email address"
	}
	if len(opts.Password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	if strings.TrimSpace(opts.DisplayName) == "" {
		fields["display_name"] = "required"
	}
	role := opts.Role
	if role == "" {
		role = domain.RoleVolunteer
	}
	if !identity.ValidRole(role) {
		fields["role"] = "must be volunteer, organizer or admin"
	}
	if len(fields) > 0 {
		return domain.User{}, identity.ValidationError{Fields: fields}
	}
	if role != domain.RoleVolunteer {
		code := e.Config.Auth.AdminSignupCode
		if code == "" || opts.SignupCode != code {
			return domain.User{}, identity.RoleError{Role: role, Operation: "sign up without a valid signup code"}
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, identity.UnavailableError{Err: err}
	}
	u := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(opts.DisplayName),
		Role:         role,
		CreatedAt:    e.timestamp(),
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.User{}, identity.UnavailableError{Err: err}
	}
	defer tx.Rollback()

	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.User{}, identity.ValidationError{Fields: map[string]string{"email": "already registered"}}
		}
		return domain.User{}, identity.UnavailableError{Err: fmt.Errorf("insert user: %w", err)}
	}
	if err := e.appendEvent(ctx, tx, events.TypeUserCreated, "user", u.ID, u.ID,
		events.EventPayload{"role": u.Role}); err != nil {
		return domain.User{}, identity.UnavailableError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, identity.UnavailableError{Err: err}
	}
	e.notify(events.TypeUserCreated, "user", u.ID, u.ID)
	return u, nil
}

// SignIn verifies credentials and returns the account. The caller mints
// the session token; the engine only decides whether the credentials
// hold.
func (e Engine) SignIn(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, identity.CredentialsError{}
		}
		return domain.User{}, identity.UnavailableError{Err: err}
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.User{}, identity.CredentialsError{}
	}
	return u, nil
}

// Reset tokens expire quickly; they are issued out-of-band by an
// operator, not mailed.
const resetTokenTTL = 30 * time.Minute

// RequestPasswordReset issues a single-use reset token for the account.
// Only the token's hash is stored; the plaintext return value is handed
// to the user out-of-band and redeemed through ResetPassword.
func (e Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	u, err := e.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", err
	}
	token := uuid.NewString()
	pr := domain.PasswordReset{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: repo.HashAPIKey(token),
		ExpiresAt: e.now().Add(resetTokenTTL).UTC().Format(time.RFC3339),
		CreatedAt: e.timestamp(),
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return "", identity.UnavailableError{Err: err}
	}
	defer tx.Rollback()
	if err := e.Repo.InsertPasswordReset(ctx, tx, pr); err != nil {
		return "", identity.UnavailableError{Err: fmt.Errorf("insert password reset: %w", err)}
	}
	if err := e.appendEvent(ctx, tx, events.TypePasswordResetIssued, "user", u.ID, u.ID, nil); err != nil {
		return "", identity.UnavailableError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return "", identity.UnavailableError{Err: err}
	}
	e.notify(events.TypePasswordResetIssued, "user", u.ID, u.ID)
	return token, nil
}

// ResetPassword redeems a reset token and replaces the account password.
// Expired, unknown and already-used tokens all fail the same way.
func (e Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return identity.ValidationError{Fields: map[string]string{"new_password": "must be at least 8 characters"}}
	}
	pr, err := e.Repo.GetPasswordResetByHash(ctx, repo.HashAPIKey(token))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return identity.CredentialsError{}
		}
		return identity.UnavailableError{Err: err}
	}
	if pr.UsedAt != nil {
		return identity.CredentialsError{}
	}
	expires, err := time.Parse(time.RFC3339, pr.ExpiresAt)
	if err != nil || !e.now().Before(expires) {
		return identity.CredentialsError{}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return identity.UnavailableError{Err: err}
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return identity.UnavailableError{Err: err}
	}
	defer tx.Rollback()
	if err := e.Repo.MarkPasswordResetUsed(ctx, tx, pr.ID, e.timestamp()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return identity.CredentialsError{}
		}
		return identity.UnavailableError{Err: err}
	}
	if err := e.Repo.UpdateUserPasswordTx(ctx, tx, pr.UserID, string(hash)); err != nil {
		return identity.UnavailableError{Err: err}
	}
	if err := e.appendEvent(ctx, tx, events.TypePasswordReset, "user", pr.UserID, pr.UserID, nil); err != nil {
		return identity.UnavailableError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return identity.UnavailableError{Err: err}
	}
	e.notify(events.TypePasswordReset, "user", pr.UserID, pr.UserID)
	return nil
}

// ChangeRole sets a user's role. Admin only; the role column is the
// single authoritative source, so this takes effect on the target's next
// request.
func (e Engine) ChangeRole(ctx context.Context, caller identity.Identity, userID, role string) (domain.User, error) {
	if caller.Role != domain.RoleAdmin {
		return domain.User{}, identity.RoleError{Role: caller.Role, Operation: "change roles"}
	}
	if !identity.ValidRole(role) {
		return domain.User{}, identity.ValidationError{Fields: map[string]string{"role": "must be volunteer, organizer or admin"}}
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.User{}, identity.UnavailableError{Err: err}
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateUserRole(ctx, tx, userID, role); err != nil {
		return domain.User{}, err
	}
	if err := e.appendEvent(ctx, tx, events.TypeUserRoleChanged, "user", userID, caller.UserID,
		events.EventPayload{"role": role}); err != nil {
		return domain.User{}, identity.UnavailableError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, identity.UnavailableError{Err: err}
	}
	e.notify(events.TypeUserRoleChanged, "user", userID, caller.UserID)
	return e.Repo.GetUser(ctx, userID)
}

// UpdateProfile edits the caller's display name.
func (e Engine) UpdateProfile(ctx context.Context, caller identity.Identity, displayName string) (domain.User, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return domain.User{}, identity.ValidationError{Fields: map[string]string{"display_name": "required"}}
	}
	if err := e.Repo.UpdateUserProfile(ctx, caller.UserID, &name); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, caller.UserID)
}

// ChangePassword verifies the current password before replacing it.
func (e Engine) ChangePassword(ctx context.Context, caller identity.Identity, current, next string) error {
	u, err := e.Repo.GetUser(ctx, caller.UserID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return identity.ValidationError{Fields: map[string]string{"current_password": "does not match"}}
	}
	if len(next) < 8 {
		return identity.ValidationError{Fields: map[string]string{"new_password": "must be at least 8 characters"}}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return identity.UnavailableError{Err: err}
	}
	return e.Repo.UpdateUserPassword(ctx, caller.UserID, string(hash))
}

// ListUsers returns accounts, optionally filtered by role. Admin only.
func (e Engine) ListUsers(ctx context.Context, caller identity.Identity, role string) ([]domain.User, error) {
	if caller.Role != domain.RoleAdmin {
		return nil, identity.RoleError{Role: caller.Role, Operation: "list users"}
	}
	return e.Repo.ListUsers(ctx, role)
}

// GetUser returns one account: the caller's own, or any account for an
// admin.
func (e Engine) GetUser(ctx context.Context, caller identity.Identity, id string) (domain.User, error) {
	if id != caller.UserID && caller.Role != domain.RoleAdmin {
		return domain.User{}, repo.ErrNotFound
	}
	return e.Repo.GetUser(ctx, id)
}

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"reforesta/internal/domain"
	"reforesta/internal/engine/identity"
	"reforesta/internal/events"
	"reforesta/internal/repo"
)

// DonationOptions carries the fields for a new donation. ProjectID is
// optional; a donation without one funds the organization generally.
type DonationOptions struct {
	ProjectID       string
	AmountCents     int64
	Currency        string
	PaymentMethodID string
	Note            string
}

func (e Engine) validCurrency(code string) bool {
	currencies := e.Config.Donations.Currencies
	if len(currencies) == 0 {
		currencies = []string{"EUR", "USD"}
	}
	for _, c := range currencies {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

// Donate records a donation from the caller. Any authenticated role may
// donate. The payment method, when given, must belong to the caller.
func (e Engine) Donate(ctx context.Context, caller identity.Identity, opts DonationOptions) (domain.Donation, error) {
	fields := map[string]string{}
	if opts.AmountCents <= 0 {
		fields["amount_cents"] = "must be positive"
	}
	if !e.validCurrency(opts.Currency) {
		fields["currency"] = "unsupported currency"
	}
	if len(fields) > 0 {
		return domain.Donation{}, identity.ValidationError{Fields: fields}
	}
	if opts.ProjectID != "" {
		if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
			return domain.Donation{}, err
		}
	}
	if opts.PaymentMethodID != "" {
		m, err := e.Repo.GetPaymentMethod(ctx, opts.PaymentMethodID)
		if err != nil {
			return domain.Donation{}, err
		}
		if m.UserID != caller.UserID {
			return domain.Donation{}, repo.ErrNotFound
		}
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Donation{}, identity.UnavailableError{Err: err}
	}
	defer tx.Rollback()

	d := domain.Donation{
		ID:          uuid.NewString(),
		UserID:      caller.UserID,
		AmountCents: opts.AmountCents,
		Currency:    strings.ToUpper(opts.Currency),
		Note:        strings.TrimSpace(opts.Note),
		CreatedAt:   e.timestamp(),
	}
	if opts.ProjectID != "" {
		d.ProjectID = &opts.ProjectID
	}
	if opts.PaymentMethodID != "" {
		d.PaymentMethodID = &opts.PaymentMethodID
	}
	if err := e.Repo.InsertDonation(ctx, tx, d); err != nil {
		return domain.Donation{}, identity.UnavailableError{Err: fmt.Errorf("insert donation: %w", err)}
	}
	if err := e.appendEvent(ctx, tx, events.TypeDonationCreated, "donation", d.ID, caller.UserID,
		events.EventPayload{"amount_cents": d.AmountCents, "currency": d.Currency}); err != nil {
		return domain.Donation{}, identity.UnavailableError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Donation{}, identity.UnavailableError{Err: err}
	}
	e.notify(events.TypeDonationCreated, "donation", d.ID, caller.UserID)
	return d, nil
}

// ListMyDonations returns the caller's donation history.
func (e Engine) ListMyDonations(ctx context.Context, caller identity.Identity) ([]domain.Donation, error) {
	return e.Repo.ListDonationsByUser(ctx, caller.UserID)
}

// AddPaymentMethod stores a tokenized payment method reference. Card
// data never touches this system; only the kind, label and last four
// digits are kept.
func (e Engine) AddPaymentMethod(ctx context.Context, caller identity.Identity, kind, label, last4 string) (domain.PaymentMethod, error) {
	fields := map[string]string{}
	switch kind {
	case "card", "bank", "paypal":
	default:
		fields["kind"] = "must be card, bank or paypal"
	}
	if strings.TrimSpace(label) == "" {
		fields["label"] = "required"
	}
	if last4 != "" && len(last4) != 4 {
		fields["last4"] = "must be exactly 4 digits"
	}
	if len(fields) > 0 {
		return domain.PaymentMethod{}, identity.ValidationError{Fields: fields}
	}
	m := domain.PaymentMethod{
		ID:        uuid.NewString(),
		UserID:    caller.UserID,
		Kind:      kind,
		Label:     strings.TrimSpace(label),
		Last4:     last4,
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertPaymentMethod(ctx, m); err != nil {
		return domain.PaymentMethod{}, identity.UnavailableError{Err: err}
	}
	return m, nil
}

// ListPaymentMethods returns the caller's stored payment methods.
func (e Engine) ListPaymentMethods(ctx context.Context, caller identity.Identity) ([]domain.PaymentMethod, error) {
	return e.Repo.ListPaymentMethods(ctx, caller.UserID)
}

// RemovePaymentMethod deletes one of the caller's payment methods.
func (e Engine) RemovePaymentMethod(ctx context.Context, caller identity.Identity, id string) error {
	m, err := e.Repo.GetPaymentMethod(ctx, id)
	if err != nil {
		return err
	}
	if m.UserID != caller.UserID && caller.Role != domain.RoleAdmin {
		return repo.ErrNotFound
	}
	return e.Repo.DeletePaymentMethod(ctx, id)
}

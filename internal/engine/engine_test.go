package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reforesta/internal/config"
	"reforesta/internal/db"
	"reforesta/internal/domain"
	"reforesta/internal/engine"
	"reforesta/internal/engine/identity"
	"reforesta/internal/migrate"
	"reforesta/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Auth.AdminSignupCode = "plant-more-trees"
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) signUp(t *testing.T, email, role string) identity.Identity {
	t.Helper()
	u, err := env.Engine.SignUp(env.Ctx, engine.SignUpOptions{
		Email:       email,
		Password:    "correct-horse",
		DisplayName: "Test " + role,
		Role:        role,
		SignupCode:  "plant-more-trees",
	})
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	return identity.Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
}

func validPetition() engine.PetitionOptions {
	return engine.PetitionOptions{
		Name:            "Bosque X",
		LocationName:    "Sierra Norte",
		Lat:             40.52,
		Lng:             -3.64,
		TreeTarget:      500,
		VolunteerTarget: 10,
		Species:         []string{"quercus ilex", "pinus pinea"},
		ScheduledDate:   "2026-04-12",
	}
}

func (env testEnv) approvedProject(t *testing.T, admin, requester identity.Identity) domain.Project {
	t.Helper()
	pet, err := env.Engine.SubmitPetition(env.Ctx, requester, validPetition())
	if err != nil {
		t.Fatalf("submit petition: %v", err)
	}
	_, proj, err := env.Engine.ApprovePetition(env.Ctx, admin, pet.ID)
	if err != nil {
		t.Fatalf("approve petition: %v", err)
	}
	return proj
}

func TestSignUpAndSignIn(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.SignUp(env.Ctx, engine.SignUpOptions{
		Email:       "Maria@Example.org",
		Password:    "longenough",
		DisplayName: "Maria",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if u.Email != "maria@example.org" {
		t.Fatalf("email not lowercased: %q", u.Email)
	}
	if u.Role != domain.RoleVolunteer {
		t.Fatalf("default role = %q, want volunteer", u.Role)
	}

	// same email, different case
	_, err = env.Engine.SignUp(env.Ctx, engine.SignUpOptions{
		Email:       "maria@example.org",
		Password:    "longenough",
		DisplayName: "Maria again",
	})
	if err == nil {
		t.Fatal("duplicate email accepted")
	}

	if _, err := env.Engine.SignIn(env.Ctx, "maria@example.org", "longenough"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	// bad credentials are a credential failure, not malformed input
	var credErr identity.CredentialsError
	if _, err := env.Engine.SignIn(env.Ctx, "maria@example.org", "wrongpass"); !errors.As(err, &credErr) {
		t.Fatalf("wrong password: got %v, want CredentialsError", err)
	}
	if _, err := env.Engine.SignIn(env.Ctx, "nobody@example.org", "longenough"); !errors.As(err, &credErr) {
		t.Fatalf("unknown email: got %v, want CredentialsError", err)
	}
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)

	token, err := env.Engine.RequestPasswordReset(env.Ctx, "vol@example.org")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if token == "" {
		t.Fatal("empty reset token")
	}

	var credErr identity.CredentialsError
	if err := env.Engine.ResetPassword(env.Ctx, "bogus-token", "brand-new-pass"); !errors.As(err, &credErr) {
		t.Fatalf("bogus token: got %v, want CredentialsError", err)
	}

	if err := env.Engine.ResetPassword(env.Ctx, token, "brand-new-pass"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := env.Engine.SignIn(env.Ctx, vol.Email, "brand-new-pass"); err != nil {
		t.Fatalf("sign in with new password: %v", err)
	}
	if _, err := env.Engine.SignIn(env.Ctx, vol.Email, "correct-horse"); !errors.As(err, &credErr) {
		t.Fatalf("old password still works: %v", err)
	}

	// tokens are single-use
	if err := env.Engine.ResetPassword(env.Ctx, token, "yet-another-pass"); !errors.As(err, &credErr) {
		t.Fatalf("token reuse: got %v, want CredentialsError", err)
	}
}

func TestPasswordResetTokenExpires(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "vol@example.org", domain.RoleVolunteer)

	token, err := env.Engine.RequestPasswordReset(env.Ctx, "vol@example.org")
	if err != nil {
		t.Fatal(err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	var credErr identity.CredentialsError
	if err := env.Engine.ResetPassword(env.Ctx, token, "brand-new-pass"); !errors.As(err, &credErr) {
		t.Fatalf("expired token: got %v, want CredentialsError", err)
	}
}

func TestSignUpRequiresCodeForElevatedRoles(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SignUp(env.Ctx, engine.SignUpOptions{
		Email:       "a@example.org",
		Password:    "longenough",
		DisplayName: "A",
		Role:        domain.RoleAdmin,
	})
	var roleErr identity.RoleError
	if !errors.As(err, &roleErr) {
		t.Fatalf("admin signup without code: got %v, want RoleError", err)
	}
}

func TestPetitionApprovalCreatesProject(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)

	pet, err := env.Engine.SubmitPetition(env.Ctx, vol, validPetition())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if pet.Status != domain.PetitionPending {
		t.Fatalf("status = %q, want pending", pet.Status)
	}

	approved, proj, err := env.Engine.ApprovePetition(env.Ctx, admin, pet.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.PetitionApproved {
		t.Fatalf("petition status = %q, want approved", approved.Status)
	}
	if approved.CreatedProjectID == nil || *approved.CreatedProjectID != proj.ID {
		t.Fatalf("created_project_id not linked to %s", proj.ID)
	}
	if proj.Status != domain.ProjectUpcoming {
		t.Fatalf("project status = %q, want upcoming", proj.Status)
	}
	if proj.TreeTarget != 500 || proj.Name != "Bosque X" {
		t.Fatalf("project fields not copied: %+v", proj)
	}
}

func TestPetitionReviewIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)

	pet, err := env.Engine.SubmitPetition(env.Ctx, vol, validPetition())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.ApprovePetition(env.Ctx, admin, pet.ID); err != nil {
		t.Fatal(err)
	}

	var conflict identity.StateConflictError
	if _, _, err := env.Engine.ApprovePetition(env.Ctx, admin, pet.ID); !errors.As(err, &conflict) {
		t.Fatalf("second approve: got %v, want StateConflictError", err)
	}
	if _, err := env.Engine.RejectPetition(env.Ctx, admin, pet.ID); !errors.As(err, &conflict) {
		t.Fatalf("reject after approve: got %v, want StateConflictError", err)
	}
}

func TestPetitionRoleGates(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)

	var roleErr identity.RoleError
	if _, err := env.Engine.SubmitPetition(env.Ctx, admin, validPetition()); !errors.As(err, &roleErr) {
		t.Fatalf("admin submit: got %v, want RoleError", err)
	}

	pet, err := env.Engine.SubmitPetition(env.Ctx, vol, validPetition())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.ApprovePetition(env.Ctx, vol, pet.ID); !errors.As(err, &roleErr) {
		t.Fatalf("volunteer approve: got %v, want RoleError", err)
	}
}

func TestPetitionValidationReportsAllFields(t *testing.T) {
	env := newTestEnv(t)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)

	_, err := env.Engine.SubmitPetition(env.Ctx, vol, engine.PetitionOptions{
		Lat:           120,
		ScheduledDate: "next tuesday",
	})
	var valErr identity.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	for _, field := range []string{"name", "location_name", "lat", "tree_target", "volunteer_target", "scheduled_date"} {
		if _, ok := valErr.Fields[field]; !ok {
			t.Errorf("missing failure for field %q: %v", field, valErr.Fields)
		}
	}
}

func validSnapshot() domain.ProfileSnapshot {
	return domain.ProfileSnapshot{
		Name:  "Maria Lopez",
		Phone: "+34 600 111 222",
		Age:   29,
	}
}

func TestRegistrationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)
	proj := env.approvedProject(t, admin, vol)

	reg, err := env.Engine.Register(env.Ctx, vol, proj.ID, validSnapshot())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.Status != domain.RegistrationConfirmed {
		t.Fatalf("status = %q, want confirmed", reg.Status)
	}

	var dup identity.DuplicateRegistrationError
	if _, err := env.Engine.Register(env.Ctx, vol, proj.ID, validSnapshot()); !errors.As(err, &dup) {
		t.Fatalf("second register: got %v, want DuplicateRegistrationError", err)
	}

	cancelled, err := env.Engine.CancelRegistration(env.Ctx, vol, reg.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.RegistrationCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("cancel did not stick: %+v", cancelled)
	}

	// cancelling is terminal for the row; re-joining makes a fresh one
	var conflict identity.StateConflictError
	if _, err := env.Engine.CancelRegistration(env.Ctx, vol, reg.ID); !errors.As(err, &conflict) {
		t.Fatalf("double cancel: got %v, want StateConflictError", err)
	}
	again, err := env.Engine.Register(env.Ctx, vol, proj.ID, validSnapshot())
	if err != nil {
		t.Fatalf("re-register after cancel: %v", err)
	}
	if again.ID == reg.ID {
		t.Fatal("re-registration reused the cancelled row")
	}
}

func TestRegisterIsVolunteerOnly(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)
	org := env.signUp(t, "org@example.org", domain.RoleOrganizer)
	proj := env.approvedProject(t, admin, vol)

	var roleErr identity.RoleError
	if _, err := env.Engine.Register(env.Ctx, admin, proj.ID, validSnapshot()); !errors.As(err, &roleErr) {
		t.Fatalf("admin register: got %v, want RoleError", err)
	}
	if _, err := env.Engine.Register(env.Ctx, org, proj.ID, validSnapshot()); !errors.As(err, &roleErr) {
		t.Fatalf("organizer register: got %v, want RoleError", err)
	}
}

func TestRegistrationSnapshotValidation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)
	proj := env.approvedProject(t, admin, vol)

	_, err := env.Engine.Register(env.Ctx, vol, proj.ID, domain.ProfileSnapshot{
		Phone: "not a phone",
		Age:   12,
	})
	var valErr identity.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	for _, field := range []string{"name", "phone", "age"} {
		if _, ok := valErr.Fields[field]; !ok {
			t.Errorf("missing failure for field %q: %v", field, valErr.Fields)
		}
	}
}

func TestAttendanceOverwrites(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)
	proj := env.approvedProject(t, admin, vol)
	if _, err := env.Engine.Register(env.Ctx, vol, proj.ID, validSnapshot()); err != nil {
		t.Fatal(err)
	}

	first, err := env.Engine.RecordAttendance(env.Ctx, vol, proj.ID, 30)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	second, err := env.Engine.RecordAttendance(env.Ctx, vol, proj.ID, 45)
	if err != nil {
		t.Fatalf("re-record: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("overwrite created a new row: %s vs %s", second.ID, first.ID)
	}
	if second.TreesPlanted != 45 {
		t.Fatalf("trees = %d, want 45", second.TreesPlanted)
	}

	stored, err := env.Engine.GetAttendance(env.Ctx, vol, proj.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.TreesPlanted != 45 {
		t.Fatalf("stored trees = %d, want 45", stored.TreesPlanted)
	}
}

func TestAttendanceLimits(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)
	proj := env.approvedProject(t, admin, vol)
	if _, err := env.Engine.Register(env.Ctx, vol, proj.ID, validSnapshot()); err != nil {
		t.Fatal(err)
	}

	var exceeds identity.ExceedsLimitError
	if _, err := env.Engine.RecordAttendance(env.Ctx, vol, proj.ID, proj.TreeTarget+1); !errors.As(err, &exceeds) {
		t.Fatalf("over target: got %v, want ExceedsLimitError", err)
	}
	var invalid identity.InvalidAmountError
	if _, err := env.Engine.RecordAttendance(env.Ctx, vol, proj.ID, 0); !errors.As(err, &invalid) {
		t.Fatalf("zero trees: got %v, want InvalidAmountError", err)
	}
}

func TestAttendanceRequiresConfirmedRegistration(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)
	proj := env.approvedProject(t, admin, vol)

	var noReg identity.NoRegistrationError
	if _, err := env.Engine.RecordAttendance(env.Ctx, vol, proj.ID, 10); !errors.As(err, &noReg) {
		t.Fatalf("unregistered: got %v, want NoRegistrationError", err)
	}

	reg, err := env.Engine.Register(env.Ctx, vol, proj.ID, validSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CancelRegistration(env.Ctx, vol, reg.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RecordAttendance(env.Ctx, vol, proj.ID, 10); !errors.As(err, &noReg) {
		t.Fatalf("cancelled registration: got %v, want NoRegistrationError", err)
	}
}

func TestProjectProgress(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)
	proj := env.approvedProject(t, admin, vol)

	if _, err := env.Engine.Register(env.Ctx, vol, proj.ID, validSnapshot()); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RecordAttendance(env.Ctx, vol, proj.ID, 120); err != nil {
		t.Fatal(err)
	}

	prog, err := env.Engine.ProjectProgress(env.Ctx, proj.ID)
	if err != nil {
		t.Fatal(err)
	}
	if prog.TreesPlanted != 120 || prog.TreeTarget != 500 {
		t.Fatalf("trees %d/%d, want 120/500", prog.TreesPlanted, prog.TreeTarget)
	}
	if prog.TreesPercent != 24 {
		t.Fatalf("trees percent = %v, want 24", prog.TreesPercent)
	}
	if prog.Volunteers != 1 || prog.VolunteerPercent != 10 {
		t.Fatalf("volunteers %d (%v%%), want 1 (10%%)", prog.Volunteers, prog.VolunteerPercent)
	}
}

func TestGlobalStats(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)
	proj := env.approvedProject(t, admin, vol)
	if _, err := env.Engine.Register(env.Ctx, vol, proj.ID, validSnapshot()); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RecordAttendance(env.Ctx, vol, proj.ID, 75); err != nil {
		t.Fatal(err)
	}

	stats, err := env.Engine.GlobalStats(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalProjects != 1 || stats.ProjectsByStatus[domain.ProjectUpcoming] != 1 {
		t.Fatalf("projects: %+v", stats)
	}
	if stats.TotalRegistrations != 1 || stats.TreesPlanted != 75 {
		t.Fatalf("registrations/trees: %+v", stats)
	}
}

func TestDonations(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)
	proj := env.approvedProject(t, admin, vol)

	var valErr identity.ValidationError
	if _, err := env.Engine.Donate(env.Ctx, vol, engine.DonationOptions{AmountCents: 0, Currency: "EUR"}); !errors.As(err, &valErr) {
		t.Fatalf("zero amount: got %v, want ValidationError", err)
	}
	if _, err := env.Engine.Donate(env.Ctx, vol, engine.DonationOptions{AmountCents: 500, Currency: "XYZ"}); !errors.As(err, &valErr) {
		t.Fatalf("bad currency: got %v, want ValidationError", err)
	}

	d, err := env.Engine.Donate(env.Ctx, vol, engine.DonationOptions{
		ProjectID:   proj.ID,
		AmountCents: 1500,
		Currency:    "eur",
	})
	if err != nil {
		t.Fatalf("donate: %v", err)
	}
	if d.ProjectID == nil || *d.ProjectID != proj.ID {
		t.Fatalf("project not linked: %+v", d)
	}

	mine, err := env.Engine.ListMyDonations(env.Ctx, vol)
	if err != nil || len(mine) != 1 {
		t.Fatalf("list donations: %v (%d)", err, len(mine))
	}

	// another user's payment method must not be usable
	pm, err := env.Engine.AddPaymentMethod(env.Ctx, admin, "card", "work visa", "4242")
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.Donate(env.Ctx, vol, engine.DonationOptions{
		AmountCents:     500,
		Currency:        "EUR",
		PaymentMethodID: pm.ID,
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("foreign payment method: got %v, want ErrNotFound", err)
	}
}

func TestChangeRoleIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)
	org := env.signUp(t, "org@example.org", domain.RoleOrganizer)

	var roleErr identity.RoleError
	if _, err := env.Engine.ChangeRole(env.Ctx, org, vol.UserID, domain.RoleOrganizer); !errors.As(err, &roleErr) {
		t.Fatalf("organizer change role: got %v, want RoleError", err)
	}

	u, err := env.Engine.ChangeRole(env.Ctx, admin, vol.UserID, domain.RoleOrganizer)
	if err != nil {
		t.Fatalf("admin change role: %v", err)
	}
	if u.Role != domain.RoleOrganizer {
		t.Fatalf("role = %q, want organizer", u.Role)
	}
}

func TestProjectUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)
	proj := env.approvedProject(t, admin, vol)

	status := domain.ProjectActive
	updated, err := env.Engine.UpdateProject(env.Ctx, admin, proj.ID, repo.ProjectUpdate{Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.ProjectActive {
		t.Fatalf("status = %q, want active", updated.Status)
	}

	var roleErr identity.RoleError
	if _, err := env.Engine.UpdateProject(env.Ctx, vol, proj.ID, repo.ProjectUpdate{Status: &status}); !errors.As(err, &roleErr) {
		t.Fatalf("volunteer update: got %v, want RoleError", err)
	}

	if err := env.Engine.DeleteProject(env.Ctx, admin, proj.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetProject(env.Ctx, proj.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("get after delete: got %v, want ErrNotFound", err)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)

	pet, err := env.Engine.SubmitPetition(env.Ctx, vol, validPetition())
	if err != nil {
		t.Fatal(err)
	}
	_, proj, err := env.Engine.ApprovePetition(env.Ctx, admin, pet.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Register(env.Ctx, vol, proj.ID, validSnapshot()); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RecordAttendance(env.Ctx, vol, proj.ID, 40); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Donate(env.Ctx, vol, engine.DonationOptions{
		ProjectID:   proj.ID,
		AmountCents: 1000,
		Currency:    "EUR",
	}); err != nil {
		t.Fatal(err)
	}

	// registrations, attendance and the petition back-reference must not
	// block the delete
	if err := env.Engine.DeleteProject(env.Ctx, admin, proj.ID); err != nil {
		t.Fatalf("delete with children: %v", err)
	}

	regs, err := env.Engine.ListRegistrations(env.Ctx, admin, repo.RegistrationFilters{ProjectID: proj.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(regs) != 0 {
		t.Fatalf("%d registrations survived the delete", len(regs))
	}
	if _, err := env.Engine.GetAttendance(env.Ctx, vol, proj.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("attendance after delete: got %v, want ErrNotFound", err)
	}

	// financial and review records detach instead of disappearing
	donations, err := env.Engine.ListMyDonations(env.Ctx, vol)
	if err != nil || len(donations) != 1 {
		t.Fatalf("donations after delete: %v (%d)", err, len(donations))
	}
	if donations[0].ProjectID != nil {
		t.Fatalf("donation still references deleted project %s", *donations[0].ProjectID)
	}
	got, err := env.Engine.GetPetition(env.Ctx, admin, pet.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.PetitionApproved || got.CreatedProjectID != nil {
		t.Fatalf("petition after delete: %+v", got)
	}
}

func TestEventTimestampsFollowEngineClock(t *testing.T) {
	env := newTestEnv(t)
	vol := env.signUp(t, "vol@example.org", domain.RoleVolunteer)
	if _, err := env.Engine.SubmitPetition(env.Ctx, vol, validPetition()); err != nil {
		t.Fatal(err)
	}

	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 1, "", "", "")
	if err != nil || len(events) != 1 {
		t.Fatalf("latest events: %v (%d)", err, len(events))
	}
	if want := "2026-03-01T09:00:00Z"; events[0].TS != want {
		t.Fatalf("event ts = %q, want fixed clock %q", events[0].TS, want)
	}
}

func TestPetitionListScoping(t *testing.T) {
	env := newTestEnv(t)
	admin := env.signUp(t, "admin@example.org", domain.RoleAdmin)
	volA := env.signUp(t, "a@example.org", domain.RoleVolunteer)
	volB := env.signUp(t, "b@example.org", domain.RoleVolunteer)

	if _, err := env.Engine.SubmitPetition(env.Ctx, volA, validPetition()); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitPetition(env.Ctx, volB, validPetition()); err != nil {
		t.Fatal(err)
	}

	mine, err := env.Engine.ListPetitions(env.Ctx, volA, repo.PetitionFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].RequesterID != volA.UserID {
		t.Fatalf("volunteer sees %d petitions, want only their own", len(mine))
	}

	all, err := env.Engine.ListPetitions(env.Ctx, admin, repo.PetitionFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("admin sees %d petitions, want 2", len(all))
	}
}

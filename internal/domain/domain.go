package domain

// Roles a user account can hold. Exactly one at a time.
const (
	RoleVolunteer = "volunteer"
	RoleOrganizer = "organizer"
	RoleAdmin     = "admin"
)

// Project statuses. Transitions are explicit admin edits, never time-driven.
const (
	ProjectUpcoming  = "upcoming"
	ProjectActive    = "active"
	ProjectCompleted = "completed"
)

// Petition statuses. approved and rejected are terminal.
const (
	PetitionPending  = "pending"
	PetitionApproved = "approved"
	PetitionRejected = "rejected"
)

// Registration statuses. cancelled is terminal for that row; re-joining
// creates a fresh row.
const (
	RegistrationConfirmed = "confirmed"
	RegistrationCancelled = "cancelled"
)

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email" format:"email"`
	PasswordHash string `json:"-"`
	DisplayName  string `json:"display_name"`
	Role         string `json:"role" enum:"volunteer,organizer,admin"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	LocationName    string   `json:"location_name"`
	Lat             float64  `json:"lat"`
	Lng             float64  `json:"lng"`
	Description     string   `json:"description,omitempty"`
	TreeTarget      int      `json:"tree_target"`
	VolunteerTarget int      `json:"volunteer_target"`
	Species         []string `json:"species,omitempty"`
	ScheduledDate   string   `json:"scheduled_date" format:"date"`
	Status          string   `json:"status" enum:"upcoming,active,completed"`
	CreatedBy       string   `json:"created_by"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
}

type Petition struct {
	ID               string   `json:"id"`
	RequesterID      string   `json:"requester_id"`
	Name             string   `json:"name"`
	LocationName     string   `json:"location_name"`
	Lat              float64  `json:"lat"`
	Lng              float64  `json:"lng"`
	Description      string   `json:"description,omitempty"`
	TreeTarget       int      `json:"tree_target"`
	VolunteerTarget  int      `json:"volunteer_target"`
	Species          []string `json:"species,omitempty"`
	ScheduledDate    string   `json:"scheduled_date" format:"date"`
	Status           string   `json:"status" enum:"pending,approved,rejected"`
	ReviewerID       *string  `json:"reviewer_id,omitempty"`
	ReviewedAt       *string  `json:"reviewed_at,omitempty" format:"date-time"`
	CreatedProjectID *string  `json:"created_project_id,omitempty"`
	CreatedAt        string   `json:"created_at" format:"date-time"`
}

// ProfileSnapshot is the volunteer contact data captured at registration
// time. It is frozen on the registration row and never back-filled from
// later profile edits.
type ProfileSnapshot struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Age          int    `json:"age" minimum:"16" maximum:"100"`
	Experience   string `json:"experience,omitempty"`
	Availability string `json:"availability,omitempty"`
	Transport    string `json:"transport,omitempty"`
	Comments     string `json:"comments,omitempty"`
}

type Registration struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	ProjectID   string          `json:"project_id"`
	Snapshot    ProfileSnapshot `json:"snapshot"`
	Status      string          `json:"status" enum:"confirmed,cancelled"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
	CancelledAt *string         `json:"cancelled_at,omitempty" format:"date-time"`
}

// Attendance is the volunteer's current self-reported tree total for a
// project, not an append-only log. A second submission overwrites the row.
type Attendance struct {
	ID             string `json:"id"`
	ProjectID      string `json:"project_id"`
	UserID         string `json:"user_id"`
	RegistrationID string `json:"registration_id"`
	TreesPlanted   int    `json:"trees_planted" minimum:"1"`
	RecordedAt     string `json:"recorded_at" format:"date-time"`
}

type Donation struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	ProjectID       *string `json:"project_id,omitempty"`
	AmountCents     int64   `json:"amount_cents" minimum:"1"`
	Currency        string  `json:"currency"`
	PaymentMethodID *string `json:"payment_method_id,omitempty"`
	Note            string  `json:"note,omitempty"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
}

type PaymentMethod struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Kind      string `json:"kind" enum:"card,bank,paypal"`
	Label     string `json:"label"`
	Last4     string `json:"last4,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PasswordReset is a single-use, expiring token record. Only the hash
// is stored; the plaintext token is shown once at issue time.
type PasswordReset struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	TokenHash string  `json:"-"`
	ExpiresAt string  `json:"expires_at" format:"date-time"`
	UsedAt    *string `json:"used_at,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// GlobalStats is derived entirely from current entity reads; it carries
// no independent state and is recomputed per request.
type GlobalStats struct {
	TotalProjects      int            `json:"total_projects"`
	TotalRegistrations int            `json:"total_registrations"`
	UniqueVolunteers   int            `json:"unique_volunteers"`
	TotalAttendances   int            `json:"total_attendances"`
	TreesPlanted       int            `json:"trees_planted"`
	ProjectsByStatus   map[string]int `json:"projects_by_status"`
}

type ProjectProgress struct {
	ProjectID        string  `json:"project_id"`
	TreesPlanted     int     `json:"trees_planted"`
	TreeTarget       int     `json:"tree_target"`
	TreesPercent     float64 `json:"trees_percent" minimum:"0" maximum:"100"`
	Volunteers       int     `json:"volunteers"`
	VolunteerTarget  int     `json:"volunteer_target"`
	VolunteerPercent float64 `json:"volunteer_percent" minimum:"0" maximum:"100"`
}

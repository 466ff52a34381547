package server

import (
	"reforesta/internal/domain"
)

// Request payloads

type SignUpRequest struct {
	Email       string `json:"email" format:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role,omitempty" enum:"volunteer,organizer,admin"`
	SignupCode  string `json:"signup_code,omitempty"`
}

type SignInRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

type ChangeRoleRequest struct {
	Role string `json:"role" enum:"volunteer,organizer,admin"`
}

type ProjectFieldsRequest struct {
	Name            string   `json:"name"`
	LocationName    string   `json:"location_name"`
	Lat             float64  `json:"lat"`
	Lng             float64  `json:"lng"`
	Description     string   `json:"description,omitempty"`
	TreeTarget      int      `json:"tree_target"`
	VolunteerTarget int      `json:"volunteer_target"`
	Species         []string `json:"species,omitempty"`
	ScheduledDate   string   `json:"scheduled_date" format:"date"`
}

type UpdateProjectRequest struct {
	Name            *string  `json:"name,omitempty"`
	LocationName    *string  `json:"location_name,omitempty"`
	Lat             *float64 `json:"lat,omitempty"`
	Lng             *float64 `json:"lng,omitempty"`
	Description     *string  `json:"description,omitempty"`
	TreeTarget      *int     `json:"tree_target,omitempty"`
	VolunteerTarget *int     `json:"volunteer_target,omitempty"`
	Species         []string `json:"species,omitempty"`
	ScheduledDate   *string  `json:"scheduled_date,omitempty"`
	Status          *string  `json:"status,omitempty" enum:"upcoming,active,completed"`
}

type RegisterRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Age          int    `json:"age"`
	Experience   string `json:"experience,omitempty"`
	Availability string `json:"availability,omitempty"`
	Transport    string `json:"transport,omitempty"`
	Comments     string `json:"comments,omitempty"`
}

type RecordAttendanceRequest struct {
	TreesPlanted int `json:"trees_planted" minimum:"1"`
}

type DonateRequest struct {
	ProjectID       string `json:"project_id,omitempty"`
	AmountCents     int64  `json:"amount_cents" minimum:"1"`
	Currency        string `json:"currency"`
	PaymentMethodID string `json:"payment_method_id,omitempty"`
	Note            string `json:"note,omitempty"`
}

type AddPaymentMethodRequest struct {
	Kind  string `json:"kind" enum:"card,bank,paypal"`
	Label string `json:"label"`
	Last4 string `json:"last4,omitempty"`
}

// Response payloads

type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role" enum:"volunteer,organizer,admin"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type TokenResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ApprovePetitionResponse struct {
	Petition domain.Petition `json:"petition"`
	Project  domain.Project  `json:"project"`
}

type paginatedProjects struct {
	Items      []domain.Project `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type paginatedPetitions struct {
	Items      []domain.Petition `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedRegistrations struct {
	Items      []domain.Registration `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
}

func mapUsers(items []domain.User) []UserResponse {
	res := make([]UserResponse, 0, len(items))
	for _, u := range items {
		res = append(res, userResponse(u))
	}
	return res
}

func snapshotFromRequest(req RegisterRequest) domain.ProfileSnapshot {
	return domain.ProfileSnapshot{
		Name:         req.Name,
		Phone:        req.Phone,
		Age:          req.Age,
		Experience:   req.Experience,
		Availability: req.Availability,
		Transport:    req.Transport,
		Comments:     req.Comments,
	}
}

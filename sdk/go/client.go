package reforestasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Reforesta HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// User represents the API user model.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	CreatedAt   string `json:"created_at"`
}

// Project represents a planting project.
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
	ScheduledDate   string   `json:"scheduled_date"`
	Status          string   `json:"status"`
	CreatedAt       string   `json:"created_at"`
}

// Petition represents a project proposal awaiting review.
type Petition struct {
	ID            string `json:"id"`
	RequesterID   string `json:"requester_id"`
	Name          string `json:"name"`
	LocationName  string `json:"location_name"`
	TreeTarget    int    `json:"tree_target"`
	ScheduledDate string `json:"scheduled_date"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
}

// Registration represents a volunteer's enrolment in a project.
type Registration struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Attendance is a volunteer's current tree count for a project.
type Attendance struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	UserID       string `json:"user_id"`
	TreesPlanted int    `json:"trees_planted"`
	RecordedAt   string `json:"recorded_at"`
}

// Progress is the derived completion state of a project.
type Progress struct {
	ProjectID        string  `json:"project_id"`
	TreesPlanted     int     `json:"trees_planted"`
	TreeTarget       int     `json:"tree_target"`
	TreesPercent     float64 `json:"trees_percent"`
	Volunteers       int     `json:"volunteers"`
	VolunteerTarget  int     `json:"volunteer_target"`
	VolunteerPercent float64 `json:"volunteer_percent"`
}

// Stats aggregates platform-wide numbers.
type Stats struct {
	TotalProjects      int            `json:"total_projects"`
	TotalRegistrations int            `json:"total_registrations"`
	UniqueVolunteers   int            `json:"unique_volunteers"`
	TotalAttendances   int            `json:"total_attendances"`
	TreesPlanted       int            `json:"trees_planted"`
	ProjectsByStatus   map[string]int `json:"projects_by_status"`
}

// TokenResponse is returned by signup and signin.
type TokenResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedProjects wraps project listings with cursors.
type PaginatedProjects struct {
	Items      []Project `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// SignUp creates an account and stores the returned bearer token on the
// client for subsequent calls.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (User, error) {
	body := map[string]any{
		"email":        email,
		"password":     password,
		"display_name": displayName,
	}
	var resp TokenResponse
	if err := c.do(ctx, http.MethodPost, "v1/auth/signup", body, &resp); err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// SignIn authenticates and stores the returned bearer token.
func (c *Client) SignIn(ctx context.Context, email, password string) (User, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	var resp TokenResponse
	if err := c.do(ctx, http.MethodPost, "v1/auth/signin", body, &resp); err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// Projects returns a page of projects, optionally filtered by status.
func (c *Client) Projects(ctx context.Context, status string, limit int, cursor string) (PaginatedProjects, error) {
	endpoint := "v1/projects"
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp PaginatedProjects
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Project fetches a project by id.
func (c *Client) Project(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v1/projects/%s", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// ProjectProgress returns the derived completion state of a project.
func (c *Client) ProjectProgress(ctx context.Context, id string) (Progress, error) {
	var resp Progress
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v1/projects/%s/progress", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// SubmitPetition proposes a new project.
func (c *Client) SubmitPetition(ctx context.Context, name, location string, lat, lng float64, treeTarget, volunteerTarget int, scheduledDate string) (Petition, error) {
	body := map[string]any{
		"name":             name,
		"location_name":    location,
		"lat":              lat,
		"lng":              lng,
		"tree_target":      treeTarget,
		"volunteer_target": volunteerTarget,
		"scheduled_date":   scheduledDate,
	}
	var resp Petition
	err := c.do(ctx, http.MethodPost, "v1/petitions", body, &resp)
	return resp, err
}

// ApprovePetition approves a pending petition. Returns the created project.
func (c *Client) ApprovePetition(ctx context.Context, id string) (Petition, Project, error) {
	var resp struct {
		Petition Petition `json:"petition"`
		Project  Project  `json:"project"`
	}
	endpoint := fmt.Sprintf("v1/petitions/%s/approve", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, struct{}{}, &resp)
	return resp.Petition, resp.Project, err
}

// RejectPetition rejects a pending petition.
func (c *Client) RejectPetition(ctx context.Context, id string) (Petition, error) {
	var resp Petition
	endpoint := fmt.Sprintf("v1/petitions/%s/reject", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, struct{}{}, &resp)
	return resp, err
}

// Register enrols the authenticated volunteer in a project.
func (c *Client) Register(ctx context.Context, projectID, name, phone string, age int) (Registration, error) {
	body := map[string]any{
		"name":  name,
		"phone": phone,
		"age":   age,
	}
	var resp Registration
	endpoint := fmt.Sprintf("v1/projects/%s/registrations", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CancelRegistration cancels a registration by id.
func (c *Client) CancelRegistration(ctx context.Context, id string) (Registration, error) {
	var resp Registration
	endpoint := fmt.Sprintf("v1/registrations/%s/cancel", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, struct{}{}, &resp)
	return resp, err
}

// RecordAttendance sets the authenticated volunteer's tree count for a
// project. Repeated calls overwrite the previous value.
func (c *Client) RecordAttendance(ctx context.Context, projectID string, treesPlanted int) (Attendance, error) {
	body := map[string]any{
		"trees_planted": treesPlanted,
	}
	var resp Attendance
	endpoint := fmt.Sprintf("v1/projects/%s/attendance", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPut, endpoint, body, &resp)
	return resp, err
}

// Stats returns platform-wide statistics.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "v1/stats", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

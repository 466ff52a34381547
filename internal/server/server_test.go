package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"reforesta/internal/config"
	"reforesta/internal/db"
	"reforesta/internal/engine"
	"reforesta/internal/migrate"
)

const testSignupCode = "plant-more-trees"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	cfg.Auth.AdminSignupCode = testSignupCode
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:       "test-secret",
			TokenTTLMinutes: 60,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// signUpUser creates an account through the API and returns its token.
func signUpUser(t *testing.T, srv *testServer, email, role string) TokenResponse {
	t.Helper()
	body := map[string]any{
		"email":        email,
		"password":     "correct-horse",
		"display_name": "Test User",
	}
	if role != "" {
		body["role"] = role
		body["signup_code"] = testSignupCode
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/signup", body, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("signup %s status %d: %s", email, res.StatusCode, string(data))
	}
	var tok TokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if tok.Token == "" {
		t.Fatal("empty token")
	}
	return tok
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestSignupSigninFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	tok := signUpUser(t, srv, "maria@example.org", "")

	meRes, meBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, bearer(tok.Token))
	if meRes.StatusCode != http.StatusOK {
		t.Fatalf("get me status %d: %s", meRes.StatusCode, string(meBody))
	}
	var me UserResponse
	_ = json.Unmarshal(meBody, &me)
	if me.Email != "maria@example.org" || me.Role != "volunteer" {
		t.Fatalf("unexpected me: %+v", me)
	}

	// no credentials
	anonRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, nil)
	if anonRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous me status %d, want 401", anonRes.StatusCode)
	}

	// garbage token
	badRes, badBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, bearer("not-a-jwt"))
	if badRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status %d: %s", badRes.StatusCode, string(badBody))
	}

	signinRes, signinBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/signin", map[string]any{
		"email":    "maria@example.org",
		"password": "correct-horse",
	}, nil)
	if signinRes.StatusCode != http.StatusOK {
		t.Fatalf("signin status %d: %s", signinRes.StatusCode, string(signinBody))
	}

	wrongRes, wrongBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/signin", map[string]any{
		"email":    "maria@example.org",
		"password": "wrong-password",
	}, nil)
	if wrongRes.StatusCode != http.StatusUnauthorized || errorCode(t, wrongBody) != "invalid_credentials" {
		t.Fatalf("wrong password: %d %s", wrongRes.StatusCode, string(wrongBody))
	}
}

func TestResetWithInvalidToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/reset", map[string]any{
		"token":        "bogus-token",
		"new_password": "brand-new-pass",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, body) != "invalid_credentials" {
		t.Fatalf("bogus reset token: %d %s", res.StatusCode, string(body))
	}
}

func petitionBody() map[string]any {
	return map[string]any{
		"name":             "Bosque X",
		"location_name":    "Sierra Norte",
		"lat":              40.52,
		"lng":              -3.64,
		"tree_target":      500,
		"volunteer_target": 10,
		"scheduled_date":   "2026-04-12",
	}
}

func TestPetitionWorkflow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	vol := signUpUser(t, srv, "vol@example.org", "")
	admin := signUpUser(t, srv, "admin@example.org", "admin")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/petitions", petitionBody(), bearer(vol.Token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit petition status %d: %s", res.StatusCode, string(data))
	}
	var pet struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	_ = json.Unmarshal(data, &pet)
	if pet.Status != "pending" {
		t.Fatalf("petition status %q, want pending", pet.Status)
	}

	// volunteers cannot review
	denyRes, denyBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/petitions/"+pet.ID+"/approve", struct{}{}, bearer(vol.Token))
	if denyRes.StatusCode != http.StatusForbidden || errorCode(t, denyBody) != "role_error" {
		t.Fatalf("volunteer approve: %d %s", denyRes.StatusCode, string(denyBody))
	}

	okRes, okBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/petitions/"+pet.ID+"/approve", struct{}{}, bearer(admin.Token))
	if okRes.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", okRes.StatusCode, string(okBody))
	}
	var approved ApprovePetitionResponse
	if err := json.Unmarshal(okBody, &approved); err != nil {
		t.Fatalf("unmarshal approve: %v", err)
	}
	if approved.Project.Status != "upcoming" || approved.Petition.Status != "approved" {
		t.Fatalf("unexpected approval result: %+v", approved)
	}

	// approval is terminal
	againRes, againBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/petitions/"+pet.ID+"/approve", struct{}{}, bearer(admin.Token))
	if againRes.StatusCode != http.StatusConflict || errorCode(t, againBody) != "state_conflict" {
		t.Fatalf("re-approve: %d %s", againRes.StatusCode, string(againBody))
	}

	// the created project is publicly visible without credentials
	projRes, projBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+approved.Project.ID, nil, nil)
	if projRes.StatusCode != http.StatusOK {
		t.Fatalf("public project fetch: %d %s", projRes.StatusCode, string(projBody))
	}
}

func TestRegistrationAndAttendance(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	vol := signUpUser(t, srv, "vol@example.org", "")
	admin := signUpUser(t, srv, "admin@example.org", "admin")

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/petitions", petitionBody(), bearer(vol.Token))
	var pet struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(data, &pet)
	_, apBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/petitions/"+pet.ID+"/approve", struct{}{}, bearer(admin.Token))
	var approved ApprovePetitionResponse
	_ = json.Unmarshal(apBody, &approved)
	projectID := approved.Project.ID

	regBody := map[string]any{
		"name":  "Maria Lopez",
		"phone": "+34 600 111 222",
		"age":   29,
	}
	regRes, regData := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+projectID+"/registrations", regBody, bearer(vol.Token))
	if regRes.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", regRes.StatusCode, string(regData))
	}

	dupRes, dupData := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+projectID+"/registrations", regBody, bearer(vol.Token))
	if dupRes.StatusCode != http.StatusConflict || errorCode(t, dupData) != "duplicate_registration" {
		t.Fatalf("duplicate register: %d %s", dupRes.StatusCode, string(dupData))
	}

	adminRegRes, adminRegData := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+projectID+"/registrations", regBody, bearer(admin.Token))
	if adminRegRes.StatusCode != http.StatusForbidden || errorCode(t, adminRegData) != "role_error" {
		t.Fatalf("admin register: %d %s", adminRegRes.StatusCode, string(adminRegData))
	}

	attRes, attData := doJSON(t, client, http.MethodPut, srv.URL+"/v1/projects/"+projectID+"/attendance", map[string]any{
		"trees_planted": 120,
	}, bearer(vol.Token))
	if attRes.StatusCode != http.StatusOK {
		t.Fatalf("attendance status %d: %s", attRes.StatusCode, string(attData))
	}

	overRes, overData := doJSON(t, client, http.MethodPut, srv.URL+"/v1/projects/"+projectID+"/attendance", map[string]any{
		"trees_planted": 501,
	}, bearer(vol.Token))
	if overRes.StatusCode != http.StatusUnprocessableEntity || errorCode(t, overData) != "exceeds_limit" {
		t.Fatalf("over target: %d %s", overRes.StatusCode, string(overData))
	}

	// progress is public
	progRes, progData := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+projectID+"/progress", nil, nil)
	if progRes.StatusCode != http.StatusOK {
		t.Fatalf("progress status %d: %s", progRes.StatusCode, string(progData))
	}
	var prog struct {
		TreesPlanted int     `json:"trees_planted"`
		TreesPercent float64 `json:"trees_percent"`
	}
	_ = json.Unmarshal(progData, &prog)
	if prog.TreesPlanted != 120 || prog.TreesPercent != 24 {
		t.Fatalf("progress %+v, want 120 trees at 24%%", prog)
	}
}

func TestPublicBrowsing(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("public project list: %d %s", listRes.StatusCode, string(listBody))
	}

	statsRes, statsBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/stats", nil, nil)
	if statsRes.StatusCode != http.StatusOK {
		t.Fatalf("public stats: %d %s", statsRes.StatusCode, string(statsBody))
	}

	healthRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", healthRes.StatusCode)
	}
}

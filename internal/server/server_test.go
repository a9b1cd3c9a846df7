package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"reportline/internal/config"
	"reportline/internal/db"
	"reportline/internal/engine"
	"reportline/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	Clock  *time.Time
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// a Monday
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	e := engine.New(conn, config.Default("test"))
	e.Now = func() time.Time { return now }
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		Clock:  &now,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
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

// seedWrangler creates a wrangler org directly through the engine and
// returns a bearer header for it.
func seedWrangler(t *testing.T, ts *testServer) map[string]string {
	t.Helper()
	org, err := ts.Engine.CreateOrg(context.Background(), "Wranglers", "ops@example.com", true, "seed")
	if err != nil {
		t.Fatalf("seed wrangler: %v", err)
	}
	token, err := signDevToken(testSecret, org.ID, org.Email, true)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealthNoAuth(t *testing.T) {
	ts := newTestServer(t)
	res, body := doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%s", res.StatusCode, body)
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	ts := newTestServer(t)
	res, _ := doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
}

func TestDevLoginAndLinkFlow(t *testing.T) {
	ts := newTestServer(t)
	wrangler := seedWrangler(t, ts)

	// Create a reporting org and a project.
	res, body := doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/v0/orgs",
		CreateOrgRequest{Name: "Acme", Email: "acme@example.com"}, wrangler)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create org: %d %s", res.StatusCode, body)
	}
	var org OrgResponse
	if err := json.Unmarshal(body, &org); err != nil {
		t.Fatalf("decode org: %v", err)
	}

	res, body = doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/v0/projects",
		CreateProjectRequest{Name: "census"}, wrangler)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, body)
	}
	var proj ProjectResponse
	if err := json.Unmarshal(body, &proj); err != nil {
		t.Fatalf("decode project: %v", err)
	}

	// Link with a weekly Wednesday schedule.
	dow := 3
	linkURL := ts.URL + "/v0/orgs/" + org.ID + "/projects/" + proj.ID + "/link"
	res, body = doJSON(t, ts.Client(), http.MethodPut, linkURL,
		ScheduleRequest{Interval: "weekly", DayOfWeek: &dow}, wrangler)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create link: %d %s", res.StatusCode, body)
	}

	// The org logs in with its email and reads its own link.
	res, body = doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/v0/auth/dev/login",
		DevLoginRequest{Email: "acme@example.com"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, body)
	}
	var login DevLoginResponse
	if err := json.Unmarshal(body, &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	orgAuth := map[string]string{"Authorization": "Bearer " + login.Token}

	res, body = doJSON(t, ts.Client(), http.MethodGet, linkURL, nil, orgAuth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get link: %d %s", res.StatusCode, body)
	}
	var link LinkResponse
	if err := json.Unmarshal(body, &link); err != nil {
		t.Fatalf("decode link: %v", err)
	}
	if link.Compliance == nil || link.Compliance.Status != "due-soon" {
		t.Fatalf("compliance = %+v", link.Compliance)
	}

	// Submit a report on time.
	res, body = doJSON(t, ts.Client(), http.MethodPost, linkURL+"/submissions", nil, orgAuth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", res.StatusCode, body)
	}
	var sub SubmissionResponse
	if err := json.Unmarshal(body, &sub); err != nil {
		t.Fatalf("decode submission: %v", err)
	}
	if !sub.Recorded || sub.Link.Streak != 1 || len(sub.Link.History) != 1 {
		t.Fatalf("submission = %+v", sub)
	}

	// The org cannot manage links.
	res, _ = doJSON(t, ts.Client(), http.MethodDelete, linkURL, nil, orgAuth)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("org delete link: %d, want 403", res.StatusCode)
	}
}

func TestInvalidScheduleRejected(t *testing.T) {
	ts := newTestServer(t)
	wrangler := seedWrangler(t, ts)

	_, body := doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/v0/orgs",
		CreateOrgRequest{Name: "Acme", Email: "acme@example.com"}, wrangler)
	var org OrgResponse
	json.Unmarshal(body, &org)
	_, body = doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/v0/projects",
		CreateProjectRequest{Name: "census"}, wrangler)
	var proj ProjectResponse
	json.Unmarshal(body, &proj)

	dom := 32
	res, body := doJSON(t, ts.Client(), http.MethodPut,
		ts.URL+"/v0/orgs/"+org.ID+"/projects/"+proj.ID+"/link",
		ScheduleRequest{Interval: "monthly", DayOfMonth: &dom}, wrangler)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s, want 400", res.StatusCode, body)
	}
	res, _ = doJSON(t, ts.Client(), http.MethodGet,
		ts.URL+"/v0/orgs/"+org.ID+"/projects/"+proj.ID+"/link", nil, wrangler)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("link exists after rejected schedule: %d", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	ts := newTestServer(t)
	wrangler := seedWrangler(t, ts)

	_, body := doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/v0/orgs",
		CreateOrgRequest{Name: "Acme", Email: "acme@example.com"}, wrangler)
	var org OrgResponse
	json.Unmarshal(body, &org)

	res, body := doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/v0/orgs/"+org.ID+"/api-keys",
		map[string]string{"name": "ci"}, wrangler)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key: %d %s", res.StatusCode, body)
	}
	var key APIKeyResponse
	if err := json.Unmarshal(body, &key); err != nil || key.Key == "" {
		t.Fatalf("key response: %v %s", err, body)
	}

	res, body = doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/v0/me", nil,
		map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with api key: %d %s", res.StatusCode, body)
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(body, &who); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if who.OrgID != org.ID || who.Source != "api_key" {
		t.Fatalf("who = %+v", who)
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"practiceflow/internal/config"
	"practiceflow/internal/db"
	"practiceflow/internal/engine"
	"practiceflow/internal/migrate"
)

type testServer struct {
	URL         string
	WorkspaceID string
	OwnerID     string
	client      *http.Client
	close       func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("ws-main"))
	w, err := e.InitWorkspace(context.Background(), engine.WorkspaceInitOptions{
		ID:        "ws-main",
		Name:      "Riverbend Therapy",
		OwnerName: "Dana Whitfield",
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("init workspace: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
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
		URL:         "http://" + ln.Addr().String(),
		WorkspaceID: w.ID,
		OwnerID:     w.OwnerProfileID,
		client:      &http.Client{},
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

func ownerHeaders(srv *testServer) map[string]string {
	return map[string]string{"X-Actor-Id": srv.OwnerID}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/workspaces", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be open, got %d", res.StatusCode)
	}
}

func TestDevLoginAndBearer(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": srv.OwnerID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if login.Token == "" {
		t.Fatal("expected a token")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/workspaces/"+srv.WorkspaceID, nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get workspace with bearer status %d: %s", res.StatusCode, string(data))
	}
}

func TestReferralLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/workspaces/" + srv.WorkspaceID

	res, data := doJSON(t, client, http.MethodPost, base+"/referrals", map[string]any{
		"client_name":  "Jordan Blake",
		"client_phone": "555-0100",
	}, ownerHeaders(srv))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create referral status %d: %s", res.StatusCode, string(data))
	}
	var created ReferralResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal referral: %v", err)
	}
	if created.Status != "NEW" {
		t.Fatalf("new referral status = %s", created.Status)
	}
	id := created.ID

	// Skipping straight to APPT_SCHEDULED is not a legal transition.
	res, data = doJSON(t, client, http.MethodPatch, base+"/referrals/"+id, map[string]any{
		"status": "APPT_SCHEDULED",
	}, ownerHeaders(srv))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for illegal transition, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/referrals/"+id+"/acknowledge", nil, ownerHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("acknowledge status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/referrals/"+id+"/contact", map[string]any{
		"outcome":            "SCHEDULED",
		"first_session_date": time.Now().AddDate(0, 0, 7).Format("2006-01-02"),
	}, ownerHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("contact status %d: %s", res.StatusCode, string(data))
	}
	var scheduled ReferralResponse
	_ = json.Unmarshal(data, &scheduled)
	if scheduled.Status != "APPT_SCHEDULED" {
		t.Fatalf("after scheduled contact status = %s", scheduled.Status)
	}

	// Missing consent blocks intake.
	res, data = doJSON(t, client, http.MethodPatch, base+"/referrals/"+id+"/checklist", map[string]any{
		"intake_missing_consent": true,
	}, ownerHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("checklist status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, base+"/referrals/"+id, nil, ownerHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get referral status %d: %s", res.StatusCode, string(data))
	}
	var blocked ReferralResponse
	_ = json.Unmarshal(data, &blocked)
	if blocked.Status != "INTAKE_BLOCKED" {
		t.Fatalf("after missing consent status = %s", blocked.Status)
	}

	// Clearing the gap and signing the ack makes the referral intake ready.
	res, data = doJSON(t, client, http.MethodPatch, base+"/referrals/"+id+"/checklist", map[string]any{
		"intake_missing_consent":   false,
		"intake_ack_signed_in_ehr": true,
	}, ownerHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("checklist status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, base+"/referrals/"+id, nil, ownerHeaders(srv))
	var ready ReferralResponse
	_ = json.Unmarshal(data, &ready)
	if ready.Status != "INTAKE_READY" {
		t.Fatalf("final status = %s: %s", ready.Status, string(data))
	}
}

func TestReferralListPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/workspaces/" + srv.WorkspaceID

	for _, name := range []string{"Client A", "Client B", "Client C"} {
		res, data := doJSON(t, client, http.MethodPost, base+"/referrals", map[string]any{
			"client_name": name,
		}, ownerHeaders(srv))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s status %d: %s", name, res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, base+"/referrals?limit=2", nil, ownerHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedReferrals
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("page size = %d", len(page.Items))
	}
	if page.NextCursor == "" {
		t.Fatal("expected a next cursor")
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/referrals?limit=2&cursor="+page.NextCursor, nil, ownerHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page status %d: %s", res.StatusCode, string(data))
	}
	var rest paginatedReferrals
	_ = json.Unmarshal(data, &rest)
	if len(rest.Items) != 1 {
		t.Fatalf("second page size = %d", len(rest.Items))
	}
	for _, it := range rest.Items {
		for _, prev := range page.Items {
			if it.ID == prev.ID {
				t.Fatalf("referral %s appeared on both pages", it.ID)
			}
		}
	}
}

func TestPermissionDenied(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/workspaces/" + srv.WorkspaceID

	res, data := doJSON(t, client, http.MethodPost, base+"/staff", map[string]any{
		"full_name": "Iris Intern",
		"role":      "INTERN",
	}, ownerHeaders(srv))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create intern status %d: %s", res.StatusCode, string(data))
	}
	var intern StaffResponse
	if err := json.Unmarshal(data, &intern); err != nil {
		t.Fatalf("unmarshal staff: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/referrals", map[string]any{
		"client_name": "Unauthorized Client",
	}, map[string]string{"X-Actor-Id": intern.ID})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for intern create, got %d: %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), "forbidden") {
		t.Fatalf("error body missing code: %s", string(data))
	}
}

func TestRadarEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/workspaces/" + srv.WorkspaceID
	today := time.Now().Format("2006-01-02")

	res, data := doJSON(t, client, http.MethodPost, base+"/referrals", map[string]any{
		"client_name":    "New Referral Call Back",
		"acknowledge_by": today,
	}, ownerHeaders(srv))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create referral status %d: %s", res.StatusCode, string(data))
	}
	var rf ReferralResponse
	_ = json.Unmarshal(data, &rf)

	res, data = doJSON(t, client, http.MethodPost, base+"/stub-tasks", map[string]any{
		"title":    "Renew license before deadline",
		"due_date": time.Now().AddDate(0, 0, 30).Format("2006-01-02"),
	}, ownerHeaders(srv))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create stub task status %d: %s", res.StatusCode, string(data))
	}
	var task StubTaskResponse
	_ = json.Unmarshal(data, &task)

	res, data = doJSON(t, client, http.MethodGet, base+"/radar", nil, ownerHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("radar status %d: %s", res.StatusCode, string(data))
	}
	var radarRes RadarResponse
	if err := json.Unmarshal(data, &radarRes); err != nil {
		t.Fatalf("unmarshal radar: %v", err)
	}
	if radarRes.Role != "owner" {
		t.Fatalf("viewer role = %s", radarRes.Role)
	}
	foundReferral := false
	for _, it := range radarRes.DoNow {
		if it.ItemID == rf.ID {
			foundReferral = true
			if it.DisplayWeight <= 0 {
				t.Fatalf("due referral display weight = %d", it.DisplayWeight)
			}
		}
	}
	if !foundReferral {
		t.Fatalf("due referral not in do_now: %s", string(data))
	}
	foundTask := false
	for _, it := range radarRes.ComingUp {
		if it.ItemID == task.ID {
			foundTask = true
		}
	}
	if !foundTask {
		t.Fatalf("far-out stub task not in coming_up: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/radar/"+rf.ID+"/view", nil, ownerHeaders(srv))
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNoContent {
		t.Fatalf("record view status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/radar/"+task.ID+"/defer", nil, ownerHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("defer status %d: %s", res.StatusCode, string(data))
	}
	var deferred map[string]int
	_ = json.Unmarshal(data, &deferred)
	if deferred["drift"] != 1 {
		t.Fatalf("drift after first defer = %d", deferred["drift"])
	}
}

func TestWhoAmI(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/workspaces/"+srv.WorkspaceID+"/me/permissions", nil, ownerHeaders(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("whoami status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal whoami: %v", err)
	}
	if who.ActorID != srv.OwnerID {
		t.Fatalf("actor = %s", who.ActorID)
	}
	hasRole := false
	for _, r := range who.Roles {
		if r == "owner" {
			hasRole = true
		}
	}
	if !hasRole {
		t.Fatalf("owner role missing: %v", who.Roles)
	}
	hasPerm := false
	for _, p := range who.Permissions {
		if p == "referral.create" {
			hasPerm = true
		}
	}
	if !hasPerm {
		t.Fatalf("referral.create missing: %v", who.Permissions)
	}
}

package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tactics-board/stores/memory"
)

var testSecret = []byte("router-secret")

type countingNotifier struct{ count atomic.Int32 }

func (n *countingNotifier) BoardUpdated(string, time.Time) { n.count.Add(1) }

func bearer(t *testing.T, subject string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("SignedString() failed: %v", err)
	}
	return "Bearer " + s
}

func request(t *testing.T, srv *httptest.Server, method, path, body, auth string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() failed: %v", err)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRouter_BoardLifecycle(t *testing.T) {
	notifier := &countingNotifier{}
	srv := httptest.NewServer(setupRouter(memory.NewStore(), notifier, testSecret, nil))
	defer srv.Close()
	coach := bearer(t, "coach")

	if resp := request(t, srv, http.MethodGet, "/api/boards", "", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	resp := request(t, srv, http.MethodPost, "/api/boards", `{"name":"Kickoff","designWidth":1200,"designHeight":800}`, coach)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	doc := `{"designWidth":1200,"designHeight":800,"objects":[{"uuid":"b1","type":"quadball","x":600,"y":400,"style":{}}]}`
	if resp := request(t, srv, http.MethodPut, "/api/boards/"+created.ID, doc, coach); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("put status = %d", resp.StatusCode)
	}
	if n := notifier.count.Load(); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}

	resp = request(t, srv, http.MethodGet, "/api/boards/"+created.ID, "", coach)
	if resp.Header.Get("X-Board-Access") != "edit" {
		t.Errorf("X-Board-Access = %q, want edit", resp.Header.Get("X-Board-Access"))
	}

	if resp := request(t, srv, http.MethodGet, "/api/boards/"+created.ID, "", bearer(t, "stranger")); resp.StatusCode != http.StatusForbidden {
		t.Errorf("stranger status = %d, want 403", resp.StatusCode)
	}

	resp = request(t, srv, http.MethodGet, "/api/boards/"+created.ID+"/preview.svg?width=300", "", coach)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/svg+xml" {
		t.Errorf("preview status = %d, type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp = request(t, srv, http.MethodPost, "/api/boards/"+created.ID+"/snapshots", `{"name":"v1"}`, coach)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("snapshot status = %d", resp.StatusCode)
	}
	var snap struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot response: %v", err)
	}
	if resp := request(t, srv, http.MethodPost, "/api/snapshots/"+snap.ID+"/restore", "", coach); resp.StatusCode != http.StatusNoContent {
		t.Errorf("restore status = %d", resp.StatusCode)
	}

	if resp := request(t, srv, http.MethodPut, "/api/boards/"+created.ID+"/access/player", `{"level":"view"}`, coach); resp.StatusCode != http.StatusOK {
		t.Errorf("grant status = %d", resp.StatusCode)
	}
	if resp := request(t, srv, http.MethodPut, "/api/boards/"+created.ID, doc, bearer(t, "player")); resp.StatusCode != http.StatusForbidden {
		t.Errorf("viewer put status = %d, want 403", resp.StatusCode)
	}

	if resp := request(t, srv, http.MethodDelete, "/api/boards/"+created.ID, "", coach); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
}

func TestAllowOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	loopback := allowOrigin(nil)
	for origin, want := range map[string]bool{
		"http://localhost:5173": true,
		"https://127.0.0.1":     true,
		"https://example.com":   false,
		"":                      false,
	} {
		if got := loopback(req, origin); got != want {
			t.Errorf("allowOrigin(nil)(%q) = %v, want %v", origin, got, want)
		}
	}

	configured := allowOrigin([]string{"https://club.example"})
	if !configured(req, "https://club.example") || configured(req, "http://localhost:5173") {
		t.Error("configured origins not honored exclusively")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" https://a.example, ,https://b.example ")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("splitList() = %v", got)
	}
	if splitList("") != nil {
		t.Error("splitList(\"\") should be nil")
	}
}

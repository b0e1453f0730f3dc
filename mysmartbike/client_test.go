package mysmartbike

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type staticTokens struct {
	token     string
	refreshes int
}

func (s *staticTokens) AccessToken(_ context.Context) (string, error) {
	return s.token, nil
}

func (s *staticTokens) TriggerRefresh(_ context.Context) {
	s.refreshes++
}

const objectsResponse = `{
  "status": 200,
  "data": [
    {
      "serial": "MAHLE001",
      "odometry": 125300,
      "longitude": 7.84,
      "latitude": 48.01,
      "last_position_date": "2026-03-01 17:45:12",
      "object_model": {"model_name": "Urban X", "brand": {"alias": "FAZUA"}},
      "object_tree": [
        {"name": "motor"},
        {"name": "battery", "state_of_charge": 30, "remaining_capacity": 100},
        {"name": "battery2", "state_of_charge": 81, "remaining_capacity": 250}
      ]
    },
    {
      "serial": "MAHLE002",
      "odometry": 950,
      "object_model": {"model_name": "Trail", "brand": {"alias": "MAHLE"}},
      "object_tree": [{"name": "frame"}]
    }
  ]
}`

func TestLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/users/login" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Content-Type"); !strings.HasPrefix(got, "application/x-www-form-urlencoded") {
			t.Fatalf("unexpected content type: %s", got)
		}
		assertAppHeaders(t, r)

		body, _ := io.ReadAll(r.Body)
		form := string(body)
		if !strings.Contains(form, "email=rider%40example.com") || !strings.Contains(form, "password=hunter2") {
			t.Fatalf("unexpected form body: %s", form)
		}
		if !strings.Contains(form, "contents_id=") {
			t.Fatalf("missing contents_id field: %s", form)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":200,"data":{"token":"login-token"}}`)
	}))
	defer server.Close()

	token, err := Login(context.Background(), nil, server.URL, "rider@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "login-token" {
		t.Fatalf("unexpected token: %s", token)
	}
}

func TestLoginRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":401,"message":"invalid credentials"}`)
	}))
	defer server.Close()

	_, err := Login(context.Background(), nil, server.URL, "rider@example.com", "wrong")
	var authErr AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Status != 401 {
		t.Fatalf("unexpected status: %d", authErr.Status)
	}
}

func TestBikes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/objects/me" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Fatalf("unexpected limit: %s", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		assertAppHeaders(t, r)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, objectsResponse)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL}, &staticTokens{token: "test-token"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	bikes, err := client.Bikes(context.Background())
	if err != nil {
		t.Fatalf("Bikes: %v", err)
	}
	if len(bikes) != 2 {
		t.Fatalf("expected 2 bikes, got %d", len(bikes))
	}

	bike, ok := bikes["MAHLE001"]
	if !ok {
		t.Fatalf("missing bike MAHLE001")
	}
	if bike.Brand != "FAZUA" || bike.Model != "Urban X" {
		t.Fatalf("unexpected bike identity: %+v", bike)
	}
	if bike.OdometryMeters != 125300 {
		t.Fatalf("unexpected odometry: %v", bike.OdometryMeters)
	}
	if bike.StateOfCharge == nil || *bike.StateOfCharge != 81 {
		t.Fatalf("expected last battery entry to win, got %v", bike.StateOfCharge)
	}
	if bike.RemainingCapacity == nil || *bike.RemainingCapacity != 250 {
		t.Fatalf("unexpected remaining capacity: %v", bike.RemainingCapacity)
	}
	if !bike.HasPosition() {
		t.Fatalf("expected position on MAHLE001")
	}
	expected := time.Date(2026, 3, 1, 17, 45, 12, 0, time.UTC)
	if bike.LastPosition == nil || !bike.LastPosition.Equal(expected) {
		t.Fatalf("unexpected last position time: %v", bike.LastPosition)
	}

	bare, ok := bikes["MAHLE002"]
	if !ok {
		t.Fatalf("missing bike MAHLE002")
	}
	if bare.StateOfCharge != nil || bare.RemainingCapacity != nil {
		t.Fatalf("expected no battery readings, got %+v", bare)
	}
	if bare.HasPosition() || bare.LastPosition != nil {
		t.Fatalf("expected no position, got %+v", bare)
	}
}

func TestBikesUnauthorizedTriggersRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"status":401}`)
	}))
	defer server.Close()

	tokens := &staticTokens{token: "stale-token"}
	client, err := NewClient(Config{BaseURL: server.URL}, tokens)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Bikes(context.Background())
	var authErr AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if tokens.refreshes != 1 {
		t.Fatalf("expected one refresh trigger, got %d", tokens.refreshes)
	}
}

func TestBikesForbiddenIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "forbidden")
	}))
	defer server.Close()

	tokens := &staticTokens{token: "revoked-token"}
	client, err := NewClient(Config{BaseURL: server.URL}, tokens)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Bikes(context.Background())
	var authErr AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Status != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", authErr.Status)
	}
}

func TestBikesEnvelopeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":500,"message":"backend unavailable"}`)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL}, &staticTokens{token: "test-token"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Bikes(context.Background())
	var statusErr StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Status != 500 {
		t.Fatalf("unexpected status: %d", statusErr.Status)
	}
}

func TestParsePositionDateGarbled(t *testing.T) {
	for _, value := range []string{"", "   ", "not-a-date", "2026-03-01T17:45:12Z", "2026-13-45 99:99:99"} {
		if got := parsePositionDate(value); got != nil {
			t.Fatalf("expected nil for %q, got %v", value, got)
		}
	}
}

func assertAppHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	if got := r.Header.Get("Accept"); got != "application/json" {
		t.Fatalf("unexpected accept header: %s", got)
	}
	if got := r.Header.Get("Accept-Language"); got != "de-DE" {
		t.Fatalf("unexpected accept-language: %s", got)
	}
	for _, key := range []string{"User-Agent", "X-Theme", "X-App", "X-Platform", "X-Version"} {
		if r.Header.Get(key) == "" {
			t.Fatalf("missing %s header", key)
		}
	}
}

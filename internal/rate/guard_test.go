package rate

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGuardBucketDenial(t *testing.T) {
	decl := Provider("mysmartbike").MaxRequestsPer(Minute, 2)
	guard := newGuard(decl)

	now := time.Now()
	if d := guard.ShouldCall(now); !d.Allowed {
		t.Fatalf("first call should be allowed: %+v", d)
	}
	if d := guard.ShouldCall(now); !d.Allowed {
		t.Fatalf("second call should be allowed: %+v", d)
	}
	d := guard.ShouldCall(now)
	if d.Allowed {
		t.Fatalf("third call should be denied")
	}
	if d.Reason != "budget" {
		t.Fatalf("unexpected denial reason: %s", d.Reason)
	}
}

func TestGuardNoLimitsDisabled(t *testing.T) {
	guard := newGuard(Provider("mysmartbike"))
	d := guard.ShouldCall(time.Now())
	if d.Allowed || d.Reason != "disabled" {
		t.Fatalf("expected disabled decision, got %+v", d)
	}
}

func TestGuardHeaderBudget(t *testing.T) {
	decl := Provider("mysmartbike").
		MaxRequestsPer(Hour, 100).
		BudgetFloor(Hour, 5).
		ReadHeaders(StandardHeaders())
	guard := newGuard(decl)

	headers := http.Header{}
	headers.Set("X-RateLimit-Limit-hour", "100")
	headers.Set("X-RateLimit-Remaining-hour", "6")
	guard.RecordResponse(200, headers)

	if d := guard.ShouldCall(time.Now()); !d.Allowed {
		t.Fatalf("call above floor should be allowed: %+v", d)
	}
	// Remaining is now at the floor.
	if d := guard.ShouldCall(time.Now()); d.Allowed {
		t.Fatalf("call at floor should be denied")
	}
}

func TestGuardRetryAfterCooldown(t *testing.T) {
	decl := Provider("mysmartbike").
		MaxRequestsPer(Minute, 100).
		ReadHeaders(StandardHeaders())
	guard := newGuard(decl)

	headers := http.Header{}
	headers.Set("Retry-After", "30")
	guard.RecordResponse(429, headers)

	d := guard.ShouldCall(time.Now())
	if d.Allowed {
		t.Fatalf("call during cooldown should be denied")
	}
	if d.Reason != "cooldown" {
		t.Fatalf("unexpected denial reason: %s", d.Reason)
	}
	if d.RetryAt.IsZero() {
		t.Fatalf("expected retry time")
	}
}

func TestWrapHTTPServesCacheWhileBlocked(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":200}`)
	}))
	defer server.Close()

	decl := Provider("mysmartbike").
		MaxRequestsPer(Minute, 1).
		CacheFor(time.Minute)
	client := WrapHTTP(decl, nil)

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	first, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	// Bucket is exhausted; the repeat is served from cache.
	resp, err = client.Get(server.URL)
	if err != nil {
		t.Fatalf("cached request: %v", err)
	}
	second, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if string(first) != string(second) {
		t.Fatalf("cached body mismatch: %q vs %q", first, second)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", calls.Load())
	}
}

func TestWrapHTTPRateLimitError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	decl := Provider("mysmartbike").MaxRequestsPer(Minute, 1)
	client := WrapHTTP(decl, nil)

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	resp.Body.Close()

	_, err = client.Get(server.URL)
	if err == nil {
		t.Fatalf("expected rate limit error")
	}
	var rateErr RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rateErr.Provider != "mysmartbike" {
		t.Fatalf("unexpected provider: %s", rateErr.Provider)
	}
}

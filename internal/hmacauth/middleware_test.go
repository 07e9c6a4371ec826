package hmacauth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestMiddleware_AllowsValidSignature(t *testing.T) {
	body := `{"hello":"world"}`
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := computeSignature("secret", ts, []byte(body))

	v := &Verifier{
		Secret:  "secret",
		MaxSkew: time.Minute,
		Now: func() time.Time {
			return now
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set(headerSignature, sig)
	req.Header.Set(headerTimestamp, ts)
	rec := httptest.NewRecorder()

	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	v.Middleware(handler).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("handler was not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddleware_RejectsInvalidSignature(t *testing.T) {
	body := `{"foo":"bar"}`
	now := time.Unix(1_700_000_000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)

	v := &Verifier{
		Secret:  "secret",
		MaxSkew: time.Minute,
		Now: func() time.Time {
			return now
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set(headerSignature, "deadbeef")
	req.Header.Set(headerTimestamp, ts)
	rec := httptest.NewRecorder()

	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSignerProducesVerifiableRequest(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	signer := &Signer{Secret: "shared", Now: clock}
	v := &Verifier{Secret: "shared", MaxSkew: time.Minute, Now: clock}

	req := httptest.NewRequest(http.MethodPost, "/api/placeBet", strings.NewReader(`{"outcome":"Team A"}`))
	if err := signer.Sign(req); err != nil {
		t.Fatalf("sign: %v", err)
	}

	var seen string
	rec := httptest.NewRecorder()
	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := new(strings.Builder)
		_, _ = io.Copy(b, r.Body)
		seen = b.String()
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen != `{"outcome":"Team A"}` {
		t.Fatalf("body not preserved: %q", seen)
	}
}

func TestSignerWithoutSecretIsNoop(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/getPayoutData", nil)
	if err := (&Signer{}).Sign(req); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if req.Header.Get(headerSignature) != "" {
		t.Fatalf("expected no signature header")
	}
}

func TestVerifyRejectsStaleTimestampWithDefaultSkew(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	signer := &Signer{Secret: "shared", Now: func() time.Time { return now.Add(-DefaultMaxSkew - time.Second) }}
	v := &Verifier{Secret: "shared", Now: func() time.Time { return now }}

	req := httptest.NewRequest(http.MethodPost, "/connect", strings.NewReader("a=1"))
	if err := signer.Sign(req); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := v.Verify(req); err != ErrStaleTimestamp {
		t.Fatalf("expected stale timestamp, got %v", err)
	}
}

func TestVerifyReportsMissingHeaders(t *testing.T) {
	v := &Verifier{Secret: "shared"}

	req := httptest.NewRequest(http.MethodPost, "/connect", nil)
	if err := v.Verify(req); err != ErrMissingSignature {
		t.Fatalf("expected missing signature, got %v", err)
	}
	req.Header.Set(headerSignature, "abc")
	if err := v.Verify(req); err != ErrMissingTimestamp {
		t.Fatalf("expected missing timestamp, got %v", err)
	}
}

func TestVerifierWithoutSecretAcceptsEverything(t *testing.T) {
	var v *Verifier
	if v.Enabled() {
		t.Fatalf("nil verifier must be disabled")
	}
	req := httptest.NewRequest(http.MethodPost, "/connect", nil)
	if err := (&Verifier{}).Verify(req); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

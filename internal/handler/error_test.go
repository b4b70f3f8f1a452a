package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	testCases := []struct {
		code     string
		expected int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.EPAYMENT, http.StatusPaymentRequired},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.ETOOLARGE, http.StatusRequestEntityTooLarge},
		{domain.ERATELIMIT, http.StatusTooManyRequests},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{domain.EUNAVAILABLE, http.StatusServiceUnavailable},
		{"bogus", http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		if got := ErrorCodeToHTTPStatus(tc.code); got != tc.expected {
			t.Errorf("code %s: expected %d, got %d", tc.code, tc.expected, got)
		}
	}
}

func TestErrorResponse_JSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, newTestLogger(), domain.Invalid("test.op", "Bad field"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %s", ct)
	}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error.Code != domain.EINVALID {
		t.Errorf("expected code %s, got %s", domain.EINVALID, body.Error.Code)
	}
	if body.Error.Message != "Bad field" {
		t.Errorf("expected message %q, got %q", "Bad field", body.Error.Message)
	}
}

func TestErrorResponse_HidesInternalDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	rec := httptest.NewRecorder()

	err := domain.Internal(io.ErrUnexpectedEOF, "test.op", "sensitive detail about the database")
	ErrorResponse(rec, req, newTestLogger(), err)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}

	var body map[string]map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if msg := body["error"]["message"]; msg == "sensitive detail about the database" {
		t.Error("internal error detail leaked to the client")
	}
}

func TestDecisionResponse_RateLimited(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/analyses/dna", nil)
	rec := httptest.NewRecorder()

	DecisionResponse(rec, req, newTestLogger(), &domain.AccessDecision{
		Allowed:        false,
		ErrorCode:      domain.GateRateLimited,
		UpgradeMessage: "Too many requests. Please slow down and try again.",
		RetryAfter:     30 * time.Second,
	})

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("expected Retry-After 30, got %q", got)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["errorCode"] != string(domain.GateRateLimited) {
		t.Errorf("expected errorCode RATE_LIMITED, got %v", body["errorCode"])
	}
}

func TestDecisionResponse_RetryAfterFloor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/analyses/dna", nil)
	rec := httptest.NewRecorder()

	DecisionResponse(rec, req, newTestLogger(), &domain.AccessDecision{
		Allowed:    false,
		ErrorCode:  domain.GateRateLimited,
		RetryAfter: 200 * time.Millisecond,
	})

	// Sub-second waits round up so clients never spin
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("expected Retry-After 1, got %q", got)
	}
}

func TestDecisionResponse_SignupRequired(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/analyses/dna", nil)
	rec := httptest.NewRecorder()

	DecisionResponse(rec, req, newTestLogger(), &domain.AccessDecision{
		Allowed:        false,
		ErrorCode:      domain.GateSignupRequired,
		UpgradeMessage: "Create a free account to continue.",
		Usage: &domain.UsageCheck{
			HasAccess:    false,
			CurrentUsage: 2,
			Limit:        2,
			IsAtLimit:    true,
		},
	})

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["usage"] == nil {
		t.Error("expected usage state in the refusal body")
	}
	if body["upgradeMessage"] != "Create a free account to continue." {
		t.Errorf("unexpected upgradeMessage: %v", body["upgradeMessage"])
	}
}

func TestDecisionResponse_UpgradeRequired(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/analyses/photo", nil)
	rec := httptest.NewRecorder()

	DecisionResponse(rec, req, newTestLogger(), &domain.AccessDecision{
		Allowed:        false,
		ErrorCode:      domain.GateUpgradeRequired,
		UpgradeMessage: "Upgrade your plan for a higher allowance.",
	})

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %d", rec.Code)
	}
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/middleware"
)

type mockUsageService struct {
	SnapshotFunc func(ctx context.Context, identity *domain.Identity) (*domain.UsageSnapshot, error)
}

func (m *mockUsageService) CheckAndReserve(ctx context.Context, identity *domain.Identity, analysisType domain.AnalysisType) (*domain.UsageCheck, error) {
	return nil, nil
}

func (m *mockUsageService) Peek(ctx context.Context, identity *domain.Identity, analysisType domain.AnalysisType) (*domain.UsageCheck, error) {
	return nil, nil
}

func (m *mockUsageService) Snapshot(ctx context.Context, identity *domain.Identity) (*domain.UsageSnapshot, error) {
	return m.SnapshotFunc(ctx, identity)
}

func TestGetUsage(t *testing.T) {
	identity := anonIdentity()
	usageSvc := &mockUsageService{
		SnapshotFunc: func(ctx context.Context, got *domain.Identity) (*domain.UsageSnapshot, error) {
			if got.ID != identity.ID {
				t.Errorf("expected identity %s, got %s", identity.ID, got.ID)
			}
			return &domain.UsageSnapshot{
				IdentityID:  identity.ID,
				Tier:        identity.Tier,
				PeriodStart: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
				ByType: map[domain.AnalysisType]domain.UsageCheck{
					domain.AnalysisTypeDocument: {HasAccess: true, CurrentUsage: 1, Limit: 2, Remaining: 1},
				},
			}, nil
		},
	}
	h := NewUsageHandler(usageSvc, newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	req = req.WithContext(middleware.ContextWithIdentity(req.Context(), identity))
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Usage struct {
			Tier   string                      `json:"tier"`
			ByType map[string]domain.UsageCheck `json:"byType"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Usage.Tier != string(domain.TierFree) {
		t.Errorf("unexpected tier %q", body.Usage.Tier)
	}
	if body.Usage.ByType["document"].CurrentUsage != 1 {
		t.Errorf("unexpected document usage %+v", body.Usage.ByType["document"])
	}
}

func TestGetUsage_MissingIdentity(t *testing.T) {
	h := NewUsageHandler(&mockUsageService{}, newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

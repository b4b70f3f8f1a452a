package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/middleware"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/service"
)

// =============================================================================
// Mocks
// =============================================================================

type mockGateService struct {
	EvaluateFunc func(ctx context.Context, params service.GateParams) (*domain.AccessDecision, error)
}

func (m *mockGateService) Evaluate(ctx context.Context, params service.GateParams) (*domain.AccessDecision, error) {
	return m.EvaluateFunc(ctx, params)
}

type mockAnalysisService struct {
	RunFunc     func(ctx context.Context, params service.RunAnalysisParams) (*domain.Analysis, error)
	GetByIDFunc func(ctx context.Context, analysisID uuid.UUID, identityID string) (*domain.Analysis, error)
	ListFunc    func(ctx context.Context, identityID string, limit, offset int) ([]domain.Analysis, error)
}

func (m *mockAnalysisService) Run(ctx context.Context, params service.RunAnalysisParams) (*domain.Analysis, error) {
	if m.RunFunc != nil {
		return m.RunFunc(ctx, params)
	}
	return nil, errors.New("RunFunc not set")
}

func (m *mockAnalysisService) GetByID(ctx context.Context, analysisID uuid.UUID, identityID string) (*domain.Analysis, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, analysisID, identityID)
	}
	return nil, errors.New("GetByIDFunc not set")
}

func (m *mockAnalysisService) List(ctx context.Context, identityID string, limit, offset int) ([]domain.Analysis, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, identityID, limit, offset)
	}
	return nil, errors.New("ListFunc not set")
}

func allowGate() *mockGateService {
	return &mockGateService{
		EvaluateFunc: func(ctx context.Context, params service.GateParams) (*domain.AccessDecision, error) {
			return &domain.AccessDecision{
				Allowed:  true,
				Identity: params.Identity,
				Usage: &domain.UsageCheck{
					HasAccess:    true,
					CurrentUsage: 1,
					Limit:        10,
					Remaining:    9,
				},
			}, nil
		},
	}
}

func anonIdentity() *domain.Identity {
	return &domain.Identity{
		ID:   domain.AnonymousIdentityID("testkey"),
		Kind: domain.IdentityKindAnonymous,
		Tier: domain.TierFree,
	}
}

func testAnalysis(identity *domain.Identity) *domain.Analysis {
	return &domain.Analysis{
		ID:         uuid.New(),
		IdentityID: identity.ID,
		Type:       domain.AnalysisTypeDNA,
		Status:     domain.AnalysisStatusCompleted,
		Result:     json.RawMessage(`{"ethnicityBreakdown":[]}`),
		Model:      "test-model",
		CreatedAt:  time.Now(),
	}
}

func runRequest(body string, identity *domain.Identity, analysisType string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/analyses/"+analysisType, strings.NewReader(body))
	req.SetPathValue("type", analysisType)
	if identity != nil {
		req = req.WithContext(middleware.ContextWithIdentity(req.Context(), identity))
	}
	return req
}

// =============================================================================
// Run
// =============================================================================

func TestRunAnalysis_Allowed(t *testing.T) {
	identity := anonIdentity()
	var gotParams service.RunAnalysisParams
	analysisSvc := &mockAnalysisService{
		RunFunc: func(ctx context.Context, params service.RunAnalysisParams) (*domain.Analysis, error) {
			gotParams = params
			return testAnalysis(identity), nil
		},
	}
	h := NewAnalysisHandler(analysisSvc, allowGate(), newTestLogger())

	rec := httptest.NewRecorder()
	h.Run(rec, runRequest(`{"input":"my dna matches"}`, identity, "dna"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotParams.Type != domain.AnalysisTypeDNA {
		t.Errorf("expected dna analysis, got %s", gotParams.Type)
	}
	if gotParams.Input != "my dna matches" {
		t.Errorf("unexpected input %q", gotParams.Input)
	}

	var body struct {
		Analysis struct {
			Status string `json:"status"`
		} `json:"analysis"`
		Usage *domain.UsageCheck `json:"usage"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Analysis.Status != string(domain.AnalysisStatusCompleted) {
		t.Errorf("unexpected status %q", body.Analysis.Status)
	}
	if body.Usage == nil || body.Usage.Remaining != 9 {
		t.Error("expected usage state in the response")
	}
}

func TestRunAnalysis_GateEvaluatedBeforeRun(t *testing.T) {
	identity := anonIdentity()
	ran := false
	analysisSvc := &mockAnalysisService{
		RunFunc: func(ctx context.Context, params service.RunAnalysisParams) (*domain.Analysis, error) {
			ran = true
			return testAnalysis(identity), nil
		},
	}
	gate := &mockGateService{
		EvaluateFunc: func(ctx context.Context, params service.GateParams) (*domain.AccessDecision, error) {
			return &domain.AccessDecision{
				Allowed:        false,
				Identity:       params.Identity,
				ErrorCode:      domain.GateRateLimited,
				UpgradeMessage: "Too many requests.",
				RetryAfter:     10 * time.Second,
			}, nil
		},
	}
	h := NewAnalysisHandler(analysisSvc, gate, newTestLogger())

	rec := httptest.NewRecorder()
	h.Run(rec, runRequest(`{"input":"text"}`, identity, "dna"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "10" {
		t.Errorf("expected Retry-After 10, got %q", rec.Header().Get("Retry-After"))
	}
	if ran {
		t.Error("analysis must not run when the gate refuses")
	}
}

func TestRunAnalysis_SignupRequired(t *testing.T) {
	identity := anonIdentity()
	gate := &mockGateService{
		EvaluateFunc: func(ctx context.Context, params service.GateParams) (*domain.AccessDecision, error) {
			return &domain.AccessDecision{
				Allowed:        false,
				Identity:       params.Identity,
				ErrorCode:      domain.GateSignupRequired,
				UpgradeMessage: "Create a free account to continue.",
			}, nil
		},
	}
	h := NewAnalysisHandler(&mockAnalysisService{}, gate, newTestLogger())

	rec := httptest.NewRecorder()
	h.Run(rec, runRequest(`{"input":"text"}`, identity, "research"))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRunAnalysis_UpgradeRequired(t *testing.T) {
	identity := &domain.Identity{
		ID:   domain.UserIdentityID(uuid.New()),
		Kind: domain.IdentityKindUser,
		Tier: domain.TierExplorer,
	}
	gate := &mockGateService{
		EvaluateFunc: func(ctx context.Context, params service.GateParams) (*domain.AccessDecision, error) {
			return &domain.AccessDecision{
				Allowed:        false,
				Identity:       params.Identity,
				ErrorCode:      domain.GateUpgradeRequired,
				UpgradeMessage: "Upgrade your plan.",
			}, nil
		},
	}
	h := NewAnalysisHandler(&mockAnalysisService{}, gate, newTestLogger())

	rec := httptest.NewRecorder()
	h.Run(rec, runRequest(`{"input":"text"}`, identity, "photo"))

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %d", rec.Code)
	}
}

func TestRunAnalysis_UnknownType(t *testing.T) {
	h := NewAnalysisHandler(&mockAnalysisService{}, allowGate(), newTestLogger())

	rec := httptest.NewRecorder()
	h.Run(rec, runRequest(`{"input":"text"}`, anonIdentity(), "palmreading"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRunAnalysis_InvalidArtifactID(t *testing.T) {
	h := NewAnalysisHandler(&mockAnalysisService{}, allowGate(), newTestLogger())

	rec := httptest.NewRecorder()
	h.Run(rec, runRequest(`{"artifactId":"not-a-uuid"}`, anonIdentity(), "document"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRunAnalysis_MissingIdentity(t *testing.T) {
	h := NewAnalysisHandler(&mockAnalysisService{}, allowGate(), newTestLogger())

	rec := httptest.NewRecorder()
	h.Run(rec, runRequest(`{"input":"text"}`, nil, "dna"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 when identity middleware is missing, got %d", rec.Code)
	}
}

// =============================================================================
// Get / List
// =============================================================================

func TestGetAnalysis_NotFound(t *testing.T) {
	analysisSvc := &mockAnalysisService{
		GetByIDFunc: func(ctx context.Context, analysisID uuid.UUID, identityID string) (*domain.Analysis, error) {
			return nil, domain.NotFound("analysis.get", "analysis", analysisID.String())
		},
	}
	h := NewAnalysisHandler(analysisSvc, allowGate(), newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/analyses/"+uuid.NewString(), nil)
	req.SetPathValue("id", uuid.NewString())
	req = req.WithContext(middleware.ContextWithIdentity(req.Context(), anonIdentity()))
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetAnalysis_InvalidID(t *testing.T) {
	h := NewAnalysisHandler(&mockAnalysisService{}, allowGate(), newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/analyses/nope", nil)
	req.SetPathValue("id", "nope")
	req = req.WithContext(middleware.ContextWithIdentity(req.Context(), anonIdentity()))
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestListAnalyses_PassesPagination(t *testing.T) {
	identity := anonIdentity()
	var gotLimit, gotOffset int
	analysisSvc := &mockAnalysisService{
		ListFunc: func(ctx context.Context, identityID string, limit, offset int) ([]domain.Analysis, error) {
			gotLimit, gotOffset = limit, offset
			return []domain.Analysis{*testAnalysis(identity)}, nil
		},
	}
	h := NewAnalysisHandler(analysisSvc, allowGate(), newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/analyses?limit=5&offset=10", nil)
	req = req.WithContext(middleware.ContextWithIdentity(req.Context(), identity))
	rec := httptest.NewRecorder()

	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotLimit != 5 || gotOffset != 10 {
		t.Errorf("expected limit=5 offset=10, got limit=%d offset=%d", gotLimit, gotOffset)
	}

	var body struct {
		Analyses []analysisResponse `json:"analyses"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Analyses) != 1 {
		t.Errorf("expected 1 analysis, got %d", len(body.Analyses))
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/attack-correlator/internal/alertstore"
	"github.com/rawblock/attack-correlator/internal/cluster"
	"github.com/rawblock/attack-correlator/internal/config"
	"github.com/rawblock/attack-correlator/internal/contextstore"
	"github.com/rawblock/attack-correlator/internal/decision"
	"github.com/rawblock/attack-correlator/internal/dispatch"
	"github.com/rawblock/attack-correlator/internal/registry"
	"github.com/rawblock/attack-correlator/internal/suppression"
	"github.com/rawblock/attack-correlator/pkg/models"
)

type fakeChain struct{}

func (fakeChain) IsContract(ctx context.Context, address string) (bool, error) { return false, nil }
func (fakeChain) MatchesValidator(ctx context.Context, chainID int64, cluster string) (bool, error) {
	return false, nil
}

type fakeLabels struct{}

func (fakeLabels) Lookup(ctx context.Context, address string) (string, error) { return "", nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		ChainID:                      1,
		MinAlertsCount:               3,
		StrictThreshold:              0.0001,
		LooseThreshold:               0.01,
		DefaultAnomalyScore:          0.5,
		LookbackWindow:               24 * time.Hour,
		ContextQueueMaxSize:          10000,
		FPMitigationMaxSize:          100000,
		EndUserAttackMaxSize:         10000,
		AlertedClustersMaxSize:       10000,
		EntityClustersMaxSize:        50000,
		ValidatorAlertCountThreshold: map[int64]int{},
	}
	reg := registry.New()
	clusterIdx := cluster.NewIndex(cfg.EntityClustersMaxSize)
	alerts := alertstore.New(cfg.LookbackWindow)
	ctxStore := contextstore.New(cfg.ContextQueueMaxSize)
	supp := suppression.New(cfg.FPMitigationMaxSize, cfg.EndUserAttackMaxSize, cfg.AlertedClustersMaxSize)

	eng := &decision.Engine{
		Registry:    reg,
		Alerts:      alerts,
		Context:     ctxStore,
		Suppression: supp,
		Chain:       fakeChain{},
		Labels:      fakeLabels{},
		Config:      cfg,
	}
	d := &dispatch.Dispatcher{
		Registry:    reg,
		Cluster:     clusterIdx,
		Alerts:      alerts,
		Context:     ctxStore,
		Suppression: supp,
		Decision:    eng,
		Config:      cfg,
	}

	hub := NewHub()
	go hub.Run()
	return SetupRouter(d, reg, hub, cfg.ChainID)
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSubscriptionsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Subscriptions []models.Subscription `json:"subscriptions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Subscriptions) == 0 {
		t.Fatal("expected at least one subscription")
	}
}

func TestFindingsBufferBySeverity(t *testing.T) {
	b := newFindingsBuffer()
	b.add(models.Finding{AlertID: "ATTACK-DETECTOR-5", Severity: models.SeverityInfo})
	b.add(models.Finding{AlertID: "ATTACK-DETECTOR-4", Severity: models.SeverityLow})
	b.add(models.Finding{AlertID: "ATTACK-DETECTOR-1", Severity: models.SeverityCritical})

	if got := b.bySeverity(models.SeverityInfo); len(got) != 3 {
		t.Fatalf("expected all 3 findings at Info threshold, got %d", len(got))
	}
	if got := b.bySeverity(models.SeverityLow); len(got) != 2 {
		t.Fatalf("expected 2 findings at Low threshold, got %d", len(got))
	}
	got := b.bySeverity(models.SeverityCritical)
	if len(got) != 1 || got[0].AlertID != "ATTACK-DETECTOR-1" {
		t.Fatalf("expected only the Critical finding, got %+v", got)
	}
}

func TestRecentFindingsRejectsInvalidMinSeverity(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/findings?minSeverity=bogus", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown severity, got %d", w.Code)
	}
}

func TestRecentFindingsMinSeverityFilter(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/findings?minSeverity=critical", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Findings []models.Finding `json:"findings"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Findings) != 0 {
		t.Fatalf("expected no findings on an empty buffer, got %d", len(body.Findings))
	}
}

func TestIngestAlertRejectsWrongChain(t *testing.T) {
	r := newTestRouter(t)
	alert := models.Alert{
		AlertID:   "FUNDING-TRACE-1",
		BotID:     registry.BotSybilFundingTracer,
		ChainID:   999,
		CreatedAt: time.Now().Format("2006-01-02T15:04:05.000000Z"),
		Addresses: []string{"0xe1"},
	}
	body, _ := json.Marshal(alert)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong chain, got %d: %s", w.Code, w.Body.String())
	}
}

func TestIngestAlertAccepted(t *testing.T) {
	r := newTestRouter(t)
	alert := models.Alert{
		AlertHash: "h1",
		AlertID:   "FUNDING-TRACE-1",
		BotID:     registry.BotSybilFundingTracer,
		ChainID:   1,
		CreatedAt: time.Now().Format("2006-01-02T15:04:05.000000Z"),
		Addresses: []string{"0xe1"},
		Metadata:  map[string]string{"anomalyScore": "0.1"},
	}
	body, _ := json.Marshal(alert)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

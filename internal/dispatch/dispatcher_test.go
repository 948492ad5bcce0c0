package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/attack-correlator/internal/alertstore"
	"github.com/rawblock/attack-correlator/internal/cluster"
	"github.com/rawblock/attack-correlator/internal/config"
	"github.com/rawblock/attack-correlator/internal/contextstore"
	"github.com/rawblock/attack-correlator/internal/decision"
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

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
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

	return &Dispatcher{
		Registry:    reg,
		Cluster:     clusterIdx,
		Alerts:      alerts,
		Context:     ctxStore,
		Suppression: supp,
		Decision:    eng,
		Config:      cfg,
	}
}

func baseAlert(botID, alertID string, addresses []string, createdAt time.Time) models.Alert {
	return models.Alert{
		AlertHash: botID + "|" + alertID + "|" + createdAt.String(),
		AlertID:   alertID,
		BotID:     botID,
		ChainID:   1,
		CreatedAt: createdAt.Format("2006-01-02T15:04:05.000000Z"),
		Addresses: addresses,
		Source:    models.Source{},
	}
}

func TestWrongChainAlertIsRejected(t *testing.T) {
	d := newTestDispatcher(t)
	alert := baseAlert(registry.BotSybilFundingTracer, "FUNDING-TRACE-1", []string{"0xe1"}, time.Now())
	alert.ChainID = 999

	_, err := d.Handle(context.Background(), alert)
	if err == nil {
		t.Fatal("expected a wrong-chain error")
	}
	if _, ok := err.(*WrongChainError); !ok {
		t.Fatalf("expected *WrongChainError, got %T", err)
	}
}

func TestScenario5ClusterMergeAfterAlerts(t *testing.T) {
	d := newTestDispatcher(t)
	now := time.Now()

	a1 := baseAlert(registry.BotSybilFundingTracer, "FUNDING-TRACE-1", []string{"0xe2"}, now)
	a1.Metadata = map[string]string{"anomalyScore": "0.001"}
	if _, err := d.Handle(context.Background(), a1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a2 := baseAlert(registry.BotExploitSequencer, "PREP-SEQUENCE-1", []string{"0xe1"}, now)
	a2.Metadata = map[string]string{"anomalyScore": "0.001"}
	if _, err := d.Handle(context.Background(), a2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clusterAlert := baseAlert(registry.BotEntityCluster, registry.AlertIDEntityCluster, nil, now)
	clusterAlert.Metadata = map[string]string{"entityAddresses": "0xe1,0xe2"}
	if _, err := d.Handle(context.Background(), clusterAlert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a3 := baseAlert(registry.BotDrainDetector, "EXPLOIT-DRAIN-1", []string{"0xe1"}, now)
	a3.Metadata = map[string]string{"anomalyScore": "0.00001"}
	findings, err := d.Handle(context.Background(), a3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected exactly one finding after the merge, got %d", len(findings))
	}
	if findings[0].Cluster != "0xe1,0xe2" {
		t.Fatalf("expected finding keyed on the joined cluster, got %q", findings[0].Cluster)
	}
}

func TestScenario8MissingAnomalyScoreStillEmits(t *testing.T) {
	d := newTestDispatcher(t)
	now := time.Now()

	a1 := baseAlert(registry.BotSybilFundingTracer, "FUNDING-TRACE-1", []string{"0xe1"}, now)
	a1.Metadata = map[string]string{"anomaly_score": "0.001"}
	if _, err := d.Handle(context.Background(), a1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The Preparation alert carries no metadata at all; it contributes a
	// score of 1.0, which leaves the product driven by the other stages.
	a2 := baseAlert(registry.BotExploitSequencer, "PREP-SEQUENCE-1", []string{"0xe1"}, now)
	if _, err := d.Handle(context.Background(), a2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a3 := baseAlert(registry.BotDrainDetector, "EXPLOIT-DRAIN-1", []string{"0xe1"}, now)
	a3.Metadata = map[string]string{"anomaly_score": "0.000005"}
	findings, err := d.Handle(context.Background(), a3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected one finding, got %d", len(findings))
	}
	want := 0.001 * 1.0 * 0.000005
	if diff := findings[0].AnomalyScore - want; diff > 1e-15 || diff < -1e-15 {
		t.Fatalf("expected anomaly score %v with the missing score treated as 1.0, got %v", want, findings[0].AnomalyScore)
	}
}

func TestAnomalyScoreDefaultsAndClamps(t *testing.T) {
	if got := anomalyScore(map[string]string{}, 0.5); got != 1.0 {
		t.Fatalf("expected missing field to hardcode to 1.0, got %v", got)
	}
	if got := anomalyScore(map[string]string{"anomalyScore": "0"}, 0.5); got != 0.5 {
		t.Fatalf("expected non-positive score to fall back to configured default, got %v", got)
	}
	if got := anomalyScore(map[string]string{"anomalyScore": "2.5"}, 0.5); got != 1 {
		t.Fatalf("expected score >1 to clamp to 1, got %v", got)
	}
	if got := anomalyScore(map[string]string{"anomaly_score": "0.3"}, 0.5); got != 0.3 {
		t.Fatalf("expected snake_case key to be read, got %v", got)
	}
}

func TestFPMitigationAlertTagsCluster(t *testing.T) {
	d := newTestDispatcher(t)
	now := time.Now()
	alert := baseAlert(registry.BotChainalysisFPFeed, "FP-LABEL-1", nil, now)
	alert.Description = "Entity 0xabcdef0123456789abcdef0123456789abcdef01 flagged as a known exchange"

	if _, err := d.Handle(context.Background(), alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Suppression.FPMitigated.Has("0xabcdef0123456789abcdef0123456789abcdef01") {
		t.Fatal("expected the extracted address's cluster to be tagged FP-mitigated")
	}
}

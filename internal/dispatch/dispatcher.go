// Package dispatch implements the event dispatcher: the fixed-order
// routing of one inbound alert to the cluster index, alert store, context
// store, and suppression sets, followed by a decision-engine evaluation
// for base-bot alerts.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rawblock/attack-correlator/internal/alertstore"
	"github.com/rawblock/attack-correlator/internal/cluster"
	"github.com/rawblock/attack-correlator/internal/config"
	"github.com/rawblock/attack-correlator/internal/contextstore"
	"github.com/rawblock/attack-correlator/internal/decision"
	"github.com/rawblock/attack-correlator/internal/extractor"
	"github.com/rawblock/attack-correlator/internal/registry"
	"github.com/rawblock/attack-correlator/internal/suppression"
	"github.com/rawblock/attack-correlator/pkg/models"
)

// WrongChainError is raised when an alert arrives for a chain the engine
// was never subscribed to — a subscription bug upstream, not a recoverable
// condition.
type WrongChainError struct {
	Got, Want int64
}

func (e *WrongChainError) Error() string {
	return fmt.Sprintf("alert for chain %d does not match configured chain %d", e.Got, e.Want)
}

// Dispatcher serializes alert handling across the five in-memory stores and
// invokes the decision engine for base-bot alerts.
type Dispatcher struct {
	Registry    *registry.Registry
	Cluster     *cluster.Index
	Alerts      *alertstore.Store
	Context     *contextstore.Store
	Suppression *suppression.Sets
	Decision    *decision.Engine
	Config      config.Config

	// PersistNow is invoked synchronously after every alert when the engine
	// is not running in production mode, giving test/dev runs durability
	// without waiting on the periodic persistor.
	PersistNow func(ctx context.Context) error

	mu sync.Mutex
}

// Handle routes one inbound alert through the fixed-order branches
// (cluster, context, FP-mitigation, end-user, base) and returns every
// finding the decision engine emitted.
func (d *Dispatcher) Handle(ctx context.Context, alert models.Alert) (findings []models.Finding, err error) {
	if alert.ChainID != d.Config.ChainID && !(registry.IsL2(d.Config.ChainID) && alert.ChainID == 1) {
		return nil, &WrongChainError{Got: alert.ChainID, Want: d.Config.ChainID}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Dispatcher] recovered from panic handling alert %s: %v", alert.AlertHash, r)
			if d.Config.Production {
				panic(r)
			}
			err = fmt.Errorf("alert handling panic: %v", r)
		}
	}()

	now, parseErr := alert.ParsedCreatedAt()
	if parseErr != nil {
		log.Printf("[Dispatcher] warning: could not parse createdAt %q for alert %s: %v", alert.CreatedAt, alert.AlertHash, parseErr)
		now = time.Now()
	}

	kind := d.Registry.Classify(alert.BotID, alert.AlertID)

	if kind.IsCluster {
		d.handleClusterAlert(alert, now)
	}
	if kind.IsContext {
		d.handleContextAlert(alert)
	}
	if kind.IsFPMitigation {
		d.handleFPMitigationAlert(alert)
	}
	if kind.IsEndUser {
		d.handleEndUserAlert(alert)
	}
	if kind.IsBase {
		emitted, evalErr := d.handleBaseAlert(ctx, alert, kind, now)
		if evalErr != nil {
			log.Printf("[Dispatcher] decision error for alert %s: %v", alert.AlertHash, evalErr)
		}
		findings = append(findings, emitted...)
	}

	if !d.Config.Production && d.PersistNow != nil {
		if perr := d.PersistNow(ctx); perr != nil {
			log.Printf("[Persistor] synchronous persist failed: %v", perr)
		}
	}

	return findings, nil
}

func (d *Dispatcher) handleClusterAlert(alert models.Alert, now time.Time) {
	entityAddresses := alert.Metadata["entityAddresses"]
	result := d.Cluster.OnClusterAlert(entityAddresses)
	for _, old := range result.PriorClusters {
		d.Alerts.Migrate(old, result.Cluster, now)
		d.Suppression.Rekey(old, result.Cluster)
	}
}

func (d *Dispatcher) handleContextAlert(alert models.Alert) {
	entry := models.ContextEntry{
		BotType:  d.Registry.ContextBotType(alert.BotID),
		Metadata: alert.Metadata,
	}
	d.Context.Append(alert.Source.TransactionHash, entry)
}

func (d *Dispatcher) handleFPMitigationAlert(alert models.Alert) {
	addr, ok := extractor.FPMitigationAddress(alert.Description)
	if !ok {
		return
	}
	cluster := d.Cluster.Membership(addr)
	d.Suppression.FPMitigated.Add(cluster)
}

func (d *Dispatcher) handleEndUserAlert(alert models.Alert) {
	addr, ok := extractor.EndUserAttacker(alert.BotID, alert.Metadata)
	if !ok {
		return
	}
	cluster := d.Cluster.Membership(addr)
	d.Suppression.EndUserAttack.Add(cluster)
}

func (d *Dispatcher) handleBaseAlert(ctx context.Context, alert models.Alert, kind registry.Kind, now time.Time) ([]models.Finding, error) {
	score := anomalyScore(alert.Metadata, d.Config.DefaultAnomalyScore)

	var l2ChainID *int64
	if registry.IsL2(d.Config.ChainID) {
		c := alert.ChainID
		l2ChainID = &c
	}

	candidates := extractor.Attackers(alert)
	seen := make(map[string]bool, len(candidates))
	var findings []models.Finding

	for _, attacker := range candidates {
		clusterKey := d.Cluster.Membership(attacker)
		if seen[clusterKey] {
			continue
		}
		seen[clusterKey] = true

		record := models.AlertRecord{
			Stage:           kind.Stage,
			CreatedAt:       now,
			AnomalyScore:    score,
			AlertHash:       alert.AlertHash,
			BotID:           alert.BotID,
			AlertID:         alert.AlertID,
			ChainID:         l2ChainID,
			Addresses:       alert.Addresses,
			TransactionHash: alert.Source.TransactionHash,
		}
		d.Alerts.Append(clusterKey, record, now)

		finding, err := d.Decision.Evaluate(ctx, clusterKey, record)
		if err != nil {
			return findings, err
		}
		if finding != nil {
			findings = append(findings, *finding)
		}
	}

	return findings, nil
}

// anomalyScore parses the alert's reported anomaly score. A missing field
// is an upstream decode error, not a low-confidence signal, so it
// hardcodes to 1.0; fallback is reserved for a present-but-non-positive
// value. Anything above 1 clamps down to 1.
func anomalyScore(metadata map[string]string, fallback float64) float64 {
	raw, ok := metadata["anomaly_score"]
	if !ok {
		raw, ok = metadata["anomalyScore"]
	}
	if !ok {
		log.Printf("[Dispatcher] warning: no anomaly score in metadata, treating as 1.0")
		return 1.0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	if v > 1 {
		return 1
	}
	return v
}

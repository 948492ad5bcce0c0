// Package decision implements the correlation engine's scoring and tier
// selection: the threshold cascade that turns a cluster's accumulated
// evidence into zero or one emitted finding.
package decision

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/attack-correlator/internal/alertstore"
	"github.com/rawblock/attack-correlator/internal/config"
	"github.com/rawblock/attack-correlator/internal/contextstore"
	"github.com/rawblock/attack-correlator/internal/registry"
	"github.com/rawblock/attack-correlator/internal/suppression"
	"github.com/rawblock/attack-correlator/pkg/models"
)

// ChainChecker abstracts the on-chain facts the decision engine needs:
// whether an address is a contract, and whether a cluster matches the
// configured chain's validator-role heuristic.
type ChainChecker interface {
	IsContract(ctx context.Context, address string) (bool, error)
	MatchesValidator(ctx context.Context, chainID int64, cluster string) (bool, error)
}

// LabelLookup abstracts the external reputation-label lookup.
type LabelLookup interface {
	Lookup(ctx context.Context, address string) (string, error)
}

var suspiciousLabelHints = []string{"attack", "phish", "hack", "heist", "exploit", "scam", "fraud"}

// Engine evaluates a cluster's accumulated evidence and decides whether to
// emit a finding.
type Engine struct {
	Registry    *registry.Registry
	Alerts      *alertstore.Store
	Context     *contextstore.Store
	Suppression *suppression.Sets
	Chain       ChainChecker
	Labels      LabelLookup
	Config      config.Config
}

// Evaluate runs the full decision pipeline for cluster, in response to a
// newly appended trigger record. It returns nil, nil when no finding is
// warranted.
func (e *Engine) Evaluate(ctx context.Context, cluster string, trigger models.AlertRecord) (*models.Finding, error) {
	now := time.Now()

	if !isPlausibleAddress(cluster) {
		return nil, nil
	}
	if allContracts, err := e.allAddressesAreContracts(ctx, cluster); err != nil {
		log.Printf("[Decision] contract check failed for %s: %v", cluster, err)
	} else if allContracts {
		return nil, nil
	}

	records := e.Alerts.Records(cluster, now)
	distinctBots := e.Alerts.DistinctBotCount(cluster, now)
	distinctStages := e.Alerts.DistinctStages(cluster, now)
	aggregateScore := e.Alerts.AggregateScore(cluster, now)
	highlyPreciseCount := countHighlyPrecise(e.Registry, records)

	if distinctBots < e.Config.MinAlertsCount && highlyPreciseCount == 0 {
		return nil, nil
	}

	allFourStages := len(distinctStages) == 4
	preciseCombo := (highlyPreciseCount > 0 && len(distinctStages) > 1) || highlyPreciseCount > 1
	strictHit := distinctBots >= e.Config.MinAlertsCount && aggregateScore < e.Config.StrictThreshold
	looseHit := distinctBots >= e.Config.MinAlertsCount && aggregateScore < e.Config.LooseThreshold

	if !(looseHit || allFourStages || preciseCombo) {
		return nil, nil
	}

	if registry.IsL2(e.Config.ChainID) {
		onL2 := false
		for _, r := range records {
			if r.ChainID != nil && *r.ChainID == e.Config.ChainID {
				onL2 = true
				break
			}
		}
		if !onL2 {
			return nil, nil
		}
	}

	fpMitigated := e.isFPMitigated(ctx, cluster, records)
	endUser := e.Suppression.EndUserAttack.Has(cluster)

	anyTriggerCondition := allFourStages || preciseCombo || strictHit || looseHit

	var (
		alertID  string
		severity models.Severity
		alerted  interface{ Add(string) }
	)

	switch {
	case !endUser && !fpMitigated && allFourStages && !e.Suppression.AlertedStrict.Has(cluster):
		alertID, severity, alerted = "ATTACK-DETECTOR-1", models.SeverityCritical, e.Suppression.AlertedStrict
	case !endUser && !fpMitigated && preciseCombo && !e.Suppression.AlertedStrict.Has(cluster):
		alertID, severity, alerted = "ATTACK-DETECTOR-2", models.SeverityCritical, e.Suppression.AlertedStrict
	case !endUser && !fpMitigated && strictHit && !e.Suppression.AlertedStrict.Has(cluster):
		alertID, severity, alerted = "ATTACK-DETECTOR-3", models.SeverityCritical, e.Suppression.AlertedStrict
	case !endUser && !fpMitigated && looseHit && !e.Suppression.AlertedLoose.Has(cluster) && !e.Suppression.AlertedStrict.Has(cluster):
		alertID, severity, alerted = "ATTACK-DETECTOR-4", models.SeverityLow, e.Suppression.AlertedLoose
	case fpMitigated && anyTriggerCondition && !e.Suppression.AlertedFPOnly.Has(cluster):
		alertID, severity, alerted = "ATTACK-DETECTOR-5", models.SeverityInfo, e.Suppression.AlertedFPOnly
	case endUser && anyTriggerCondition && !e.Suppression.AlertedFPOnly.Has(cluster):
		alertID, severity, alerted = "ATTACK-DETECTOR-6", models.SeverityInfo, e.Suppression.AlertedFPOnly
	default:
		return nil, nil
	}

	alerted.Add(cluster)

	victim, _ := e.Context.LookupVictim(records)
	loss, _ := e.Context.LookupLoss(records)

	finding := &models.Finding{
		ID:               uuid.NewString(),
		AlertID:          alertID,
		Severity:         severity,
		Description:      "Multi-stage attack pattern detected for cluster " + cluster,
		Cluster:          cluster,
		Victim:           victim,
		Loss:             loss,
		AnomalyScore:     aggregateScore,
		StageScores:      e.Alerts.StageScores(cluster, now),
		TriggerAlertHash: trigger.AlertHash,
		ChainID:          e.Config.ChainID,
		CreatedAt:        now,
	}
	return finding, nil
}

func (e *Engine) allAddressesAreContracts(ctx context.Context, cluster string) (bool, error) {
	addrs := splitCluster(cluster)
	for _, a := range addrs {
		isContract, err := e.Chain.IsContract(ctx, a)
		if err != nil {
			return false, err
		}
		if !isContract {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) isFPMitigated(ctx context.Context, cluster string, records []models.AlertRecord) bool {
	if e.Suppression.FPMitigated.Has(cluster) {
		return true
	}

	subject := splitCluster(cluster)[0]
	if label, err := e.Labels.Lookup(ctx, subject); err != nil {
		log.Printf("[Decision] label lookup failed for %s: %v", subject, err)
	} else if label != "" && !containsAny(label, suspiciousLabelHints) {
		return true
	}

	if threshold, ok := e.Config.ValidatorAlertCountThreshold[e.Config.ChainID]; ok && len(records) > threshold {
		return true
	}

	if matched, err := e.Chain.MatchesValidator(ctx, e.Config.ChainID, cluster); err != nil {
		log.Printf("[Decision] validator check failed for %s: %v", cluster, err)
	} else if matched {
		return true
	}

	return false
}

func countHighlyPrecise(reg *registry.Registry, records []models.AlertRecord) int {
	seen := make(map[string]bool, len(records))
	count := 0
	for _, r := range records {
		if !reg.IsHighlyPrecise(r.BotID, r.AlertID) {
			continue
		}
		key := r.BotID + "|" + r.AlertID
		if !seen[key] {
			seen[key] = true
			count++
		}
	}
	return count
}

// isPlausibleAddress rejects cluster strings containing a run of 9 or more
// identical hex characters in a row — a heuristic for garbage/placeholder
// addresses slipping through upstream extraction.
func isPlausibleAddress(cluster string) bool {
	run := 1
	for i := 1; i < len(cluster); i++ {
		if cluster[i] == cluster[i-1] {
			run++
			if run >= 9 {
				return false
			}
		} else {
			run = 1
		}
	}
	return true
}

func splitCluster(cluster string) []string {
	return strings.Split(cluster, ",")
}

func containsAny(s string, hints []string) bool {
	lower := strings.ToLower(s)
	for _, h := range hints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

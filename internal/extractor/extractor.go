// Package extractor pulls candidate attacker addresses out of an inbound
// alert. Detectors disagree on where they put this: some attach a
// labeled entity, some stuff it into one of several metadata keys, and a
// few only ever put it in the addresses list. This package mirrors that by
// collecting every plausible candidate rather than picking just one —
// filtering out the ones that turn out to be contracts is C10's job.
package extractor

import (
	"regexp"
	"strings"

	"github.com/rawblock/attack-correlator/internal/registry"
	"github.com/rawblock/attack-correlator/pkg/models"
)

var (
	hexAddressPattern = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)
	hexAddressExact   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	labelHints        = []string{"attack", "exploit", "scam"}
	metadataKeyHints  = []string{"attack", "exploit", "scam", "caller"}
)

// Attackers extracts every candidate attacker address from a base-bot
// alert: labels whose name hints at attack/exploit/scam, then metadata
// values under a similarly-hinted key, falling back to the alert's raw
// addresses field if neither source yields anything. Results are
// lowercased but not deduplicated against each other or against contracts.
func Attackers(alert models.Alert) []string {
	var candidates []string

	for _, l := range alert.Labels {
		if containsAny(l.Label, labelHints) && l.Entity != "" {
			candidates = append(candidates, strings.ToLower(l.Entity))
		}
	}

	for key, value := range alert.Metadata {
		if containsAny(key, metadataKeyHints) && hexAddressExact.MatchString(value) {
			candidates = append(candidates, strings.ToLower(value))
		}
	}

	if len(candidates) > 0 {
		return candidates
	}

	for _, a := range alert.Addresses {
		if a != "" {
			candidates = append(candidates, strings.ToLower(a))
		}
	}
	return candidates
}

// FPMitigationAddress extracts the entity address an FP-mitigation alert
// (a reputation-label or validator-role feed) refers to. These feeds
// report the entity in free text rather than a structured field, so the
// first hex address found in the description is taken to be the subject.
func FPMitigationAddress(description string) (string, bool) {
	match := hexAddressPattern.FindString(description)
	if match == "" {
		return "", false
	}
	return strings.ToLower(match), true
}

// EndUserAttacker extracts the attacker address from an end-user-attack
// alert (rug pull / token-rake style bots, where the "attacker" is the
// project's own deployer rather than a third party). Each bot spells its
// metadata key differently, and hard-rug-pull and rake-token-contract each
// emit both a snake_case and a camelCase variant of their field; dispatch
// on bot identity and check every known variant rather than trying every
// key against every alert, since two bots use the same key name for
// unrelated fields.
func EndUserAttacker(botID string, metadata map[string]string) (string, bool) {
	var keys []string
	switch botID {
	case registry.BotHardRugPull:
		// The camelCase key must yield its own value, not the
		// snake_case one's.
		keys = []string{"attacker_deployer_address", "attackerDeployerAddress"}
	case registry.BotSoftRugPull:
		keys = []string{"deployer"}
	case registry.BotRakeTokenContract:
		keys = []string{"attackerRakeTokenDeployer", "attacker_rake_token_deployer"}
	default:
		return "", false
	}

	for _, key := range keys {
		if v, ok := metadata[key]; ok && v != "" {
			return strings.ToLower(v), true
		}
	}
	return "", false
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

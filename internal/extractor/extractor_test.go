package extractor

import (
	"testing"

	"github.com/rawblock/attack-correlator/internal/registry"
	"github.com/rawblock/attack-correlator/pkg/models"
)

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func TestAttackersFromHintedLabel(t *testing.T) {
	alert := models.Alert{
		Labels:    []models.Label{{Label: "Attacker", Entity: "0xABC"}},
		Addresses: []string{"0x111"},
	}
	got := Attackers(alert)
	if len(got) != 1 || got[0] != "0xabc" {
		t.Fatalf("expected label-derived attacker 0xabc, got %v", got)
	}
}

func TestAttackersFromHintedMetadataKey(t *testing.T) {
	alert := models.Alert{
		Metadata:  map[string]string{"exploitCaller": "0xAbCdEf0123456789aBcDeF0123456789aBcDef01"},
		Addresses: []string{"0x111"},
	}
	got := Attackers(alert)
	if !contains(got, "0xabcdef0123456789abcdef0123456789abcdef01") {
		t.Fatalf("expected metadata-derived attacker present, got %v", got)
	}
}

func TestAttackersIgnoresNonAddressMetadataValues(t *testing.T) {
	alert := models.Alert{
		Metadata:  map[string]string{"attackType": "flashloan"},
		Addresses: []string{"0x111"},
	}
	got := Attackers(alert)
	if contains(got, "flashloan") {
		t.Fatalf("expected non-address metadata value to be rejected, got %v", got)
	}
	if !contains(got, "0x111") {
		t.Fatalf("expected fallback to addresses field, got %v", got)
	}
}

func TestAttackersFallsBackToAddresses(t *testing.T) {
	alert := models.Alert{Addresses: []string{"0x111", "0x222"}}
	got := Attackers(alert)
	if len(got) != 2 || got[0] != "0x111" || got[1] != "0x222" {
		t.Fatalf("expected both addresses as fallback, got %v", got)
	}
}

func TestAttackersNoSourceAvailable(t *testing.T) {
	if got := Attackers(models.Alert{}); len(got) != 0 {
		t.Fatalf("expected no candidates, got %v", got)
	}
}

func TestFPMitigationAddressExtractsFirstHexMatch(t *testing.T) {
	desc := "Entity 0xAbCdEf0123456789aBcDeF0123456789aBcDef01 flagged by Chainalysis, related to 0x0000000000000000000000000000000000000dead"
	got, ok := FPMitigationAddress(desc)
	if !ok || got != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Fatalf("unexpected extraction: %q ok=%v", got, ok)
	}
}

func TestFPMitigationAddressNoMatch(t *testing.T) {
	if _, ok := FPMitigationAddress("no address here"); ok {
		t.Fatal("expected no match")
	}
}

func TestEndUserAttackerHardRugPullPrefersSnakeCaseWhenBothPresent(t *testing.T) {
	metadata := map[string]string{
		"attacker_deployer_address": "0xSnake",
		"attackerDeployerAddress":   "0xCamel",
	}
	got, ok := EndUserAttacker(registry.BotHardRugPull, metadata)
	if !ok || got != "0xsnake" {
		t.Fatalf("expected hard rug pull to read the snake_case key when both present, got %q ok=%v", got, ok)
	}
}

func TestEndUserAttackerHardRugPullReadsCamelCaseKeyOwnValue(t *testing.T) {
	metadata := map[string]string{"attackerDeployerAddress": "0xCamel"}
	got, ok := EndUserAttacker(registry.BotHardRugPull, metadata)
	if !ok || got != "0xcamel" {
		t.Fatalf("expected hard rug pull to read the camelCase key's own value, got %q ok=%v", got, ok)
	}
}

func TestEndUserAttackerSoftRugPullUsesDeployerKey(t *testing.T) {
	metadata := map[string]string{"deployer": "0xSoft"}
	got, ok := EndUserAttacker(registry.BotSoftRugPull, metadata)
	if !ok || got != "0xsoft" {
		t.Fatalf("expected soft rug pull to read the deployer key, got %q ok=%v", got, ok)
	}
}

func TestEndUserAttackerRakeTokenContractUsesCamelCaseKey(t *testing.T) {
	metadata := map[string]string{"attackerRakeTokenDeployer": "0xRakeCamel"}
	got, ok := EndUserAttacker(registry.BotRakeTokenContract, metadata)
	if !ok || got != "0xrakecamel" {
		t.Fatalf("expected rake-token-contract to read the camelCase key, got %q ok=%v", got, ok)
	}
}

func TestEndUserAttackerRakeTokenContractUsesSnakeCaseKey(t *testing.T) {
	metadata := map[string]string{"attacker_rake_token_deployer": "0xRakeSnake"}
	got, ok := EndUserAttacker(registry.BotRakeTokenContract, metadata)
	if !ok || got != "0xrakesnake" {
		t.Fatalf("expected rake-token-contract to read the snake_case key, got %q ok=%v", got, ok)
	}
}

func TestEndUserAttackerUnknownBot(t *testing.T) {
	if _, ok := EndUserAttacker("0xunknown", map[string]string{"attackerDeployerAddress": "0xabc"}); ok {
		t.Fatal("expected unknown bot to yield no extraction")
	}
}

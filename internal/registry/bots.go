// Package registry holds the static, compile-time configuration the
// decision engine is built around: which upstream detectors feed which
// stage, which ones are trusted enough to short-circuit the gate, which
// ones place a cluster under false-positive mitigation, and so on.
//
// Nothing here is computed at runtime.
package registry

import "github.com/rawblock/attack-correlator/pkg/models"

// BotAlert identifies one (botId, alertId) pair.
type BotAlert struct {
	BotID   string
	AlertID string
}

// BaseBot is a (botId, alertId) pair together with the kill-chain stage its
// alerts contribute to.
type BaseBot struct {
	BotID   string
	AlertID string
	Stage   models.Stage
}

// Registry is the immutable bot configuration loaded at startup.
type Registry struct {
	BaseBots          []BaseBot
	HighlyPrecise     map[BotAlert]bool
	FPMitigationBots  map[BotAlert]bool
	EndUserAttackBots map[string]bool // botId -> true
	ContextBots       map[string]bool // botId -> true
	ContextVictimBot  string          // the one context bot whose metadata is victim identity; all others are "profit"
	EntityClusterBot  BotAlert

	stageByBotAlert map[BotAlert]models.Stage
}

// Default bot identities. These mirror the shape of the upstream
// alert-combiner's BASE_BOTS/FP_MITIGATION_BOTS/etc. constant tables —
// fictitious hex identifiers standing in for real detector bot IDs.
const (
	BotSybilFundingTracer     = "0x1a3f6e2c9b7d4158a6f0c3d2e9b4a7159d3c6f0a2b4e7c9d1f3a6b8e0c2d4f6a"
	BotMixerHopDetector       = "0x2b4a7c9e1d3f6082b7e1d4a9c2f5b80e6a3d7c1f4b8e0a2c5d9f1b3e6a8c0d2f"
	BotExploitSequencer       = "0x3c5b8d0f2e4179c3d8f2e5b0a1c4d7f9e6b3a0d4c8f1b5e9a2d6c0f3b7e1a4d8"
	BotDrainDetector          = "0x9b0f2c4e6a8351d9c2e4f6a8b0d3c5e7f9a1b3d5c7e9f1a3b5d7c9e1f3a5b7d9"
	BotLaunderingScreen       = "0x4d6c9e1a3f5280d4e9a3f6c1b2d5e8f0a7c4b1e5d9f2a6c0e3b7d1f4a8c2e5b9"
	BotHighlyPreciseExploiter = "0x5e7d0f2b4a6391e5f0b4a7d2c3e6f9a1b8d5c2f6e0a3b7d1f4c8e2a5b9d3f7c0"
	BotHighlyPreciseLaunderer = "0x6f8e1a3c5b7402f6a1c5b8e3d4f7a0b2c9e6d3a7f1b5c8e2a6d0f4b8e3a7c1f5"
	BotChainalysisFPFeed      = "0x70f9b2d4e6813079b2d6e9c4f5a81b3c0e7d4a8b2f6c9e3a7d1f5b9c3e7a2f6"
	BotPolicyValidatorFPFeed  = "0x81a0c3e5f79241810c3f7e0d5a692c4d1f8e5b9c3a7d2f6e0b4a8c2e6d1f7b3"
	BotHardRugPull            = "0xc608f1aff80657091ad14d974ea37607f6e7513fdb8afaa148b3bff5ba305c1"
	BotSoftRugPull            = "0xf234f56095ba6c4c4782045f6d8e95d22da360bdc41b75c0549e2713a93231a"
	BotRakeTokenContract      = "0x36be2983e82680996e6ccc2ab39a506444ab7074677e973136fa8d914fc5dd1"
	BotVictimIdentifier       = "0x441d3228a68bbbcf04e6813f52306efcaf1e66f275d682e62499f44905215250"
	BotProfitEstimator        = "0x92b1d4f60835a2c1d9e6b3f8a5072d4c1b6e9a3f7d0b5c2e8a4f1d6c9b2e5a70"
	BotEntityCluster          = "0xa3c2e5b81947d3c2e6b9f4a1d8507c2e5b8a1d4f7c0e3b6a9d2f5c8b1e4a7d03"
)

const (
	AlertIDEntityCluster = "ENTITY-CLUSTER-1"
)

// New builds the default registry used by the correlator. The set of bots
// the engine trusts is a deployment decision made once, not at runtime,
// so it is a compiled table.
func New() *Registry {
	r := &Registry{
		BaseBots: []BaseBot{
			{BotID: BotSybilFundingTracer, AlertID: "FUNDING-TRACE-1", Stage: models.StageFunding},
			{BotID: BotMixerHopDetector, AlertID: "MIXER-HOP-1", Stage: models.StageMoneyLaundering},
			{BotID: BotLaunderingScreen, AlertID: "LAUNDERING-SCREEN-1", Stage: models.StageMoneyLaundering},
			{BotID: BotExploitSequencer, AlertID: "PREP-SEQUENCE-1", Stage: models.StagePreparation},
			{BotID: BotDrainDetector, AlertID: "EXPLOIT-DRAIN-1", Stage: models.StageExploitation},
			{BotID: BotHighlyPreciseExploiter, AlertID: "HP-EXPLOIT-1", Stage: models.StageExploitation},
			{BotID: BotHighlyPreciseLaunderer, AlertID: "HP-LAUNDER-1", Stage: models.StageMoneyLaundering},
		},
		HighlyPrecise: map[BotAlert]bool{
			{BotID: BotHighlyPreciseExploiter, AlertID: "HP-EXPLOIT-1"}: true,
			{BotID: BotHighlyPreciseLaunderer, AlertID: "HP-LAUNDER-1"}: true,
		},
		FPMitigationBots: map[BotAlert]bool{
			{BotID: BotChainalysisFPFeed, AlertID: "FP-LABEL-1"}:      true,
			{BotID: BotPolicyValidatorFPFeed, AlertID: "FP-VALID-1"}: true,
		},
		EndUserAttackBots: map[string]bool{
			BotHardRugPull:       true,
			BotSoftRugPull:       true,
			BotRakeTokenContract: true,
		},
		ContextBots: map[string]bool{
			BotVictimIdentifier: true,
			BotProfitEstimator:  true,
		},
		ContextVictimBot: BotVictimIdentifier,
		EntityClusterBot: BotAlert{BotID: BotEntityCluster, AlertID: AlertIDEntityCluster},
	}

	r.stageByBotAlert = make(map[BotAlert]models.Stage, len(r.BaseBots))
	for _, b := range r.BaseBots {
		r.stageByBotAlert[BotAlert{BotID: b.BotID, AlertID: b.AlertID}] = b.Stage
	}

	return r
}

// Kind classifies what an inbound alert means to the dispatcher. More than
// one field may be true — an alert can, in principle, be both a base-bot
// alert and a highly-precise one, or match several categories at once;
// the dispatcher fires every applicable branch.
type Kind struct {
	IsBase          bool
	IsHighlyPrecise bool
	IsFPMitigation  bool
	IsEndUser       bool
	IsContext       bool
	IsCluster       bool
	Stage           models.Stage // valid only when IsBase
}

// Classify returns the Kind of the given (botId, alertId) pair.
func (r *Registry) Classify(botID, alertID string) Kind {
	var k Kind
	ba := BotAlert{BotID: botID, AlertID: alertID}

	if stage, ok := r.stageByBotAlert[ba]; ok {
		k.IsBase = true
		k.Stage = stage
	}
	if r.HighlyPrecise[ba] {
		k.IsHighlyPrecise = true
	}
	if r.FPMitigationBots[ba] {
		k.IsFPMitigation = true
	}
	if r.EndUserAttackBots[botID] {
		k.IsEndUser = true
	}
	if r.ContextBots[botID] {
		k.IsContext = true
	}
	if ba == r.EntityClusterBot {
		k.IsCluster = true
	}
	return k
}

// StageFor returns the stage a (botId, alertId) base-bot pair contributes
// to, and whether that pair is a known base bot at all.
func (r *Registry) StageFor(botID, alertID string) (models.Stage, bool) {
	s, ok := r.stageByBotAlert[BotAlert{BotID: botID, AlertID: alertID}]
	return s, ok
}

// IsHighlyPrecise reports whether (botId, alertId) is in the highly-precise
// subset.
func (r *Registry) IsHighlyPrecise(botID, alertID string) bool {
	return r.HighlyPrecise[BotAlert{BotID: botID, AlertID: alertID}]
}

// ContextBotType reports "victim" or "profit" for a context bot ID.
func (r *Registry) ContextBotType(botID string) string {
	if botID == r.ContextVictimBot {
		return "victim"
	}
	return "profit"
}

// Subscriptions derives the (botId, alertId?, chainId) triples the engine
// wants to receive, for the given deployment chain. L2 deployments
// (Optimism=10, Arbitrum=42161) additionally subscribe to chain 1, since
// attacker funding frequently originates on L1.
func (r *Registry) Subscriptions(chainID int64) []models.Subscription {
	var subs []models.Subscription
	add := func(botID, alertID string) {
		subs = append(subs, models.Subscription{BotID: botID, AlertID: alertID, ChainID: chainID})
		if IsL2(chainID) {
			subs = append(subs, models.Subscription{BotID: botID, AlertID: alertID, ChainID: 1})
		}
	}

	for _, b := range r.BaseBots {
		add(b.BotID, b.AlertID)
	}
	for ba := range r.FPMitigationBots {
		add(ba.BotID, ba.AlertID)
	}
	for botID := range r.EndUserAttackBots {
		add(botID, "")
	}
	for botID := range r.ContextBots {
		add(botID, "")
	}
	add(r.EntityClusterBot.BotID, r.EntityClusterBot.AlertID)

	return subs
}

// IsL2 reports whether chainID is one of the supported L2 deployments that
// also fan in L1 evidence.
func IsL2(chainID int64) bool {
	return chainID == 10 || chainID == 42161
}

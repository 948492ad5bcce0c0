// Package models holds the wire types exchanged between the alert bus, the
// correlation engine, and the finding emitter.
package models

import "time"

// Stage is a kill-chain phase a contributing detector maps to.
type Stage string

const (
	StageFunding         Stage = "Funding"
	StageMoneyLaundering Stage = "MoneyLaundering"
	StagePreparation     Stage = "Preparation"
	StageExploitation    Stage = "Exploitation"
)

// AllStages lists every stage the decision engine aggregates over, in a
// fixed order so per-stage score tables render deterministically.
var AllStages = []Stage{StageFunding, StageMoneyLaundering, StagePreparation, StageExploitation}

// Label is an off-chain reputation tag attached to an entity by an upstream
// detector (e.g. a label-propagation bot).
type Label struct {
	Label      string  `json:"label"`
	Entity     string  `json:"entity"`
	Confidence float64 `json:"confidence"`
}

// Block identifies the chain and block number an alert's source transaction
// was included in.
type Block struct {
	ChainID *int64 `json:"chainId,omitempty"`
	Number  int64  `json:"number"`
}

// Source carries provenance for an alert: which transaction and block it
// was raised against.
type Source struct {
	TransactionHash string `json:"transactionHash"`
	Block           Block  `json:"block"`
}

// Alert is one inbound event from the upstream alert bus.
type Alert struct {
	AlertHash   string            `json:"alertHash"`
	AlertID     string            `json:"alertId"`
	BotID       string            `json:"botId"`
	ChainID     int64             `json:"chainId"`
	CreatedAt   string            `json:"createdAt"` // RFC-3339-ish, sub-second fragment, truncated to microseconds
	Description string            `json:"description"`
	Addresses   []string          `json:"addresses"`
	Metadata    map[string]string `json:"metadata"`
	Labels      []Label           `json:"labels"`
	Source      Source            `json:"source"`
}

// ParsedCreatedAt parses Alert.CreatedAt, tolerating a truncated or
// over-long fractional-second component the way upstream detectors emit it.
func (a Alert) ParsedCreatedAt() (time.Time, error) {
	return ParseAlertTimestamp(a.CreatedAt)
}

// ParseAlertTimestamp parses an RFC-3339-ish timestamp with a sub-second
// fragment of arbitrary length, normalizing it to microsecond precision
// before handing off to time.Parse. Upstream detectors are inconsistent
// about whether the fragment is 3, 6, or 9 digits.
func ParseAlertTimestamp(raw string) (time.Time, error) {
	return parseFlexibleTimestamp(raw)
}

// AlertRecord is the accumulated, per-cluster evidence unit the alert store
// keeps. It is derived from an inbound Alert once it has been classified as
// a base-bot alert and attributed to a cluster.
type AlertRecord struct {
	Stage           Stage     `json:"stage"`
	CreatedAt       time.Time `json:"createdAt"`
	AnomalyScore    float64   `json:"anomalyScore"`
	AlertHash       string    `json:"alertHash"`
	BotID           string    `json:"botId"`
	AlertID         string    `json:"alertId"`
	ChainID         *int64    `json:"chainId,omitempty"` // present only on L2 deployments
	Addresses       []string  `json:"addresses"`
	TransactionHash string    `json:"transactionHash"`
}

// ContextEntry is an unstructured key-value annotation (victim identity or
// profit estimate) observed on a transaction hash.
type ContextEntry struct {
	BotType  string            `json:"botType"` // "victim" or "profit"
	Metadata map[string]string `json:"metadata"`
}

// Victim is the enrichment payload describing who was attacked.
type Victim struct {
	Address  string            `json:"address,omitempty"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// StageScore is one row of the per-stage anomaly-score table attached to a
// finding.
type StageScore struct {
	Stage Stage   `json:"stage"`
	Score float64 `json:"score"`
}

// Severity mirrors the finding-emitter's severity levels.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityLow      Severity = "Low"
	SeverityInfo     Severity = "Info"
)

// Finding is a consolidated, high-confidence emission from the decision
// engine.
type Finding struct {
	ID               string       `json:"id"`
	AlertID          string       `json:"alertId"` // ATTACK-DETECTOR-1..6
	Severity         Severity     `json:"severity"`
	Description      string       `json:"description"`
	Cluster          string       `json:"cluster"`
	Victim           Victim       `json:"victim"`
	Loss             string       `json:"loss,omitempty"`
	AnomalyScore     float64      `json:"anomalyScore"`
	StageScores      []StageScore `json:"stageScores"`
	TriggerAlertHash string       `json:"triggerAlertHash"`
	ChainID          int64        `json:"chainId"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// Subscription is one (botId, alertId, chainId) triple the engine registers
// interest in at init.
type Subscription struct {
	BotID   string `json:"botId"`
	AlertID string `json:"alertId,omitempty"`
	ChainID int64  `json:"chainId"`
}

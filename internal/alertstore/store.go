// Package alertstore implements the per-cluster evidence ledger: the
// sliding window of base-bot AlertRecords the decision engine scores
// against, guarded by a single mutex.
package alertstore

import (
	"sort"
	"sync"
	"time"

	"github.com/rawblock/attack-correlator/pkg/models"
)

// Store holds, per cluster key, the AlertRecords observed within the
// configured lookback window.
type Store struct {
	mu        sync.Mutex
	byCluster map[string][]models.AlertRecord
	lookback  time.Duration
}

// New creates an empty alert store with the given lookback window.
func New(lookback time.Duration) *Store {
	return &Store{
		byCluster: make(map[string][]models.AlertRecord),
		lookback:  lookback,
	}
}

// Append records a new AlertRecord against cluster and prunes any entries
// that have fallen outside the lookback window relative to now.
func (s *Store) Append(cluster string, rec models.AlertRecord, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCluster[cluster] = prune(append(s.byCluster[cluster], rec), s.lookback, now)
}

// Records returns a pruned copy of the AlertRecords currently live for
// cluster.
func (s *Store) Records(cluster string, now time.Time) []models.AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := prune(s.byCluster[cluster], s.lookback, now)
	s.byCluster[cluster] = live
	out := make([]models.AlertRecord, len(live))
	copy(out, live)
	return out
}

// DistinctBotCount returns the number of distinct bot IDs represented in
// cluster's live records. The trigger gate requires this to reach the
// configured minimum before a tier can fire.
func (s *Store) DistinctBotCount(cluster string, now time.Time) int {
	records := s.Records(cluster, now)
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		seen[r.BotID] = true
	}
	return len(seen)
}

// DistinctStages returns the set of stages with at least one live record,
// in AllStages order.
func (s *Store) DistinctStages(cluster string, now time.Time) []models.Stage {
	records := s.Records(cluster, now)
	present := make(map[models.Stage]bool, len(records))
	for _, r := range records {
		present[r.Stage] = true
	}
	var out []models.Stage
	for _, st := range models.AllStages {
		if present[st] {
			out = append(out, st)
		}
	}
	return out
}

// StageScores returns the per-stage minimum anomaly score across live
// records, one row per stage that has at least one record, in AllStages
// order.
func (s *Store) StageScores(cluster string, now time.Time) []models.StageScore {
	records := s.Records(cluster, now)
	mins := make(map[models.Stage]float64, len(records))
	has := make(map[models.Stage]bool, len(records))
	for _, r := range records {
		if !has[r.Stage] || r.AnomalyScore < mins[r.Stage] {
			mins[r.Stage] = r.AnomalyScore
			has[r.Stage] = true
		}
	}
	var out []models.StageScore
	for _, st := range models.AllStages {
		if has[st] {
			out = append(out, models.StageScore{Stage: st, Score: mins[st]})
		}
	}
	return out
}

// AggregateScore is the product of the per-stage minimum anomaly score
// across every stage with a live record. Deduplicating (stage, score)
// pairs before taking the per-stage minimum makes the result invariant to
// a detector re-emitting the same (stage, score) observation multiple
// times.
func (s *Store) AggregateScore(cluster string, now time.Time) float64 {
	records := s.Records(cluster, now)

	type pair struct {
		stage models.Stage
		score float64
	}
	seenPairs := make(map[pair]bool, len(records))
	for _, r := range records {
		seenPairs[pair{r.Stage, r.AnomalyScore}] = true
	}

	mins := make(map[models.Stage]float64, len(seenPairs))
	has := make(map[models.Stage]bool, len(seenPairs))
	for p := range seenPairs {
		if !has[p.stage] || p.score < mins[p.stage] {
			mins[p.stage] = p.score
			has[p.stage] = true
		}
	}

	score := 1.0
	any := false
	for _, st := range models.AllStages {
		if has[st] {
			score *= mins[st]
			any = true
		}
	}
	if !any {
		return 0
	}
	return score
}

// Migrate moves every live record from oldCluster onto newCluster, merging
// with whatever newCluster already holds. Used when the cluster index
// reassigns an address to a wider entity cluster.
func (s *Store) Migrate(oldCluster, newCluster string, now time.Time) {
	if oldCluster == newCluster {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byCluster[oldCluster]
	if !ok {
		return
	}
	delete(s.byCluster, oldCluster)
	merged := append(s.byCluster[newCluster], old...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].CreatedAt.Before(merged[j].CreatedAt) })
	s.byCluster[newCluster] = prune(merged, s.lookback, now)
}

// Snapshot returns a deep copy of every cluster's live records, for
// persistence.
func (s *Store) Snapshot() map[string][]models.AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]models.AlertRecord, len(s.byCluster))
	for k, v := range s.byCluster {
		cp := make([]models.AlertRecord, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Restore replaces the store's contents from a persisted snapshot.
func (s *Store) Restore(snapshot map[string][]models.AlertRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCluster = make(map[string][]models.AlertRecord, len(snapshot))
	for k, v := range snapshot {
		cp := make([]models.AlertRecord, len(v))
		copy(cp, v)
		s.byCluster[k] = cp
	}
}

func prune(records []models.AlertRecord, lookback time.Duration, now time.Time) []models.AlertRecord {
	if len(records) == 0 {
		return records
	}
	cutoff := now.Add(-lookback)
	out := records[:0]
	for _, r := range records {
		if r.CreatedAt.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

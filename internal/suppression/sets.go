// Package suppression implements the bounded membership sets the decision
// engine consults to avoid re-alerting and to apply false-positive
// mitigation: mutex-guarded maps with oldest-insertion eviction once a
// size ceiling is hit.
package suppression

import "sync"

// fifoSet is a bounded set with oldest-insertion-first eviction.
type fifoSet struct {
	mu      sync.Mutex
	members map[string]bool
	order   []string
	maxSize int
}

func newFIFOSet(maxSize int) *fifoSet {
	return &fifoSet{members: make(map[string]bool), maxSize: maxSize}
}

func (f *fifoSet) Add(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[key] {
		return
	}
	f.members[key] = true
	f.order = append(f.order, key)
	for len(f.members) > f.maxSize && len(f.order) > 0 {
		oldest := f.order[0]
		f.order = f.order[1:]
		delete(f.members, oldest)
	}
}

func (f *fifoSet) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[key]
}

func (f *fifoSet) Remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.members[key] {
		return
	}
	delete(f.members, key)
	for i, k := range f.order {
		if k == key {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// Rekey moves membership from oldKey to newKey, for cluster migration.
func (f *fifoSet) Rekey(oldKey, newKey string) {
	f.mu.Lock()
	present := f.members[oldKey]
	if present {
		delete(f.members, oldKey)
		for i, k := range f.order {
			if k == oldKey {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
	}
	f.mu.Unlock()
	if present {
		f.Add(newKey)
	}
}

func (f *fifoSet) Snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

func (f *fifoSet) Restore(keys []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members = make(map[string]bool, len(keys))
	f.order = make([]string, 0, len(keys))
	for _, k := range keys {
		if !f.members[k] {
			f.members[k] = true
			f.order = append(f.order, k)
		}
	}
}

// Sets bundles the five cluster-membership sets the decision engine
// consults: which clusters are under false-positive mitigation, which are
// tagged as end-user (self-inflicted) attacks, and which have already had a
// finding emitted at each of the three alerting tiers.
type Sets struct {
	FPMitigated   *fifoSet
	EndUserAttack *fifoSet
	AlertedStrict *fifoSet
	AlertedLoose  *fifoSet
	AlertedFPOnly *fifoSet
}

// New builds the suppression sets with the given capacities.
func New(fpMitigationMax, endUserMax, alertedMax int) *Sets {
	return &Sets{
		FPMitigated:   newFIFOSet(fpMitigationMax),
		EndUserAttack: newFIFOSet(endUserMax),
		AlertedStrict: newFIFOSet(alertedMax),
		AlertedLoose:  newFIFOSet(alertedMax),
		AlertedFPOnly: newFIFOSet(alertedMax),
	}
}

// Rekey moves every set's membership for oldCluster onto newCluster, used
// when the cluster index merges addresses into a wider entity cluster.
func (s *Sets) Rekey(oldCluster, newCluster string) {
	s.FPMitigated.Rekey(oldCluster, newCluster)
	s.EndUserAttack.Rekey(oldCluster, newCluster)
	s.AlertedStrict.Rekey(oldCluster, newCluster)
	s.AlertedLoose.Rekey(oldCluster, newCluster)
	s.AlertedFPOnly.Rekey(oldCluster, newCluster)
}

// SnapshotSets is the serializable form of Sets, for persistence.
type SnapshotSets struct {
	FPMitigated   []string
	EndUserAttack []string
	AlertedStrict []string
	AlertedLoose  []string
	AlertedFPOnly []string
}

// Snapshot returns a serializable copy of every set's membership.
func (s *Sets) Snapshot() SnapshotSets {
	return SnapshotSets{
		FPMitigated:   s.FPMitigated.Snapshot(),
		EndUserAttack: s.EndUserAttack.Snapshot(),
		AlertedStrict: s.AlertedStrict.Snapshot(),
		AlertedLoose:  s.AlertedLoose.Snapshot(),
		AlertedFPOnly: s.AlertedFPOnly.Snapshot(),
	}
}

// Restore replaces every set's membership from a persisted snapshot.
func (s *Sets) Restore(snap SnapshotSets) {
	s.FPMitigated.Restore(snap.FPMitigated)
	s.EndUserAttack.Restore(snap.EndUserAttack)
	s.AlertedStrict.Restore(snap.AlertedStrict)
	s.AlertedLoose.Restore(snap.AlertedLoose)
	s.AlertedFPOnly.Restore(snap.AlertedFPOnly)
}

// Package cluster implements the address -> entity-cluster mapping.
//
// Cluster membership is asserted wholesale by an upstream
// entity-clustering bot: a comma-joined address list IS the cluster key,
// not something discovered incrementally from on-chain edges. Capacity is
// enforced by bounded FIFO eviction over address entries.
package cluster

import (
	"log"
	"strings"
	"sync"
)

// Index is the address -> cluster mapping. Safe for concurrent use,
// though the engine's single-consumer dispatch loop means writes are
// already serialized by the caller; the lock here protects concurrent
// reads from the API layer.
type Index struct {
	mu         sync.RWMutex
	membership map[string]string // address -> cluster key
	order      []string          // addresses in insertion order, for FIFO eviction
	maxSize    int
}

// NewIndex creates an empty cluster index bounded at maxSize address
// entries.
func NewIndex(maxSize int) *Index {
	return &Index{
		membership: make(map[string]string),
		maxSize:    maxSize,
	}
}

// Membership returns the cluster the address currently belongs to, or the
// address itself if it has no recorded cluster membership.
func (idx *Index) Membership(address string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if cluster, ok := idx.membership[address]; ok {
		return cluster
	}
	return address
}

// MergeResult describes the effect of an OnClusterAlert call: the resulting
// cluster key, the full set of member addresses, the distinct prior cluster
// keys those addresses used to belong to (so the caller can migrate
// per-address state in the alert store and suppression sets), and any
// addresses evicted to enforce capacity.
type MergeResult struct {
	Cluster          string
	Addresses        []string
	PriorClusters    []string
	EvictedAddresses []string
}

// OnClusterAlert normalizes an entity-cluster alert's entityAddresses field
// (a comma-separated list) and asserts every member address maps to the
// joined cluster key. It is the caller's responsibility (the dispatcher) to
// migrate alert-store series and suppression-set tags from each of
// PriorClusters onto Cluster — this type only owns the address->cluster
// mapping itself.
func (idx *Index) OnClusterAlert(entityAddressesRaw string) MergeResult {
	addrs := normalizeAddresses(entityAddressesRaw)
	cluster := strings.Join(addrs, ",")

	idx.mu.Lock()
	defer idx.mu.Unlock()

	priorSeen := make(map[string]bool, len(addrs))
	var prior []string
	for _, a := range addrs {
		old, existed := idx.membership[a]
		if !existed {
			old = a
			idx.order = append(idx.order, a)
		}
		if old != cluster && !priorSeen[old] {
			priorSeen[old] = true
			prior = append(prior, old)
		}
		idx.membership[a] = cluster
	}

	var evicted []string
	for len(idx.membership) > idx.maxSize && len(idx.order) > 0 {
		oldest := idx.order[0]
		idx.order = idx.order[1:]
		if _, ok := idx.membership[oldest]; ok {
			delete(idx.membership, oldest)
			evicted = append(evicted, oldest)
		}
	}
	if len(evicted) > 0 {
		log.Printf("[ClusterIndex] evicted %d address(es) to enforce capacity %d", len(evicted), idx.maxSize)
	}

	return MergeResult{Cluster: cluster, Addresses: addrs, PriorClusters: prior, EvictedAddresses: evicted}
}

// Size returns the number of tracked address entries.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.membership)
}

// Snapshot returns a copy of the full address->cluster mapping, for
// persistence.
func (idx *Index) Snapshot() map[string]string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]string, len(idx.membership))
	for k, v := range idx.membership {
		out[k] = v
	}
	return out
}

// Restore replaces the index contents from a persisted snapshot. Insertion
// order is reconstructed from map iteration, which is fine: FIFO ordering
// across a restart is best-effort, not a correctness invariant.
func (idx *Index) Restore(snapshot map[string]string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.membership = make(map[string]string, len(snapshot))
	idx.order = idx.order[:0]
	for k, v := range snapshot {
		idx.membership[k] = v
		idx.order = append(idx.order, k)
	}
}

func normalizeAddresses(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Package contextstore implements the per-transaction context annotation
// queue: victim-identity and profit-estimate metadata keyed by transaction
// hash, consumed by the decision engine when it enriches a finding.
package contextstore

import (
	"sync"

	"github.com/rawblock/attack-correlator/pkg/models"
)

// Store holds context entries keyed by transaction hash, bounded to a
// maximum number of tracked transactions via oldest-insertion FIFO
// eviction.
type Store struct {
	mu       sync.Mutex
	byTxHash map[string][]models.ContextEntry
	order    []string
	maxSize  int
}

// New creates an empty context store bounded at maxSize transaction hashes.
func New(maxSize int) *Store {
	return &Store{
		byTxHash: make(map[string][]models.ContextEntry),
		maxSize:  maxSize,
	}
}

// Append records a context entry against a transaction hash, evicting the
// oldest tracked transaction if capacity is exceeded.
func (s *Store) Append(txHash string, entry models.ContextEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byTxHash[txHash]; !exists {
		s.order = append(s.order, txHash)
	}
	s.byTxHash[txHash] = append(s.byTxHash[txHash], entry)

	for len(s.byTxHash) > s.maxSize && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.byTxHash, oldest)
	}
}

// LookupVictim scans the context entries for the transaction hashes present
// in records and returns the first victim identity found, if any.
func (s *Store) LookupVictim(records []models.AlertRecord) (models.Victim, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r.TransactionHash == "" {
			continue
		}
		for _, entry := range s.byTxHash[r.TransactionHash] {
			if entry.BotType != "victim" {
				continue
			}
			return models.Victim{
				Address:  entry.Metadata["address1"],
				Name:     entry.Metadata["tag1"],
				Metadata: entry.Metadata,
			}, true
		}
	}
	return models.Victim{}, false
}

// LookupLoss scans the context entries of exploitation-stage records for a
// profit-estimate entry and returns its reported loss amount, if any.
// Profit estimates are only meaningful once the exploitation stage has
// actually fired, so non-exploitation records are skipped.
func (s *Store) LookupLoss(records []models.AlertRecord) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r.Stage != models.StageExploitation || r.TransactionHash == "" {
			continue
		}
		for _, entry := range s.byTxHash[r.TransactionHash] {
			if entry.BotType != "profit" {
				continue
			}
			if profit, ok := entry.Metadata["profit1"]; ok {
				return "Loss of " + profit, true
			}
		}
	}
	return "", false
}

// Size returns the number of tracked transaction hashes.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byTxHash)
}

// Snapshot returns a deep copy of the store's contents, for persistence.
func (s *Store) Snapshot() map[string][]models.ContextEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]models.ContextEntry, len(s.byTxHash))
	for k, v := range s.byTxHash {
		cp := make([]models.ContextEntry, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Restore replaces the store's contents from a persisted snapshot.
func (s *Store) Restore(snapshot map[string][]models.ContextEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTxHash = make(map[string][]models.ContextEntry, len(snapshot))
	s.order = s.order[:0]
	for k, v := range snapshot {
		cp := make([]models.ContextEntry, len(v))
		copy(cp, v)
		s.byTxHash[k] = cp
		s.order = append(s.order, k)
	}
}

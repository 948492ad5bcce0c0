// Package persist implements the periodic state snapshotting: it
// serializes the five in-memory stores and writes them to the persistent
// blob store under fixed keys, and reloads them at startup.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/rawblock/attack-correlator/internal/alertstore"
	"github.com/rawblock/attack-correlator/internal/cluster"
	"github.com/rawblock/attack-correlator/internal/contextstore"
	"github.com/rawblock/attack-correlator/internal/suppression"
	"github.com/rawblock/attack-correlator/pkg/models"
)

// BlobStore is the keyed persistence backend snapshots are written to.
type BlobStore interface {
	Save(ctx context.Context, chainID int64, key string, value []byte) error
	Load(ctx context.Context, chainID int64, key string) ([]byte, bool, error)
}

const (
	keyAlerts                     = "alerts"
	keyEntityClusters             = "entity_clusters"
	keyFPMitigationClusters       = "fp_mitigation_clusters"
	keyEndUserAttackClusters      = "end_user_attack_clusters"
	keyContext                    = "context"
	keyAlertedClustersStrict      = "alerted_clusters_strict"
	keyAlertedClustersLoose       = "alerted_clusters_loose"
	keyAlertedClustersFPMitigated = "alerted_clusters_fp_mitigated"
)

// Persistor snapshots and restores the five correlator stores via a
// BlobStore, scoped to one chain.
type Persistor struct {
	ChainID     int64
	Blob        BlobStore
	Cluster     *cluster.Index
	Alerts      *alertstore.Store
	Context     *contextstore.Store
	Suppression *suppression.Sets
}

// Snapshot writes every store's current contents to the blob store. A
// failure on any individual key is logged and the remaining keys are still
// attempted; the failed key is retried on the next cycle.
func (p *Persistor) Snapshot(ctx context.Context) error {
	var firstErr error
	save := func(key string, v interface{}) {
		blob, err := json.Marshal(v)
		if err != nil {
			log.Printf("[Persistor] failed to marshal %s: %v", key, err)
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		if err := p.Blob.Save(ctx, p.ChainID, key, blob); err != nil {
			log.Printf("[Persistor] failed to save %s: %v", key, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	save(keyEntityClusters, p.Cluster.Snapshot())
	save(keyAlerts, p.Alerts.Snapshot())
	save(keyContext, p.Context.Snapshot())

	snap := p.Suppression.Snapshot()
	save(keyFPMitigationClusters, snap.FPMitigated)
	save(keyEndUserAttackClusters, snap.EndUserAttack)
	save(keyAlertedClustersStrict, snap.AlertedStrict)
	save(keyAlertedClustersLoose, snap.AlertedLoose)
	save(keyAlertedClustersFPMitigated, snap.AlertedFPOnly)

	return firstErr
}

// Restore loads every store's contents from the blob store, leaving a
// store empty (not erroring out) when its key has never been written —
// the correlator's normal first-boot state.
func (p *Persistor) Restore(ctx context.Context) error {
	load := func(key string, dst interface{}) error {
		blob, found, err := p.Blob.Load(ctx, p.ChainID, key)
		if err != nil {
			log.Printf("[Persistor] failed to load %s: %v", key, err)
			return nil
		}
		if !found {
			return nil
		}
		if err := json.Unmarshal(blob, dst); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		return nil
	}

	var clusters map[string]string
	if err := load(keyEntityClusters, &clusters); err != nil {
		return err
	}
	if clusters != nil {
		p.Cluster.Restore(clusters)
	}

	var alerts map[string][]models.AlertRecord
	if err := load(keyAlerts, &alerts); err != nil {
		return err
	}
	if alerts != nil {
		p.Alerts.Restore(alerts)
	}

	var contextEntries map[string][]models.ContextEntry
	if err := load(keyContext, &contextEntries); err != nil {
		return err
	}
	if contextEntries != nil {
		p.Context.Restore(contextEntries)
	}

	var snap suppression.SnapshotSets
	if err := load(keyFPMitigationClusters, &snap.FPMitigated); err != nil {
		return err
	}
	if err := load(keyEndUserAttackClusters, &snap.EndUserAttack); err != nil {
		return err
	}
	if err := load(keyAlertedClustersStrict, &snap.AlertedStrict); err != nil {
		return err
	}
	if err := load(keyAlertedClustersLoose, &snap.AlertedLoose); err != nil {
		return err
	}
	if err := load(keyAlertedClustersFPMitigated, &snap.AlertedFPOnly); err != nil {
		return err
	}
	p.Suppression.Restore(snap)

	return nil
}

// Run snapshots on a fixed interval until ctx is cancelled, then performs
// one final snapshot before returning so shutdown never loses the last
// window of state.
func (p *Persistor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := p.Snapshot(context.Background()); err != nil {
				log.Printf("[Persistor] final snapshot failed: %v", err)
			}
			return
		case <-ticker.C:
			if err := p.Snapshot(ctx); err != nil {
				log.Printf("[Persistor] periodic snapshot failed: %v", err)
			}
		}
	}
}

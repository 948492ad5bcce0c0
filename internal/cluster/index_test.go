package cluster

import "testing"

func TestMembershipDefaultsToSelf(t *testing.T) {
	idx := NewIndex(10)
	if got := idx.Membership("0xabc"); got != "0xabc" {
		t.Fatalf("expected unknown address to map to itself, got %q", got)
	}
}

func TestOnClusterAlertAssignsSharedCluster(t *testing.T) {
	idx := NewIndex(10)
	res := idx.OnClusterAlert("0xAAA, 0xBBB,0xccc")

	if res.Cluster != "0xaaa,0xbbb,0xccc" {
		t.Fatalf("unexpected cluster key: %q", res.Cluster)
	}
	if len(res.Addresses) != 3 {
		t.Fatalf("expected 3 normalized addresses, got %v", res.Addresses)
	}
	for _, a := range []string{"0xaaa", "0xbbb", "0xccc"} {
		if idx.Membership(a) != res.Cluster {
			t.Errorf("address %s not mapped to cluster", a)
		}
	}
}

func TestOnClusterAlertMigratesExistingMembers(t *testing.T) {
	idx := NewIndex(10)
	first := idx.OnClusterAlert("0xaaa,0xbbb")
	res := idx.OnClusterAlert("0xaaa,0xbbb,0xccc")

	if idx.Membership("0xaaa") != res.Cluster || idx.Membership("0xccc") != res.Cluster {
		t.Fatalf("expected all addresses to migrate to the new cluster %q", res.Cluster)
	}

	found := false
	for _, p := range res.PriorClusters {
		if p == first.Cluster {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected PriorClusters to include the old cluster key %q, got %v", first.Cluster, res.PriorClusters)
	}
}

func TestOnClusterAlertEvictsOldestOnCapacity(t *testing.T) {
	idx := NewIndex(2)
	idx.OnClusterAlert("0xaaa")
	idx.OnClusterAlert("0xbbb")
	res := idx.OnClusterAlert("0xccc")

	if len(res.EvictedAddresses) != 1 || res.EvictedAddresses[0] != "0xaaa" {
		t.Fatalf("expected 0xaaa to be evicted first, got %v", res.EvictedAddresses)
	}
	if idx.Size() != 2 {
		t.Fatalf("expected size to stay at capacity 2, got %d", idx.Size())
	}
	if idx.Membership("0xaaa") != "0xaaa" {
		t.Fatalf("expected evicted address to revert to singleton membership")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	idx := NewIndex(10)
	idx.OnClusterAlert("0xaaa,0xbbb")

	snap := idx.Snapshot()
	restored := NewIndex(10)
	restored.Restore(snap)

	if restored.Membership("0xaaa") != idx.Membership("0xaaa") {
		t.Fatalf("restored index diverges from source")
	}
}

package routingtable

import (
	"sync"
	"time"

	"github.com/opd-ai/privmesh/crypto"
	"github.com/opd-ai/privmesh/typekey"
)

// TableEntry is a bucket entry reported out of the table, independent of
// which bucket or CryptoKind it came from.
type TableEntry struct {
	NodeId   typekey.NodeId
	Status   EntryStatus
	LastSeen time.Time
}

// BucketStat summarizes one non-empty bucket's occupancy at or above a
// minimum reliability state, for operational introspection.
type BucketStat struct {
	Kind  crypto.Kind
	Index int
	Count int
}

// Table holds one set of BucketCount buckets per CryptoKind the local node
// supports, and resolves lookups against whichever kind a peer shares with
// us.
type Table struct {
	mu      sync.RWMutex
	localId map[crypto.Kind]typekey.NodeId
	buckets map[crypto.Kind][]*Bucket
	k       int
}

// New constructs a routing table for localIds (one NodeId per supported
// CryptoKind), with k entries per bucket.
func New(localIds *typekey.TypedKeyGroup, k int) *Table {
	t := &Table{
		localId: make(map[crypto.Kind]typekey.NodeId),
		buckets: make(map[crypto.Kind][]*Bucket),
		k:       k,
	}
	for _, id := range localIds.All() {
		t.localId[id.Kind] = id
		bs := make([]*Bucket, BucketCount)
		for i := range bs {
			bs[i] = newBucket(k)
		}
		t.buckets[id.Kind] = bs
	}
	return t
}

// AddNode records a sighting of id at the given status, placing it in the
// bucket for id.Kind matching our own id of that kind. Nodes sharing no
// CryptoKind with us, or naming ourselves, are rejected.
func (t *Table) AddNode(id typekey.NodeId, status EntryStatus, seen time.Time) bool {
	t.mu.RLock()
	local, ok := t.localId[id.Kind]
	buckets := t.buckets[id.Kind]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	if id == local {
		return false
	}

	idx := bucketIndex(local.Key[:], id.Key[:])
	return buckets[idx].Upsert(id, status, seen)
}

// RemoveNode drops id from its bucket for kind.
func (t *Table) RemoveNode(id typekey.NodeId) bool {
	t.mu.RLock()
	local, ok := t.localId[id.Kind]
	buckets := t.buckets[id.Kind]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	idx := bucketIndex(local.Key[:], id.Key[:])
	return buckets[idx].Remove(id)
}

// FindClosestNodes returns up to count known NodeIds of target.Kind ordered
// by ascending XOR distance to target.
func (t *Table) FindClosestNodes(target typekey.NodeId, count int) []typekey.NodeId {
	t.mu.RLock()
	buckets, ok := t.buckets[target.Kind]
	t.mu.RUnlock()
	if !ok {
		return nil
	}

	var all []typekey.NodeId
	for _, b := range buckets {
		for _, e := range b.Entries() {
			if e.Status != StatusDead {
				all = append(all, e.NodeId)
			}
		}
	}

	sortByDistance(all, target)
	if len(all) > count {
		all = all[:count]
	}
	return all
}

// AllNodes returns every tracked node across all kinds and buckets.
func (t *Table) AllNodes() []typekey.NodeId {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var all []typekey.NodeId
	for _, buckets := range t.buckets {
		for _, b := range buckets {
			for _, e := range b.Entries() {
				all = append(all, e.NodeId)
			}
		}
	}
	return all
}

// RemoveStale marks entries Dead if unseen since maxAge ago, returning the
// number of entries marked. Dead entries remain in place until the next
// Upsert evicts them, so a lookup caller can still see who was once known.
func (t *Table) RemoveStale(maxAge time.Duration, now time.Time) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	touched := 0
	for _, buckets := range t.buckets {
		for _, b := range buckets {
			for _, e := range b.Entries() {
				if e.Status != StatusDead && now.Sub(e.LastSeen) > maxAge {
					b.Upsert(e.NodeId, StatusDead, e.LastSeen)
					touched++
				}
			}
		}
	}
	return touched
}

// AllEntries returns every tracked entry across all kinds and buckets,
// with its status and last-seen time.
func (t *Table) AllEntries() []TableEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []TableEntry
	for _, buckets := range t.buckets {
		for _, b := range buckets {
			for _, e := range b.Entries() {
				out = append(out, TableEntry{NodeId: e.NodeId, Status: e.Status, LastSeen: e.LastSeen})
			}
		}
	}
	return out
}

// Lookup returns the tracked entry for id, if any.
func (t *Table) Lookup(id typekey.NodeId) (TableEntry, bool) {
	t.mu.RLock()
	buckets, ok := t.buckets[id.Kind]
	t.mu.RUnlock()
	if !ok {
		return TableEntry{}, false
	}
	for _, b := range buckets {
		for _, e := range b.Entries() {
			if e.NodeId == id {
				return TableEntry{NodeId: e.NodeId, Status: e.Status, LastSeen: e.LastSeen}, true
			}
		}
	}
	return TableEntry{}, false
}

// BucketStats reports one BucketStat per non-empty bucket, counting only
// entries whose Status is at least as good as min.
func (t *Table) BucketStats(min EntryStatus) []BucketStat {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []BucketStat
	for kind, buckets := range t.buckets {
		for i, b := range buckets {
			count := 0
			for _, e := range b.Entries() {
				if evictionRank(e.Status) >= evictionRank(min) {
					count++
				}
			}
			if count > 0 {
				out = append(out, BucketStat{Kind: kind, Index: i, Count: count})
			}
		}
	}
	return out
}

// PurgeDead removes every Dead entry from every bucket, returning the
// count removed. Unlike RemoveStale (which only marks entries Dead),
// PurgeDead actually drops them so a later FindClosestNodes scan doesn't
// pay to skip them.
func (t *Table) PurgeDead() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	removed := 0
	for _, buckets := range t.buckets {
		for _, b := range buckets {
			for _, e := range b.Entries() {
				if e.Status == StatusDead && b.Remove(e.NodeId) {
					removed++
				}
			}
		}
	}
	return removed
}

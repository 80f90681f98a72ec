// Package routingtable maintains the Kademlia-like set of known peers,
// organized into per-CryptoKind buckets by XOR distance, and resolves how a
// message should actually be sent to reach one of them.
package routingtable

import (
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/privmesh/typekey"
)

// BucketCount is the number of buckets per CryptoKind: one per possible
// leading bit-difference of a 256-bit node id.
const BucketCount = 256

// EntryStatus tracks how much a bucket entry should be trusted for
// routing decisions.
type EntryStatus int

const (
	StatusReliable EntryStatus = iota
	StatusUnreliable
	StatusDead
)

// evictionRank orders statuses from "evict first" to "evict last": Dead is
// always the first candidate, then Unreliable, then Reliable.
func evictionRank(s EntryStatus) int {
	switch s {
	case StatusDead:
		return 0
	case StatusUnreliable:
		return 1
	default:
		return 2
	}
}

// BucketEntry is one known peer tracked by a bucket.
type BucketEntry struct {
	NodeId   typekey.NodeId
	Status   EntryStatus
	LastSeen time.Time
}

// Bucket holds up to K entries at one XOR-distance range from the local
// node, evicting the least useful entry when full.
type Bucket struct {
	mu      sync.RWMutex
	entries []*BucketEntry
	k       int
}

func newBucket(k int) *Bucket {
	return &Bucket{entries: make([]*BucketEntry, 0, k), k: k}
}

// Upsert adds id as a new entry or refreshes an existing one, returning
// true if the bucket now holds (or already held) it. Eviction follows Dead
// > Unreliable > Reliable, and within a status the oldest LastSeen first.
func (b *Bucket) Upsert(id typekey.NodeId, status EntryStatus, seen time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.entries {
		if e.NodeId == id {
			e.Status = status
			e.LastSeen = seen
			return true
		}
	}

	entry := &BucketEntry{NodeId: id, Status: status, LastSeen: seen}
	if len(b.entries) < b.k {
		b.entries = append(b.entries, entry)
		return true
	}

	victim := b.worstIndex()
	if victim < 0 {
		return false
	}
	if evictionRank(b.entries[victim].Status) == evictionRank(StatusReliable) {
		// A full bucket of entirely reliable entries rejects any newcomer.
		return false
	}
	b.entries[victim] = entry
	return true
}

// worstIndex returns the index of the entry that should be evicted first:
// lowest eviction rank, breaking ties by the oldest LastSeen.
func (b *Bucket) worstIndex() int {
	if len(b.entries) == 0 {
		return -1
	}
	worst := 0
	for i := 1; i < len(b.entries); i++ {
		a, w := b.entries[i], b.entries[worst]
		if evictionRank(a.Status) < evictionRank(w.Status) {
			worst = i
		} else if evictionRank(a.Status) == evictionRank(w.Status) && a.LastSeen.Before(w.LastSeen) {
			worst = i
		}
	}
	return worst
}

// Remove drops id from the bucket if present.
func (b *Bucket) Remove(id typekey.NodeId) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if e.NodeId == id {
			last := len(b.entries) - 1
			b.entries[i] = b.entries[last]
			b.entries = b.entries[:last]
			return true
		}
	}
	return false
}

// Entries returns a copy of the bucket's current entries.
func (b *Bucket) Entries() []*BucketEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*BucketEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// bucketIndex returns the position of the first differing bit between a
// and b's key bytes — nodes that agree on more leading bits are closer and
// land in a higher-indexed bucket.
func bucketIndex(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		x := a[i] ^ b[i]
		if x == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if x&(0x80>>uint(bit)) != 0 {
				return i*8 + bit
			}
		}
	}
	return BucketCount - 1
}

// sortByDistance orders ids by ascending XOR distance to target.
func sortByDistance(ids []typekey.NodeId, target typekey.NodeId) {
	sort.Slice(ids, func(i, j int) bool {
		return lessDistance(distance(ids[i], target), distance(ids[j], target))
	})
}

func distance(a, b typekey.NodeId) []byte {
	n := len(a.Key)
	if len(b.Key) < n {
		n = len(b.Key)
	}
	d := make([]byte, n)
	for i := 0; i < n; i++ {
		d[i] = a.Key[i] ^ b.Key[i]
	}
	return d
}

func lessDistance(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

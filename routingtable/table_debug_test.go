package routingtable

import (
	"testing"
	"time"
)

func TestAllEntriesAndLookup(t *testing.T) {
	table := New(testLocalGroup(t), 8)
	id := nodeId(t, 3)
	table.AddNode(id, StatusReliable, time.Now())

	entries := table.AllEntries()
	if len(entries) != 1 {
		t.Fatalf("AllEntries() returned %d entries, want 1", len(entries))
	}
	if entries[0].NodeId != id {
		t.Errorf("AllEntries()[0].NodeId = %v, want %v", entries[0].NodeId, id)
	}

	got, ok := table.Lookup(id)
	if !ok {
		t.Fatal("Lookup() found nothing for a just-added node")
	}
	if got.Status != StatusReliable {
		t.Errorf("Lookup().Status = %v, want Reliable", got.Status)
	}

	if _, ok := table.Lookup(nodeId(t, 99)); ok {
		t.Error("Lookup() found an entry that was never added")
	}
}

func TestBucketStatsFiltersByMinState(t *testing.T) {
	table := New(testLocalGroup(t), 8)
	reliable := nodeId(t, 1)
	unreliable := nodeId(t, 2)
	table.AddNode(reliable, StatusReliable, time.Now())
	table.AddNode(unreliable, StatusUnreliable, time.Now())

	all := table.BucketStats(StatusUnreliable)
	total := 0
	for _, s := range all {
		total += s.Count
	}
	if total != 2 {
		t.Errorf("BucketStats(Unreliable) total = %d, want 2", total)
	}

	reliableOnly := table.BucketStats(StatusReliable)
	total = 0
	for _, s := range reliableOnly {
		total += s.Count
	}
	if total != 1 {
		t.Errorf("BucketStats(Reliable) total = %d, want 1", total)
	}
}

func TestPurgeDeadRemovesOnlyDeadEntries(t *testing.T) {
	table := New(testLocalGroup(t), 8)
	dead := nodeId(t, 1)
	alive := nodeId(t, 2)
	table.AddNode(dead, StatusDead, time.Now())
	table.AddNode(alive, StatusReliable, time.Now())

	removed := table.PurgeDead()
	if removed != 1 {
		t.Fatalf("PurgeDead() removed %d, want 1", removed)
	}
	if _, ok := table.Lookup(dead); ok {
		t.Error("dead entry still present after PurgeDead()")
	}
	if _, ok := table.Lookup(alive); !ok {
		t.Error("PurgeDead() removed a non-dead entry")
	}
}

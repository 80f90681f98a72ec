package connection

import (
	"testing"

	"github.com/opd-ai/privmesh/protocol"
)

func TestTableGetPutRemove(t *testing.T) {
	table, err := NewTable(4, nil)
	if err != nil {
		t.Fatalf("NewTable() failed: %v", err)
	}

	conn := &fakeConn{desc: protocol.ConnectionDescriptor{Protocol: protocol.TCP, Remote: dialInfo(1)}}
	table.Put("k1", conn)

	if got, ok := table.Get("k1"); !ok || got != conn {
		t.Fatalf("Get() = %v, %v; want conn, true", got, ok)
	}

	table.Remove("k1")
	if _, ok := table.Get("k1"); ok {
		t.Error("Get() found entry after Remove()")
	}
}

func TestTableEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []protocol.NetworkConnection
	table, err := NewTable(2, func(c protocol.NetworkConnection) {
		evicted = append(evicted, c)
	})
	if err != nil {
		t.Fatalf("NewTable() failed: %v", err)
	}

	a := &fakeConn{desc: protocol.ConnectionDescriptor{Protocol: protocol.TCP, Remote: dialInfo(1)}}
	b := &fakeConn{desc: protocol.ConnectionDescriptor{Protocol: protocol.TCP, Remote: dialInfo(2)}}
	c := &fakeConn{desc: protocol.ConnectionDescriptor{Protocol: protocol.TCP, Remote: dialInfo(3)}}

	table.Put("a", a)
	table.Put("b", b)
	table.Put("c", c)

	if len(evicted) != 1 || evicted[0] != a {
		t.Fatalf("evicted = %v, want [a]", evicted)
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}
}

func TestTableMatchingLocal(t *testing.T) {
	table, err := NewTable(4, nil)
	if err != nil {
		t.Fatalf("NewTable() failed: %v", err)
	}

	a := &fakeConn{desc: protocol.ConnectionDescriptor{Protocol: protocol.TCP, Remote: dialInfo(1), LocalAddr: "1.1.1.1:9"}}
	b := &fakeConn{desc: protocol.ConnectionDescriptor{Protocol: protocol.TCP, Remote: dialInfo(2), LocalAddr: "2.2.2.2:9"}}
	c := &fakeConn{desc: protocol.ConnectionDescriptor{Protocol: protocol.UDP, Remote: protocol.DialInfo{Protocol: protocol.UDP, Address: "3.3.3.3", Port: 3}, LocalAddr: "1.1.1.1:9"}}

	table.Put(a.desc.RemoteKey(), a)
	table.Put(b.desc.RemoteKey(), b)
	table.Put(c.desc.RemoteKey(), c)

	matches := table.MatchingLocal(protocol.TCP, "1.1.1.1:9")
	if len(matches) != 1 || matches[0] != a {
		t.Errorf("MatchingLocal() = %v, want [a]", matches)
	}
}

func TestTableMatchingLocalWildcard(t *testing.T) {
	table, err := NewTable(4, nil)
	if err != nil {
		t.Fatalf("NewTable() failed: %v", err)
	}

	a := &fakeConn{desc: protocol.ConnectionDescriptor{Protocol: protocol.TCP, Remote: dialInfo(1), LocalAddr: ""}}
	table.Put(a.desc.RemoteKey(), a)

	matches := table.MatchingLocal(protocol.TCP, "9.9.9.9:1")
	if len(matches) != 1 {
		t.Errorf("MatchingLocal() with unspecified stored local = %v, want match via wildcard", matches)
	}
}

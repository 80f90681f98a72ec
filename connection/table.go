// Package connection implements the Connection Manager: a race-safe
// get-or-create layer over per-protocol network connections, governed by an
// LRU connection table.
package connection

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/opd-ai/privmesh/protocol"
)

// Table is the LRU-bounded set of live connections, keyed by their remote
// address and protocol.
type Table struct {
	mu    sync.Mutex
	cache *lru.Cache[string, protocol.NetworkConnection]

	// onEvict is invoked whenever an entry leaves the LRU: on a capacity
	// eviction during Put, and also for every entry dropped by Remove or
	// PurgeAll. It runs while the table's own lock is held.
	onEvict func(protocol.NetworkConnection)
}

// NewTable constructs a table capped at maxConnections entries.
func NewTable(maxConnections int, onEvict func(protocol.NetworkConnection)) (*Table, error) {
	t := &Table{onEvict: onEvict}

	cache, err := lru.NewWithEvict(maxConnections, func(_ string, conn protocol.NetworkConnection) {
		if t.onEvict != nil {
			t.onEvict(conn)
		}
	})
	if err != nil {
		return nil, err
	}
	t.cache = cache
	return t, nil
}

// Get returns the live connection registered under descriptor's remote key,
// regardless of local address, per the "remote + protocol" matching rule.
func (t *Table) Get(key string) (protocol.NetworkConnection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.Get(key)
}

// Put registers conn under key, evicting the least-recently-used entry if
// the table is at capacity.
func (t *Table) Put(key string, conn protocol.NetworkConnection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Add(key, conn)
}

// Remove drops key from the table. The LRU invokes onEvict for the removed
// connection.
func (t *Table) Remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Remove(key)
}

// MatchingLocal returns every registered connection whose protocol matches
// protocolKind and whose local address would bind-collide with localAddr —
// i.e. is equal to it, or either side is unspecified ("").
func (t *Table) MatchingLocal(protocolKind protocol.Kind, localAddr string) []protocol.NetworkConnection {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []protocol.NetworkConnection
	for _, key := range t.cache.Keys() {
		conn, ok := t.cache.Peek(key)
		if !ok {
			continue
		}
		desc := conn.Descriptor()
		if desc.Protocol != protocolKind {
			continue
		}
		if desc.LocalAddr == "" || localAddr == "" || desc.LocalAddr == localAddr {
			out = append(out, conn)
		}
	}
	return out
}

// Len reports the number of live connections.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.Len()
}

// Keys returns the remote keys of every live connection, most-recently-used
// last.
func (t *Table) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.Keys()
}

// PurgeAll drops every live connection from the table (the LRU invokes
// onEvict for each one), then closes each one. It returns the count removed.
func (t *Table) PurgeAll() int {
	t.mu.Lock()
	keys := t.cache.Keys()
	conns := make([]protocol.NetworkConnection, 0, len(keys))
	for _, k := range keys {
		if conn, ok := t.cache.Peek(k); ok {
			conns = append(conns, conn)
		}
		t.cache.Remove(k)
	}
	t.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	return len(conns)
}

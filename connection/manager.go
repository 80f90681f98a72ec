package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/privmesh/protocol"
	"github.com/opd-ai/privmesh/vmerr"
)

// ReconnectSettleDelay is the pause between a killed connection's close and
// a subsequent dial retry, giving the kernel time to release the local
// address. The value is a heuristic; the correct delay is OS-dependent.
const ReconnectSettleDelay = 500 * time.Millisecond

// eventKind distinguishes the three events the processor handles serially.
type eventKind int

const (
	eventAccepted eventKind = iota
	eventDead
	eventFinished
)

type event struct {
	kind eventKind
	key  string
	conn protocol.NetworkConnection
}

// Manager owns the connection table and the serial event processor that
// mutates it.
type Manager struct {
	table   *Table
	dialers map[protocol.Kind]protocol.Dialer
	timeout time.Duration

	events chan event
	stop   chan struct{}
	wg     sync.WaitGroup
	log    *logrus.Entry
}

// NewManager constructs a connection manager bounded at maxConnections live
// connections, dialing outbound connections through dialers and allowing
// connectionInitialTimeout for each dial attempt.
func NewManager(maxConnections int, dialers map[protocol.Kind]protocol.Dialer, connectionInitialTimeout time.Duration) (*Manager, error) {
	m := &Manager{
		dialers: dialers,
		timeout: connectionInitialTimeout,
		events:  make(chan event, 256),
		stop:    make(chan struct{}),
		log:     logrus.WithField("component", "connection"),
	}

	table, err := NewTable(maxConnections, m.handleEvicted)
	if err != nil {
		return nil, fmt.Errorf("connection: create table: %w", err)
	}
	m.table = table

	m.wg.Add(1)
	go m.processEvents()
	return m, nil
}

// Shutdown stops the event processor and waits for it to drain.
func (m *Manager) Shutdown() {
	close(m.stop)
	m.wg.Wait()
}

func (m *Manager) handleEvicted(conn protocol.NetworkConnection) {
	m.log.WithField("remote", conn.Descriptor().Remote).Debug("connection evicted by LRU")
	go conn.Close()
}

// Accepted registers an inbound connection. Registration failure is not
// surfaced to the caller: an inbound drop is acceptable per the protocol.
func (m *Manager) Accepted(conn protocol.NetworkConnection) {
	select {
	case m.events <- event{kind: eventAccepted, conn: conn}:
	case <-m.stop:
	}
}

// Dead reports a connection that failed out-of-band (e.g. a read error) and
// must be closed and removed.
func (m *Manager) Dead(conn protocol.NetworkConnection) {
	select {
	case m.events <- event{kind: eventDead, conn: conn}:
	case <-m.stop:
	}
}

// Finished reports an orderly close of a connection identified by its
// remote key.
func (m *Manager) Finished(key string) {
	select {
	case m.events <- event{kind: eventFinished, key: key}:
	case <-m.stop:
	}
}

func (m *Manager) processEvents() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			return
		case ev := <-m.events:
			switch ev.kind {
			case eventAccepted:
				m.table.Put(ev.conn.Descriptor().RemoteKey(), ev.conn)
			case eventDead:
				key := ev.conn.Descriptor().RemoteKey()
				m.table.Remove(key)
				ev.conn.Close()
			case eventFinished:
				if conn, ok := m.table.Get(ev.key); ok {
					m.table.Remove(ev.key)
					conn.Close()
				}
			}
		}
	}
}

// Table returns the manager's underlying connection table, for operational
// introspection (listing/purging live connections outside the event loop).
func (m *Manager) Table() *Table {
	return m.table
}

// GetOrCreateConnection returns a live connection to remote, reusing an
// existing one when present, otherwise dialing a fresh one. localAddr may be
// empty to mean "unspecified."
func (m *Manager) GetOrCreateConnection(ctx context.Context, localAddr string, remote protocol.DialInfo) (protocol.NetworkConnection, error) {
	desc := protocol.ConnectionDescriptor{Protocol: remote.Protocol, Remote: remote, LocalAddr: localAddr}
	key := desc.RemoteKey()

	if conn, ok := m.table.Get(key); ok {
		return conn, nil
	}

	killed := m.killBindCollisions(remote.Protocol, localAddr)

	conn, err := m.dialWithRetry(ctx, localAddr, remote, len(killed) > 0)
	if err != nil {
		return nil, err
	}

	m.table.Put(key, conn)
	return conn, nil
}

// killBindCollisions removes and closes every tracked connection that would
// bind-collide with localAddr on protocolKind, returning them so the caller
// knows whether a retry is warranted.
func (m *Manager) killBindCollisions(protocolKind protocol.Kind, localAddr string) []protocol.NetworkConnection {
	colliding := m.table.MatchingLocal(protocolKind, localAddr)
	for _, conn := range colliding {
		key := conn.Descriptor().RemoteKey()
		m.table.Remove(key)
		conn.Close()
	}
	return colliding
}

func (m *Manager) dialWithRetry(ctx context.Context, localAddr string, remote protocol.DialInfo, retryOnFailure bool) (protocol.NetworkConnection, error) {
	dialer, ok := m.dialers[remote.Protocol]
	if !ok {
		return nil, vmerr.NewOpError("connection: dial", remote.String(), vmerr.ErrNoDialInfo)
	}

	attempt := func() (protocol.NetworkConnection, error) {
		dialCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		conn, err := dialer.Dial(dialCtx, localAddr, remote)
		if err != nil {
			return nil, classifyDialErr(remote, err)
		}
		return conn, nil
	}

	conn, err := attempt()
	if err == nil {
		return conn, nil
	}
	if !retryOnFailure {
		return nil, err
	}

	const maxRetries = 2
	for i := 0; i < maxRetries; i++ {
		select {
		case <-time.After(ReconnectSettleDelay):
		case <-ctx.Done():
			return nil, vmerr.NewOpError("connection: dial", remote.String(), vmerr.ErrShutdown)
		}
		conn, err = attempt()
		if err == nil {
			return conn, nil
		}
	}
	return nil, err
}

// classifyDialErr folds a transport-specific dial failure into vmerr's
// shared reachability sentinels, so callers up the stack (the fanout
// procedures' NodeQuerier implementations, in particular) can classify it
// via vmerr.FromError without knowing which protocol package produced it.
func classifyDialErr(remote protocol.DialInfo, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return vmerr.NewOpError("connection: dial", remote.String(), vmerr.ErrTimeout)
	}
	return vmerr.NewOpError("connection: dial", remote.String(), fmt.Errorf("%w: %v", vmerr.ErrNoConnection, err))
}

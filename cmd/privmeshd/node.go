// Package main hosts privmeshd, a thin process wiring the library
// packages into a running node plus an operational debug CLI over them.
package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/privmesh/attachment"
	"github.com/opd-ai/privmesh/connection"
	"github.com/opd-ai/privmesh/corecontext"
	"github.com/opd-ai/privmesh/crypto"
	"github.com/opd-ai/privmesh/discovery"
	"github.com/opd-ai/privmesh/protocol"
	"github.com/opd-ai/privmesh/routingtable"
	"github.com/opd-ai/privmesh/typekey"
	"github.com/opd-ai/privmesh/vmconfig"
)

// Node aggregates the subsystems the debug CLI operates on: routing table,
// connection manager, attachment machine, and the corecontext lifecycle
// tying them together. It is the CLI's lazily-constructed seam, in the
// manner of a master-node accessor wired once per process.
type Node struct {
	Config      *vmconfig.Config
	LocalIds    *typekey.TypedKeyGroup
	Table       *routingtable.Table
	Connections *connection.Manager
	Discoverer  *discovery.Discoverer
	Attachment  *attachment.Machine
	Core        *corecontext.Context

	mu            sync.Mutex
	lastDiscovery discovery.Result
	peerInfo      map[typekey.NodeId]routingtable.PeerInfo
}

// coreService adapts one of Node's subsystems into corecontext.Service.
type coreService struct {
	name     string
	initFn   func(context.Context) error
	shutdown func(context.Context) error
}

func (s coreService) Name() string                        { return s.name }
func (s coreService) Init(ctx context.Context) error      { return s.initFn(ctx) }
func (s coreService) Shutdown(ctx context.Context) error  { return s.shutdown(ctx) }

// netMaintainer drives the attachment machine's maintainer role: every
// TickInterval it counts the routing table's nodes and feeds the matching
// peer-count quality input, and it feeds AttachmentStopped when its context
// is cancelled, per the teacher's network-manager tick loop.
type netMaintainer struct {
	table *routingtable.Table
	max   int
}

func (n netMaintainer) Run(ctx context.Context, feed func(attachment.Input)) error {
	ticker := time.NewTicker(attachment.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			feed(attachment.AttachmentStopped)
			return nil
		case <-ticker.C:
			count := len(n.table.AllNodes())
			feed(attachment.PeerInputFor(count, n.max))
		}
	}
}

// NewNode constructs a node over cfg with a freshly generated local
// identity. The node is not started until Startup is called.
func NewNode(cfg *vmconfig.Config) (*Node, error) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("privmeshd: generate local identity: %w", err)
	}
	localIds := typekey.NewTypedKeyGroup(typekey.NodeId{Kind: crypto.VLD0, Key: kp.Public})

	table := routingtable.New(localIds, 20)

	dialers := map[protocol.Kind]protocol.Dialer{}
	connections, err := connection.NewManager(cfg.Network.MaxConnections, dialers,
		time.Duration(cfg.Network.ConnectionInitialTimeoutMs)*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("privmeshd: create connection manager: %w", err)
	}

	n := &Node{
		Config:      cfg,
		LocalIds:    localIds,
		Table:       table,
		Connections: connections,
		peerInfo:    make(map[typekey.NodeId]routingtable.PeerInfo),
	}

	n.Attachment = attachment.NewMachine(netMaintainer{table: table, max: cfg.Network.MaxConnections}, n.observeAttachment)

	n.Core = corecontext.New(n.onLifecycleEvent,
		coreService{
			name:     "connection-manager",
			initFn:   func(context.Context) error { return nil },
			shutdown: func(context.Context) error { n.Connections.Shutdown(); return nil },
		},
	)

	return n, nil
}

func (n *Node) observeAttachment(s attachment.State) {
	logrus.WithField("state", s.String()).Info("attachment state changed")
}

func (n *Node) onLifecycleEvent(ev corecontext.Event) {
	logrus.WithField("event", ev).Info("core lifecycle event")
}

// RecordDiscovery stashes the most recent discovery run for the dialinfo
// command to report.
func (n *Node) RecordDiscovery(r discovery.Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastDiscovery = r
}

// LastDiscovery returns the most recently recorded discovery result.
func (n *Node) LastDiscovery() discovery.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastDiscovery
}

// RememberPeerInfo caches a remote peer's published PeerInfo for later
// contact-method resolution.
func (n *Node) RememberPeerInfo(info routingtable.PeerInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range info.NodeIds {
		n.peerInfo[id] = info
	}
}

// PeerInfoFor returns the cached PeerInfo for id, if any is known.
func (n *Node) PeerInfoFor(id typekey.NodeId) (routingtable.PeerInfo, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	info, ok := n.peerInfo[id]
	return info, ok
}

package routingtable

import (
	"reflect"
	"sync"

	"github.com/opd-ai/privmesh/netstate"
	"github.com/opd-ai/privmesh/protocol"
	"github.com/opd-ai/privmesh/typekey"
)

// DialInfoDetail is one way to reach us: a protocol-level dial info plus
// the NAT class it was discovered under.
type DialInfoDetail struct {
	DialInfo protocol.DialInfo
	Class    string
}

// PeerInfo is the signed, routable description of this node in one
// routing domain.
type PeerInfo struct {
	Domain      netstate.RoutingDomain
	NodeIds     []typekey.NodeId
	DialInfo    []DialInfoDetail
	Relay       *typekey.NodeId
	Capabilities []string
}

func (p PeerInfo) equivalent(o PeerInfo) bool {
	return reflect.DeepEqual(p, o)
}

// DomainState is the full per-RoutingDomain reachability picture: network
// class, protocol/address-type support, relay, dial info, and the most
// recently published PeerInfo snapshot.
type DomainState struct {
	mu sync.Mutex

	Domain          netstate.RoutingDomain
	NetworkClass    netstate.NetworkClass
	OutboundProto   map[protocol.Kind]bool
	InboundProto    map[protocol.Kind]bool
	AddressTypes    map[netstate.AddressType]bool
	Capabilities    []string
	Relay           *typekey.NodeId
	DialInfoDetails []DialInfoDetail

	cached    PeerInfo
	published *PeerInfo
}

// NewDomainState constructs an empty state for domain.
func NewDomainState(domain netstate.RoutingDomain) *DomainState {
	return &DomainState{
		Domain:        domain,
		NetworkClass:  netstate.NetworkClassInvalid,
		OutboundProto: make(map[protocol.Kind]bool),
		InboundProto:  make(map[protocol.Kind]bool),
		AddressTypes:  make(map[netstate.AddressType]bool),
	}
}

// RequiresRelay reports whether this domain's network class needs a relay
// to be reachable at all (an OutboundOnly class with no dial info
// details).
func (d *DomainState) RequiresRelay() bool {
	return d.NetworkClass == netstate.NetworkClassOutboundOnly && len(d.DialInfoDetails) == 0
}

// PublishPeerInfo recomputes the current PeerInfo from state and decides
// whether it should actually be (re-)published: never when NetworkClass is
// Invalid, never when a relay is required but absent, and never when the
// new snapshot is equivalent to the last one we published.
func (d *DomainState) PublishPeerInfo(localIds []typekey.NodeId) (PeerInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := PeerInfo{
		Domain:       d.Domain,
		NodeIds:      localIds,
		DialInfo:     append([]DialInfoDetail(nil), d.DialInfoDetails...),
		Relay:        d.Relay,
		Capabilities: append([]string(nil), d.Capabilities...),
	}
	d.cached = info

	if d.NetworkClass == netstate.NetworkClassInvalid {
		return info, false
	}
	if d.RequiresRelay() && d.Relay == nil {
		return info, false
	}
	if d.published != nil && d.published.equivalent(info) {
		return info, false
	}

	published := info
	d.published = &published
	return info, true
}

// Cached returns the most recently computed PeerInfo, published or not.
func (d *DomainState) Cached() PeerInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cached
}

// Package routespec stores allocated local safety routes (with their
// per-hop secrets) and imported remote private routes, and tracks which
// node hops are currently load-bearing for any route.
package routespec

import (
	"github.com/google/uuid"

	"github.com/opd-ai/privmesh/typekey"
)

// RouteId names one allocated or imported route.
type RouteId string

// NewRouteId mints a fresh, globally unique route id.
func NewRouteId() RouteId {
	return RouteId(uuid.NewString())
}

// Hop is one onion layer: the node it addresses and the symmetric key
// negotiated for its AEAD framing.
type Hop struct {
	NodeId typekey.NodeId
	Key    [32]byte
}

// SafetyRoute is a route we allocated ourselves: every hop's key is ours
// to use because we ran the handshake for each.
type SafetyRoute struct {
	Id    RouteId
	Hops  []Hop
	Built bool
}

// PrivateRoute is a route imported from a remote peer: we only know the
// public routing description, never the per-hop secrets.
type PrivateRoute struct {
	Id       RouteId
	PublicKey typekey.NodeId
	Hops     []typekey.NodeId
}

// TerminalNode returns the route's final hop, the node the route actually
// terminates at.
func (r SafetyRoute) TerminalNode() (typekey.NodeId, bool) {
	if len(r.Hops) == 0 {
		return typekey.NodeId{}, false
	}
	return r.Hops[len(r.Hops)-1].NodeId, true
}

func (r PrivateRoute) TerminalNode() (typekey.NodeId, bool) {
	if len(r.Hops) == 0 {
		return typekey.NodeId{}, false
	}
	return r.Hops[len(r.Hops)-1], true
}

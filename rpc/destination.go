// Package rpc resolves where an outbound call should go and what a peer
// should use to reply to it, independent of transport: it only produces
// descriptions (Destination, RespondTo) that the connection manager and
// route store later turn into bytes on the wire.
package rpc

import (
	"errors"

	"github.com/opd-ai/privmesh/routespec"
	"github.com/opd-ai/privmesh/typekey"
)

// Sequencing asks the resolved NodeRef to prefer an ordered transport when
// more than one is available.
type Sequencing int

const (
	SequencingNoPreference Sequencing = iota
	SequencingPreferOrdered
	SequencingEnsureOrdered
)

// RouteSpec parameterizes a private route we allocate on demand: how many
// hops it should have, which NodeIds it must not pass through, and (for
// loopback replies) a previously seen route we should reuse verbatim.
type RouteSpec struct {
	HopCount       int
	AvoidNodeIds   []typekey.NodeId
	PreferredRoute routespec.RouteId
}

// SafetySelection is either Unsafe (send/reply in the clear, modulo
// transport encryption) or Safe, which carries the RouteSpec a private
// route allocated for this call must satisfy.
type SafetySelection struct {
	Unsafe bool
	Spec   RouteSpec
}

// Target is what the caller named: either a long-term NodeId or an
// already-imported PrivateRoute.
type Target struct {
	NodeId *typekey.NodeId
	Route  *routespec.PrivateRoute
}

// DestinationKind distinguishes how an outbound call actually leaves us.
type DestinationKind int

const (
	DestinationKindDirect DestinationKind = iota
	DestinationKindRelay
	DestinationKindPrivateRoute
)

// Destination is the resolved send target for one outbound call.
type Destination struct {
	Kind       DestinationKind
	Node       typekey.NodeId
	Relay      *typekey.NodeId
	Route      *routespec.PrivateRoute
	Sequencing Sequencing
	Safety     SafetySelection
}

// RouteAllocator allocates a fresh private route matching spec, or resolves
// the best already-known remote route to a target. Implemented by the
// route store plus whatever peer owns hop selection; kept as an interface
// here so destination/respond-to logic stays transport-agnostic.
type RouteAllocator interface {
	AllocatePrivateRoute(spec RouteSpec) (routespec.PrivateRoute, error)
	BestRemoteRoute(target typekey.NodeId) (routespec.PrivateRoute, bool)
}

// NodeRefResolver turns a NodeId into the NodeRef-equivalent used to reach
// it: here, simply whether we know a relay for it. Kept minimal since the
// full contact-method machinery lives in routingtable.
type NodeRefResolver interface {
	RelayFor(id typekey.NodeId) (typekey.NodeId, bool)
}

var (
	// ErrUnresolvableTarget is returned when neither a NodeId nor a route
	// was supplied.
	ErrUnresolvableTarget = errors.New("rpc: target has neither a node id nor a route")
	// ErrNoRemoteRoute is returned when a PrivateRoute target has nothing
	// we can resolve to.
	ErrNoRemoteRoute = errors.New("rpc: no known remote route for target")
)

// ResolveTargetToDestination implements resolve_target_to_destination: a
// NodeId target resolves to Direct (through a relay if the resolver knows
// one), a PrivateRoute target resolves to the best remote route we hold.
func ResolveTargetToDestination(target Target, safety SafetySelection, seq Sequencing, refs NodeRefResolver, routes RouteAllocator) (Destination, error) {
	switch {
	case target.NodeId != nil:
		dest := Destination{
			Kind:       DestinationKindDirect,
			Node:       *target.NodeId,
			Sequencing: seq,
			Safety:     safety,
		}
		if refs != nil {
			if relay, ok := refs.RelayFor(*target.NodeId); ok {
				dest.Kind = DestinationKindRelay
				dest.Relay = &relay
			}
		}
		return dest, nil
	case target.Route != nil:
		route := target.Route
		if routes != nil {
			if best, found := routes.BestRemoteRoute(target.Route.PublicKey); found {
				route = &best
			}
		}
		return Destination{
			Kind:       DestinationKindPrivateRoute,
			Route:      route,
			Sequencing: seq,
			Safety:     safety,
		}, nil
	default:
		return Destination{}, ErrUnresolvableTarget
	}
}

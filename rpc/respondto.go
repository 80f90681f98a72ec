package rpc

import (
	"errors"

	"github.com/opd-ai/privmesh/routespec"
	"github.com/opd-ai/privmesh/typekey"
)

// RespondToKind distinguishes the two shapes a reply address can take.
type RespondToKind int

const (
	// RespondToSender means "reply directly to whoever sent the envelope" —
	// implicit, carries no route description.
	RespondToSender RespondToKind = iota
	// RespondToPrivateRoute means the peer must reply via an included
	// private route (or a stub referencing our known NodeId/PeerInfo).
	RespondToPrivateRoute
)

// RespondTo is what we tell a peer to use when replying to one of our
// outbound calls.
type RespondTo struct {
	Kind  RespondToKind
	Route *routespec.PrivateRoute
	// Stub is set instead of Route for the PrivateRoute/Unsafe case: a
	// minimal reference to our own identity rather than a full route.
	Stub *typekey.NodeId
}

// ErrCannotRespondDirectly is returned by GetRespondToDestination when the
// request's RespondTo/arrival combination makes a direct reply impossible.
var ErrCannotRespondDirectly = errors.New("rpc: request cannot be answered directly")

// GetDestinationRespondTo implements get_destination_respond_to: given the
// destination we just sent a call to, produce the RespondTo the peer should
// use for its reply.
func GetDestinationRespondTo(dest Destination, knownByPeer bool, routes RouteAllocator) (RespondTo, error) {
	switch dest.Kind {
	case DestinationKindDirect:
		if dest.Safety.Unsafe {
			return RespondTo{Kind: RespondToSender}, nil
		}
		spec := dest.Safety.Spec
		spec.AvoidNodeIds = appendNodeId(spec.AvoidNodeIds, dest.Node)
		route, err := allocateRoute(routes, spec)
		if err != nil {
			return RespondTo{}, err
		}
		return RespondTo{Kind: RespondToPrivateRoute, Route: &route}, nil

	case DestinationKindRelay:
		spec := dest.Safety.Spec
		if dest.Relay != nil {
			spec.AvoidNodeIds = appendNodeId(spec.AvoidNodeIds, *dest.Relay)
		}
		spec.AvoidNodeIds = appendNodeId(spec.AvoidNodeIds, dest.Node)
		route, err := allocateRoute(routes, spec)
		if err != nil {
			return RespondTo{}, err
		}
		return RespondTo{Kind: RespondToPrivateRoute, Route: &route}, nil

	case DestinationKindPrivateRoute:
		if dest.Safety.Unsafe {
			if knownByPeer {
				node := dest.Node
				return RespondTo{Kind: RespondToPrivateRoute, Stub: &node}, nil
			}
			return RespondTo{Kind: RespondToPrivateRoute, Stub: &dest.Node}, nil
		}
		spec := dest.Safety.Spec
		if dest.Route != nil && len(dest.Route.Hops) > 0 {
			spec.AvoidNodeIds = appendNodeId(spec.AvoidNodeIds, dest.Route.Hops[0])
		}
		if dest.Route != nil && spec.PreferredRoute != "" && dest.Route.Id == spec.PreferredRoute {
			return RespondTo{Kind: RespondToPrivateRoute, Route: dest.Route}, nil
		}
		route, err := allocateRoute(routes, spec)
		if err != nil {
			return RespondTo{}, err
		}
		return RespondTo{Kind: RespondToPrivateRoute, Route: &route}, nil

	default:
		return RespondTo{}, errors.New("rpc: unknown destination kind")
	}
}

// Arrival describes how an inbound request reached us, for
// GetRespondToDestination's purposes.
type Arrival int

const (
	ArrivalDirect Arrival = iota
	ArrivalViaSafetyRoute
	ArrivalViaPrivateRoute
)

// IncomingRequest is the subset of an inbound call GetRespondToDestination
// needs: how it arrived, who the envelope sender/receiving-peer were, and
// the RespondTo it carried.
type IncomingRequest struct {
	Arrival        Arrival
	EnvelopeSender typekey.NodeId
	ReceivingPeer  typekey.NodeId
	ReceivingPeerIsRelayFor *typekey.NodeId
	RespondTo      RespondTo
	OurSafetyRoute *routespec.SafetyRoute
}

// GetRespondToDestination implements get_respond_to_destination: resolve
// an inbound request's RespondTo into an actual outbound Destination for
// our reply.
func GetRespondToDestination(req IncomingRequest) (Destination, error) {
	switch req.RespondTo.Kind {
	case RespondToSender:
		if req.Arrival == ArrivalViaPrivateRoute {
			return Destination{}, ErrCannotRespondDirectly
		}
		node := req.EnvelopeSender
		if req.ReceivingPeerIsRelayFor != nil && *req.ReceivingPeerIsRelayFor == req.EnvelopeSender {
			return Destination{Kind: DestinationKindRelay, Node: node, Relay: &req.ReceivingPeer}, nil
		}
		return Destination{Kind: DestinationKindDirect, Node: node}, nil

	case RespondToPrivateRoute:
		switch req.Arrival {
		case ArrivalDirect:
			return Destination{}, ErrCannotRespondDirectly
		case ArrivalViaSafetyRoute:
			if req.RespondTo.Route == nil {
				return Destination{}, errors.New("rpc: RespondToPrivateRoute carried no route")
			}
			return Destination{
				Kind:   DestinationKindPrivateRoute,
				Route:  req.RespondTo.Route,
				Safety: SafetySelection{Unsafe: true},
			}, nil
		case ArrivalViaPrivateRoute:
			if req.RespondTo.Route == nil {
				return Destination{}, errors.New("rpc: RespondToPrivateRoute carried no route")
			}
			dest := Destination{
				Kind:  DestinationKindPrivateRoute,
				Route: req.RespondTo.Route,
			}
			if req.OurSafetyRoute != nil {
				dest.Safety = SafetySelection{Unsafe: false}
			} else {
				dest.Safety = SafetySelection{Unsafe: true}
			}
			return dest, nil
		}
	}
	return Destination{}, errors.New("rpc: unhandled respond-to/arrival combination")
}

func appendNodeId(ids []typekey.NodeId, id typekey.NodeId) []typekey.NodeId {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func allocateRoute(routes RouteAllocator, spec RouteSpec) (routespec.PrivateRoute, error) {
	if routes == nil {
		return routespec.PrivateRoute{}, errors.New("rpc: no route allocator configured")
	}
	return routes.AllocatePrivateRoute(spec)
}

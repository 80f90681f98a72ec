// Package netstate holds the small shared vocabulary — network
// reachability class, routing domain, address type, and flow identity —
// used by the address checker, the discovery state machine, and the
// routing table.
package netstate

import (
	"fmt"

	"github.com/opd-ai/privmesh/protocol"
)

// NetworkClass is a node's aggregate reachability as seen from the outside.
type NetworkClass int

const (
	NetworkClassInvalid NetworkClass = iota
	NetworkClassWebApp
	NetworkClassOutboundOnly
	NetworkClassInboundCapable
)

func (c NetworkClass) String() string {
	switch c {
	case NetworkClassInboundCapable:
		return "InboundCapable"
	case NetworkClassOutboundOnly:
		return "OutboundOnly"
	case NetworkClassWebApp:
		return "WebApp"
	default:
		return "Invalid"
	}
}

// MoreReachable reports whether a is strictly more reachable than b, using
// the order InboundCapable > OutboundOnly > WebApp > Invalid.
func MoreReachable(a, b NetworkClass) bool { return a > b }

// RoutingDomain separates reachability state kept for the public internet
// from that kept for the local network.
type RoutingDomain int

const (
	RoutingDomainPublicInternet RoutingDomain = iota
	RoutingDomainLocalNetwork
)

func (d RoutingDomain) String() string {
	if d == RoutingDomainLocalNetwork {
		return "LocalNetwork"
	}
	return "PublicInternet"
}

// AddressType distinguishes IPv4 from IPv6 reachability, which are tracked
// and discovered independently.
type AddressType int

const (
	AddressTypeIPV4 AddressType = iota
	AddressTypeIPV6
)

func (t AddressType) String() string {
	if t == AddressTypeIPV6 {
		return "IPV6"
	}
	return "IPV4"
}

// Flow names one instance of connectivity: a tuple of local address, remote
// address, protocol, and address type.
type Flow struct {
	LocalAddr  string
	RemoteAddr string
	Protocol   protocol.Kind
	AddrType   AddressType
}

func (f Flow) String() string {
	return fmt.Sprintf("%s %s->%s (%s)", f.Protocol, f.LocalAddr, f.RemoteAddr, f.AddrType)
}

// Key identifies the per-(domain, protocol, address-type) state bucket the
// address checker and discovery machine key their state by.
type Key struct {
	Domain   RoutingDomain
	Protocol protocol.Kind
	AddrType AddressType
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Domain, k.Protocol, k.AddrType)
}

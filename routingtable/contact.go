package routingtable

import (
	"net"

	"github.com/opd-ai/privmesh/netstate"
	"github.com/opd-ai/privmesh/protocol"
	"github.com/opd-ai/privmesh/typekey"
)

// Destination is how a message should actually travel to reach a peer.
type Destination int

const (
	DestinationUnreachable Destination = iota
	DestinationDirect
	DestinationSignalReverse
	DestinationSignalHolePunch
	DestinationInboundRelay
	DestinationOutboundRelay
)

func (d Destination) String() string {
	switch d {
	case DestinationDirect:
		return "Direct"
	case DestinationSignalReverse:
		return "SignalReverse"
	case DestinationSignalHolePunch:
		return "SignalHolePunch"
	case DestinationInboundRelay:
		return "InboundRelay"
	case DestinationOutboundRelay:
		return "OutboundRelay"
	default:
		return "Unreachable"
	}
}

// PeerContactInfo is the subset of a peer's reachability state the contact
// resolver needs, for either side of a message (sender A or recipient B).
type PeerContactInfo struct {
	NodeIds        []typekey.NodeId
	NetworkClass   netstate.NetworkClass
	PublicIP       string
	DialInfo       []protocol.DialInfo
	UDPDialInfo    *protocol.DialInfo
	Relay          *typekey.NodeId
	RequiresSignal bool

	// WantsOutboundRelay is only meaningful for the sender: whether its own
	// network class requires routing outbound traffic through a relay.
	WantsOutboundRelay bool

	// OutboundFilter, only meaningful for the sender, reports whether a
	// candidate dial info of the recipient is usable given the sender's own
	// outbound protocol/address-type support.
	OutboundFilter func(protocol.DialInfo) bool
}

// ResolveContactMethod decides how sender a should reach recipient b inside
// the PublicInternet routing domain.
func ResolveContactMethod(a, b PeerContactInfo, ip6PrefixSize int) (Destination, protocol.DialInfo, *typekey.NodeId) {
	if !sharesCryptoKind(a.NodeIds, b.NodeIds) {
		return DestinationUnreachable, protocol.DialInfo{}, nil
	}

	preferRelay := sameIPBlockHosts(a.PublicIP, b.PublicIP, ip6PrefixSize)

	var direct *protocol.DialInfo
	if !preferRelay {
		direct = firstMatchingDialInfo(b.DialInfo, a.OutboundFilter)
	}

	if direct != nil {
		if !b.RequiresSignal {
			return DestinationDirect, *direct, nil
		}
		if b.Relay != nil {
			return resolveViaRelay(a, b)
		}
	} else if b.Relay != nil {
		return resolveViaRelay(a, b)
	}

	if a.WantsOutboundRelay && a.Relay != nil && (b.Relay == nil || *a.Relay != *b.Relay) {
		return DestinationOutboundRelay, protocol.DialInfo{}, a.Relay
	}

	return DestinationUnreachable, protocol.DialInfo{}, nil
}

// resolveViaRelay picks between signaling the recipient to reverse-connect,
// signaling both sides to hole-punch, or falling back to a plain inbound
// relay, given that b has a relay we can reach.
func resolveViaRelay(a, b PeerContactInfo) (Destination, protocol.DialInfo, *typekey.NodeId) {
	if a.NetworkClass == netstate.NetworkClassInboundCapable && len(a.DialInfo) > 0 && a.PublicIP != b.PublicIP {
		return DestinationSignalReverse, protocol.DialInfo{}, b.Relay
	}
	if a.UDPDialInfo != nil && b.UDPDialInfo != nil && a.PublicIP != b.PublicIP {
		return DestinationSignalHolePunch, protocol.DialInfo{}, b.Relay
	}
	return DestinationInboundRelay, protocol.DialInfo{}, b.Relay
}

func sharesCryptoKind(a, b []typekey.NodeId) bool {
	for _, x := range a {
		for _, y := range b {
			if x.Kind == y.Kind {
				return true
			}
		}
	}
	return false
}

func firstMatchingDialInfo(candidates []protocol.DialInfo, filter func(protocol.DialInfo) bool) *protocol.DialInfo {
	for i, c := range candidates {
		if filter == nil || filter(c) {
			return &candidates[i]
		}
	}
	return nil
}

// sameIPBlockHosts reports whether two host:port or bare-IP strings share
// the same /24 (IPv4) or /ip6PrefixSize (IPv6) network.
func sameIPBlockHosts(a, b string, ip6PrefixSize int) bool {
	ipA := parseHostIP(a)
	ipB := parseHostIP(b)
	if ipA == nil || ipB == nil {
		return false
	}
	if a4, b4 := ipA.To4(), ipB.To4(); a4 != nil && b4 != nil {
		mask := net.CIDRMask(24, 32)
		return a4.Mask(mask).Equal(b4.Mask(mask))
	}
	if ip6PrefixSize <= 0 || ip6PrefixSize > 128 {
		ip6PrefixSize = 64
	}
	mask := net.CIDRMask(ip6PrefixSize, 128)
	return ipA.Mask(mask).Equal(ipB.Mask(mask))
}

func parseHostIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return net.ParseIP(addr)
}

package routingtable

import (
	"testing"

	"github.com/opd-ai/privmesh/crypto"
	"github.com/opd-ai/privmesh/netstate"
	"github.com/opd-ai/privmesh/protocol"
	"github.com/opd-ai/privmesh/typekey"
)

func contactNodeIds(t *testing.T, b byte) []typekey.NodeId {
	t.Helper()
	return []typekey.NodeId{nodeId(t, b)}
}

func allowAll(protocol.DialInfo) bool { return true }

// TestResolveDirectInboundCapable is P5's first bullet: a Direct
// InboundCapable peer B resolves to Direct(B.dial_info).
func TestResolveDirectInboundCapable(t *testing.T) {
	a := PeerContactInfo{NodeIds: contactNodeIds(t, 1), PublicIP: "1.1.1.1", OutboundFilter: allowAll}
	bDial := protocol.DialInfo{Protocol: protocol.UDP, Address: "2.2.2.2", Port: 1}
	b := PeerContactInfo{
		NodeIds:        contactNodeIds(t, 2),
		NetworkClass:   netstate.NetworkClassInboundCapable,
		PublicIP:       "2.2.2.2",
		DialInfo:       []protocol.DialInfo{bDial},
		RequiresSignal: false,
	}

	dest, dial, _ := ResolveContactMethod(a, b, 64)
	if dest != DestinationDirect {
		t.Fatalf("ResolveContactMethod() = %v, want Direct", dest)
	}
	if dial != bDial {
		t.Errorf("dial info = %+v, want %+v", dial, bDial)
	}
}

// TestResolveSignalReverseFullConeNAT is P5's second bullet.
func TestResolveSignalReverseFullConeNAT(t *testing.T) {
	relay := nodeId(t, 99)
	a := PeerContactInfo{
		NodeIds:      contactNodeIds(t, 1),
		NetworkClass: netstate.NetworkClassInboundCapable,
		PublicIP:     "1.1.1.1",
		DialInfo:     []protocol.DialInfo{{Protocol: protocol.TCP, Address: "1.1.1.1", Port: 1}},
		OutboundFilter: allowAll,
	}
	b := PeerContactInfo{
		NodeIds:        contactNodeIds(t, 2),
		NetworkClass:   netstate.NetworkClassInboundCapable,
		PublicIP:       "2.2.2.2",
		DialInfo:       nil,
		RequiresSignal: true,
		Relay:          &relay,
	}

	dest, _, gotRelay := ResolveContactMethod(a, b, 64)
	if dest != DestinationSignalReverse {
		t.Fatalf("ResolveContactMethod() = %v, want SignalReverse", dest)
	}
	if gotRelay == nil || *gotRelay != relay {
		t.Errorf("relay = %v, want %v", gotRelay, relay)
	}
}

// TestResolveSignalHolePunch is P5's third bullet: both-symmetric UDP peers
// on distinct public IPs with a matching relay get SignalHolePunch.
func TestResolveSignalHolePunch(t *testing.T) {
	relay := nodeId(t, 99)
	aUDP := protocol.DialInfo{Protocol: protocol.UDP, Address: "1.1.1.1", Port: 1}
	bUDP := protocol.DialInfo{Protocol: protocol.UDP, Address: "2.2.2.2", Port: 1}
	a := PeerContactInfo{
		NodeIds:      contactNodeIds(t, 1),
		NetworkClass: netstate.NetworkClassOutboundOnly,
		PublicIP:     "1.1.1.1",
		UDPDialInfo:  &aUDP,
		OutboundFilter: allowAll,
	}
	b := PeerContactInfo{
		NodeIds:        contactNodeIds(t, 2),
		NetworkClass:   netstate.NetworkClassOutboundOnly,
		PublicIP:       "2.2.2.2",
		DialInfo:       nil,
		UDPDialInfo:    &bUDP,
		RequiresSignal: true,
		Relay:          &relay,
	}

	dest, _, gotRelay := ResolveContactMethod(a, b, 64)
	if dest != DestinationSignalHolePunch {
		t.Fatalf("ResolveContactMethod() = %v, want SignalHolePunch", dest)
	}
	if gotRelay == nil || *gotRelay != relay {
		t.Errorf("relay = %v, want %v", gotRelay, relay)
	}
}

// TestResolveInboundRelaySymmetricNAT is P5's fourth bullet.
func TestResolveInboundRelaySymmetricNAT(t *testing.T) {
	relay := nodeId(t, 99)
	a := PeerContactInfo{NodeIds: contactNodeIds(t, 1), PublicIP: "1.1.1.1", OutboundFilter: allowAll}
	b := PeerContactInfo{
		NodeIds:        contactNodeIds(t, 2),
		NetworkClass:   netstate.NetworkClassOutboundOnly,
		PublicIP:       "2.2.2.2",
		DialInfo:       nil,
		RequiresSignal: true,
		Relay:          &relay,
	}

	dest, _, gotRelay := ResolveContactMethod(a, b, 64)
	if dest != DestinationInboundRelay {
		t.Fatalf("ResolveContactMethod() = %v, want InboundRelay", dest)
	}
	if gotRelay == nil || *gotRelay != relay {
		t.Errorf("relay = %v, want %v", gotRelay, relay)
	}
}

// TestResolveSameIPBlockSkipsDirect is P5's fifth bullet.
func TestResolveSameIPBlockSkipsDirect(t *testing.T) {
	relay := nodeId(t, 99)
	a := PeerContactInfo{NodeIds: contactNodeIds(t, 1), PublicIP: "10.0.0.5", OutboundFilter: allowAll}
	b := PeerContactInfo{
		NodeIds:      contactNodeIds(t, 2),
		NetworkClass: netstate.NetworkClassInboundCapable,
		PublicIP:     "10.0.0.9",
		DialInfo:     []protocol.DialInfo{{Protocol: protocol.UDP, Address: "10.0.0.9", Port: 1}},
		Relay:        &relay,
	}

	dest, _, _ := ResolveContactMethod(a, b, 64)
	if dest == DestinationDirect {
		t.Fatal("ResolveContactMethod() chose Direct despite A and B sharing an IP block")
	}
}

func TestResolveUnreachableWithoutSharedCryptoKind(t *testing.T) {
	a := PeerContactInfo{
		NodeIds:        []typekey.NodeId{{Kind: crypto.Kind{'A', 'A', 'A', 'A'}}},
		PublicIP:       "1.1.1.1",
		OutboundFilter: allowAll,
	}
	b := PeerContactInfo{
		NodeIds:      []typekey.NodeId{{Kind: crypto.Kind{'B', 'B', 'B', 'B'}}},
		NetworkClass: netstate.NetworkClassInboundCapable,
		PublicIP:     "2.2.2.2",
		DialInfo:     []protocol.DialInfo{{Protocol: protocol.UDP, Address: "2.2.2.2", Port: 1}},
	}

	dest, _, _ := ResolveContactMethod(a, b, 64)
	if dest != DestinationUnreachable {
		t.Fatalf("ResolveContactMethod() = %v, want Unreachable", dest)
	}
}

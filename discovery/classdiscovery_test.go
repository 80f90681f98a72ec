package discovery

import (
	"context"
	"testing"

	"github.com/opd-ai/privmesh/netstate"
)

type fakeProber struct {
	addrs []string
	i     int
}

func (f *fakeProber) ProbeExternalAddress(ctx context.Context) (string, bool, error) {
	if f.i >= len(f.addrs) {
		return "", false, nil
	}
	a := f.addrs[f.i]
	f.i++
	return a, true, nil
}

type fakeValidator struct {
	redirectOK bool
	altPortOK  bool
}

func (f *fakeValidator) ValidateDialInfo(ctx context.Context, opts ValidateOptions) (bool, error) {
	if opts.AlternatePort {
		return f.altPortOK, nil
	}
	return f.redirectOK, nil
}

type fakePortMapper struct {
	works bool
}

func (f *fakePortMapper) MapPort(ctx context.Context) (uint16, bool, error) {
	if f.works {
		return 4000, true, nil
	}
	return 0, false, nil
}
func (f *fakePortMapper) Unmap(ctx context.Context) error { return nil }

func localAddrsOf(addrs ...string) func() ([]string, error) {
	return func() ([]string, error) { return addrs, nil }
}

func TestDiscoveryNoNATDirect(t *testing.T) {
	d := &Discoverer{
		Prober:         &fakeProber{addrs: []string{"198.51.100.1"}},
		Validator:      &fakeValidator{redirectOK: true},
		LocalAddresses: localAddrsOf("198.51.100.1"),
	}
	res, err := d.Run(context.Background(), netstate.Key{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.NetworkClass != netstate.NetworkClassInboundCapable || res.DialInfoClass != DialInfoClassDirect {
		t.Errorf("Run() = %+v, want InboundCapable/Direct", res)
	}
}

func TestDiscoveryNoNATBlockedFallsBackToMapped(t *testing.T) {
	d := &Discoverer{
		Prober:         &fakeProber{addrs: []string{"198.51.100.1"}},
		Validator:      &fakeValidator{redirectOK: false},
		PortMapper:     &fakePortMapper{works: true},
		LocalAddresses: localAddrsOf("198.51.100.1"),
	}
	res, err := d.Run(context.Background(), netstate.Key{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.DialInfoClass != DialInfoClassMapped {
		t.Errorf("Run() = %+v, want Mapped", res)
	}
}

func TestDiscoveryFullConeNAT(t *testing.T) {
	d := &Discoverer{
		Prober:         &fakeProber{addrs: []string{"203.0.113.9"}},
		Validator:      &fakeValidator{redirectOK: true},
		LocalAddresses: localAddrsOf("10.0.0.5"),
	}
	res, err := d.Run(context.Background(), netstate.Key{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.NetworkClass != netstate.NetworkClassInboundCapable || res.DialInfoClass != DialInfoClassFullConeNAT {
		t.Errorf("Run() = %+v, want InboundCapable/FullConeNAT", res)
	}
}

func TestDiscoverySymmetricNAT(t *testing.T) {
	d := &Discoverer{
		Prober:         &fakeProber{addrs: []string{"203.0.113.9", "203.0.113.77"}},
		Validator:      &fakeValidator{redirectOK: false},
		LocalAddresses: localAddrsOf("10.0.0.5"),
	}
	res, err := d.Run(context.Background(), netstate.Key{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.NetworkClass != netstate.NetworkClassOutboundOnly {
		t.Errorf("Run() = %+v, want OutboundOnly", res)
	}
}

func TestDiscoveryAddressRestrictedNAT(t *testing.T) {
	d := &Discoverer{
		Prober:         &fakeProber{addrs: []string{"203.0.113.9", "203.0.113.9"}},
		Validator:      &fakeValidator{redirectOK: false, altPortOK: true},
		LocalAddresses: localAddrsOf("10.0.0.5"),
	}
	res, err := d.Run(context.Background(), netstate.Key{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.DialInfoClass != DialInfoClassAddressRestrictedNAT {
		t.Errorf("Run() = %+v, want AddressRestrictedNAT", res)
	}
}

func TestDiscoveryPortRestrictedNATContinuesRetrying(t *testing.T) {
	// First pass: same address observed twice, alt-port validation fails ->
	// PortRestrictedNAT, loop continues rather than stopping (spec.md: "it
	// occasionally finds Full-Cone on re-try"). A later pass that only
	// reaches Blocked (equally reachable, not more) must not displace it.
	d := &Discoverer{
		Prober: &fakeProber{addrs: []string{
			"203.0.113.9", "203.0.113.9", // first pass
			"198.51.100.1", // second pass: matches a local interface address
		}},
		Validator:            &fakeValidator{redirectOK: false, altPortOK: false},
		LocalAddresses:       localAddrsOf("198.51.100.1"),
		RestrictedNATRetries: 2,
	}
	res, err := d.Run(context.Background(), netstate.Key{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.NetworkClass != netstate.NetworkClassInboundCapable || res.DialInfoClass != DialInfoClassPortRestrictedNAT {
		t.Errorf("Run() = %+v, want the first pass's PortRestrictedNAT result to survive (equally reachable results don't displace it)", res)
	}
}

func TestDiscoveryAbortsPassWhenNoPeerReachable(t *testing.T) {
	d := &Discoverer{
		Prober:         &fakeProber{addrs: nil},
		Validator:      &fakeValidator{},
		LocalAddresses: localAddrsOf("198.51.100.1"),
	}
	res, err := d.Run(context.Background(), netstate.Key{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if res.NetworkClass != netstate.NetworkClassInvalid {
		t.Errorf("Run() = %+v, want Invalid when no peer ever responds", res)
	}
}

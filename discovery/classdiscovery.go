// Package discovery implements the network-class / dial-info discovery
// state machine: a node's per-(protocol, address-type) probe of its own
// reachability, run on startup and whenever address drift is detected.
package discovery

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/privmesh/netstate"
)

// DialInfoClass narrows NetworkClassInboundCapable down to the NAT
// treatment that earned it.
type DialInfoClass int

const (
	DialInfoClassDirect DialInfoClass = iota
	DialInfoClassMapped
	DialInfoClassFullConeNAT
	DialInfoClassAddressRestrictedNAT
	DialInfoClassPortRestrictedNAT
	DialInfoClassBlocked
)

func (c DialInfoClass) String() string {
	switch c {
	case DialInfoClassDirect:
		return "Direct"
	case DialInfoClassMapped:
		return "Mapped"
	case DialInfoClassFullConeNAT:
		return "FullConeNAT"
	case DialInfoClassAddressRestrictedNAT:
		return "AddressRestrictedNAT"
	case DialInfoClassPortRestrictedNAT:
		return "PortRestrictedNAT"
	default:
		return "Blocked"
	}
}

// Result is the outcome of one discovery run: the node's reachability and,
// when it has any, the NAT treatment underlying its dial info.
type Result struct {
	NetworkClass  netstate.NetworkClass
	DialInfoClass DialInfoClass
	HasDialInfo   bool
}

// ExternalAddressProber asks some already-connected peer what external
// address it observes us at. ok is false when no peer was reachable for
// the probe (not a fatal condition — the caller aborts the pass).
type ExternalAddressProber interface {
	ProbeExternalAddress(ctx context.Context) (addr string, ok bool, err error)
}

// ValidateOptions parameterizes a ValidateDialInfo check.
type ValidateOptions struct {
	Redirect      bool
	AlternatePort bool
}

// DialInfoValidator asks a peer to dial us back under the given options,
// confirming whether our candidate dial info is actually reachable.
type DialInfoValidator interface {
	ValidateDialInfo(ctx context.Context, opts ValidateOptions) (bool, error)
}

// Discoverer runs the network-class state machine for one
// (protocol, address-type) pair.
type Discoverer struct {
	Prober               ExternalAddressProber
	Validator            DialInfoValidator
	PortMapper           PortMapper
	LocalAddresses       func() ([]string, error)
	RestrictedNATRetries int

	log *logrus.Entry
}

// NewDiscoverer constructs a Discoverer. restrictedNATRetries <= 0 defaults
// to 3, matching the teacher's port-mapping retry ladder.
func NewDiscoverer(prober ExternalAddressProber, validator DialInfoValidator, mapper PortMapper, localAddresses func() ([]string, error), restrictedNATRetries int) *Discoverer {
	return &Discoverer{
		Prober:               prober,
		Validator:            validator,
		PortMapper:           mapper,
		LocalAddresses:       localAddresses,
		RestrictedNATRetries: restrictedNATRetries,
		log:                  logrus.WithField("component", "discovery"),
	}
}

// Run executes protocol_begin followed by up to RestrictedNATRetries
// passes of the classification loop, returning the best (most reachable)
// result seen across all passes.
func (d *Discoverer) Run(ctx context.Context, key netstate.Key) (Result, error) {
	localAddrs, err := d.LocalAddresses()
	if err != nil {
		return Result{}, fmt.Errorf("discovery: local addresses: %w", err)
	}
	local := make(map[string]struct{}, len(localAddrs))
	for _, a := range localAddrs {
		local[a] = struct{}{}
	}

	retries := d.RestrictedNATRetries
	if retries <= 0 {
		retries = 3
	}

	best := Result{NetworkClass: netstate.NetworkClassInvalid}

	for i := 0; i < retries; i++ {
		observed, ok, err := d.Prober.ProbeExternalAddress(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("discovery: probe external address: %w", err)
		}
		if !ok {
			d.log.WithField("key", key).Debug("no peer reachable for external-address probe, aborting pass")
			continue
		}

		if _, isLocal := local[observed]; isLocal {
			res, err := d.noNAT(ctx)
			if err != nil {
				return Result{}, err
			}
			best = upgrade(best, res)
			return best, nil
		}

		res, done, err := d.withNAT(ctx, observed)
		if err != nil {
			return Result{}, err
		}
		best = upgrade(best, res)
		if done {
			return best, nil
		}
	}
	return best, nil
}

func (d *Discoverer) noNAT(ctx context.Context) (Result, error) {
	ok, err := d.Validator.ValidateDialInfo(ctx, ValidateOptions{Redirect: true})
	if err != nil {
		return Result{}, fmt.Errorf("discovery: validate dial info: %w", err)
	}
	if ok {
		return Result{NetworkClass: netstate.NetworkClassInboundCapable, DialInfoClass: DialInfoClassDirect, HasDialInfo: true}, nil
	}

	if d.PortMapper != nil {
		_, mapped, err := d.PortMapper.MapPort(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("discovery: map port: %w", err)
		}
		if mapped {
			return Result{NetworkClass: netstate.NetworkClassInboundCapable, DialInfoClass: DialInfoClassMapped, HasDialInfo: true}, nil
		}
	}

	return Result{NetworkClass: netstate.NetworkClassInboundCapable, DialInfoClass: DialInfoClassBlocked, HasDialInfo: false}, nil
}

func (d *Discoverer) withNAT(ctx context.Context, firstObserved string) (Result, bool, error) {
	if d.PortMapper != nil {
		_, mapped, err := d.PortMapper.MapPort(ctx)
		if err != nil {
			return Result{}, false, fmt.Errorf("discovery: map port: %w", err)
		}
		if mapped {
			return Result{NetworkClass: netstate.NetworkClassInboundCapable, DialInfoClass: DialInfoClassMapped, HasDialInfo: true}, true, nil
		}
	}

	redirectOK, err := d.Validator.ValidateDialInfo(ctx, ValidateOptions{Redirect: true})
	if err != nil {
		return Result{}, false, fmt.Errorf("discovery: validate dial info: %w", err)
	}
	if redirectOK {
		return Result{NetworkClass: netstate.NetworkClassInboundCapable, DialInfoClass: DialInfoClassFullConeNAT, HasDialInfo: true}, true, nil
	}

	second, ok, err := d.Prober.ProbeExternalAddress(ctx)
	if err != nil {
		return Result{}, false, fmt.Errorf("discovery: probe external address: %w", err)
	}
	if !ok {
		return Result{}, true, nil
	}
	if second != firstObserved {
		return Result{NetworkClass: netstate.NetworkClassOutboundOnly, HasDialInfo: false}, true, nil
	}

	altOK, err := d.Validator.ValidateDialInfo(ctx, ValidateOptions{AlternatePort: true})
	if err != nil {
		return Result{}, false, fmt.Errorf("discovery: validate dial info: %w", err)
	}
	if altOK {
		return Result{NetworkClass: netstate.NetworkClassInboundCapable, DialInfoClass: DialInfoClassAddressRestrictedNAT, HasDialInfo: true}, false, nil
	}
	return Result{NetworkClass: netstate.NetworkClassInboundCapable, DialInfoClass: DialInfoClassPortRestrictedNAT, HasDialInfo: true}, false, nil
}

// upgrade keeps the more-reachable of best and candidate, per the
// "upgrade network class" rule: InboundCapable > OutboundOnly > WebApp >
// Invalid.
func upgrade(best, candidate Result) Result {
	if netstate.MoreReachable(candidate.NetworkClass, best.NetworkClass) {
		return candidate
	}
	return best
}

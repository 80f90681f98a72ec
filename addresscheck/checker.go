// Package addresscheck correlates flow-reported external addresses to
// detect when a node's network class or dial info has drifted — for
// example because it moved networks or its NAT mapping expired.
package addresscheck

import (
	"net"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/privmesh/netstate"
)

// Detection thresholds from the protocol's address-checking rules.
const (
	AddressInconsistencyDetectionCount = 3
	AddressConsistencyDetectionCount   = 3
	AddressCheckCacheSize              = 256
)

// Config governs whether drift actually triggers re-detection.
type Config struct {
	DetectAddressChanges bool
	IP6PrefixSize        int
}

// Trigger is invoked when the checker decides a public dial-info check is
// warranted. reason is human-readable for logging.
type Trigger func(key netstate.Key, reason string)

type bucket struct {
	networkClass netstate.NetworkClass
	addresses    map[string]struct{}

	inconsistencyCount int
	consistency        *lru.Cache[string, string]
}

func newBucket() *bucket {
	cache, _ := lru.New[string, string](AddressCheckCacheSize)
	return &bucket{
		addresses:   make(map[string]struct{}),
		consistency: cache,
	}
}

// Checker holds per-(RoutingDomain, Protocol, AddressType) reachability
// state and decides when observed address drift should trigger
// re-detection of the node's dial info.
type Checker struct {
	cfg Config
	log *logrus.Entry

	mu      sync.Mutex
	buckets map[netstate.Key]*bucket

	pending map[netstate.Key]bool
	trigger Trigger
}

// New constructs a Checker that calls trigger when drift crosses the
// detection threshold for a bucket.
func New(cfg Config, trigger Trigger) *Checker {
	return &Checker{
		cfg:     cfg,
		log:     logrus.WithField("component", "addresscheck"),
		buckets: make(map[netstate.Key]*bucket),
		pending: make(map[netstate.Key]bool),
		trigger: trigger,
	}
}

func (c *Checker) bucketFor(key netstate.Key) *bucket {
	b, ok := c.buckets[key]
	if !ok {
		b = newBucket()
		c.buckets[key] = b
	}
	return b
}

// ReportPeerInfoChange refreshes the current-addresses set for key from a
// newly published set of addresses (already stripped of port for
// Direct/Mapped dial info), clearing both detection tables.
func (c *Checker) ReportPeerInfoChange(key netstate.Key, class netstate.NetworkClass, addresses []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bucketFor(key)
	b.networkClass = class
	b.addresses = make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		b.addresses[addr] = struct{}{}
	}
	b.inconsistencyCount = 0
	b.consistency.Purge()
}

// ReportSocketAddressChange processes one observation of our external
// address as seen by a remote peer on flow. observed and oldObserved are
// addresses without port (IP only); reportingPeerInboundCapable reports
// whether the peer that observed us is itself reachable (a prerequisite
// for trusting its observation).
func (c *Checker) ReportSocketAddressChange(
	key netstate.Key,
	observed, oldObserved string,
	localPort, listenerPort int,
	reportingPeerInboundCapable bool,
	reporterAddr string,
) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending[key] {
		return
	}
	if key.Domain == netstate.RoutingDomainLocalNetwork {
		return
	}
	if localPort != listenerPort {
		return
	}
	if !reportingPeerInboundCapable {
		return
	}

	b := c.bucketFor(key)
	if sameIPBlock(reporterAddr, observed, key.AddrType, c.cfg.IP6PrefixSize) {
		return
	}

	switch b.networkClass {
	case netstate.NetworkClassInboundCapable:
		c.detectInboundCapable(key, b, observed, oldObserved)
	case netstate.NetworkClassOutboundOnly:
		c.detectOutboundOnly(key, b, observed, reporterAddr)
	}
}

func (c *Checker) detectInboundCapable(key netstate.Key, b *bucket, observed, oldObserved string) {
	if _, ok := b.addresses[observed]; ok {
		b.inconsistencyCount = 0
		return
	}
	if _, ok := b.addresses[oldObserved]; ok {
		b.inconsistencyCount++
		if b.inconsistencyCount >= AddressInconsistencyDetectionCount {
			c.fire(key, "inbound-capable address inconsistency threshold reached")
			b.inconsistencyCount = 0
		}
	}
}

func (c *Checker) detectOutboundOnly(key netstate.Key, b *bucket, observed, reporterAddr string) {
	block := ipBlock(reporterAddr, key.AddrType, c.cfg.IP6PrefixSize)
	b.consistency.Add(block, observed)

	count := 0
	for _, k := range b.consistency.Keys() {
		if v, ok := b.consistency.Peek(k); ok && v == observed {
			count++
		}
	}
	if count >= AddressConsistencyDetectionCount {
		c.fire(key, "outbound-only address consistency threshold reached")
	}
}

func (c *Checker) fire(key netstate.Key, reason string) {
	if !c.cfg.DetectAddressChanges {
		c.log.WithField("key", key).Warn("address drift detected but detect_address_changes is disabled: " + reason)
		return
	}
	c.pending[key] = true
	if c.trigger != nil {
		c.trigger(key, reason)
	}
}

// ClearPending marks key's re-detection as complete, allowing future
// drift reports to trigger again.
func (c *Checker) ClearPending(key netstate.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, key)
}

// ipBlock reduces an address to the block granularity used for
// same-block comparisons: the full /ip6PrefixSize prefix for IPv6, a
// fixed /24 for IPv4.
func ipBlock(addr string, addrType netstate.AddressType, ip6PrefixSize int) string {
	ip := net.ParseIP(hostOnly(addr))
	if ip == nil {
		return addr
	}
	if addrType == netstate.AddressTypeIPV6 {
		if ip6PrefixSize <= 0 || ip6PrefixSize > 128 {
			ip6PrefixSize = 64
		}
		mask := net.CIDRMask(ip6PrefixSize, 128)
		return ip.Mask(mask).String()
	}
	mask := net.CIDRMask(24, 32)
	return ip.Mask(mask).String()
}

func sameIPBlock(a, b string, addrType netstate.AddressType, ip6PrefixSize int) bool {
	if a == "" || b == "" {
		return false
	}
	return ipBlock(a, addrType, ip6PrefixSize) == ipBlock(b, addrType, ip6PrefixSize)
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.TrimSpace(addr)
}

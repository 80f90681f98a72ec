// Package netiface enumerates local network interfaces and detects the
// default route's gateway, the input discovery and
// connection management use to pick candidate listen/dial addresses.
package netiface

import (
	"fmt"
	"net"

	"github.com/jackpal/gateway"
	"github.com/sirupsen/logrus"
)

// LocalAddress is one address bound to a local interface; IsLoopback marks
// loopback addresses.
type LocalAddress struct {
	InterfaceName string
	IP            net.IP
	IsLoopback    bool
	IsIPv6        bool
}

// EnumerateLocalAddresses lists every unicast address bound to an up
// interface on the host, loopback addresses included.
func EnumerateLocalAddresses() ([]LocalAddress, error) {
	log := logrus.WithField("component", "netiface")

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("netiface: list interfaces: %w", err)
	}

	var out []LocalAddress
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			log.WithError(err).WithField("interface", iface.Name).Warn("failed to read interface addresses")
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			out = append(out, LocalAddress{
				InterfaceName: iface.Name,
				IP:            ipNet.IP,
				IsLoopback:    ipNet.IP.IsLoopback(),
				IsIPv6:        ipNet.IP.To4() == nil,
			})
		}
	}
	return out, nil
}

// DefaultRoute reports the gateway address of the host's default route, used
// to decide whether the node has any plausible path to the public internet.
func DefaultRoute() (net.IP, error) {
	gw, err := gateway.DiscoverGateway()
	if err != nil {
		return nil, fmt.Errorf("netiface: discover default gateway: %w", err)
	}
	return gw, nil
}

// HasDefaultRoute reports whether a default route could be discovered,
// without surfacing the discovery error to callers that only need a
// yes/no answer (e.g. the LocalNetwork routing domain's reachability check).
func HasDefaultRoute() bool {
	_, err := DefaultRoute()
	return err == nil
}

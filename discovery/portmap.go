package discovery

import (
	"context"
	"fmt"

	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/jackpal/gateway"
	natpmp "github.com/jackpal/go-nat-pmp"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/privmesh/protocol"
)

const portMappingLease = 3600 // seconds

// PortMapper requests an external port mapping for our listener, trying
// NAT-PMP before falling back to UPnP. A PortMapper attempt may always
// return ok=false: some gateways support neither protocol.
type PortMapper interface {
	MapPort(ctx context.Context) (externalPort uint16, ok bool, err error)
	Unmap(ctx context.Context) error
}

// gatewayPortMapper implements PortMapper against the LAN's default
// gateway, preferring NAT-PMP and falling back to UPnP IGDv1.
type gatewayPortMapper struct {
	protocol   protocol.Kind
	localPort  uint16
	internalIP string
	label      string
	mappedPort uint16

	pmp  *natpmp.Client
	upnp *internetgateway1.WANIPConnection1

	log *logrus.Entry
}

// NewGatewayPortMapper discovers the default gateway and returns a
// PortMapper for it. internalIP is our own LAN address, required by UPnP's
// AddPortMapping to say where traffic should be forwarded. It returns an
// error when neither NAT-PMP nor UPnP support is found.
func NewGatewayPortMapper(protocolKind protocol.Kind, localPort uint16, internalIP, label string) (PortMapper, error) {
	m := &gatewayPortMapper{
		protocol:   protocolKind,
		localPort:  localPort,
		internalIP: internalIP,
		label:      label,
		log:        logrus.WithField("component", "discovery.portmap"),
	}

	if gw, err := gateway.DiscoverGateway(); err == nil {
		m.pmp = natpmp.NewClient(gw)
	}
	if clients, _, err := internetgateway1.NewWANIPConnection1Clients(); err == nil && len(clients) > 0 {
		m.upnp = clients[0]
	}
	if m.pmp == nil && m.upnp == nil {
		return nil, fmt.Errorf("discovery: no gateway reachable via NAT-PMP or UPnP")
	}
	return m, nil
}

func (m *gatewayPortMapper) natPMPProtocol() string {
	if m.protocol == protocol.TCP {
		return "tcp"
	}
	return "udp"
}

func (m *gatewayPortMapper) upnpProtocol() string {
	if m.protocol == protocol.TCP {
		return "TCP"
	}
	return "UDP"
}

func (m *gatewayPortMapper) MapPort(ctx context.Context) (uint16, bool, error) {
	if m.pmp != nil {
		res, err := m.pmp.AddPortMapping(m.natPMPProtocol(), int(m.localPort), int(m.localPort), portMappingLease)
		if err == nil {
			m.mappedPort = res.MappedExternalPort
			return m.mappedPort, true, nil
		}
		m.log.WithError(err).Debug("NAT-PMP mapping failed, trying UPnP")
	}

	if m.upnp != nil {
		err := m.upnp.AddPortMapping("", m.localPort, m.upnpProtocol(), m.localPort, m.internalIP, true, m.label, portMappingLease)
		if err == nil {
			m.mappedPort = m.localPort
			return m.mappedPort, true, nil
		}
		m.log.WithError(err).Debug("UPnP mapping failed")
	}

	return 0, false, nil
}

func (m *gatewayPortMapper) Unmap(ctx context.Context) error {
	if m.mappedPort == 0 {
		return nil
	}
	if m.pmp != nil {
		if _, err := m.pmp.AddPortMapping(m.natPMPProtocol(), int(m.localPort), int(m.mappedPort), 0); err == nil {
			m.mappedPort = 0
			return nil
		}
	}
	if m.upnp != nil {
		if err := m.upnp.DeletePortMapping("", m.mappedPort, m.upnpProtocol()); err != nil {
			return fmt.Errorf("discovery: delete port mapping: %w", err)
		}
	}
	m.mappedPort = 0
	return nil
}

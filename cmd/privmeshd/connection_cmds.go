package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/opd-ai/privmesh/netstate"
	"github.com/opd-ai/privmesh/protocol"
	"github.com/opd-ai/privmesh/routingtable"
	"github.com/opd-ai/privmesh/typekey"
)

var dialinfoCmd = &cobra.Command{
	Use:   "dialinfo",
	Short: "Show the most recently discovered network class and dial info class",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := node.LastDiscovery()
		fmt.Fprintf(cmd.OutOrStdout(), "network_class:   %s\ndial_info_class: %s\nhas_dial_info:   %v\n",
			r.NetworkClass, r.DialInfoClass, r.HasDialInfo)
		return nil
	},
}

func addressTypeOf(addr string) (netstate.AddressType, bool) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return 0, false
	}
	if ip.To4() != nil {
		return netstate.AddressTypeIPV4, true
	}
	return netstate.AddressTypeIPV6, true
}

func parseProtoArg(s string) (protocol.Kind, error) {
	switch s {
	case "", "any":
		return "", nil
	case "udp":
		return protocol.UDP, nil
	case "tcp":
		return protocol.TCP, nil
	case "ws":
		return protocol.WS, nil
	case "wss":
		return protocol.WSS, nil
	default:
		return "", fmt.Errorf("unknown protocol %q", s)
	}
}

func parseAddrTypeArg(s string) (netstate.AddressType, bool, error) {
	switch s {
	case "", "any":
		return 0, false, nil
	case "ipv4":
		return netstate.AddressTypeIPV4, true, nil
	case "ipv6":
		return netstate.AddressTypeIPV6, true, nil
	default:
		return 0, false, fmt.Errorf("unknown address type %q", s)
	}
}

// localContactInfo builds this node's half of a contact-method resolution,
// filtering the peer's candidate dial infos by an optional protocol and
// address type.
func localContactInfo(proto protocol.Kind, addrType netstate.AddressType, wantAddrType bool) routingtable.PeerContactInfo {
	return routingtable.PeerContactInfo{
		NodeIds: node.LocalIds.All(),
		OutboundFilter: func(d protocol.DialInfo) bool {
			if proto != "" && d.Protocol != proto {
				return false
			}
			if wantAddrType {
				at, ok := addressTypeOf(d.Address)
				if !ok || at != addrType {
					return false
				}
			}
			return true
		},
	}
}

func remoteContactInfo(id typekey.NodeId) (routingtable.PeerContactInfo, error) {
	info, ok := node.PeerInfoFor(id)
	if !ok {
		return routingtable.PeerContactInfo{}, fmt.Errorf("no known contact info for %s (it has not been learned via a peer-info publication)", id)
	}
	dials := make([]protocol.DialInfo, 0, len(info.DialInfo))
	for _, d := range info.DialInfo {
		dials = append(dials, d.DialInfo)
	}
	return routingtable.PeerContactInfo{
		NodeIds:  info.NodeIds,
		DialInfo: dials,
		Relay:    info.Relay,
	}, nil
}

var contactCmd = &cobra.Command{
	Use:   "contact <node_id> [proto] [addr-type]",
	Short: "Resolve how this node would reach a known peer",
	Args:  cobra.RangeArgs(1, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := typekey.ParseTypedKey(args[0])
		if err != nil {
			return fmt.Errorf("invalid node_id: %w", err)
		}
		var protoArg, addrTypeArg string
		if len(args) >= 2 {
			protoArg = args[1]
		}
		if len(args) >= 3 {
			addrTypeArg = args[2]
		}
		proto, err := parseProtoArg(protoArg)
		if err != nil {
			return err
		}
		addrType, wantAddrType, err := parseAddrTypeArg(addrTypeArg)
		if err != nil {
			return err
		}

		remote, err := remoteContactInfo(id)
		if err != nil {
			return err
		}
		local := localContactInfo(proto, addrType, wantAddrType)

		dest, dial, relay := routingtable.ResolveContactMethod(local, remote, node.Config.Network.MaxConnectionsPerIP6PrefixSize)
		fmt.Fprintf(cmd.OutOrStdout(), "destination: %s\n", dest)
		if dial.Protocol != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "dial_info:   %s\n", dial)
		}
		if relay != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "relay:       %s\n", *relay)
		}
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping <node_id> [proto] [addr-type] [domain]",
	Short: "Attempt to reach a known peer directly and report the dial outcome",
	Args:  cobra.RangeArgs(1, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := typekey.ParseTypedKey(args[0])
		if err != nil {
			return fmt.Errorf("invalid node_id: %w", err)
		}
		var protoArg, addrTypeArg string
		if len(args) >= 2 {
			protoArg = args[1]
		}
		if len(args) >= 3 {
			addrTypeArg = args[2]
		}
		proto, err := parseProtoArg(protoArg)
		if err != nil {
			return err
		}
		addrType, wantAddrType, err := parseAddrTypeArg(addrTypeArg)
		if err != nil {
			return err
		}

		remote, err := remoteContactInfo(id)
		if err != nil {
			return err
		}
		local := localContactInfo(proto, addrType, wantAddrType)

		dest, dial, _ := routingtable.ResolveContactMethod(local, remote, node.Config.Network.MaxConnectionsPerIP6PrefixSize)
		if dest != routingtable.DestinationDirect {
			return fmt.Errorf("%s is not directly reachable (destination: %s); ping only dials direct peers", id, dest)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(node.Config.Network.ConnectionInitialTimeoutMs)*time.Millisecond)
		defer cancel()

		start := time.Now()
		conn, err := node.Connections.GetOrCreateConnection(ctx, "", dial)
		elapsed := time.Since(start)
		if err != nil {
			return fmt.Errorf("ping %s: %w", dial, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reached %s in %s\n", conn.Descriptor().Remote, elapsed)
		return nil
	},
}

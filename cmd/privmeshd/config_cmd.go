package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

// configField is one debug-CLI-addressable configuration key.
type configField struct {
	get func() string
	set func(string) error
}

func intField(p *int) configField {
	return configField{
		get: func() string { return strconv.Itoa(*p) },
		set: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("expected an integer, got %q", s)
			}
			*p = n
			return nil
		},
	}
}

func boolField(p *bool) configField {
	return configField{
		get: func() string { return strconv.FormatBool(*p) },
		set: func(s string) error {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return fmt.Errorf("expected true or false, got %q", s)
			}
			*p = b
			return nil
		},
	}
}

func stringField(p *string) configField {
	return configField{
		get: func() string { return *p },
		set: func(s string) error { *p = s; return nil },
	}
}

// configRegistry builds the key -> field map over node's current config.
// Rebuilt per invocation so it always reflects the live Config pointer.
func configRegistry() map[string]configField {
	c := &node.Config.Network
	return map[string]configField{
		"network.max_connections":                   intField(&c.MaxConnections),
		"network.connection_initial_timeout_ms":      intField(&c.ConnectionInitialTimeoutMs),
		"network.restricted_nat_retries":              intField(&c.RestrictedNATRetries),
		"network.max_connections_per_ip6_prefix_size": intField(&c.MaxConnectionsPerIP6PrefixSize),

		"network.rpc.concurrency":            intField(&c.RPC.Concurrency),
		"network.rpc.queue_size":             intField(&c.RPC.QueueSize),
		"network.rpc.timeout_ms":             intField(&c.RPC.TimeoutMs),
		"network.rpc.max_route_hop_count":    intField(&c.RPC.MaxRouteHopCount),
		"network.rpc.default_route_hop_count": intField(&c.RPC.DefaultRouteHopCount),

		"network.dht.get_value_count":     intField(&c.DHT.GetValueCount),
		"network.dht.get_value_fanout":    intField(&c.DHT.GetValueFanout),
		"network.dht.get_value_timeout_ms": intField(&c.DHT.GetValueTimeoutMs),
		"network.dht.set_value_count":     intField(&c.DHT.SetValueCount),
		"network.dht.set_value_fanout":    intField(&c.DHT.SetValueFanout),
		"network.dht.set_value_timeout_ms": intField(&c.DHT.SetValueTimeoutMs),
		"network.dht.max_find_node_count": intField(&c.DHT.MaxFindNodeCount),
		"network.dht.min_peer_count":      intField(&c.DHT.MinPeerCount),

		"network.protocol.udp.enabled": boolField(&c.Protocol.UDP.Enabled),
		"network.protocol.tcp.enabled": boolField(&c.Protocol.TCP.Enabled),
		"network.protocol.ws.enabled":  boolField(&c.Protocol.WS.Enabled),
		"network.protocol.wss.enabled": boolField(&c.Protocol.WSS.Enabled),

		"table_store.directory":               stringField(&node.Config.TableStore.Directory),
		"table_store.delete":                   boolField(&node.Config.TableStore.Delete),
		"protected_store.allow_insecure_fallback": boolField(&node.Config.ProtectedStore.AllowInsecureFallback),
	}
}

var configCmd = &cobra.Command{
	Use:   "config [<key> [<value>]]",
	Short: "Get or set a configuration key, or list all keys with no arguments",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := configRegistry()

		if len(args) == 0 {
			keys := make([]string, 0, len(reg))
			for k := range reg {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", k, reg[k].get())
			}
			return nil
		}

		field, ok := reg[args[0]]
		if !ok {
			return fmt.Errorf("unknown configuration key %q", args[0])
		}
		if len(args) == 1 {
			fmt.Fprintln(cmd.OutOrStdout(), field.get())
			return nil
		}
		if err := field.set(args[1]); err != nil {
			return fmt.Errorf("set %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], field.get())
		return nil
	},
}

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/opd-ai/privmesh/routingtable"
	"github.com/opd-ai/privmesh/typekey"
)

func parseMinState(s string) (routingtable.EntryStatus, error) {
	switch s {
	case "", "unreliable":
		return routingtable.StatusUnreliable, nil
	case "reliable":
		return routingtable.StatusReliable, nil
	case "dead":
		return routingtable.StatusDead, nil
	default:
		return 0, fmt.Errorf("unknown state %q (want dead, unreliable, or reliable)", s)
	}
}

func stateName(s routingtable.EntryStatus) string {
	switch s {
	case routingtable.StatusReliable:
		return "reliable"
	case routingtable.StatusUnreliable:
		return "unreliable"
	default:
		return "dead"
	}
}

var bucketsCmd = &cobra.Command{
	Use:   "buckets [min_state]",
	Short: "Summarize bucket occupancy, optionally filtered by a minimum entry state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		min := routingtable.StatusDead
		if len(args) == 1 {
			var err error
			min, err = parseMinState(args[0])
			if err != nil {
				return err
			}
		}

		stats := node.Table.BucketStats(min)
		sort.Slice(stats, func(i, j int) bool {
			if stats[i].Kind != stats[j].Kind {
				return stats[i].Kind.String() < stats[j].Kind.String()
			}
			return stats[i].Index < stats[j].Index
		})
		if len(stats) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no buckets hold an entry at or above that state")
			return nil
		}
		for _, s := range stats {
			fmt.Fprintf(cmd.OutOrStdout(), "%s bucket %3d: %d entries\n", s.Kind, s.Index, s.Count)
		}
		return nil
	},
}

var entriesCmd = &cobra.Command{
	Use:   "entries [state] [limit]",
	Short: "List known routing table entries",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter *routingtable.EntryStatus
		limit := -1

		if len(args) >= 1 {
			s, err := parseMinState(args[0])
			if err != nil {
				return err
			}
			filter = &s
		}
		if len(args) == 2 {
			var n int
			if _, err := fmt.Sscanf(args[1], "%d", &n); err != nil {
				return fmt.Errorf("invalid limit %q: %w", args[1], err)
			}
			limit = n
		}

		entries := node.Table.AllEntries()
		printed := 0
		for _, e := range entries {
			if filter != nil && e.Status != *filter {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s  last_seen=%s\n", e.NodeId, stateName(e.Status), e.LastSeen.Format("2006-01-02T15:04:05Z07:00"))
			printed++
			if limit >= 0 && printed >= limit {
				break
			}
		}
		if printed == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no matching entries")
		}
		return nil
	},
}

var entryCmd = &cobra.Command{
	Use:   "entry <node_id>",
	Short: "Show one routing table entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := typekey.ParseTypedKey(args[0])
		if err != nil {
			return fmt.Errorf("invalid node_id: %w", err)
		}
		entry, ok := node.Table.Lookup(id)
		if !ok {
			return fmt.Errorf("no entry for %s", id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "node_id:   %s\nstate:     %s\nlast_seen: %s\n",
			entry.NodeId, stateName(entry.Status), entry.LastSeen.Format("2006-01-02T15:04:05Z07:00"))
		return nil
	},
}

var nodeinfoCmd = &cobra.Command{
	Use:   "nodeinfo",
	Short: "Show this node's local identities and capabilities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, id := range node.LocalIds.All() {
			fmt.Fprintf(out, "node_id: %s\n", id)
		}
		fmt.Fprintf(out, "max_connections: %d\n", node.Config.Network.MaxConnections)
		fmt.Fprintf(out, "udp: %v  tcp: %v  ws: %v  wss: %v\n",
			node.Config.Network.Protocol.UDP.Enabled,
			node.Config.Network.Protocol.TCP.Enabled,
			node.Config.Network.Protocol.WS.Enabled,
			node.Config.Network.Protocol.WSS.Enabled)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge <buckets|connections>",
	Short: "Drop dead bucket entries or tear down every live connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "buckets":
			n := node.Table.PurgeDead()
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d dead bucket entries\n", n)
		case "connections":
			n := node.Connections.Table().PurgeAll()
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d live connections\n", n)
		default:
			return fmt.Errorf("purge target must be \"buckets\" or \"connections\", got %q", args[0])
		}
		return nil
	},
}

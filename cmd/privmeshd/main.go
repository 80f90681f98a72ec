package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/privmesh/vmconfig"
)

var node *Node

// ensureNode lazily constructs the process-wide Node and starts its
// corecontext-managed services, so every subcommand except bare "help" gets
// a running node to operate on.
func ensureNode(cmd *cobra.Command, args []string) error {
	if node != nil {
		return nil
	}
	n, err := NewNode(vmconfig.New())
	if err != nil {
		return err
	}
	if err := n.Core.Startup(cmd.Context()); err != nil {
		return fmt.Errorf("privmeshd: startup: %w", err)
	}
	node = n
	return nil
}

var rootCmd = &cobra.Command{
	Use:               "privmeshd",
	Short:             "Operate and inspect a running overlay node",
	PersistentPreRunE: ensureNode,
	SilenceUsage:      true,
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	rootCmd.AddCommand(bucketsCmd)
	rootCmd.AddCommand(entriesCmd)
	rootCmd.AddCommand(entryCmd)
	rootCmd.AddCommand(nodeinfoCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(dialinfoCmd)
	rootCmd.AddCommand(contactCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(detachCmd)
	rootCmd.AddCommand(restartCmd)
}

func main() {
	ctx := context.Background()
	defer func() {
		if node != nil {
			_ = node.Core.Shutdown(ctx)
		}
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opd-ai/privmesh/attachment"
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Request the node attach to the network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := node.Attachment.Feed(attachment.AttachRequested)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "state: %s\n", s)
		return nil
	},
}

var detachCmd = &cobra.Command{
	Use:   "detach",
	Short: "Request the node detach from the network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := node.Attachment.Feed(attachment.DetachRequested); err != nil {
			return err
		}
		// stopMaintainer (run synchronously by Feed) blocks until the
		// maintainer's own AttachmentStopped feed lands, so by now the
		// machine has settled in Detached.
		fmt.Fprintf(cmd.OutOrStdout(), "state: %s\n", node.Attachment.State())
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart network",
	Short: "Detach and immediately re-attach",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] != "network" {
			return fmt.Errorf("restart only supports the \"network\" target, got %q", args[0])
		}
		if _, err := node.Attachment.Feed(attachment.DetachRequested); err != nil {
			return err
		}
		s, err := node.Attachment.Feed(attachment.AttachRequested)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "state: %s\n", s)
		return nil
	},
}

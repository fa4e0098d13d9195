package main

import (
	"github.com/spf13/cobra"

	"github.com/packetcap/iosource"
	"github.com/packetcap/iosource/pcap"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered packet sources and dumpers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := iosource.NewRegistry()
		if err := pcap.Register(r); err != nil {
			return err
		}
		r.Describe(cmd.OutOrStdout())
		return nil
	},
}

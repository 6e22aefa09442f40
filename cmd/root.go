// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"

	"firestige.xyz/flowkey/internal/config"
	"firestige.xyz/flowkey/internal/log"
)

var (
	// Global flags
	configFile string
	logLevel   string

	// cfg is loaded before any subcommand runs
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flowkey",
	Short: "flowkey - project packet headers into sparse flow keys",
	Long: `flowkey extracts datapath flow keys from packets.

Each packet is walked from its Ethernet header through VLAN tags,
the EtherType (or 802.2 LLC/SNAP) and the MPLS label stack. Together
with the packet metadata (in_port, conntrack state, tunnel) the fields
are laid out in the canonical flow record and stored as a miniflow:
a bitmap of populated 64-bit words plus their values.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and FLOWKEY_* environment only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log.level (trace/debug/info/warn/error)")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(layoutCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
		if err := c.ValidateAndApplyDefaults(); err != nil {
			return err
		}
	}
	if err := log.Init(c.Log); err != nil {
		return err
	}
	cfg = c
	return nil
}

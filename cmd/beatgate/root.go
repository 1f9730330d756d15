// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/beatgate/beatgate/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// resolveConfigFile returns the --config flag value, falling back to
// the XDG config location when a file exists there.
func resolveConfigFile() string {
	if configFile != "" {
		return configFile
	}
	return xdg.ConfigFile()
}

// NewRootCmd creates the root command for the BeatGate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "beatgate",
		Short: "BeatGate - login gate for the game server",
		Long: `BeatGate authenticates game clients, enforces compliance and
anti-cheat policy, and hands verified players a session plus the
bootstrap packet stream their client expects.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewGenCertCmd())

	return cmd
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/beatgate/beatgate/internal/tls"
	"github.com/beatgate/beatgate/internal/xdg"
)

// NewGenCertCmd creates the gen-cert subcommand.
func NewGenCertCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "gen-cert [host...]",
		Short: "Generate a self-signed TLS certificate for the login endpoint",
		Long: `Generate a self-signed TLS certificate for development setups where
no real certificate terminates in front of the login endpoint. Hosts
default to localhost and 127.0.0.1.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, err := tls.Generate(args...)
			if err != nil {
				return err
			}

			certPath, keyPath, err := tls.Save(outDir, cert)
			if err != nil {
				return err
			}

			cmd.Printf("Generated %s\n", certPath)
			cmd.Printf("Generated %s\n", keyPath)
			cmd.Println("Point tls_cert and tls_key at these files to serve HTTPS.")
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", xdg.CertsDir(), "directory to write the certificate pair to")

	return cmd
}

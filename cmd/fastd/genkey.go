/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blocktrron/fastd-go/internal/curve25519x"
)

// newGenKeyCommand implements spec.md §6's key-generation subcommand:
// it prints a fresh identity's secret and public key, hex-encoded, as
// a "Secret: <hex>" line followed by a "Public: <hex>" line.
func newGenKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Generate a new identity keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, raw, err := curve25519x.GenerateSecret()
			if err != nil {
				return fmt.Errorf("genkey: %w", err)
			}
			pub := curve25519x.BasepointMul(sc).Bytes()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Secret: %s\n", hex.EncodeToString(raw[:]))
			fmt.Fprintf(out, "Public: %s\n", hex.EncodeToString(pub[:]))
			return nil
		},
	}
}

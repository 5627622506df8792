/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

// Command fastd-go runs the tunnel daemon core: loading configuration,
// bringing up the handshake/session engine, and exposing a small
// status view. Grounded on manager/webui.go's cobra-free entry point,
// restructured around cobra the way postalsys-Muti-Metroo's mesh proxy
// CLI is organized (one subcommand per verb, root command just wires
// persistent flags).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "fastd-go",
		Short: "A forward-secret, roaming-tolerant point-to-point tunnel daemon",
	}

	root.AddCommand(newGenKeyCommand())
	root.AddCommand(newRunCommand())
	root.AddCommand(newStatusCommand())
	return root
}

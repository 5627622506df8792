/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/blocktrron/fastd-go/internal/protocol"
)

// newStatusCommand implements the status subcommand: it dials a
// running daemon's control socket and prints a humanized per-peer
// summary, the local-CLI counterpart to manager/webui.go's JSON status
// endpoint.
func newStatusCommand() *cobra.Command {
	var controlSocket string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show peer session status for a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStatus(cmd, controlSocket)
		},
	}
	cmd.Flags().StringVar(&controlSocket, "control-socket", defaultControlSocket, "unix socket the running daemon exposes status on")
	return cmd
}

func printStatus(cmd *cobra.Command, controlSocket string) error {
	conn, err := net.Dial("unix", controlSocket)
	if err != nil {
		return fmt.Errorf("status: connecting to %s: %w", controlSocket, err)
	}
	defer conn.Close()

	var peers []protocol.PeerStatus
	if err := json.NewDecoder(conn).Decode(&peers); err != nil {
		return fmt.Errorf("status: reading status: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(peers) == 0 {
		fmt.Fprintln(out, "no peers configured")
		return nil
	}

	for _, p := range peers {
		state := "disconnected"
		if p.Connected {
			state = fmt.Sprintf("connected, established %s", humanize.Time(time.Now().Add(-p.EstablishedFor)))
		} else if p.HandshakePending {
			state = "handshaking"
		}
		if !p.Enabled {
			state = "disabled"
		}

		role := ""
		if p.Connected {
			if p.Initiator {
				role = " [initiator]"
			} else {
				role = " [responder]"
			}
		}

		fmt.Fprintf(out, "%s (%s)%s: %s\n", p.Name, hex.EncodeToString(p.Key[:])[:16], role, state)
		switch p.AddressMode {
		case protocol.AddressDynamic:
			fmt.Fprintf(out, "  address: dynamic\n")
		case protocol.AddressStatic:
			fmt.Fprintf(out, "  address: static\n")
		}
	}
	return nil
}

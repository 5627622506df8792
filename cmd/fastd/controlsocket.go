/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package main

import (
	"encoding/json"
	"net"
	"os"

	"github.com/blocktrron/fastd-go/internal/logging"
	"github.com/blocktrron/fastd-go/internal/protocol"
)

// defaultControlSocket is where a running daemon exposes its status for
// the status subcommand to read, the local-only equivalent of
// manager/webui.go's JSON status endpoint without the HTTP/password
// machinery a remote web UI needs.
const defaultControlSocket = "/run/fastd-go.sock"

// serveControlSocket accepts one connection at a time and writes a
// freshly taken protocol.Context.Status() snapshot as JSON to each.
func serveControlSocket(path string, ctx *protocol.Context, log *logging.Logger) (func() error, error) {
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				if err := json.NewEncoder(conn).Encode(ctx.Status()); err != nil && log != nil {
					log.Debugf("control socket: encoding status: %v", err)
				}
			}()
		}
	}()

	return func() error {
		err := ln.Close()
		_ = os.Remove(path)
		return err
	}, nil
}

/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blocktrron/fastd-go/internal/config"
	"github.com/blocktrron/fastd-go/internal/logging"
	"github.com/blocktrron/fastd-go/internal/method/chachapoly"
	"github.com/blocktrron/fastd-go/internal/protocol"
	"github.com/blocktrron/fastd-go/internal/ratelimiter"
	"github.com/blocktrron/fastd-go/internal/scheduler/timerwheel"
	"github.com/blocktrron/fastd-go/internal/transport/udptransport"
)

// maintenanceInterval drives the periodic handshake-key rotation and
// stale-handshake sweep, scaled the same way
// protocol_ec25519_fhmqvc.c's own maintenance timer is.
const maintenanceInterval = 5 * time.Second

// newRunCommand implements the daemon's main verb: load the config,
// bring up the real UDP transport and the handshake/session engine,
// and block until signaled. Grounded on manager/webui.go's top-level
// serve loop, restructured the way device/device.go's NewDevice
// wires its collaborators together before the caller starts waiting
// on a shutdown signal.
func newRunCommand() *cobra.Command {
	var configPath string
	var controlSocket string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tunnel daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(configPath, controlSocket)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "/etc/fastd-go/fastd.yaml", "path to the daemon config file")
	cmd.Flags().StringVar(&controlSocket, "control-socket", defaultControlSocket, "unix socket the status subcommand reads from")
	return cmd
}

func runDaemon(configPath, controlSocket string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("run: invalid config: %w", err)
	}

	level := logrus.InfoLevel
	if parsed, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		level = parsed
	}
	log := logging.New(level)

	identity, err := cfg.LoadIdentity()
	if err != nil {
		return err
	}

	transport, err := udptransport.Listen(cfg.Bind, log)
	if err != nil {
		return err
	}
	defer transport.Close()

	method := chachapoly.New()
	sched := timerwheel.New()
	defer sched.Close()

	limiter := ratelimiter.New()
	defer limiter.Close()

	ctx := protocol.NewContext(identity, method, transport, sched, log)
	ctx.HandshakeLimiter = limiter
	ctx.OnReceive = func(peer *protocol.PeerState, plaintext []byte) {
		log.Debugf("received %d bytes from %s", len(plaintext), peer.Config.Name)
	}
	transport.Inbound = ctx.HandleInbound

	for _, pc := range cfg.Peers {
		pp, err := pc.ToProtocolPeer()
		if err != nil {
			return fmt.Errorf("run: peer %q: %w", pc.Name, err)
		}
		peer := protocol.NewPeerState(pp)
		ctx.Peers.Add(peer)

		addr := pc.Address
		if addr == "" && pc.Hostname != "" {
			// This reference Transport has no background resolver of
			// its own (see udptransport.ResolveHostname): a dynamic
			// peer's hostname is resolved once up front here instead.
			resolved, err := net.ResolveUDPAddr("udp", pc.Hostname)
			if err != nil {
				log.Warnf("resolving hostname for peer %q: %v", pc.Name, err)
			} else {
				addr = resolved.String()
			}
		}
		if addr != "" {
			transport.UpdatePeerAddress(peer, addr)
		}
	}

	if err := ctx.Keys.Maintain(time.Now()); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	cancelMaintenance := sched.Every(maintenanceInterval, func() {
		ctx.Maintain(time.Now())
	})
	defer cancelMaintenance()

	closeControl, err := serveControlSocket(controlSocket, ctx, log)
	if err != nil {
		log.Warnf("control socket: %v", err)
	} else {
		defer closeControl()
	}

	for _, peer := range ctx.Peers.All() {
		if peer.Config.AddressMode != protocol.AddressFloating {
			if err := ctx.StartHandshake(peer, time.Now()); err != nil {
				log.Warnf("initial handshake to %s: %v", peer.Config.Name, err)
			}
		}
	}

	log.Verbosef("listening on %s", cfg.Bind)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Verbosef("shutting down")
	return nil
}

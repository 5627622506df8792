/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

// Package config loads the daemon's YAML configuration file: the
// local identity, bind address, and peer list. Grounded on
// manager/config.go's Config/SystemConfig/IdentityConfig/PeerRecord
// shape, generalized from the teacher's JSON-over-webhook management
// format to a single static YAML file the way postalsys-Muti-Metroo's
// mesh proxy loads its own config.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blocktrron/fastd-go/internal/protocol"
)

// IdentityConfig names where the local long-term secret key comes
// from: either inline (hex, matching fastd's own key file format) or
// read from a separate file.
type IdentityConfig struct {
	SecretHex string `yaml:"secret,omitempty"`
	SecretFile string `yaml:"secret_file,omitempty"`
}

// PeerConfig is one configured peer entry. AddressMode names which of
// the three address-discovery disciplines spec.md §3/§4.3 the peer
// uses; it replaces a plain "floating bool" so static and dynamic
// peers — previously indistinguishable from each other — get their
// own matching rules in protocol.Table.matchSenderKey.
type PeerConfig struct {
	Name        string `yaml:"name"`
	KeyHex      string `yaml:"key"`
	Address     string `yaml:"address,omitempty"`
	AddressMode string `yaml:"address_mode,omitempty"` // "floating" (default), "dynamic", "static"
	Hostname    string `yaml:"hostname,omitempty"`     // required when address_mode is "dynamic"
	Disabled    bool   `yaml:"disabled,omitempty"`

	KeyValidSeconds        int `yaml:"key_valid,omitempty"`
	KeyRefreshSeconds      int `yaml:"key_refresh,omitempty"`
	KeyRefreshSplaySeconds int `yaml:"key_refresh_splay,omitempty"`

	ReorderTimeMillis int `yaml:"reorder_time,omitempty"`
	ReorderCount      uint `yaml:"reorder_count,omitempty"`

	KeepaliveIntervalSeconds int `yaml:"keepalive_interval,omitempty"`
}

// Config is the top-level daemon configuration.
type Config struct {
	Bind     string         `yaml:"bind"`
	Identity IdentityConfig `yaml:"identity"`
	Peers    []PeerConfig   `yaml:"peers"`
	LogLevel string         `yaml:"log_level,omitempty"`
}

// Load reads and parses a YAML config file from path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &c, nil
}

// LoadIdentity resolves the configured identity secret into a usable
// protocol.IdentitySecret, reading from a separate key file if one was
// named instead of an inline value.
func (c *Config) LoadIdentity() (*protocol.IdentitySecret, error) {
	hexKey := c.Identity.SecretHex
	if c.Identity.SecretFile != "" {
		raw, err := os.ReadFile(c.Identity.SecretFile)
		if err != nil {
			return nil, fmt.Errorf("config: reading secret file: %w", err)
		}
		hexKey = string(raw)
	}

	raw, err := decodeKeyHex(hexKey)
	if err != nil {
		return nil, fmt.Errorf("config: decoding identity secret: %w", err)
	}
	lockSecret(&raw)

	return protocol.NewIdentitySecret(raw)
}

// Validate reports a non-nil error for the first structurally invalid
// part of the config: a peer missing its key, or two peers sharing one.
func (c *Config) Validate() error {
	if c.Bind == "" {
		return fmt.Errorf("config: bind address is required")
	}

	seen := make(map[string]bool)
	for _, p := range c.Peers {
		if p.Name == "" {
			return fmt.Errorf("config: peer entry missing name")
		}
		if p.KeyHex == "" {
			return fmt.Errorf("config: peer %q missing key", p.Name)
		}
		if _, err := decodeKeyHex(p.KeyHex); err != nil {
			return fmt.Errorf("config: peer %q: %w", p.Name, err)
		}
		mode, err := p.addressMode()
		if err != nil {
			return fmt.Errorf("config: peer %q: %w", p.Name, err)
		}
		switch mode {
		case protocol.AddressStatic:
			if p.Address == "" {
				return fmt.Errorf("config: peer %q is static and has no address", p.Name)
			}
		case protocol.AddressDynamic:
			if p.Hostname == "" {
				return fmt.Errorf("config: peer %q is dynamic and has no hostname", p.Name)
			}
		}
		if p.ReorderCount > 63 {
			return fmt.Errorf("config: peer %q: reorder_count must be <= 63", p.Name)
		}
		if seen[p.KeyHex] {
			return fmt.Errorf("config: duplicate peer key for %q", p.Name)
		}
		seen[p.KeyHex] = true
	}
	return nil
}

// addressMode resolves the peer's configured address_mode string into
// the protocol package's enum, defaulting to floating to preserve the
// historical behavior of a config with no address_mode set at all.
func (p *PeerConfig) addressMode() (protocol.AddressMode, error) {
	switch p.AddressMode {
	case "", "floating":
		return protocol.AddressFloating, nil
	case "dynamic":
		return protocol.AddressDynamic, nil
	case "static":
		return protocol.AddressStatic, nil
	default:
		return 0, fmt.Errorf("unknown address_mode %q", p.AddressMode)
	}
}

// ToProtocolPeer converts one configured peer into the narrow
// protocol.PeerConfig the protocol core understands. A disabled peer
// is still registered (spec.md §7 kind 2: operations against it fail
// with ErrPeerDisabled rather than being silently absent).
func (p *PeerConfig) ToProtocolPeer() (protocol.PeerConfig, error) {
	raw, err := decodeKeyHex(p.KeyHex)
	if err != nil {
		return protocol.PeerConfig{}, err
	}
	mode, err := p.addressMode()
	if err != nil {
		return protocol.PeerConfig{}, err
	}
	return protocol.PeerConfig{
		Name:        p.Name,
		Key:         protocol.IdentityKey(raw),
		AddressMode: mode,
		Enabled:     !p.Disabled,

		KeyValid:        time.Duration(p.KeyValidSeconds) * time.Second,
		KeyRefresh:      time.Duration(p.KeyRefreshSeconds) * time.Second,
		KeyRefreshSplay: time.Duration(p.KeyRefreshSplaySeconds) * time.Second,

		ReorderTime:  time.Duration(p.ReorderTimeMillis) * time.Millisecond,
		ReorderCount: p.ReorderCount,

		KeepaliveInterval: time.Duration(p.KeepaliveIntervalSeconds) * time.Second,
	}, nil
}

// decodeKeyHex accepts either hex or standard base64, matching the two
// forms fastd's own genkey/showkey tooling has historically printed.
func decodeKeyHex(s string) ([32]byte, error) {
	var out [32]byte
	if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
		copy(out[:], b)
		return out, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		copy(out[:], b)
		return out, nil
	}
	return out, fmt.Errorf("key must be 32 bytes, hex or base64 encoded")
}

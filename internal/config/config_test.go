package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blocktrron/fastd-go/internal/protocol"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fastd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadParsesYAML(t *testing.T) {
	body := `
bind: "0.0.0.0:10000"
identity:
  secret: "` + hex32(0x00) + `"
peers:
  - name: office
    key: "` + hex32(0x11) + `"
    address: "10.0.0.1:10000"
    address_mode: static
  - name: roaming
    key: "` + hex32(0x22) + `"
  - name: resolved
    key: "` + hex32(0x33) + `"
    address_mode: dynamic
    hostname: "vpn.example.com:10000"
    key_valid: 3600
    key_refresh: 3000
    key_refresh_splay: 300
    reorder_time: 15000
    reorder_count: 16
    keepalive_interval: 30
`
	path := writeTempConfig(t, body)
	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:10000", c.Bind)
	require.Len(t, c.Peers, 3)
	require.NoError(t, c.Validate())

	pp, err := c.Peers[2].ToProtocolPeer()
	require.NoError(t, err)
	require.Equal(t, protocol.AddressDynamic, pp.AddressMode)
	require.Equal(t, uint(16), pp.ReorderCount)
}

func TestValidateRejectsMissingStaticAddress(t *testing.T) {
	c := &Config{
		Bind: "0.0.0.0:10000",
		Peers: []PeerConfig{
			{Name: "p", KeyHex: hex32(1), AddressMode: "static"},
		},
	}
	require.Error(t, c.Validate())
}

func TestValidateRejectsMissingDynamicHostname(t *testing.T) {
	c := &Config{
		Bind: "0.0.0.0:10000",
		Peers: []PeerConfig{
			{Name: "p", KeyHex: hex32(1), AddressMode: "dynamic"},
		},
	}
	require.Error(t, c.Validate())
}

func TestValidateAcceptsFloatingWithoutAddress(t *testing.T) {
	c := &Config{
		Bind: "0.0.0.0:10000",
		Peers: []PeerConfig{
			{Name: "p", KeyHex: hex32(1)},
		},
	}
	require.NoError(t, c.Validate())
}

func TestValidateRejectsDuplicateKeys(t *testing.T) {
	c := &Config{
		Bind: "0.0.0.0:10000",
		Peers: []PeerConfig{
			{Name: "p1", KeyHex: hex32(1)},
			{Name: "p2", KeyHex: hex32(1)},
		},
	}
	require.Error(t, c.Validate())
}

func TestValidateRejectsUnknownAddressMode(t *testing.T) {
	c := &Config{
		Bind: "0.0.0.0:10000",
		Peers: []PeerConfig{
			{Name: "p", KeyHex: hex32(1), AddressMode: "bogus"},
		},
	}
	require.Error(t, c.Validate())
}

func TestValidateRejectsOversizeReorderCount(t *testing.T) {
	c := &Config{
		Bind: "0.0.0.0:10000",
		Peers: []PeerConfig{
			{Name: "p", KeyHex: hex32(1), ReorderCount: 64},
		},
	}
	require.Error(t, c.Validate())
}

func TestToProtocolPeerDisabled(t *testing.T) {
	cfg := PeerConfig{Name: "p", KeyHex: hex32(3), Disabled: true}
	pp, err := cfg.ToProtocolPeer()
	require.NoError(t, err)
	require.False(t, pp.Enabled)
}

func hex32(b byte) string {
	buf := make([]byte, 32)
	for i := range buf {
		buf[i] = b
	}
	out := make([]byte, 64)
	const hexDigits = "0123456789abcdef"
	for i, v := range buf {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0xf]
	}
	return string(out)
}

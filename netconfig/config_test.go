package netconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesDocumentedConstants(t *testing.T) {
	cfg := Default()
	require.Equal(t, uint16(0x2000), cfg.MaxPacketSize)
	require.Equal(t, 60*time.Second, cfg.ServerHeartbeatInterval)
	require.Equal(t, 10*time.Second, cfg.ClientHeartbeatInterval)
	require.Equal(t, 256, cfg.CompressionThresholdBytes)
}

func TestLoadWithMissingPathFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadWithNonexistentFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netcore.yaml")
	content := "max_packet_size: 4096\ncompression_threshold_bytes: 1024\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint16(4096), cfg.MaxPacketSize)
	require.Equal(t, 1024, cfg.CompressionThresholdBytes)
	require.Equal(t, 60*time.Second, cfg.ServerHeartbeatInterval)
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	t.Setenv("KI_MAX_PACKET_SIZE", "1234")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, uint16(1234), cfg.MaxPacketSize)
}

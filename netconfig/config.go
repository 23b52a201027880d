// Package netconfig centralizes runtime tunables (packet size caps,
// heartbeat intervals, connection timeout, a compression threshold)
// behind viper: a typed Config struct that is always usable
// with its defaults, optionally overridden by a config file or
// KI_-prefixed environment variables.
package netconfig

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the runtime tunables. A Session consults it at
// construction time; BinarySerializer does not take a Config.
type Config struct {
	// MaxPacketSize caps the framer's accepted payload length; packets
	// declaring a larger length abort the connection.
	MaxPacketSize uint16

	// ServerHeartbeatInterval is how often a server sends KEEP_ALIVE;
	// a client treats twice this as its liveness window.
	ServerHeartbeatInterval time.Duration

	// ClientHeartbeatInterval is how often a client sends KEEP_ALIVE;
	// a server treats twice this as its liveness window.
	ClientHeartbeatInterval time.Duration

	// ConnectionTimeout bounds the handshake: a SESSION_OFFER or
	// SESSION_ACCEPT arriving more than this long after OnConnected closes
	// the session, and before establishment IsAlive reports false once the
	// session is older than twice this value.
	ConnectionTimeout time.Duration

	// CompressionThresholdBytes is a minimum uncompressed object size for
	// compression. It is loaded and defaulted here but no package in this
	// module reads it; BinarySerializer compresses exactly when its caller
	// passes the Compressed flag.
	CompressionThresholdBytes int
}

// Default returns the standard tunables: a 60s server heartbeat, a 10s
// client heartbeat, a connection timeout equal to the smaller of the
// two, and the 0x2000 maximum packet size.
func Default() Config {
	return Config{
		MaxPacketSize:             0x2000,
		ServerHeartbeatInterval:   60 * time.Second,
		ClientHeartbeatInterval:   10 * time.Second,
		ConnectionTimeout:         10 * time.Second,
		CompressionThresholdBytes: 256,
	}
}

// Load builds a Config from Default(), a config file at path (if
// non-empty and found), and KI_-prefixed environment variable
// overrides. A missing file is not an error -- Config is always usable
// from its defaults alone.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("KI")
	v.AutomaticEnv()
	v.SetDefault("max_packet_size", cfg.MaxPacketSize)
	v.SetDefault("server_heartbeat_interval", cfg.ServerHeartbeatInterval)
	v.SetDefault("client_heartbeat_interval", cfg.ClientHeartbeatInterval)
	v.SetDefault("connection_timeout", cfg.ConnectionTimeout)
	v.SetDefault("compression_threshold_bytes", cfg.CompressionThresholdBytes)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, err
			}
		}
	}

	cfg.MaxPacketSize = uint16(v.GetUint32("max_packet_size"))
	cfg.ServerHeartbeatInterval = v.GetDuration("server_heartbeat_interval")
	cfg.ClientHeartbeatInterval = v.GetDuration("client_heartbeat_interval")
	cfg.ConnectionTimeout = v.GetDuration("connection_timeout")
	cfg.CompressionThresholdBytes = v.GetInt("compression_threshold_bytes")
	return cfg, nil
}

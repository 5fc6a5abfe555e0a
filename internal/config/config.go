package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds application configuration for both the client and the relay.
type Config struct {
	// RelayURL is the websocket endpoint of the signaling relay.
	RelayURL string `env:"GRIDCALL_RELAY_URL" envDefault:"ws://localhost:8080/ws"`

	// ListenAddr is the bind address used by `gridcall relay`.
	ListenAddr string `env:"GRIDCALL_LISTEN_ADDR" envDefault:":8080"`

	// ICE servers for WebRTC
	STUNServer string `env:"GRIDCALL_STUN_SERVER" envDefault:"stun:stun.l.google.com:19302"`
	TURNServer string `env:"GRIDCALL_TURN_SERVER"`
	TURNUser   string `env:"GRIDCALL_TURN_USERNAME"`
	TURNPass   string `env:"GRIDCALL_TURN_PASSWORD"`

	// ForceRelay routes all media through TURN regardless of connectivity.
	ForceRelay bool `env:"GRIDCALL_FORCE_RELAY" envDefault:"false"`
}

// Options carries CLI flag overrides for Load.
type Options struct {
	RelayURL   string
	ListenAddr string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Defaults - lowest priority
func Load(opts Options) (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if opts.RelayURL != "" {
		cfg.RelayURL = opts.RelayURL
	}
	if opts.ListenAddr != "" {
		cfg.ListenAddr = opts.ListenAddr
	}
	if opts.STUNServer != "" {
		cfg.STUNServer = opts.STUNServer
	}
	if opts.TURNServer != "" {
		cfg.TURNServer = opts.TURNServer
	}
	if opts.TURNUser != "" {
		cfg.TURNUser = opts.TURNUser
	}
	if opts.TURNPass != "" {
		cfg.TURNPass = opts.TURNPass
	}
	if opts.ForceRelay {
		cfg.ForceRelay = true
	}

	return &cfg, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

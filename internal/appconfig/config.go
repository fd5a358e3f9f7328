package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/hermes/internal/protocol"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	Client        ClientConfig    `mapstructure:"client" yaml:"client"`
	SSH           SSHConfig       `mapstructure:"ssh" yaml:"ssh"`
	DevServer     DevServerConfig `mapstructure:"devserver" yaml:"devserver"`
	Logging       LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ClientConfig controls how the editor reaches the server.
type ClientConfig struct {
	Addr                    string `mapstructure:"addr" yaml:"addr"`
	Transport               string `mapstructure:"transport" yaml:"transport"`
	Rows                    int    `mapstructure:"rows" yaml:"rows"`
	DialTimeoutSeconds      int    `mapstructure:"dial_timeout_seconds" yaml:"dial_timeout_seconds"`
	RoundTripTimeoutSeconds int    `mapstructure:"round_trip_timeout_seconds" yaml:"round_trip_timeout_seconds"`
	Theme                   string `mapstructure:"theme" yaml:"theme"`
	MaxFrameBytes           int    `mapstructure:"max_frame_bytes" yaml:"max_frame_bytes"`
}

// SSHConfig configures the ssh transport client.
type SSHConfig struct {
	User                  string `mapstructure:"user" yaml:"user"`
	Password              string `mapstructure:"password" yaml:"password"`
	IdentityFile          string `mapstructure:"identity_file" yaml:"identity_file"`
	KnownHosts            string `mapstructure:"known_hosts" yaml:"known_hosts"`
	InsecureIgnoreHostKey bool   `mapstructure:"insecure_ignore_host_key" yaml:"insecure_ignore_host_key"`
	AgentSocket           string `mapstructure:"agent_socket" yaml:"agent_socket"`
}

// DevServerConfig configures the local reference server. Empty addresses disable a listener.
type DevServerConfig struct {
	Root          string `mapstructure:"root" yaml:"root"`
	TCPAddr       string `mapstructure:"tcp_addr" yaml:"tcp_addr"`
	SSHAddr       string `mapstructure:"ssh_addr" yaml:"ssh_addr"`
	GRPCAddr      string `mapstructure:"grpc_addr" yaml:"grpc_addr"`
	WebSocketAddr string `mapstructure:"websocket_addr" yaml:"websocket_addr"`
	HostKeyPath   string `mapstructure:"host_key_path" yaml:"host_key_path"`
	// SSHPassword guards the ssh listener; empty accepts any client.
	SSHPassword string `mapstructure:"ssh_password" yaml:"ssh_password"`
}

// LoggingConfig controls where the client writes its log.
type LoggingConfig struct {
	File  string `mapstructure:"file" yaml:"file"`
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Client: ClientConfig{
			Addr:                    "127.0.0.1:27500",
			Transport:               "tcp",
			Rows:                    0,
			DialTimeoutSeconds:      10,
			RoundTripTimeoutSeconds: 30,
			Theme:                   "default",
			MaxFrameBytes:           protocol.DefaultMaxFrameBytes,
		},
		SSH: SSHConfig{
			User:         os.Getenv("USER"),
			IdentityFile: filepath.Join(home, ".ssh", "id_ed25519"),
			KnownHosts:   filepath.Join(home, ".ssh", "known_hosts"),
			AgentSocket:  os.Getenv("SSH_AUTH_SOCK"),
		},
		DevServer: DevServerConfig{
			Root:          filepath.Join(home, ".hermes", "files"),
			TCPAddr:       "127.0.0.1:27500",
			SSHAddr:       "127.0.0.1:27522",
			GRPCAddr:      "",
			WebSocketAddr: "",
			HostKeyPath:   filepath.Join(home, ".hermes", "ssh_host_key"),
		},
		Logging: LoggingConfig{
			File:  filepath.Join(home, ".hermes", "hermes.log"),
			Level: "info",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".hermes", "config.yaml"), nil
}

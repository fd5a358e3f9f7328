package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Transports lists the accepted client.transport values.
var Transports = []string{"tcp", "ssh", "grpc", "websocket"}

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("client.addr", cfg.Client.Addr)
	v.SetDefault("client.transport", cfg.Client.Transport)
	v.SetDefault("client.rows", cfg.Client.Rows)
	v.SetDefault("client.dial_timeout_seconds", cfg.Client.DialTimeoutSeconds)
	v.SetDefault("client.round_trip_timeout_seconds", cfg.Client.RoundTripTimeoutSeconds)
	v.SetDefault("client.theme", cfg.Client.Theme)
	v.SetDefault("client.max_frame_bytes", cfg.Client.MaxFrameBytes)
	v.SetDefault("ssh.user", cfg.SSH.User)
	v.SetDefault("ssh.password", cfg.SSH.Password)
	v.SetDefault("ssh.identity_file", cfg.SSH.IdentityFile)
	v.SetDefault("ssh.known_hosts", cfg.SSH.KnownHosts)
	v.SetDefault("ssh.insecure_ignore_host_key", cfg.SSH.InsecureIgnoreHostKey)
	v.SetDefault("ssh.agent_socket", cfg.SSH.AgentSocket)
	v.SetDefault("devserver.root", cfg.DevServer.Root)
	v.SetDefault("devserver.tcp_addr", cfg.DevServer.TCPAddr)
	v.SetDefault("devserver.ssh_addr", cfg.DevServer.SSHAddr)
	v.SetDefault("devserver.grpc_addr", cfg.DevServer.GRPCAddr)
	v.SetDefault("devserver.websocket_addr", cfg.DevServer.WebSocketAddr)
	v.SetDefault("devserver.host_key_path", cfg.DevServer.HostKeyPath)
	v.SetDefault("devserver.ssh_password", cfg.DevServer.SSHPassword)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)

	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return Config{}, err
		}
	} else {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that viper cannot type-check.
func Validate(cfg Config) error {
	transport := strings.ToLower(strings.TrimSpace(cfg.Client.Transport))
	supported := false
	for _, name := range Transports {
		if transport == name {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported client.transport %q (want one of %s)", cfg.Client.Transport, strings.Join(Transports, ", "))
	}
	if cfg.Client.Rows < 0 {
		return fmt.Errorf("client.rows must not be negative")
	}
	if cfg.Client.RoundTripTimeoutSeconds < 0 {
		return fmt.Errorf("client.round_trip_timeout_seconds must not be negative")
	}
	if cfg.Client.MaxFrameBytes < 0 {
		return fmt.Errorf("client.max_frame_bytes must not be negative")
	}
	return nil
}

// isNotFound treats both viper's not-found error and a missing explicit path as absent config.
func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Client.Addr = expandEnv(cfg.Client.Addr)
	cfg.SSH.User = expandEnv(cfg.SSH.User)
	cfg.SSH.Password = expandEnv(cfg.SSH.Password)
	cfg.SSH.IdentityFile = expandEnv(cfg.SSH.IdentityFile)
	cfg.SSH.KnownHosts = expandEnv(cfg.SSH.KnownHosts)
	cfg.SSH.AgentSocket = expandEnv(cfg.SSH.AgentSocket)
	cfg.DevServer.Root = expandEnv(cfg.DevServer.Root)
	cfg.DevServer.HostKeyPath = expandEnv(cfg.DevServer.HostKeyPath)
	cfg.DevServer.SSHPassword = expandEnv(cfg.DevServer.SSHPassword)
	cfg.Logging.File = expandEnv(cfg.Logging.File)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

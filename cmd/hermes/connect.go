package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/hermes/internal/appconfig"
	"pkt.systems/hermes/internal/logx"
	"pkt.systems/hermes/internal/session"
	"pkt.systems/hermes/internal/transport"
	"pkt.systems/hermes/internal/tui"
	"pkt.systems/pslog"
)

type connectFlags struct {
	cfgPath               string
	addr                  string
	transport             string
	rows                  int
	theme                 string
	user                  string
	identityFile          string
	insecureIgnoreHostKey bool
}

func newConnectCmd() *cobra.Command {
	var flags connectFlags
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Open the editor against a Hermes server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(flags.cfgPath)
			if err != nil {
				return err
			}
			applyConnectFlags(cmd, &cfg, flags)
			if err := appconfig.Validate(cfg); err != nil {
				return err
			}
			return runEditor(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&flags.cfgPath, "config", "c", "", "path to config file (default ~/.hermes/config.yaml)")
	cmd.Flags().StringVarP(&flags.addr, "addr", "a", "", "server address")
	cmd.Flags().StringVarP(&flags.transport, "transport", "t", "", "transport: "+strings.Join(appconfig.Transports, ", "))
	cmd.Flags().IntVarP(&flags.rows, "rows", "r", 0, "window height in lines (default terminal height - 2)")
	cmd.Flags().StringVar(&flags.theme, "theme", "", "colour theme: "+strings.Join(tui.ThemeNames(), ", "))
	cmd.Flags().StringVarP(&flags.user, "user", "u", "", "ssh user")
	cmd.Flags().StringVarP(&flags.identityFile, "identity", "i", "", "ssh identity file")
	cmd.Flags().BoolVar(&flags.insecureIgnoreHostKey, "insecure-ignore-host-key", false, "skip ssh host key verification")
	return cmd
}

// applyConnectFlags overrides config values with flags given on the command line.
func applyConnectFlags(cmd *cobra.Command, cfg *appconfig.Config, flags connectFlags) {
	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Client.Addr = flags.addr
	}
	if changed("transport") {
		cfg.Client.Transport = flags.transport
	}
	if changed("rows") {
		cfg.Client.Rows = flags.rows
	}
	if changed("theme") {
		cfg.Client.Theme = flags.theme
	}
	if changed("user") {
		cfg.SSH.User = flags.user
	}
	if changed("identity") {
		cfg.SSH.IdentityFile = flags.identityFile
	}
	if changed("insecure-ignore-host-key") {
		cfg.SSH.InsecureIgnoreHostKey = flags.insecureIgnoreHostKey
	}
}

func transportOptions(cfg appconfig.Config) (transport.Options, error) {
	kind, err := transport.ParseKind(cfg.Client.Transport)
	if err != nil {
		return transport.Options{}, err
	}
	return transport.Options{
		Kind:          kind,
		Addr:          cfg.Client.Addr,
		DialTimeout:   time.Duration(cfg.Client.DialTimeoutSeconds) * time.Second,
		MaxFrameBytes: cfg.Client.MaxFrameBytes,
		SSH: transport.SSHOptions{
			User:                  cfg.SSH.User,
			Password:              cfg.SSH.Password,
			IdentityFile:          cfg.SSH.IdentityFile,
			KnownHosts:            cfg.SSH.KnownHosts,
			InsecureIgnoreHostKey: cfg.SSH.InsecureIgnoreHostKey,
			AgentSocket:           cfg.SSH.AgentSocket,
		},
	}, nil
}

func runEditor(ctx context.Context, cfg appconfig.Config) error {
	opts, err := transportOptions(cfg)
	if err != nil {
		return err
	}
	logger, closeLog, err := openClientLog(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	logger = logx.WithRemote(logger, string(opts.Kind), opts.Addr)
	ctx = pslog.ContextWithLogger(ctx, logger)

	conn, err := transport.Dial(ctx, opts)
	if err != nil {
		return fmt.Errorf("connect to %s over %s: %w", opts.Addr, opts.Kind, err)
	}
	term, err := tui.Open(cfg.Client.Theme)
	if err != nil {
		_ = conn.Close()
		return err
	}
	rows := cfg.Client.Rows
	if rows <= 0 {
		rows = term.Rows()
	}
	roundTrip := time.Duration(cfg.Client.RoundTripTimeoutSeconds) * time.Second
	logger.Info("editor start", "rows", rows, "theme", cfg.Client.Theme)
	sess := session.New(ctx, conn, session.Options{Rows: rows, RoundTripTimeout: roundTrip})
	runErr := sess.Run(ctx, term)
	if err := term.Close(); err != nil {
		logger.Warn("terminal restore failed", "err", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// openClientLog directs client logging to a file because the terminal belongs
// to the editor. An empty path discards logs.
func openClientLog(cfg appconfig.LoggingConfig) (pslog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := pslog.Options{Mode: pslog.ModeStructured, NoColor: true, MinLevel: level}
	if strings.TrimSpace(cfg.File) == "" {
		return pslog.NewWithOptions(io.Discard, opts), func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return pslog.NewWithOptions(f, opts), f.Close, nil
}

func parseLevel(name string) (pslog.Level, error) {
	if strings.TrimSpace(name) == "" {
		return pslog.InfoLevel, nil
	}
	level, ok := pslog.ParseLevel(name)
	if !ok {
		return pslog.InfoLevel, fmt.Errorf("unknown logging.level %q", name)
	}
	return level, nil
}

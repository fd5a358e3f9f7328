package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/hermes/internal/appconfig"
	"pkt.systems/hermes/internal/transport"
	"pkt.systems/pslog"
)

func TestRootHasSubcommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"connect": false, "devserver": false, "config": false, "version": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("expected root command to include %s", name)
		}
	}
	if root.Flags().Lookup("addr") == nil {
		t.Fatalf("expected root to accept connect flags")
	}
}

func TestApplyConnectFlagsOverridesOnlyChanged(t *testing.T) {
	cmd := newConnectCmd()
	if err := cmd.ParseFlags([]string{"--addr", "example:1", "--transport", "ssh", "--insecure-ignore-host-key"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Client.Theme = "gruvbox"
	applyConnectFlags(cmd, &cfg, connectFlags{addr: "example:1", transport: "ssh", insecureIgnoreHostKey: true})
	if cfg.Client.Addr != "example:1" || cfg.Client.Transport != "ssh" || !cfg.SSH.InsecureIgnoreHostKey {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.Client.Theme != "gruvbox" {
		t.Fatalf("unset flag overrode theme: %q", cfg.Client.Theme)
	}
}

func TestTransportOptions(t *testing.T) {
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Client.Transport = "websocket"
	cfg.Client.DialTimeoutSeconds = 3
	cfg.SSH.User = "dev"
	opts, err := transportOptions(cfg)
	if err != nil {
		t.Fatalf("transport options: %v", err)
	}
	if opts.Kind != transport.KindWebSocket || opts.DialTimeout != 3*time.Second || opts.SSH.User != "dev" {
		t.Fatalf("unexpected options %+v", opts)
	}
	cfg.Client.Transport = "smoke-signals"
	if _, err := transportOptions(cfg); err == nil {
		t.Fatalf("expected unsupported transport error")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]pslog.Level{
		"":      pslog.InfoLevel,
		"info":  pslog.InfoLevel,
		"DEBUG": pslog.DebugLevel,
		"warn":  pslog.WarnLevel,
		"trace": pslog.TraceLevel,
		"off":   pslog.Disabled,
	}
	for name, want := range cases {
		got, err := parseLevel(name)
		if err != nil || got != want {
			t.Fatalf("parseLevel(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestOpenClientLogWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hermes.log")
	logger, closeLog, err := openClientLog(appconfig.LoggingConfig{File: path, Level: "info"})
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	logger.Info("hello", "k", "v")
	if err := closeLog(); err != nil {
		t.Fatalf("close log: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Fatalf("expected log line, got %q", data)
	}
}

func TestConfigInitWritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	root := newRootCmd()
	root.SetArgs([]string{"config", "init", "--config", path})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := appconfig.Load(path); err != nil {
		t.Fatalf("load written config: %v", err)
	}
	root = newRootCmd()
	root.SetArgs([]string{"config", "init", "--config", path})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatalf("expected refusal to overwrite without --force")
	}
}

func TestConfigShowMasksPasswords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "config_version: 1\nssh:\n  password: hunter2\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "show", "--config", path})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out.String(), "hunter2") || !strings.Contains(out.String(), "********") {
		t.Fatalf("password not masked:\n%s", out.String())
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("version: %v", err)
	}
	fields := strings.Fields(out.String())
	if len(fields) < 2 || !strings.HasSuffix(out.String(), "\n") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

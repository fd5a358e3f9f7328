package appconfig

import "testing"

func TestDefaultConfigTransport(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Client.Transport != "tcp" {
		t.Fatalf("expected tcp transport by default, got %q", cfg.Client.Transport)
	}
	if cfg.SSH.InsecureIgnoreHostKey {
		t.Fatalf("expected host key verification to default on")
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

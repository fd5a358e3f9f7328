package devserver

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKey is the ssh identity of the dev server.
type HostKey struct {
	Signer ssh.Signer
	// Created is set when the key was generated by this call.
	Created bool
}

// Fingerprint returns the SHA256 fingerprint clients are shown on first connect.
func (k HostKey) Fingerprint() string {
	return ssh.FingerprintSHA256(k.Signer.PublicKey())
}

// KnownHostsLine returns the known_hosts entry a client needs to verify the
// server listening on addr.
func (k HostKey) KnownHostsLine(addr string) string {
	return knownhosts.Line([]string{knownhosts.Normalize(addr)}, k.Signer.PublicKey())
}

// EnsureHostKey loads the ed25519 host key at path, generating it on first use.
// The public half is kept next to it as path+".pub" in authorized_keys format.
func EnsureHostKey(path string) (HostKey, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return HostKey{}, errors.New("ssh host key path is required")
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return HostKey{}, fmt.Errorf("parse host key %s: %w", path, err)
		}
		if err := writePublicKey(path, signer.PublicKey()); err != nil {
			return HostKey{}, err
		}
		return HostKey{Signer: signer}, nil
	case !os.IsNotExist(err):
		return HostKey{}, fmt.Errorf("read host key %s: %w", path, err)
	}

	signer, err := generateHostKey(path)
	if err != nil {
		return HostKey{}, err
	}
	if err := writePublicKey(path, signer.PublicKey()); err != nil {
		return HostKey{}, err
	}
	return HostKey{Signer: signer, Created: true}, nil
}

func generateHostKey(path string) (ssh.Signer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create host key dir: %w", err)
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "hermes devserver")
	if err != nil {
		return nil, fmt.Errorf("marshal host key: %w", err)
	}
	// O_EXCL makes two dev servers racing on one path fail instead of mixing keys.
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("write host key: %w", err)
	}
	if err := pem.Encode(file, block); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("encode host key: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close host key: %w", err)
	}
	return ssh.NewSignerFromKey(priv)
}

// writePublicKey refreshes path+".pub" when it is missing or stale.
func writePublicKey(path string, pub ssh.PublicKey) error {
	want := ssh.MarshalAuthorizedKey(pub)
	pubPath := path + ".pub"
	if have, err := os.ReadFile(pubPath); err == nil && string(have) == string(want) {
		return nil
	}
	if err := os.WriteFile(pubPath, want, 0o644); err != nil {
		return fmt.Errorf("write host public key: %w", err)
	}
	return nil
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Subsystem is the ssh subsystem name that carries the protocol.
const Subsystem = "hermes"

func dialSSH(ctx context.Context, opts Options) (Conn, error) {
	cfg, release, err := sshClientConfig(opts)
	if err != nil {
		return nil, err
	}
	// The agent only signs during the handshake.
	defer release()
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(raw, opts.Addr, cfg)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}
	_ = raw.SetDeadline(time.Time{})
	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ssh session: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := session.RequestSubsystem(Subsystem); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ssh subsystem %q: %w", Subsystem, err)
	}
	rw := &sshStream{Reader: stdout, Writer: stdin, session: session, client: client}
	return NewStreamConn(rw, opts.MaxFrameBytes), nil
}

// sshClientConfig builds the client config. release closes the agent
// connection, if one was opened, and must be called once the handshake is done.
func sshClientConfig(opts Options) (cfg *ssh.ClientConfig, release func(), err error) {
	release = func() {}
	user := strings.TrimSpace(opts.SSH.User)
	if user == "" {
		return nil, release, errors.New("ssh user is required")
	}
	var auth []ssh.AuthMethod
	if sock := strings.TrimSpace(opts.SSH.AgentSocket); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, release, fmt.Errorf("dial ssh agent %s: %w", sock, err)
		}
		release = func() { _ = conn.Close() }
		auth = append(auth, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
	}
	defer func() {
		if err != nil {
			release()
		}
	}()
	if path := strings.TrimSpace(opts.SSH.IdentityFile); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			signer, err := ssh.ParsePrivateKey(data)
			if err != nil {
				return nil, release, fmt.Errorf("parse identity %s: %w", path, err)
			}
			auth = append(auth, ssh.PublicKeys(signer))
		case !os.IsNotExist(err):
			return nil, release, fmt.Errorf("read identity %s: %w", path, err)
		}
	}
	if opts.SSH.Password != "" {
		auth = append(auth, ssh.Password(opts.SSH.Password))
	}
	if len(auth) == 0 {
		return nil, release, errors.New("ssh requires an agent, a password or a readable identity file")
	}

	var hostKey ssh.HostKeyCallback
	if opts.SSH.InsecureIgnoreHostKey {
		hostKey = ssh.InsecureIgnoreHostKey()
	} else {
		path := strings.TrimSpace(opts.SSH.KnownHosts)
		if path == "" {
			return nil, release, errors.New("ssh known_hosts path is required unless host key checking is disabled")
		}
		cb, err := knownhosts.New(path)
		if err != nil {
			return nil, release, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKey = cb
	}
	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         opts.DialTimeout,
	}, release, nil
}

// sshStream joins the subsystem pipes and tears down session and client together.
type sshStream struct {
	io.Reader
	io.Writer
	session *ssh.Session
	client  *ssh.Client
	once    sync.Once
	err     error
}

func (s *sshStream) Close() error {
	s.once.Do(func() {
		_ = s.session.Close()
		s.err = s.client.Close()
	})
	return s.err
}

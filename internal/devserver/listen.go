package devserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	gliderssh "github.com/gliderlabs/ssh"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/ssh"
	"google.golang.org/grpc"
	grpcpeer "google.golang.org/grpc/peer"

	"pkt.systems/hermes/internal/transport"
)

const shutdownGrace = 2 * time.Second

// ListenAndServe binds every configured listener and serves until ctx ends or
// one listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	type binding struct {
		kind transport.Kind
		addr string
	}
	bindings := []binding{
		{kind: transport.KindTCP, addr: s.cfg.TCPAddr},
		{kind: transport.KindSSH, addr: s.cfg.SSHAddr},
		{kind: transport.KindGRPC, addr: s.cfg.GRPCAddr},
		{kind: transport.KindWebSocket, addr: s.cfg.WebSocketAddr},
	}
	type bound struct {
		kind transport.Kind
		ln   net.Listener
	}
	var listeners []bound
	for _, b := range bindings {
		if b.addr == "" {
			continue
		}
		ln, err := net.Listen("tcp", b.addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.ln.Close()
			}
			return fmt.Errorf("listen %s on %s: %w", b.kind, b.addr, err)
		}
		listeners = append(listeners, bound{kind: b.kind, ln: ln})
	}
	if len(listeners) == 0 {
		return errors.New("no devserver listeners configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, len(listeners))
	var wg sync.WaitGroup
	for _, l := range listeners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Serve(runCtx, l.kind, l.ln); err != nil {
				errCh <- fmt.Errorf("%s listener: %w", l.kind, err)
			}
		}()
	}

	var err error
	select {
	case <-runCtx.Done():
	case err = <-errCh:
	}
	cancel()
	wg.Wait()
	return err
}

// Serve accepts connections of kind on ln until ctx ends. ln is closed on return.
func (s *Server) Serve(ctx context.Context, kind transport.Kind, ln net.Listener) error {
	s.logger.Info("devserver listening", "transport", kind, "addr", ln.Addr().String())
	switch kind {
	case transport.KindTCP:
		return s.serveTCP(ctx, ln)
	case transport.KindSSH:
		return s.serveSSH(ctx, ln)
	case transport.KindGRPC:
		return s.serveGRPC(ctx, ln)
	case transport.KindWebSocket:
		return s.serveWebSocket(ctx, ln)
	default:
		_ = ln.Close()
		return fmt.Errorf("%w: %q", transport.ErrUnsupportedKind, kind)
	}
}

func (s *Server) serveTCP(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	var wg sync.WaitGroup
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.ServeConn(ctx, transport.NewStreamConn(nc, s.cfg.MaxFrameBytes), transport.KindTCP, nc.RemoteAddr().String())
		}()
	}
}

func (s *Server) serveSSH(ctx context.Context, ln net.Listener) error {
	hostKey, err := EnsureHostKey(s.cfg.HostKeyPath)
	if err != nil {
		_ = ln.Close()
		return err
	}
	s.logger.Info("devserver ssh host key",
		"path", s.cfg.HostKeyPath,
		"created", hostKey.Created,
		"fingerprint", hostKey.Fingerprint(),
		"known_hosts", hostKey.KnownHostsLine(ln.Addr().String()),
	)
	server := &gliderssh.Server{
		Handler: func(sess gliderssh.Session) {
			_, _ = io.WriteString(sess, "hermes: request the \""+transport.Subsystem+"\" subsystem\n")
			_ = sess.Exit(1)
		},
		SubsystemHandlers: map[string]gliderssh.SubsystemHandler{
			transport.Subsystem: s.handleSSH,
		},
		PasswordHandler: func(ctx gliderssh.Context, password string) bool {
			if s.cfg.SSHPassword == "" {
				return true
			}
			ok := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.SSHPassword)) == 1
			if !ok {
				s.logger.Warn("devserver ssh password rejected", "user", ctx.User(), "remote", ctx.RemoteAddr().String())
			}
			return ok
		},
		PublicKeyHandler: func(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
			if s.cfg.SSHPassword != "" {
				return false
			}
			s.logger.Debug("devserver ssh key accepted", "user", ctx.User(), "fingerprint", ssh.FingerprintSHA256(key))
			return true
		},
	}
	server.AddHostKey(hostKey.Signer)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleSSH(sess gliderssh.Session) {
	ctx := sess.Context()
	_ = s.ServeConn(ctx, transport.NewStreamConn(sess, s.cfg.MaxFrameBytes), transport.KindSSH, sess.RemoteAddr().String())
}

type relay struct {
	s *Server
}

func (r relay) Session(ctx context.Context, conn transport.Conn) error {
	remote := ""
	if p, ok := grpcpeer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr.String()
	}
	return r.s.ServeConn(ctx, conn, transport.KindGRPC, remote)
}

func (s *Server) serveGRPC(ctx context.Context, ln net.Listener) error {
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(s.cfg.MaxFrameBytes+64),
		grpc.MaxSendMsgSize(s.cfg.MaxFrameBytes+64),
	)
	transport.RegisterRelay(grpcServer, relay{s: s})

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(ln)
	}()
	select {
	case <-ctx.Done():
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownGrace):
			grpcServer.Stop()
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) serveWebSocket(ctx context.Context, ln net.Listener) error {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc(transport.WebSocketPath, func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("devserver websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		_ = s.ServeConn(ctx, transport.NewWebSocketConn(ws, s.cfg.MaxFrameBytes), transport.KindWebSocket, r.RemoteAddr)
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

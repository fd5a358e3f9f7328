package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gliderssh "github.com/gliderlabs/ssh"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"google.golang.org/grpc"

	"pkt.systems/hermes/internal/protocol"
)

func echo(conn Conn) error {
	ctx := context.Background()
	for {
		f, err := conn.ReadFrame(ctx)
		if err != nil {
			return err
		}
		if err := conn.WriteFrame(ctx, f); err != nil {
			return err
		}
	}
}

func exchange(t *testing.T, conn Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frames := []protocol.Frame{
		{Command: protocol.CmdGetFileList},
		{Command: protocol.CmdUpdateLineContent, Payload: "two\nlines"},
		{Command: protocol.CmdOther, Payload: "ünïcode"},
	}
	for _, f := range frames {
		if err := conn.WriteFrame(ctx, f); err != nil {
			t.Fatalf("write %s: %v", f.Command, err)
		}
	}
	for _, want := range frames {
		got, err := conn.ReadFrame(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if got != want {
			t.Fatalf("got %+v want %+v", got, want)
		}
	}
}

func TestTCPTransport(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		conn := NewStreamConn(c, 0)
		defer conn.Close()
		_ = echo(conn)
	}()

	conn, err := Dial(context.Background(), Options{Kind: KindTCP, Addr: ln.Addr().String(), DialTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	exchange(t, conn)
}

func TestWebSocketTransport(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWebSocketConn(ws, 0)
		defer conn.Close()
		_ = echo(conn)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	conn, err := Dial(context.Background(), Options{Kind: KindWebSocket, Addr: addr, DialTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	exchange(t, conn)
}

type echoRelay struct{}

func (echoRelay) Session(_ context.Context, conn Conn) error {
	_ = echo(conn)
	return nil
}

func TestGRPCTransport(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	server := grpc.NewServer()
	RegisterRelay(server, echoRelay{})
	go func() { _ = server.Serve(ln) }()
	defer server.Stop()

	conn, err := Dial(context.Background(), Options{Kind: KindGRPC, Addr: ln.Addr().String(), DialTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	exchange(t, conn)
}

func TestSSHTransport(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	server := &gliderssh.Server{
		Handler: func(s gliderssh.Session) {},
		PasswordHandler: func(ctx gliderssh.Context, password string) bool {
			return ctx.User() == "ada" && password == "secret"
		},
		SubsystemHandlers: map[string]gliderssh.SubsystemHandler{
			Subsystem: func(s gliderssh.Session) {
				_ = echo(NewStreamConn(s, 0))
			},
		},
	}
	server.AddHostKey(signer)
	go func() { _ = server.Serve(ln) }()
	defer server.Close()

	knownHostsPath := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(ln.Addr().String())}, signer.PublicKey())
	if err := os.WriteFile(knownHostsPath, []byte(line+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	conn, err := Dial(context.Background(), Options{
		Kind:        KindSSH,
		Addr:        ln.Addr().String(),
		DialTimeout: 5 * time.Second,
		SSH: SSHOptions{
			User:       "ada",
			Password:   "secret",
			KnownHosts: knownHostsPath,
		},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	exchange(t, conn)
}

func TestSSHConfigRequiresCredentials(t *testing.T) {
	_, _, err := sshClientConfig(Options{SSH: SSHOptions{User: "ada", IdentityFile: filepath.Join(t.TempDir(), "missing"), InsecureIgnoreHostKey: true}})
	if err == nil || !strings.Contains(err.Error(), "password or a readable identity") {
		t.Fatalf("expected credentials error, got %v", err)
	}
	if _, _, err := sshClientConfig(Options{SSH: SSHOptions{Password: "x", InsecureIgnoreHostKey: true}}); err == nil {
		t.Fatalf("expected missing user error")
	}
	if _, _, err := sshClientConfig(Options{SSH: SSHOptions{User: "ada", AgentSocket: filepath.Join(t.TempDir(), "none.sock"), InsecureIgnoreHostKey: true}}); err == nil {
		t.Fatalf("expected agent dial error")
	}
}

func TestSSHTransportWithAgent(t *testing.T) {
	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatal(err)
	}
	userPub, userPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	authorized, err := ssh.NewPublicKey(userPub)
	if err != nil {
		t.Fatal(err)
	}

	keyring := agent.NewKeyring()
	if err := keyring.Add(agent.AddedKey{PrivateKey: userPriv}); err != nil {
		t.Fatal(err)
	}
	sock := filepath.Join(t.TempDir(), "agent.sock")
	agentLn, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	defer agentLn.Close()
	go func() {
		for {
			c, err := agentLn.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				_ = agent.ServeAgent(keyring, c)
			}()
		}
	}()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	server := &gliderssh.Server{
		Handler: func(s gliderssh.Session) {},
		PublicKeyHandler: func(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
			return gliderssh.KeysEqual(key, authorized)
		},
		SubsystemHandlers: map[string]gliderssh.SubsystemHandler{
			Subsystem: func(s gliderssh.Session) {
				_ = echo(NewStreamConn(s, 0))
			},
		},
	}
	server.AddHostKey(hostSigner)
	go func() { _ = server.Serve(ln) }()
	defer server.Close()

	conn, err := Dial(context.Background(), Options{
		Kind:        KindSSH,
		Addr:        ln.Addr().String(),
		DialTimeout: 5 * time.Second,
		SSH: SSHOptions{
			User:                  "ada",
			AgentSocket:           sock,
			InsecureIgnoreHostKey: true,
		},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	exchange(t, conn)
}

func TestDialRejectsUnknownKind(t *testing.T) {
	_, err := Dial(context.Background(), Options{Kind: "smoke-signal", Addr: "127.0.0.1:1"})
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("expected unsupported kind, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{"": KindTCP, "TCP": KindTCP, "ssh": KindSSH, " grpc ": KindGRPC, "websocket": KindWebSocket}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseKind("udp"); !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("expected unsupported kind, got %v", err)
	}
}

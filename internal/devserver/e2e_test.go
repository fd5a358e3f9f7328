package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"pkt.systems/hermes/internal/persist"
	"pkt.systems/hermes/internal/protocol"
	"pkt.systems/hermes/internal/session"
	"pkt.systems/hermes/internal/transport"
	"pkt.systems/hermes/internal/window"
)

func serve(t *testing.T, srv *Server, kind transport.Kind) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, kind, ln)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("serve %s: %v", kind, err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("serve %s did not stop", kind)
		}
	})
	return ln.Addr().String()
}

func numberedFile(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "l%d\n", i)
	}
	return b.String()
}

func TestSessionOverTCP(t *testing.T) {
	srv, root := newTestServer(t, nil, map[string]string{"notes.txt": numberedFile(8)})
	addr := serve(t, srv, transport.KindTCP)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, transport.Options{Kind: transport.KindTCP, Addr: addr, DialTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	sess := session.New(ctx, conn, session.Options{Rows: 3, RoundTripTimeout: 5 * time.Second})
	defer sess.Terminate(session.ErrQuit)
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.WaitReady(ctx); err != nil {
		t.Fatalf("wait ready: %v", err)
	}
	if files := sess.View().Files; !reflect.DeepEqual(files, []string{"notes.txt"}) {
		t.Fatalf("unexpected listing %q", files)
	}

	press := func(keys ...session.Key) {
		t.Helper()
		for _, k := range keys {
			if _, err := sess.HandleKey(ctx, k); err != nil {
				t.Fatalf("key %+v: %v", k, err)
			}
		}
	}
	down := session.Key{Kind: session.KeyDown}
	press(session.Key{Kind: session.KeyEnter})
	press(down, down, down, down, down)
	press(session.Key{Kind: session.KeyToggleEdit}, session.Key{Kind: session.KeyRune, Rune: 'X'})
	press(session.Key{Kind: session.KeySave})

	v := sess.View()
	want := []window.Entry{{Line: 3, Text: "l3"}, {Line: 4, Text: "l4"}, {Line: 5, Text: "Xl5"}}
	if !reflect.DeepEqual(v.Window.Entries, want) {
		t.Fatalf("unexpected window %+v", v.Window.Entries)
	}
	lines := persist.SplitLines(readFile(t, filepath.Join(root, "notes.txt")))
	if len(lines) != 8 || lines[5] != "Xl5" {
		t.Fatalf("unexpected saved file %q", lines)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestSessionsSeeEachOthersEdits(t *testing.T) {
	srv, _ := newTestServer(t, nil, map[string]string{"shared.txt": numberedFile(4)})
	addr := serve(t, srv, transport.KindTCP)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	open := func() *session.Session {
		conn, err := transport.Dial(ctx, transport.Options{Kind: transport.KindTCP, Addr: addr})
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		s := session.New(ctx, conn, session.Options{Rows: 4, RoundTripTimeout: 5 * time.Second})
		t.Cleanup(func() { s.Terminate(session.ErrQuit) })
		if err := s.Start(ctx); err != nil {
			t.Fatalf("start: %v", err)
		}
		if err := s.WaitReady(ctx); err != nil {
			t.Fatalf("wait ready: %v", err)
		}
		if _, err := s.HandleKey(ctx, session.Key{Kind: session.KeyEnter}); err != nil {
			t.Fatalf("open: %v", err)
		}
		return s
	}
	writer := open()
	viewer := open()

	for _, k := range []session.Key{
		{Kind: session.KeyToggleEdit},
		{Kind: session.KeyRune, Rune: '!'},
		{Kind: session.KeyEnter},
	} {
		if _, err := writer.HandleKey(ctx, k); err != nil {
			t.Fatalf("key: %v", err)
		}
	}

	want := []window.Entry{{Line: 0, Text: "!"}, {Line: 1, Text: "l0"}, {Line: 2, Text: "l1"}, {Line: 3, Text: "l2"}}
	deadline := time.Now().Add(5 * time.Second)
	for {
		v := viewer.View()
		if reflect.DeepEqual(v.Window.Entries, want) && v.Window.Total == 5 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("viewer window %+v total %d", v.Window.Entries, v.Window.Total)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTransportsServeFileList(t *testing.T) {
	for _, kind := range []transport.Kind{transport.KindTCP, transport.KindSSH, transport.KindGRPC, transport.KindWebSocket} {
		t.Run(string(kind), func(t *testing.T) {
			srv, _ := newTestServer(t, nil, map[string]string{"a.txt": "a\n"})
			addr := serve(t, srv, kind)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			conn, err := transport.Dial(ctx, transport.Options{
				Kind:        kind,
				Addr:        addr,
				DialTimeout: 5 * time.Second,
				SSH: transport.SSHOptions{
					User:                  "dev",
					Password:              "secret",
					InsecureIgnoreHostKey: true,
				},
			})
			if err != nil {
				t.Fatalf("dial: %v", err)
			}
			defer conn.Close()
			if err := protocol.NewWriter(conn).Send(ctx, protocol.ListFiles{}); err != nil {
				t.Fatalf("send: %v", err)
			}
			msg, err := protocol.NewReader(conn).ReadMessage(ctx)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !reflect.DeepEqual(msg, protocol.FileList{Names: []string{"a.txt"}}) {
				t.Fatalf("unexpected reply %#v", msg)
			}
		})
	}
}

func TestSSHRejectsWrongPassword(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	addr := serve(t, srv, transport.KindSSH)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := transport.Dial(ctx, transport.Options{
		Kind: transport.KindSSH,
		Addr: addr,
		SSH: transport.SSHOptions{
			User:                  "dev",
			Password:              "wrong",
			InsecureIgnoreHostKey: true,
		},
	})
	if err == nil {
		t.Fatalf("expected authentication failure")
	}
}

func TestServeRejectsUnknownKind(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := srv.Serve(context.Background(), transport.Kind("carrier-pigeon"), ln); !errors.Is(err, transport.ErrUnsupportedKind) {
		t.Fatalf("expected unsupported kind, got %v", err)
	}
}

func TestListenAndServeRequiresListener(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	if err := srv.ListenAndServe(context.Background()); err == nil {
		t.Fatalf("expected error without listeners")
	}
}

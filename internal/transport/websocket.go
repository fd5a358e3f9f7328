package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"pkt.systems/hermes/internal/protocol"
)

// WebSocketPath is the HTTP path serving the protocol.
const WebSocketPath = "/session"

func dialWebSocket(ctx context.Context, opts Options) (Conn, error) {
	target := opts.Addr
	if !strings.Contains(target, "://") {
		target = "ws://" + target + WebSocketPath
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.DialTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", target, err)
	}
	return NewWebSocketConn(ws, opts.MaxFrameBytes), nil
}

// NewWebSocketConn carries one frame per binary message on ws.
func NewWebSocketConn(ws *websocket.Conn, maxFrameBytes int) Conn {
	if maxFrameBytes <= 0 {
		maxFrameBytes = protocol.DefaultMaxFrameBytes
	}
	ws.SetReadLimit(int64(maxFrameBytes))
	return &wsConn{ws: ws, max: maxFrameBytes}
}

type wsConn struct {
	ws  *websocket.Conn
	max int
	wmu sync.Mutex
}

func (c *wsConn) ReadFrame(ctx context.Context) (protocol.Frame, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Frame{}, err
	}
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		if errors.Is(err, websocket.ErrReadLimit) {
			return protocol.Frame{}, fmt.Errorf("%w: exceeds %d bytes", protocol.ErrFrameTooLarge, c.max)
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return protocol.Frame{}, io.EOF
		}
		return protocol.Frame{}, err
	}
	if mt != websocket.BinaryMessage {
		return protocol.Frame{}, fmt.Errorf("%w: websocket message type %d", protocol.ErrMalformedFrame, mt)
	}
	return protocol.UnmarshalBinary(data)
}

func (c *wsConn) WriteFrame(ctx context.Context, f protocol.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := protocol.MarshalBinary(f)
	if err := checkBinarySize(data, c.max); err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	return c.ws.Close()
}

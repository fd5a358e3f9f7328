package transport

import (
	"context"
	"net"
)

func dialTCP(ctx context.Context, opts Options) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, err
	}
	return NewStreamConn(conn, opts.MaxFrameBytes), nil
}

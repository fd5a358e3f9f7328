package transport

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"pkt.systems/hermes/internal/protocol"
)

const relaySessionMethod = "/hermes.Relay/Session"

// RelayServer serves one bidirectional frame stream per client. ctx ends
// with the stream.
type RelayServer interface {
	Session(ctx context.Context, conn Conn) error
}

var relayServiceDesc = grpc.ServiceDesc{
	ServiceName: "hermes.Relay",
	HandlerType: (*RelayServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Session",
			Handler:       relaySessionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "hermes/relay.proto",
}

// RegisterRelay exposes srv on a gRPC server.
func RegisterRelay(s grpc.ServiceRegistrar, srv RelayServer) {
	s.RegisterService(&relayServiceDesc, srv)
}

func relaySessionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(RelayServer).Session(stream.Context(), &grpcConn{stream: stream, max: protocol.DefaultMaxFrameBytes})
}

func dialGRPC(ctx context.Context, opts Options) (Conn, error) {
	cc, err := grpc.NewClient(
		opts.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(opts.MaxFrameBytes+64),
			grpc.MaxCallSendMsgSize(opts.MaxFrameBytes+64),
		),
	)
	if err != nil {
		return nil, err
	}
	// The stream outlives the dial context; Close cancels it.
	streamCtx, cancel := context.WithCancel(context.Background())
	type result struct {
		stream grpc.ClientStream
		err    error
	}
	done := make(chan result, 1)
	go func() {
		stream, err := cc.NewStream(streamCtx, &relayServiceDesc.Streams[0], relaySessionMethod, grpc.WaitForReady(true))
		done <- result{stream: stream, err: err}
	}()
	select {
	case <-ctx.Done():
		cancel()
		_ = cc.Close()
		return nil, fmt.Errorf("grpc dial: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			cancel()
			_ = cc.Close()
			return nil, fmt.Errorf("grpc stream: %w", res.err)
		}
		return &grpcConn{stream: res.stream, max: opts.MaxFrameBytes, cancel: cancel, cc: cc}, nil
	}
}

type grpcStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

// grpcConn carries one frame per wrapperspb.BytesValue.
type grpcConn struct {
	stream grpcStream
	max    int
	cancel context.CancelFunc
	cc     *grpc.ClientConn

	wmu  sync.Mutex
	once sync.Once
}

func (c *grpcConn) ReadFrame(ctx context.Context) (protocol.Frame, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Frame{}, err
	}
	var msg wrapperspb.BytesValue
	if err := c.stream.RecvMsg(&msg); err != nil {
		return protocol.Frame{}, err
	}
	if err := checkBinarySize(msg.GetValue(), c.max); err != nil {
		return protocol.Frame{}, err
	}
	return protocol.UnmarshalBinary(msg.GetValue())
}

func (c *grpcConn) WriteFrame(ctx context.Context, f protocol.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := protocol.MarshalBinary(f)
	if err := checkBinarySize(data, c.max); err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.stream.SendMsg(wrapperspb.Bytes(data))
}

// Close ends a client stream. Server-side streams end when the handler returns.
func (c *grpcConn) Close() error {
	var err error
	c.once.Do(func() {
		if cs, ok := c.stream.(grpc.ClientStream); ok {
			c.wmu.Lock()
			_ = cs.CloseSend()
			c.wmu.Unlock()
		}
		if c.cancel != nil {
			c.cancel()
		}
		if c.cc != nil {
			err = c.cc.Close()
		}
	})
	return err
}

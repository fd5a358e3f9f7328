package logx

import (
	"context"

	"pkt.systems/pslog"
)

type contextKey int

const (
	connKey contextKey = iota
	fileKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithConn annotates the logger with the connection id if present.
func WithConn(ctx context.Context, connID string) pslog.Logger {
	log := pslog.Ctx(ctx)
	if connID != "" {
		if current, ok := ctx.Value(connKey).(string); ok && current == connID {
			return log
		}
		log = log.With("conn", connID)
	}
	return log
}

// WithConnFile annotates the logger with connection and file identifiers.
func WithConnFile(ctx context.Context, connID, file string) pslog.Logger {
	log := WithConn(ctx, connID)
	if file != "" {
		if current, ok := ctx.Value(fileKey).(string); ok && current == file {
			return log
		}
		log = log.With("file", file)
	}
	return log
}

// WithRemote annotates the logger with the transport kind and peer address when available.
func WithRemote(log pslog.Logger, transport, remote string) pslog.Logger {
	if transport != "" {
		log = log.With("transport", transport)
	}
	if remote != "" {
		log = log.With("remote", remote)
	}
	return log
}

// ContextWithConn stores the connection marker on the context for log de-duplication.
func ContextWithConn(ctx context.Context, connID string) context.Context {
	if ctx == nil || connID == "" {
		return ctx
	}
	return context.WithValue(ctx, connKey, connID)
}

// ContextWithFile stores the file marker on the context for log de-duplication.
func ContextWithFile(ctx context.Context, file string) context.Context {
	if ctx == nil || file == "" {
		return ctx
	}
	return context.WithValue(ctx, fileKey, file)
}

// ContextWithConnLogger attaches the logger and connection marker to the context.
func ContextWithConnLogger(ctx context.Context, log pslog.Logger, connID string) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithConn(ctx, connID)
}

// ContextWithFileLogger attaches the logger and file marker to the context.
func ContextWithFileLogger(ctx context.Context, log pslog.Logger, file string) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithFile(ctx, file)
}

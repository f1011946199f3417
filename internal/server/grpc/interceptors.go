package grpcserver

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// requestIDKey is the metadata key shared with the HTTP X-Request-ID header.
const requestIDKey = "x-request-id"

// callFields describes a call for logs: method, peer and request id. No payloads.
func callFields(ctx context.Context, method string) []zap.Field {
	fields := []zap.Field{zap.String("method", method)}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		fields = append(fields, zap.String("peer", p.Addr.String()))
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(requestIDKey); len(v) > 0 {
			fields = append(fields, zap.String("request_id", v[0]))
		}
	}
	return fields
}

func logCall(log *zap.Logger, ctx context.Context, method string, start time.Time, err error) {
	code := status.Code(err)
	lvl := zap.DebugLevel
	if code != codes.OK {
		lvl = zap.WarnLevel
	}
	fields := append(callFields(ctx, method),
		zap.String("code", code.String()),
		zap.Duration("dur", time.Since(start)),
	)
	log.Log(lvl, "grpc", fields...)
}

func logPanic(log *zap.Logger, ctx context.Context, method string, r any) error {
	fields := append(callFields(ctx, method),
		zap.Any("reason", r),
		zap.ByteString("stack", debug.Stack()),
	)
	log.Error("panic", fields...)
	return status.Error(codes.Internal, "internal error")
}

// LoggingUnary logs every unary call at debug level, failures at warn.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		logCall(log, ctx, info.FullMethod, start, err)
		return resp, err
	}
}

// RecoverUnary turns a handler panic into codes.Internal.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = logPanic(log, ctx, info.FullMethod, r)
			}
		}()
		return next(ctx, req)
	}
}

// LoggingStream logs a stream (health Watch) once it ends.
func LoggingStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		start := time.Now()
		err := next(srv, ss)
		logCall(log, ss.Context(), info.FullMethod, start, err)
		return err
	}
}

// RecoverStream turns a stream handler panic into codes.Internal.
func RecoverStream(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = logPanic(log, ss.Context(), info.FullMethod, r)
			}
		}()
		return next(srv, ss)
	}
}

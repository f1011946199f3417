// Package grpcserver exposes the gRPC health service of the keygate process.
package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for the account API.
const ServiceName = "keygate.v1.Accounts"

// Pinger reports storage availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health serves grpc.health.v1 and tracks storage availability.
type Health struct {
	srv    *grpc.Server
	hs     *health.Server
	db     Pinger
	log    *zap.Logger
	period time.Duration
}

// NewHealth builds a gRPC server with logging/recovery interceptors and the health service registered.
func NewHealth(db Pinger, log *zap.Logger, period time.Duration, dev bool) *Health {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
		grpc.ChainStreamInterceptor(
			RecoverStream(log),
			LoggingStream(log),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	if dev {
		reflection.Register(srv)
	}
	return &Health{srv: srv, hs: hs, db: db, log: log, period: period}
}

// Server returns the underlying gRPC server.
func (h *Health) Server() *grpc.Server { return h.srv }

// Check pings storage once and updates the serving status of ServiceName and the overall server.
func (h *Health) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.db.Ping(pctx); err != nil {
		h.log.Warn("storage ping failed", zap.Error(err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
	return st
}

// Watch runs Check every period until ctx is done, then marks everything NOT_SERVING.
func (h *Health) Watch(ctx context.Context) {
	h.Check(ctx)
	t := time.NewTicker(h.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.hs.Shutdown()
			return
		case <-t.C:
			h.Check(ctx)
		}
	}
}

// Stop drains in-flight RPCs, forcing a stop once timeout elapses.
func (h *Health) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		h.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		h.srv.Stop()
	}
}

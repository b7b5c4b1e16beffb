// Package server provides the gRPC health endpoint and the HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceName is the name the health server reports readiness under.
const ServiceName = "faq.v1.DialogService"

// GRPCServer serves the standard health protocol so orchestrators can probe
// the service over gRPC.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	logger   *slog.Logger
	port     int
}

// GRPCServerConfig holds configuration for the gRPC server
type GRPCServerConfig struct {
	Port   int
	Logger *slog.Logger
}

// NewGRPCServer creates a new gRPC server with interceptors. It reports
// NOT_SERVING until SetServing(true) is called.
func NewGRPCServer(cfg GRPCServerConfig) *GRPCServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recoveryUnaryInterceptor(logger),
			loggingUnaryInterceptor(logger),
		),
	)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, hs)

	// Enable reflection for development/debugging
	reflection.Register(server)

	return &GRPCServer{
		server: server,
		health: hs,
		logger: logger,
		port:   cfg.Port,
	}
}

// SetServing flips the reported health of the service.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
	s.health.SetServingStatus("", st)
}

// Start starts the gRPC server
func (s *GRPCServer) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener.
func (s *GRPCServer) Serve(listener net.Listener) error {
	s.listener = listener
	s.logger.Info("starting gRPC server", "address", listener.Addr().String())

	if err := s.server.Serve(listener); err != nil {
		return fmt.Errorf("gRPC server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the gRPC server
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gRPC server")
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info("gRPC server stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("graceful shutdown timeout, forcing stop")
		s.server.Stop()
		return ctx.Err()
	}
}

// loggingUnaryInterceptor logs unary RPC calls
func loggingUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		code := status.Code(err)
		level := slog.LevelDebug
		if code != codes.OK {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "gRPC request",
			"method", info.FullMethod,
			"code", code.String(),
			"duration", time.Since(start),
			"error", err,
		)
		return resp, err
	}
}

// recoveryUnaryInterceptor recovers from panics in unary handlers
func recoveryUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in gRPC handler",
					"method", info.FullMethod,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()

		return handler(ctx, req)
	}
}

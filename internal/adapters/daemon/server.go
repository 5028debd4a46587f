package daemon

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/dval/internal/engine/utility"
	"go.trai.ch/zerr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// sizer is implemented by caches that can report their entry count.
type sizer interface {
	Len() int
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithEvaluator additionally serves evaluations of w, turning the daemon into a worker.
func WithEvaluator(w *utility.Wrapper) ServerOption {
	return func(s *Server) {
		s.evaluator = w
	}
}

// WithServerMetrics records cache lookups served by the daemon.
func WithServerMetrics(m ports.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server serves the shared result cache, and optionally evaluations, over gRPC.
type Server struct {
	cache      ports.ResultCache
	evaluator  *utility.Wrapper
	lifecycle  *Lifecycle
	logger     ports.Logger
	metrics    ports.Metrics
	health     *health.Server
	grpcServer *grpc.Server
}

var (
	_ cacheService     = (*Server)(nil)
	_ evaluatorService = (*Server)(nil)
)

// NewServer creates a daemon serving c.
func NewServer(c ports.ResultCache, lifecycle *Lifecycle, logger ports.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cache:      c,
		lifecycle:  lifecycle,
		logger:     logger,
		health:     health.NewServer(),
		grpcServer: grpc.NewServer(grpc.ChainUnaryInterceptor(recoverUnary(logger))),
	}
	for _, opt := range opts {
		opt(s)
	}

	registerResultCacheServer(s.grpcServer, s)
	s.health.SetServingStatus(CacheServiceName, healthpb.HealthCheckResponse_SERVING)
	if s.evaluator != nil {
		registerEvaluatorServer(s.grpcServer, s)
		s.health.SetServingStatus(EvaluatorServiceName, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	return s
}

// ListenAndServe listens on addr and serves until ctx is done or the lifecycle shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to listen"), "address", addr)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done or the lifecycle shuts down.
// A lifecycle shutdown returns nil; a cancelled ctx returns its error.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	role := "cache"
	if s.evaluator != nil {
		role = fmt.Sprintf("cache and worker for %s", s.evaluator.Identity())
	}
	s.logger.Info(fmt.Sprintf("daemon serving %s on %s", role, lis.Addr()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.stop()
		return ctx.Err()
	case <-s.lifecycle.ShutdownChan():
		s.logger.Info("daemon idle, shutting down")
		s.stop()
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return zerr.Wrap(err, "daemon stopped")
	}
}

func (s *Server) stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// Get implements the cache Get RPC. A miss is reported as NotFound.
func (s *Server) Get(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	s.lifecycle.Touch()

	entry, err := s.cache.Get(ctx, domain.Fingerprint(req.GetValue()))
	if err != nil {
		s.recordLookup(ctx, "error")
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	if entry == nil {
		s.recordLookup(ctx, "miss")
		return nil, status.Error(codes.NotFound, "cache miss")
	}
	s.recordLookup(ctx, "hit")

	out, err := encodeEntry(*entry)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Put implements the cache Put RPC.
func (s *Server) Put(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	s.lifecycle.Touch()

	entry, err := decodeEntry(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.cache.Put(ctx, entry); err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &emptypb.Empty{}, nil
}

// Clear implements the cache Clear RPC.
func (s *Server) Clear(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.lifecycle.Touch()

	if err := s.cache.Clear(ctx); err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	s.logger.Info("cache cleared by client")
	return &emptypb.Empty{}, nil
}

// Stats implements the cache Stats RPC.
func (s *Server) Stats(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.lifecycle.Touch()

	entries := -1
	if sz, ok := s.cache.(sizer); ok {
		entries = sz.Len()
	}
	out, err := structpb.NewStruct(map[string]any{
		fieldEntries: entries,
		fieldUptime:  s.lifecycle.Uptime().String(),
		fieldIdle:    s.lifecycle.IdleRemaining().String(),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Evaluate implements the worker Evaluate RPC.
// Calls for another utility or utility config fail with FailedPrecondition,
// indices outside the worker's dataset with InvalidArgument.
func (s *Server) Evaluate(ctx context.Context, req *structpb.Struct) (*wrapperspb.DoubleValue, error) {
	s.lifecycle.Touch()

	if s.evaluator == nil {
		return nil, status.Error(codes.Unimplemented, "daemon is not a worker")
	}

	call := decodeCall(req)
	if call.UtilityID != s.evaluator.Identity() || !maps.Equal(call.Config, s.evaluator.Config()) {
		return nil, status.Errorf(codes.FailedPrecondition, "%s: worker serves %s, call requested %s",
			domain.ErrUtilityMismatch.Error(), s.evaluator.Identity(), call.UtilityID)
	}
	if err := s.evaluator.Validate(call.Subset); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	score, err := s.evaluator.Evaluate(ctx, call.Subset)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Error(codes.Aborted, err.Error())
	}
	return wrapperspb.Double(score), nil
}

// recoverUnary keeps the daemon serving when a handler panics; the call fails with Internal.
func recoverUnary(logger ports.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(zerr.With(zerr.With(zerr.Wrap(domain.ErrWorkPanicked, "rpc handler panicked"),
					"method", info.FullMethod), "panic", fmt.Sprint(r)))
				resp, err = nil, status.Errorf(codes.Internal, "%s: %v", domain.ErrWorkPanicked.Error(), r)
			}
		}()
		return handler(ctx, req)
	}
}

func (s *Server) recordLookup(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.CacheLookup(ctx, outcome)
	}
}

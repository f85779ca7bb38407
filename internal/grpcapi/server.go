package grpcapi

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/nixpig/jobdash/internal/inspect"
	"github.com/nixpig/jobdash/internal/jobmanager"
	"github.com/nixpig/jobdash/internal/router"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/peer"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Server serves the inspection and health services for a router.Router.
type Server struct {
	router *router.Router
	logger *slog.Logger
	tls    *tls.Config
}

var _ InspectorServer = (*Server)(nil)

// NewServer creates a Server. tlsConfig may be nil to serve without TLS.
func NewServer(r *router.Router, logger *slog.Logger, tlsConfig *tls.Config) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{router: r, logger: logger, tls: tlsConfig}
}

// Serve serves gRPC on listener until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(contextCheckUnaryInterceptor, s.logUnaryInterceptor),
	}

	if s.tls != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(s.tls)))
	}

	grpcServer := grpc.NewServer(opts...)

	RegisterInspectorServer(grpcServer, s)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	errCh := make(chan error, 1)

	go func() {
		errCh <- grpcServer.Serve(listener)
	}()

	s.logger.Info("grpc server listening", "addr", listener.Addr().String(), "tls", s.tls != nil)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	healthServer.Shutdown()
	grpcServer.GracefulStop()

	if err := <-errCh; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}

	return nil
}

func (s *Server) ListRoutes(
	ctx context.Context,
	req *emptypb.Empty,
) (*structpb.Struct, error) {
	return inspect.Routes(s.router.Routes(), s.router.Descriptors()), nil
}

func (s *Server) ListJobs(
	ctx context.Context,
	req *emptypb.Empty,
) (*structpb.Struct, error) {
	return inspect.Jobs(s.router.Manager().Jobs()), nil
}

func (s *Server) GetJob(
	ctx context.Context,
	req *wrapperspb.UInt64Value,
) (*structpb.Struct, error) {
	if req.GetValue() == 0 {
		return nil, status.Error(codes.InvalidArgument, "id is empty")
	}

	job, err := s.router.Manager().GetJob(req.GetValue())
	if err != nil {
		return nil, s.mapError("get job", err)
	}

	return inspect.JobWithResult(job.Status(), job.Result()), nil
}

func (s *Server) StopJob(
	ctx context.Context,
	req *wrapperspb.UInt64Value,
) (*emptypb.Empty, error) {
	if req.GetValue() == 0 {
		return nil, status.Error(codes.InvalidArgument, "id is empty")
	}

	if err := s.router.Manager().StopJob(req.GetValue()); err != nil {
		return nil, s.mapError("stop job", err)
	}

	s.logger.Info("job stop requested", "job_id", req.GetValue())

	return &emptypb.Empty{}, nil
}

// mapError translates jobmanager errors to gRPC errors.
func (s *Server) mapError(logMsg string, err error) error {
	switch {
	case errors.Is(err, jobmanager.ErrJobNotFound):
		s.logger.Warn(logMsg, "err", err)
		return status.Error(codes.NotFound, err.Error())

	case errors.As(err, new(jobmanager.InvalidStateError)):
		s.logger.Warn(logMsg, "err", err)
		return status.Error(codes.FailedPrecondition, err.Error())

	default:
		s.logger.Error(logMsg, "err", err)
		return status.Error(codes.Internal, "internal server error")
	}
}

// contextCheckUnaryInterceptor rejects requests with a cancelled context.
func contextCheckUnaryInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	if ctx.Err() != nil {
		return nil, status.FromContextError(ctx.Err()).Err()
	}

	return handler(ctx, req)
}

func (s *Server) logUnaryInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	start := time.Now()

	resp, err := handler(ctx, req)

	s.logger.Debug(
		"grpc request",
		"method", info.FullMethod,
		"client", clientName(ctx),
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)

	return resp, err
}

// clientName returns the common name of the verified client certificate, or
// the peer address for connections without one. It is only used in logs.
func clientName(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return ""
	}

	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok ||
		len(tlsInfo.State.VerifiedChains) == 0 ||
		len(tlsInfo.State.VerifiedChains[0]) == 0 {
		if p.Addr == nil {
			return ""
		}

		return p.Addr.String()
	}

	return tlsInfo.State.VerifiedChains[0][0].Subject.CommonName
}

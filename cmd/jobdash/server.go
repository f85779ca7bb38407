package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/nixpig/jobdash/internal/config"
	"github.com/nixpig/jobdash/internal/demojobs"
	"github.com/nixpig/jobdash/internal/grpcapi"
	"github.com/nixpig/jobdash/internal/httpserver"
	"github.com/nixpig/jobdash/internal/jobmanager"
	"github.com/nixpig/jobdash/internal/monitoring"
	"github.com/nixpig/jobdash/internal/router"
	"github.com/nixpig/jobdash/internal/tlsconfig"
	"golang.org/x/sync/errgroup"
)

type server struct {
	cfg     *config.Config
	logger  *slog.Logger
	manager *jobmanager.Manager
	router  *router.Router

	// ready, if set, is called with the bound addresses once both listeners
	// are open. grpcAddr is empty when the inspection service is disabled.
	ready func(httpAddr, grpcAddr string)
}

func newServer(cfg *config.Config, logger *slog.Logger) *server {
	manager := jobmanager.NewManager(logger)

	return &server{
		cfg:     cfg,
		logger:  logger,
		manager: manager,
		router:  router.New(cfg.Title, manager, logger),
	}
}

// run serves until ctx is done or a server fails, then stops every job.
func (s *server) run(ctx context.Context) error {
	demojobs.Register(s.router)

	tlsConfig, err := tlsconfig.SetupTLS(s.cfg.TLSConfig())
	if err != nil {
		return fmt.Errorf("load TLS config: %w", err)
	}

	httpListener, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}

	var grpcListener net.Listener

	if s.cfg.GRPCAddr != "" {
		grpcListener, err = net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			httpListener.Close()
			return fmt.Errorf("listen grpc: %w", err)
		}
	}

	// Jobs only start once nothing can fail before the shutdown below.
	if s.cfg.Monitor.Enabled {
		s.startMonitor()
	}

	if s.ready != nil {
		grpcAddr := ""
		if grpcListener != nil {
			grpcAddr = grpcListener.Addr().String()
		}

		s.ready(httpListener.Addr().String(), grpcAddr)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpserver.New(s.router, s.logger, tlsConfig).Serve(gctx, httpListener)
	})

	if grpcListener != nil {
		g.Go(func() error {
			return grpcapi.NewServer(s.router, s.logger, tlsConfig).Serve(gctx, grpcListener)
		})
	}

	serveErr := g.Wait()

	s.logger.Info("shutting down", "jobs", s.manager.Len())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.manager.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("jobs did not stop in time", "err", err)
		serveErr = errors.Join(serveErr, fmt.Errorf("shutdown jobs: %w", err))
	}

	return serveErr
}

// startMonitor starts the resource monitoring job and pins it to the status
// page. A host without procfs just runs without it.
func (s *server) startMonitor() {
	sampler, err := monitoring.NewProcSampler()
	if err != nil {
		s.logger.Warn("resource monitoring unavailable", "err", err)
		return
	}

	monitor, err := monitoring.New(sampler, monitoring.Config{
		Interval: s.cfg.Monitor.Interval,
		History:  s.cfg.Monitor.History,
	}, s.logger)
	if err != nil {
		s.logger.Warn("create monitor", "err", err)
		return
	}

	id, err := s.manager.StartJob(monitoring.JobName, nil, monitor)
	if err != nil {
		s.logger.Warn("start monitor", "err", err)
		return
	}

	s.router.PinJob(id)
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/Domenick1991/eventflow/config"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is reported by the gRPC health service.
const ServiceName = "eventflow.api"

type Servers struct {
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
	cfg        *config.Config
	log        *slog.Logger
}

func NewServers(cfg *config.Config, handler http.Handler, log *slog.Logger) *Servers {
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	return &Servers{
		grpcServer: grpcSrv,
		health:     healthSrv,
		httpServer: &http.Server{
			Addr:         cfg.HTTP.Address,
			Handler:      handler,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		},
		cfg: cfg,
		log: log,
	}
}

// Run starts the HTTP API and the gRPC health endpoint and blocks until ctx is
// canceled or one of them fails. Extra background jobs run in the same group.
func (s *Servers) Run(ctx context.Context, jobs ...func(context.Context) error) error {
	lis, err := net.Listen("tcp", s.cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", s.cfg.GRPC.Address, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("gRPC health server started", slog.String("address", s.cfg.GRPC.Address))
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
		return s.grpcServer.Serve(lis)
	})

	g.Go(func() error {
		s.log.Info("HTTP server started", slog.String("address", s.cfg.HTTP.Address))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	for _, job := range jobs {
		g.Go(func() error { return job(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Servers) shutdown() error {
	s.log.Info("shutting down servers")
	s.health.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)
	s.grpcServer.GracefulStop()
	if err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/nainya/promptvault/internal/config"
	"github.com/nainya/promptvault/internal/logger"
	"github.com/nainya/promptvault/internal/metrics"
	"github.com/nainya/promptvault/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		grpcPort int
		obsPort  int
		driver   string
		path     string
		inMemory bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the PromptVault gRPC server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}

			f := cmd.Flags()
			if f.Changed("port") {
				cfg.Server.GRPCPort = grpcPort
			}
			if f.Changed("observability-port") {
				cfg.Server.ObservabilityPort = obsPort
			}
			if f.Changed("driver") {
				cfg.Storage.Driver = driver
			}
			if f.Changed("db") {
				cfg.Storage.Path = path
			}
			if f.Changed("in-memory") {
				cfg.Storage.InMemory = inMemory
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := logger.InitGlobal(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}

	cmd.Flags().IntVar(&grpcPort, "port", 50051, "gRPC port")
	cmd.Flags().IntVar(&obsPort, "observability-port", 9090, "metrics and pprof port, 0 disables")
	cmd.Flags().StringVar(&driver, "driver", "badger", "storage driver (badger or sqlite)")
	cmd.Flags().StringVar(&path, "db", "promptvault-data", "database directory (badger) or file (sqlite)")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "keep everything in memory")
	return cmd
}

// serve runs the gRPC and observability servers until ctx is done or one of them fails
func serve(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	log.LogServerStart(cfg.Server.GRPCPort, cfg.Storage.Driver, cfg.Storage.Path)

	srv, err := server.Open(cfg, log, m)
	if err != nil {
		return err
	}
	defer srv.Close()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.Server.MaxMessageBytes),
		grpc.MaxSendMsgSize(cfg.Server.MaxMessageBytes),
		grpc.UnaryInterceptor(server.GrpcMetricsInterceptor(m, log.Component("grpc"))),
	)
	server.RegisterPromptVaultServer(grpcServer, srv)

	// Lets grpcurl list services
	reflection.Register(grpcServer)

	var obs *server.ObservabilityServer
	if cfg.Server.ObservabilityPort > 0 {
		obs = server.NewObservabilityServer(cfg.Server.ObservabilityPort, reg, srv.Ready, log.Component("observability"))
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.LogServerReady(cfg.Server.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})

	if obs != nil {
		group.Go(obs.Start)
	}

	group.Go(func() error {
		<-ctx.Done()
		log.LogServerShutdown()
		grpcServer.GracefulStop()
		if obs == nil {
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return obs.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/shop-dashboard/internal/adapter/handler"
	"github.com/rl1809/shop-dashboard/internal/config"
	"github.com/rl1809/shop-dashboard/internal/core/service"
	"github.com/rl1809/shop-dashboard/internal/logger"
	"github.com/rl1809/shop-dashboard/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

type rootOptions struct {
	configPath string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "shop-dashboard",
		Short:         "Cart and transaction service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(newServeCommand(opts), newMigrateCommand(opts))
	return root
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and seed configured products",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(opts)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.migrate(ctx); err != nil {
				return err
			}
			if err := seedProducts(ctx, b.products, cfg.Products); err != nil {
				return err
			}
			log.Info("schema applied", zap.String("driver", cfg.Store.Driver))
			return nil
		},
	}
}

func bootstrap(opts *rootOptions) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(logger.Options{Service: cfg.ServiceName, Env: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func serve(parent context.Context, opts *rootOptions) error {
	cfg, log, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer log.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	if cfg.Store.Migrate {
		if err := b.migrate(ctx); err != nil {
			return err
		}
	}
	if err := seedProducts(ctx, b.products, cfg.Products); err != nil {
		return err
	}

	cartService := service.NewCartService(b.store, b.catalog, b.cache, log, service.Options{
		MaxRetries:   cfg.Cart.MaxRetries,
		RetryBackoff: cfg.Cart.RetryBackoff,
		QueueSize:    cfg.Events.QueueSize,
	})

	workers := service.StartEventWorkers(cfg.Events.Workers, cartService.GetEventQueue(), b.recorder, log)
	log.Info("started event workers", zap.Int("count", cfg.Events.Workers))

	g, gctx := errgroup.WithContext(ctx)

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		if cfg.Env != "development" {
			gin.SetMode(gin.ReleaseMode)
		}
		httpServer = &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      handler.NewHTTPHandler(cartService, log).Router(cfg.ServiceName),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  30 * time.Second,
		}
		g.Go(func() error {
			log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
		}

		grpcServer = grpc.NewServer()
		handler.RegisterCartServiceServer(grpcServer, handler.NewGRPCHandler(cartService, log))
		healthServer := health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

		g.Go(func() error {
			log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcServer.Serve(lis); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if httpServer != nil {
			if err := httpServer.Shutdown(sctx); err != nil {
				log.Warn("HTTP shutdown", zap.Error(err))
			}
			log.Info("HTTP server stopped")
		}
		if grpcServer != nil {
			grpcServer.GracefulStop()
			log.Info("gRPC server stopped")
		}
		return nil
	})

	err = g.Wait()

	cartService.Close()
	workers.Wait()
	log.Info("event workers stopped")

	return err
}

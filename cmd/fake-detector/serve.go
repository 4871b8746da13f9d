package main

import (
	"context"
	"net"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/fake-detector/internal/config"
	"github.com/GriffinCanCode/fake-detector/internal/grpcserver"
	"github.com/GriffinCanCode/fake-detector/internal/metrics"
	"github.com/GriffinCanCode/fake-detector/internal/orchestrator"
	"github.com/GriffinCanCode/fake-detector/internal/server"
	"github.com/GriffinCanCode/fake-detector/internal/trace"
)

func serveCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve checks over gRPC, HTTP and WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "http", Usage: "HTTP/WebSocket listen address", Value: cfg.HTTPAddr},
			&cli.StringFlag{Name: "grpc", Usage: "gRPC listen address", Value: cfg.GRPCAddr},
			&cli.IntFlag{Name: "metricsPort", Usage: "Prometheus metrics port (0 disables)", Value: cfg.MetricsPort},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.IsSet("http") {
				cfg.HTTPAddr = cmd.String("http")
			}
			if cmd.IsSet("grpc") {
				cfg.GRPCAddr = cmd.String("grpc")
			}
			if cmd.IsSet("metricsPort") {
				cfg.MetricsPort = int(cmd.Int("metricsPort"))
			}
			if err := serve(ctx, cfg); err != nil {
				return cli.Exit(err.Error(), exitUsage)
			}
			return nil
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	comparer, index, err := orchestrator.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	log := trace.Logger(ctx)
	log.Info("starting fake-detector", "config", cfg.String())

	// Build the index up front so the first request does not pay for it
	if err := index.EnsureInitialized(ctx); err != nil {
		log.Warn("reference index build failed, retrying on first check", "error", err)
	}

	httpSrv := server.New(comparer)
	comparer.OnVerdict(httpSrv.Publish)
	grpcSrv := grpcserver.New(comparer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	if cfg.MetricsPort > 0 {
		m := metrics.StartServer(cfg.MetricsPort)
		defer func() { _ = m.Close() }()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return grpcSrv.Serve(lis) })
	g.Go(func() error { return httpSrv.ListenAndServe(gctx, cfg.HTTPAddr) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		grpcSrv.Stop()
		return nil
	})

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}

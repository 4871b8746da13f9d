// fake-detector - checks videos against a library of known fake frames
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/GriffinCanCode/fake-detector/internal/config"
	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
	"github.com/GriffinCanCode/fake-detector/internal/grpcclient"
	"github.com/GriffinCanCode/fake-detector/internal/orchestrator"
	"github.com/GriffinCanCode/fake-detector/internal/scan"
)

// Process exit codes
const (
	exitFake  = 1
	exitUsage = 2
	exitCheck = 3
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand(cfg).Run(ctx, os.Args); err != nil {
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			os.Exit(ec.ExitCode())
		}
		slog.Error("fake-detector failed", "error", err)
		os.Exit(exitUsage)
	}
}

func newCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "fake-detector",
		Usage:     "Detects fake video files using a series of examples",
		Version:   "1.0.0",
		ArgsUsage: "<path>",
		Flags:     detectorFlags(cfg),
		Description: "Checks a single video, or every video under a directory, against the examples.\n" +
			"Exit status for a single file: 0 not a fake, 1 fake, 2 usage or configuration error,\n" +
			"3 check failed. A directory run exits 0 once every video was attempted.",
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if err := applyFlags(cmd, cfg); err != nil {
				return ctx, cli.Exit(err.Error(), exitUsage)
			}
			if err := setupLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
				return ctx, cli.Exit(err.Error(), exitUsage)
			}
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return detect(ctx, cfg, cmd.Args().First())
		},
		Commands: []*cli.Command{serveCommand(cfg)},
	}
}

func detectorFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "examples", Aliases: []string{"e"}, Usage: "path to examples", Value: cfg.ExamplesDir},
		&cli.StringFlag{Name: "threshold", Aliases: []string{"t"}, Usage: "number of bits in hash which can be different", Value: fmt.Sprint(cfg.Threshold)},
		&cli.StringFlag{Name: "workingDirectory", Aliases: []string{"w"}, Usage: "path to store temporary files", Value: cfg.WorkingDir},
		&cli.StringFlag{Name: "exampleExtensions", Aliases: []string{"i"}, Usage: "accepted extensions for examples", Value: strings.Join(cfg.ExampleExtensions, ",")},
		&cli.StringFlag{Name: "videoExtensions", Aliases: []string{"x"}, Usage: "accepted extensions for video files", Value: strings.Join(cfg.VideoExtensions, ",")},
		&cli.StringFlag{Name: "logLevel", Aliases: []string{"l"}, Usage: "log level (debug, info, warn, error)", Value: cfg.LogLevel},
		&cli.StringFlag{Name: "logFormat", Usage: "log format (text, json)", Value: cfg.LogFormat},
		&cli.StringFlag{Name: "hashAlgorithm", Usage: "perceptual hash (phash, ahash, dhash)", Value: cfg.HashAlgorithm},
		&cli.IntFlag{Name: "hashSize", Usage: "hash resolution, a power of two up to 32; the fingerprint has size*size bits", Value: cfg.HashSize},
		&cli.IntFlag{Name: "workers", Usage: "videos checked in parallel in batch mode", Value: cfg.BatchWorkers},
		&cli.DurationFlag{Name: "timeout", Usage: "limit for each ffmpeg/ffprobe run (0 disables)", Value: cfg.ToolTimeout},
		&cli.StringFlag{Name: "remote", Usage: "address of a fake-detector server to check against instead of local examples", Value: cfg.RemoteAddr},
	}
}

// applyFlags overrides the environment configuration with flags given on the command line.
func applyFlags(cmd *cli.Command, cfg *config.Config) error {
	if cmd.IsSet("examples") {
		cfg.ExamplesDir = cmd.String("examples")
	}
	if cmd.IsSet("threshold") {
		n, err := config.ParseThreshold(cmd.String("threshold"))
		if err != nil {
			return err
		}
		cfg.Threshold = n
	}
	if cmd.IsSet("workingDirectory") {
		cfg.WorkingDir = cmd.String("workingDirectory")
	}
	if cmd.IsSet("exampleExtensions") {
		cfg.ExampleExtensions = config.ParseExtensions(cmd.String("exampleExtensions"))
	}
	if cmd.IsSet("videoExtensions") {
		cfg.VideoExtensions = config.ParseExtensions(cmd.String("videoExtensions"))
	}
	if cmd.IsSet("logLevel") {
		cfg.LogLevel = cmd.String("logLevel")
	}
	if cmd.IsSet("logFormat") {
		cfg.LogFormat = cmd.String("logFormat")
	}
	if cmd.IsSet("hashAlgorithm") {
		cfg.HashAlgorithm = cmd.String("hashAlgorithm")
	}
	if cmd.IsSet("hashSize") {
		cfg.HashSize = int(cmd.Int("hashSize"))
	}
	if cmd.IsSet("workers") {
		cfg.BatchWorkers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("timeout") {
		cfg.ToolTimeout = cmd.Duration("timeout")
	}
	if cmd.IsSet("remote") {
		cfg.RemoteAddr = cmd.String("remote")
	}
	return nil
}

func setupLogger(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return apperrors.Newf(apperrors.CodeConfigInvalid, "unknown log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return apperrors.Newf(apperrors.CodeConfigInvalid, "unknown log format %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func detect(ctx context.Context, cfg *config.Config, arg string) error {
	input, err := config.ParsePath(arg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	c, closeFn, err := newChecker(ctx, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer closeFn()

	info, err := os.Stat(input)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if info.IsDir() {
		return detectBatch(ctx, cfg, c, input)
	}

	v, err := c.IsFake(ctx, input)
	if err != nil {
		slog.Error("check failed", "file", input, "code", apperrors.CodeOf(err), "error", err)
		return cli.Exit("", exitCheck)
	}
	if v.Fake {
		return cli.Exit("", exitFake)
	}
	return nil
}

func detectBatch(ctx context.Context, cfg *config.Config, c scan.Checker, root string) error {
	slog.Debug("recursively scanning for files", "dir", root)
	files, seen, err := scan.Walk(root, cfg.VideoExtensions)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	slog.Info(fmt.Sprintf("found %d files to process (%d before filtering)", len(files), seen))

	sum, err := scan.NewRunner(c, cfg.BatchWorkers).Run(ctx, files)
	slog.Info("batch complete", "total", sum.Total, "fakes", sum.Fakes, "clean", sum.Clean, "failed", sum.Failed)
	if err != nil {
		return cli.Exit(err.Error(), exitCheck)
	}
	return nil
}

// newChecker returns the remote client when an address is configured, else a local comparer.
func newChecker(ctx context.Context, cfg *config.Config) (scan.Checker, func(), error) {
	if cfg.RemoteAddr != "" {
		client, err := grpcclient.New(cfg.RemoteAddr, grpcclient.DefaultConfig())
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		slog.Debug("using remote detector", "addr", cfg.RemoteAddr)
		return client, func() { _ = client.Close() }, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	slog.Debug(fmt.Sprintf("using examples from %q", cfg.ExamplesDir))
	comparer, _, err := orchestrator.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	return comparer, func() {}, nil
}

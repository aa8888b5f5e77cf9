// Command ftpd serves a vfs location over anonymous FTP.
//
// Usage:
//
//	ftpd -root file:///srv/ftp/ -addr :2121
//	ftpd -config /etc/ftpd.yaml
//
// Flags override values from the configuration file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/gonzalop/ftpd/internal/config"
	"github.com/gonzalop/ftpd/metrics"
	"github.com/gonzalop/ftpd/server"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func main() {
	if err := run(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "ftpd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a YAML configuration file")
		addr       = flag.String("addr", "", "control connection listen address")
		root       = flag.String("root", "", "vfs URI served as / (file://, mem://, s3://, ...)")
		readOnly   = flag.Bool("read-only", false, "reject STOR and DELE")
		publicHost = flag.String("public-host", "", "IPv4 address advertised in PASV replies")
		logLevel   = flag.String("log-level", "", "debug, info, warn or error")
		logFormat  = flag.String("log-format", "", "text or json")
		withStats  = flag.Bool("metrics", false, "print OpenTelemetry metrics to stdout")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Address = *addr
		case "root":
			cfg.Storage.Root = *root
		case "read-only":
			cfg.Storage.ReadOnly = *readOnly
		case "public-host":
			cfg.Passive.PublicHost = *publicHost
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-format":
			cfg.Logging.Format = *logFormat
		case "metrics":
			cfg.Metrics.Enabled = *withStats
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	driver, err := server.NewVFSDriver(cfg.Storage.Root, server.WithReadOnly(cfg.Storage.ReadOnly))
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithDriver(driver),
		server.WithLogger(logger),
		server.WithWelcomeMessage(cfg.Server.WelcomeMessage),
		server.WithSystemName(cfg.Server.SystemName),
		server.WithMaxConnections(cfg.Server.MaxConnections),
		server.WithReadTimeout(cfg.Server.ReadTimeout),
		server.WithWriteTimeout(cfg.Server.WriteTimeout),
		server.WithPassivePortRange(cfg.Passive.MinPort, cfg.Passive.MaxPort),
		server.WithDataTimeout(cfg.Transfer.DataTimeout),
		server.WithBandwidthLimit(cfg.Transfer.BandwidthLimit),
	}
	if cfg.Passive.PublicHost != "" {
		opts = append(opts, server.WithPublicHost(cfg.Passive.PublicHost))
	}

	if cfg.Transfer.Log != "" {
		f, err := os.OpenFile(cfg.Transfer.Log, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open transfer log: %w", err)
		}
		defer f.Close()
		opts = append(opts, server.WithTransferLog(f))
	}

	if cfg.Metrics.Enabled {
		provider, err := newMeterProvider(cfg.Metrics)
		if err != nil {
			return err
		}
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				logger.Warn("metrics shutdown failed", "error", err)
			}
		}()

		collector, err := metrics.NewOTelCollector(provider.Meter("github.com/gonzalop/ftpd"))
		if err != nil {
			return err
		}
		opts = append(opts, server.WithMetrics(collector))
	}

	srv, err := server.NewServer(cfg.Server.Address, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logger.Info("shutdown requested", "timeout", cfg.Server.ShutdownTimeout)
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(sctx)
	}()

	printBanner(os.Stdout, cfg)

	if err := srv.ListenAndServe(); !errors.Is(err, server.ErrServerClosed) {
		return err
	}
	return <-shutdownErr
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.Level))

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newMeterProvider(cfg config.MetricsConfig) (*sdkmetric.MeterProvider, error) {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("create metrics exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), nil
}

func printBanner(w io.Writer, cfg *config.Config) {
	title := color.New(color.FgCyan, color.Bold)
	key := color.New(color.FgYellow)

	title.Fprintln(w, "ftpd: anonymous FTP server")
	key.Fprint(w, "  listen:  ")
	fmt.Fprintln(w, cfg.Server.Address)
	key.Fprint(w, "  root:    ")
	fmt.Fprintln(w, cfg.Storage.Root)
	key.Fprint(w, "  passive: ")
	fmt.Fprintf(w, "%d-%d\n", cfg.Passive.MinPort, cfg.Passive.MaxPort)
	if cfg.Storage.ReadOnly {
		color.New(color.FgRed).Fprintln(w, "  read-only mode")
	}
}

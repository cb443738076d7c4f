package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-drift/arcgis/internal/config"
	"github.com/go-drift/arcgis/internal/stdio"
	"github.com/go-drift/arcgis/pkg/arcgis"
	"github.com/go-drift/arcgis/pkg/errors"
	"github.com/go-drift/arcgis/pkg/platform"
	"github.com/go-drift/arcgis/pkg/sdk"
)

const readyTimeout = time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the plugin over stdin/stdout",
		Long: `Serve attaches the ArcGIS plugin to a stdio engine and runs until stdin
closes or the process receives SIGINT or SIGTERM.

Logs are written to stderr; stdout carries only frames.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := serve.Flags()
	flags.String("codec", "", "payload codec: json or proto")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")
	flags.String("metrics-addr", "", "listen address for /metrics, /live and /ready")
	flags.Int("query-workers", 0, "concurrent feature service queries")
	flags.String("query-timeout", "", "timeout for one feature service query")
	_ = v.BindPFlag(keyCodec, flags.Lookup("codec"))
	_ = v.BindPFlag(keyLogLevel, flags.Lookup("log-level"))
	_ = v.BindPFlag(keyLogFormat, flags.Lookup("log-format"))
	_ = v.BindPFlag(keyMetricsAddr, flags.Lookup("metrics-addr"))
	_ = v.BindPFlag(keyQueryWorkers, flags.Lookup("query-workers"))
	_ = v.BindPFlag(keyQueryTimeout, flags.Lookup("query-timeout"))
	return serve
}

func runServe(ctx context.Context, cfg *config.Resolved, in io.Reader, out, logOut io.Writer) error {
	logger := newLogger(cfg, logOut)
	slog.SetDefault(logger)
	errors.SetHandler(&errors.LogHandler{Logger: logger, Verbose: cfg.LogLevel <= slog.LevelDebug})

	env := sdk.NewEnvironment()
	if cfg.APIKey != "" {
		env.SetAPIKey(cfg.APIKey)
	}
	if cfg.License != "" {
		res := env.SetLicense(cfg.License)
		logger.Info("license applied", "status", res.Status.String(), "level", res.Level.String())
	}

	codec := platform.JSONMethodCodec
	if cfg.Codec == "proto" {
		codec = platform.ProtoMethodCodec
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := stdio.NewServer(in, out, stdio.Options{Codec: codec, Logger: logger})
	plugin := arcgis.New(arcgis.Options{
		Environment:  env,
		Logger:       logger,
		Metrics:      arcgis.NewMetrics(reg),
		Codec:        codec,
		QueryWorkers: cfg.QueryWorkers,
		QueryTimeout: cfg.QueryTimeout,
	})
	if err := srv.Engine().AddPlugin(plugin); err != nil {
		return fmt.Errorf("add plugin: %w", err)
	}
	defer srv.Engine().Destroy()

	if cfg.MetricsAddr != "" {
		httpSrv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newHTTPHandler(reg, srv, plugin),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
	}

	logger.Info("arcgisd serving", "version", Version, "sdk", sdk.APIVersion, "codec", cfg.Codec)
	err := srv.Serve(ctx)
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newHTTPHandler exposes metrics and health probes. Liveness follows the
// serve loop; readiness also requires an attached plugin.
func newHTTPHandler(reg *prometheus.Registry, srv *stdio.Server, plugin *arcgis.Plugin) http.Handler {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("serve-loop", func() error {
		if !srv.Running() {
			return stderrors.New("serve loop not running")
		}
		return nil
	})
	health.AddReadinessCheck("plugin-attached", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
		defer cancel()
		var attached bool
		if err := srv.Do(ctx, func() { attached = plugin.Attached() }); err != nil {
			return err
		}
		if !attached {
			return stderrors.New("plugin not attached")
		}
		return nil
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)
	return mux
}

func newLogger(cfg *config.Resolved, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("component", "arcgisd")
}

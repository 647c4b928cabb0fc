package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httputil"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mercator-hq/callisto/pkg/admission"
	"mercator-hq/callisto/pkg/admission/queue"
	"mercator-hq/callisto/pkg/admission/ratelimit"
	"mercator-hq/callisto/pkg/admission/retention"
	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/middleware"
	"mercator-hq/callisto/pkg/server"
	"mercator-hq/callisto/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	upstream      string
	keyHeader     string
	wait          bool
	watch         bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Callisto admission server",
	Long: `Start the Callisto admission server with the specified configuration.

The server applies per-key token-bucket admission control in front of the
configured upstream. Without an upstream it still serves the operational
endpoints (/healthz, /admission/status, /metrics), useful when Callisto is
embedded as a library and only observed over HTTP.

Examples:
  # Start with default config
  callisto run

  # Guard an upstream backend, queueing denied requests
  callisto run --upstream http://127.0.0.1:9000 --wait

  # Key requests by API token instead of client IP
  callisto run --upstream http://127.0.0.1:9000 --key-header X-API-Key

  # Validate config without starting
  callisto run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.upstream, "upstream", "", "upstream URL to guard with admission control")
	runCmd.Flags().StringVar(&runFlags.keyHeader, "key-header", "", "request header to use as rate-limit key (default: client IP)")
	runCmd.Flags().BoolVar(&runFlags.wait, "wait", false, "queue denied requests instead of answering 429 immediately")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", false, "watch the config file and apply log level changes")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	levelVar := new(slog.LevelVar)
	logger, err := logging.New(logging.Config{
		Level:    cfg.Telemetry.Logging.Level,
		Format:   cfg.Telemetry.Logging.Format,
		LevelVar: levelVar,
	})
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Callisto v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	// Admission limiter with its own metrics registry.
	registry := prometheus.NewRegistry()
	limiter, err := admission.NewLimiter(admission.Config{
		Bucket: ratelimit.Config{
			MaxTokens:  cfg.Admission.Bucket.MaxTokens,
			RefillRate: cfg.Admission.Bucket.RefillRate,
			Window:     cfg.Admission.Bucket.Window,
			FailMode:   ratelimit.FailMode(cfg.Admission.Bucket.FailMode),
		},
		Queue: queue.Config{
			MaxQueueSize:  cfg.Admission.Queue.MaxQueueSize,
			QueueTimeout:  cfg.Admission.Queue.QueueTimeout,
			SweepInterval: cfg.Admission.Queue.SweepInterval,
			Debug:         cfg.Admission.Queue.Debug,
		},
	}, admission.WithMetrics(admission.NewMetrics(registry)))
	if err != nil {
		return fmt.Errorf("failed to create admission limiter: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Retention scheduler, if configured.
	if cfg.Retention.PruneSchedule != "" {
		pruner := retention.NewPruner(limiter.Bucket(), &retention.Config{
			MaxIdle:       cfg.Retention.MaxIdle,
			PruneSchedule: cfg.Retention.PruneSchedule,
		})
		if err := pruner.Scheduler().Start(ctx); err != nil {
			slog.Warn("failed to start retention scheduler", "error", err)
		} else {
			defer pruner.Scheduler().Stop()
			if next := pruner.Scheduler().NextRun(); next != nil {
				slog.Debug("retention scheduler started", "next_prune", next)
			}
		}
	}

	opts := []server.Option{server.WithGatherer(registry), server.WithWait(runFlags.wait)}
	if runFlags.keyHeader != "" {
		opts = append(opts, server.WithKeyFunc(middleware.HeaderKey(runFlags.keyHeader)))
	}
	if runFlags.upstream != "" {
		target, err := url.Parse(runFlags.upstream)
		if err != nil {
			return fmt.Errorf("invalid upstream URL %q: %w", runFlags.upstream, err)
		}
		opts = append(opts, server.WithAppHandler(httputil.NewSingleHostReverseProxy(target)))
		fmt.Printf("✓ Guarding upstream %s\n", target)
	}
	srv := server.NewServer(cfg, limiter, opts...)

	// Optional config watcher. Only the log level applies live; anything
	// else needs a restart.
	if runFlags.watch {
		watcher, err := config.NewWatcher(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		go func() {
			err := watcher.Watch(func(next *config.Config) {
				if level, err := logging.ParseLevel(next.Telemetry.Logging.Level); err == nil {
					levelVar.Set(level)
				}
				slog.Info("config change applied",
					"log_level", next.Telemetry.Logging.Level,
					"note", "admission and server changes take effect on restart",
				)
			})
			if err != nil {
				slog.Error("config watcher exited", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/healthz\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.MetricsEnabled() {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Start blocks until signal or context cancellation and shuts down
	// gracefully, draining the admission queues.
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	fmt.Println("✓ Server stopped")
	return nil
}

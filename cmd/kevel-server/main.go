package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matteso1/kevel/internal/engine"
	"github.com/matteso1/kevel/internal/metrics"
	"github.com/matteso1/kevel/internal/pool"
	"github.com/matteso1/kevel/internal/server"
)

func main() {
	var (
		addr        string
		engineKind  string
		dataDir     string
		workers     int
		poolKind    string
		metricsAddr string
		logLevel    string
	)

	rootCmd := &cobra.Command{
		Use:   "kevel-server",
		Short: "Persistent key-value store server",
		Long: `kevel-server serves the kevel binary key-value protocol over TCP,
backed by either the log-structured engine or LevelDB.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			logger, err := newLogger(logLevel)
			if err != nil {
				return err
			}

			kind, err := engine.ParseKind(engineKind)
			if err != nil {
				return err
			}

			eng, err := engine.Open(kind, dataDir, logger)
			if err != nil {
				return fmt.Errorf("open engine: %w", err)
			}
			defer eng.Close()

			workerPool, err := pool.New(poolKind, workers)
			if err != nil {
				return err
			}

			m := metrics.NewMetrics()
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", m.Handler(eng))
				go func() {
					logger.Info("metrics listening", "addr", metricsAddr)
					if err := http.ListenAndServe(metricsAddr, mux); err != nil {
						logger.Error("metrics server failed", "error", err)
					}
				}()
			}

			srv := server.New(eng, workerPool, server.Config{Logger: logger, Metrics: m})

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigs
				logger.Info("shutting down", "signal", sig.String())
				srv.Shutdown()
			}()

			logger.Info("starting server", "addr", addr, "engine", kind, "pool", poolKind, "workers", workers)
			return srv.ListenAndServe(addr)
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:4000", "Listen address")
	rootCmd.Flags().StringVar(&engineKind, "engine", "kevel", "Storage engine (kevel or leveldb)")
	rootCmd.Flags().StringVar(&dataDir, "dir", "./data", "Data directory")
	rootCmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "Worker pool size")
	rootCmd.Flags().StringVar(&poolKind, "pool", "shared", "Worker pool kind (shared or stealing)")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Metrics HTTP address (disabled when empty)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

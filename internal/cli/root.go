package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/socialpulse/harvester/internal/control"
	"github.com/socialpulse/harvester/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
	runOnce bool
)

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Harvester acquisition service",
	Long:  `Harvester acquires social-media posts and mentions for a target account from multiple unreliable backends into a deduplicated, append-only store.`,
	Run:   runHarvester,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&runOnce, "once", false, "run a single acquisition cycle and exit")
}

func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	return cfg
}

func runHarvester(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	app, err := control.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize harvester", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if runOnce {
		go func() {
			<-sigChan
			slog.Info("Received signal, cancelling run")
			cancel()
		}()

		runs, err := app.RunOnce(ctx)
		printRunSummaries(runs)
		stopWithTimeout(app)
		if err != nil {
			slog.Error("Acquisition failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start harvester", "error", err)
		os.Exit(1)
	}

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)
	stopWithTimeout(app)
	slog.Info("Harvester stopped gracefully")
}

func stopWithTimeout(app *control.Harvester) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/socialpulse/harvester/internal/control"
	"github.com/socialpulse/harvester/internal/core/domain"
)

var resetWatermarkCmd = &cobra.Command{
	Use:   "reset-watermark [stream]",
	Short: "Clear a stream's watermark so the next run re-fetches from scratch",
	Long: `Clear a stream's watermark. The next acquisition run fetches the full
window again; records already in the store are absorbed by dedup.`,
	Args: cobra.ExactArgs(1),
	Run:  runResetWatermark,
}

func init() {
	rootCmd.AddCommand(resetWatermarkCmd)
}

func runResetWatermark(cmd *cobra.Command, args []string) {
	stream := domain.StreamType(args[0])
	if !stream.Valid() {
		fmt.Printf("Unknown stream %q (want %s or %s)\n", args[0], domain.StreamTimeline, domain.StreamMentions)
		os.Exit(1)
	}

	cfg := loadConfig()

	app, err := control.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize harvester", "error", err)
		os.Exit(1)
	}
	defer stopWithTimeout(app)

	if err := app.ResetWatermark(context.Background(), stream); err != nil {
		slog.Error("Failed to reset watermark", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Watermark for %s/%s cleared\n", cfg.Acquisition.Account, stream)
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/socialpulse/harvester/internal/control"
	"github.com/socialpulse/harvester/internal/core/domain"
)

var statusRunLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show watermarks and recent runs for every configured stream",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusRunLimit, "runs", 5, "recent runs to show per stream")
	rootCmd.AddCommand(statusCmd)
}

// shortID abbreviates a run id for table display. IDs are normally UUIDs,
// but hand-inserted audit rows can be shorter.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// printRunSummaries renders the outcome of a --once cycle, one row per
// stream run.
func printRunSummaries(runs []*domain.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"STREAM", "SERVED BY", "NEW", "DUP", "REJ", "DURATION"})
	for _, run := range runs {
		if run == nil {
			continue
		}
		served := run.ServedBy
		if served == "" {
			served = "-"
		}
		t.AppendRow(table.Row{
			domain.StreamKey{Account: run.Account, Stream: run.Stream}.String(),
			served,
			run.ItemsNew,
			run.ItemsDuplicate,
			run.ItemsRejected,
			run.Duration().Round(time.Millisecond),
		})
	}
	t.Render()
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	app, err := control.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize harvester", "error", err)
		os.Exit(1)
	}
	defer stopWithTimeout(app)

	ctx := context.Background()

	marks, err := app.Watermarks(ctx)
	if err != nil {
		slog.Error("Failed to load watermarks", "error", err)
		os.Exit(1)
	}

	wt := table.NewWriter()
	wt.SetOutputMirror(os.Stdout)
	wt.AppendHeader(table.Row{"STREAM", "WATERMARK", "UPDATED"})
	for _, stream := range app.Streams() {
		key := domain.StreamKey{Account: cfg.Acquisition.Account, Stream: stream}
		wm := marks[key]
		if wm.IsZero() {
			wt.AppendRow(table.Row{key.String(), "-", "-"})
			continue
		}
		wt.AppendRow(table.Row{
			key.String(),
			wm.Position.Format(time.RFC3339),
			wm.UpdatedAt.Format(time.RFC3339),
		})
	}
	wt.Render()

	for _, stream := range app.Streams() {
		runs, err := app.RecentRuns(ctx, stream, statusRunLimit)
		if err != nil {
			slog.Error("Failed to load runs", "stream", stream, "error", err)
			continue
		}
		if len(runs) == 0 {
			continue
		}

		fmt.Printf("\nRecent runs (%s):\n", stream)
		rt := table.NewWriter()
		rt.SetOutputMirror(os.Stdout)
		rt.AppendHeader(table.Row{"RUN", "STARTED", "SERVED BY", "NEW", "DUP", "REJ"})
		for _, run := range runs {
			rt.AppendRow(table.Row{
				shortID(run.ID),
				run.StartedAt.Format(time.RFC3339),
				run.ServedBy,
				run.ItemsNew,
				run.ItemsDuplicate,
				run.ItemsRejected,
			})
		}
		rt.Render()
	}
}

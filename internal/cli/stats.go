package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/docchat/internal/metrics"
	"github.com/raphaelgruber/docchat/internal/service"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show backend health, stored data and client timings",
	Long: `Check that the retrieval backend and the database are reachable and show
how much is stored for the configured user.

Examples:
  docchat stats
  DOCCHAT_USER_ID=alice docchat stats`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, appOptions{withHistory: true})
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Println("Backend")
	fmt.Println("═══════════════════════════════════════")
	fmt.Printf("URL:      %s\n", a.api.BaseURL())
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = a.api.Health(healthCtx)
	cancel()
	if err != nil {
		fmt.Printf("Status:   %s\n", defaultTheme.errorStyle().Render(service.StatusText(err)))
	} else {
		fmt.Printf("Status:   %s\n", defaultTheme.completedStyle().Render("ok"))
	}
	fmt.Println()

	counts, err := dbClient.CountForUser(ctx, cfg.UserID)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}
	fmt.Printf("Stored data (user %s)\n", cfg.UserID)
	fmt.Println("═══════════════════════════════════════")
	fmt.Printf("Conversations: %d\n", counts.Conversations)
	fmt.Printf("Messages:      %d\n", counts.Messages)
	fmt.Printf("Documents:     %d\n", counts.Documents)
	fmt.Println()

	if _, err := a.directory.Refresh(ctx); err != nil {
		fmt.Printf("Listing conversations failed: %s\n\n", service.StatusText(err))
	}

	printClientStats(collector.Snapshot())
	return nil
}

// printClientStats formats collector timings for this process.
func printClientStats(s metrics.Snapshot) {
	fmt.Println("Client timings")
	fmt.Println("═══════════════════════════════════════")
	fmt.Printf("Uptime: %s\n\n", formatUptime(s.UptimeSeconds))

	rows := []struct {
		name string
		op   *metrics.OperationSnapshot
	}{
		{"Upload", s.Upload},
		{"Chat", s.Chat},
		{"Quiz", s.Quiz},
		{"Flashcards", s.Flashcards},
		{"List", s.List},
		{"Select", s.Select},
		{"Auto-name", s.AutoName},
	}

	fmt.Printf("%-12s %8s %8s %10s %10s %10s\n", "Operation", "Count", "Failed", "Avg", "Min", "Max")
	for _, r := range rows {
		if r.op == nil {
			continue
		}
		fmt.Printf("%-12s %8d %8d %8.1fms %8dms %8dms\n",
			r.name, r.op.Count, r.op.Failures, r.op.AvgTimeMs, r.op.MinTimeMs, r.op.MaxTimeMs)
	}

	if s.Upload != nil && s.Upload.TotalBytes != nil && s.Upload.TotalChunks != nil {
		fmt.Printf("\nUploaded %s in %d chunks\n", formatBytes(*s.Upload.TotalBytes), *s.Upload.TotalChunks)
	}
}

// formatUptime formats seconds as a human-readable duration.
func formatUptime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

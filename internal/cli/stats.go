package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/raphaelgruber/chorus/internal/client"
	"github.com/raphaelgruber/chorus/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server statistics",
	Long: `Show server runtime statistics: generative calls, database queries,
broadcast deliveries, loaded personas and pending re-checks.

Examples:
  chorus stats`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.GetServerStats(context.Background())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printServerStats(stats)
	return nil
}

// printServerStats displays server runtime statistics.
func printServerStats(stats *client.ServerStats) {
	fmt.Printf("Server Statistics (in-memory, since restart)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Uptime: %.1f seconds\n", stats.Metrics.UptimeSeconds)
	fmt.Printf("Personas: %d, Rooms: %d, Pending re-checks: %d\n", stats.Personas, stats.Rooms, stats.PendingRechecks)

	if len(stats.Tasks) > 0 {
		statuses := make([]string, 0, len(stats.Tasks))
		for s := range stats.Tasks {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		fmt.Printf("\nTasks:\n")
		for _, s := range statuses {
			fmt.Printf("  %-10s %d\n", s, stats.Tasks[s])
		}
	}

	if m := stats.Metrics.LLMText; m != nil {
		fmt.Printf("\nLLM Text:\n")
		printOpStats(m)
		printTokenStats(m)
	}
	if m := stats.Metrics.LLMObject; m != nil {
		fmt.Printf("\nLLM Object:\n")
		printOpStats(m)
		printTokenStats(m)
	}
	if m := stats.Metrics.DBQuery; m != nil {
		fmt.Printf("\nDB Query:\n")
		printOpStats(m)
	}
	if m := stats.Metrics.Broadcast; m != nil {
		fmt.Printf("\nBroadcast:\n")
		printOpStats(m)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op *metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d, Errors: %d, Total: %dms\n", op.Count, op.Errors, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n", op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

func printTokenStats(op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Printf("  Tokens: %d in, %d out\n", *op.TotalInputTokens, *op.TotalOutputTokens)
}

// Package cli provides the command-line interface for chorus.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/chorus/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// API client, created before every command runs
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "chorus",
	Short: "Group chat with AI personas and live visualizations",
	Long: `Chorus is a group chat where AI personas join the conversation and
turn what the room is discussing into charts, schedules and other visuals.

This CLI talks to a running chorus-server. Set CHORUS_SERVER_URL or pass
--server to point it somewhere other than http://localhost:8585.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Interrupts cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $CHORUS_SERVER_URL or http://localhost:8585)")

	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(leaveCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(signCmd)
}

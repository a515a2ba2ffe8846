package cli

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/chorus/internal/models"
	"github.com/spf13/cobra"
)

var (
	agentID          string
	agentPersonality string
	agentVoice       string
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List and manage AI personas",
	Long: `List and manage the AI personas that take part in conversations.

Subcommands:
  list    List personas (default)
  add     Create or replace a persona
  reload  Reload the server's persona cache

Examples:
  chorus agents
  chorus agents add "Ada" --personality "A precise, curious engineer."
  chorus agents reload`,
	RunE: runAgentsList,
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List personas",
	RunE:  runAgentsList,
}

var agentsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create or replace a persona",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsAdd,
}

var agentsReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the server's persona cache",
	RunE:  runAgentsReload,
}

func init() {
	agentsAddCmd.Flags().StringVar(&agentID, "id", "", "persona id (derived from the name if empty)")
	agentsAddCmd.Flags().StringVarP(&agentPersonality, "personality", "p", "", "personality directive (required)")
	agentsAddCmd.Flags().StringVar(&agentVoice, "voice", "", "voice name")
	_ = agentsAddCmd.MarkFlagRequired("personality")

	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsAddCmd)
	agentsCmd.AddCommand(agentsReloadCmd)
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	agents, err := apiClient.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	if len(agents) == 0 {
		fmt.Println("No personas found. Run 'chorus seed --defaults' to create the built-in set.")
		return nil
	}

	fmt.Printf("Personas (%d):\n\n", len(agents))
	for _, a := range agents {
		fmt.Printf("- %s (%s)\n", a.Name, a.ID)
		if verbose {
			fmt.Printf("  %s\n", a.Personality)
			if a.Voice != nil {
				fmt.Printf("  Voice: %s\n", *a.Voice)
			}
		}
	}
	return nil
}

func runAgentsAdd(cmd *cobra.Command, args []string) error {
	in := models.AgentInput{ID: agentID, Name: args[0], Personality: agentPersonality}
	if agentVoice != "" {
		in.Voice = &agentVoice
	}

	agent, err := apiClient.UpsertAgent(context.Background(), in)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	fmt.Printf("Saved persona: %s (%s)\n", agent.Name, agent.ID)
	return nil
}

func runAgentsReload(cmd *cobra.Command, args []string) error {
	n, err := apiClient.ReloadAgents(context.Background())
	if err != nil {
		return fmt.Errorf("reload agents: %w", err)
	}
	fmt.Printf("Reloaded %d personas.\n", n)
	return nil
}

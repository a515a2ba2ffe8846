package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/chorus/internal/client"
	"github.com/spf13/cobra"
)

var tasksRoom string

var tasksCmd = &cobra.Command{
	Use:   "tasks [task-id]",
	Short: "List or inspect orchestration tasks",
	Long: `List the server's recent orchestration tasks or inspect one by ID.

Every incoming message and every delayed re-check runs as a task. The
outcome column shows what the response decision concluded.

Examples:
  chorus tasks               # List recent tasks
  chorus tasks --room lobby  # Only tasks for one room
  chorus tasks 4f1c...       # Show details for one task`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTasks,
}

func init() {
	tasksCmd.Flags().StringVarP(&tasksRoom, "room", "r", "", "only show tasks for this room")
}

func runTasks(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	tasks, err := apiClient.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if len(args) == 1 {
		for _, t := range tasks {
			if t.ID == args[0] {
				showTask(t)
				return nil
			}
		}
		return fmt.Errorf("task not found: %s", args[0])
	}

	listTasks(filterTasks(tasks, tasksRoom))
	return nil
}

func filterTasks(tasks []client.Task, room string) []client.Task {
	if room == "" {
		return tasks
	}
	var out []client.Task
	for _, t := range tasks {
		if t.RoomID == room {
			out = append(out, t)
		}
	}
	return out
}

func listTasks(tasks []client.Task) {
	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return
	}

	fmt.Printf("%-10s %-12s %-12s %-10s %-20s %s\n", "ID", "KIND", "ROOM", "STATUS", "OUTCOME", "STARTED")
	fmt.Println("----------------------------------------------------------------------------------")

	for _, t := range tasks {
		id := t.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Printf("%-10s %-12s %-12s %-10s %-20s %s\n", id, t.Kind, t.RoomID, t.Status, t.Outcome, t.StartedAt.Format("15:04:05"))
	}
}

func showTask(t client.Task) {
	fmt.Printf("Task: %s\n", t.ID)
	fmt.Printf("  Kind: %s\n", t.Kind)
	fmt.Printf("  Room: %s\n", t.RoomID)
	if t.Subject != "" {
		fmt.Printf("  Subject: %s\n", t.Subject)
	}
	fmt.Printf("  Status: %s\n", t.Status)
	if t.Outcome != "" {
		fmt.Printf("  Outcome: %s\n", t.Outcome)
	}
	fmt.Printf("  Started: %s\n", t.StartedAt.Format(time.RFC3339))
	if t.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", t.CompletedAt.Format(time.RFC3339))
		fmt.Printf("  Duration: %s\n", t.CompletedAt.Sub(t.StartedAt).Round(time.Millisecond))
	}
	if t.Error != "" {
		fmt.Printf("  Error: %s\n", t.Error)
	}
}

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	postUser      string
	messagesLimit int
	messagesDesc  bool
)

var postCmd = &cobra.Command{
	Use:   "post <room> <content>",
	Short: "Post a message to a room",
	Long: `Post a message to a room as a human user.

Personas decide on their own whether to answer, and a visualization is
generated when the conversation asks for one.

Examples:
  chorus post lobby "what should we eat on friday?" --user sam
  chorus post planning "can you chart signups for jan, feb and mar: 120, 180, 240"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runPost,
}

var messagesCmd = &cobra.Command{
	Use:   "messages <room>",
	Short: "List messages in a room",
	Long: `List messages in a room, oldest first.

Examples:
  chorus messages lobby
  chorus messages lobby --limit 10 --desc`,
	Args: cobra.ExactArgs(1),
	RunE: runMessages,
}

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room",
	Args:  cobra.ExactArgs(1),
	RunE:  runJoin,
}

var leaveCmd = &cobra.Command{
	Use:   "leave <room>",
	Short: "Leave a room",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeave,
}

func init() {
	for _, cmd := range []*cobra.Command{postCmd, joinCmd, leaveCmd} {
		cmd.Flags().StringVarP(&postUser, "user", "u", defaultUser(), "user id to act as")
	}
	messagesCmd.Flags().IntVarP(&messagesLimit, "limit", "n", 50, "max messages")
	messagesCmd.Flags().BoolVar(&messagesDesc, "desc", false, "newest first")
}

func runPost(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	room, content := args[0], strings.Join(args[1:], " ")

	msg, err := apiClient.PostMessage(ctx, room, postUser, content)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}

	fmt.Printf("Posted %s to %s\n", msg.ID, room)
	return nil
}

func runMessages(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	msgs, err := apiClient.ListMessages(ctx, args[0], messagesLimit, messagesDesc)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	if len(msgs) == 0 {
		fmt.Println("No messages found.")
		return nil
	}

	for _, m := range msgs {
		read := ""
		if verbose && m.AIRead {
			read = " [read]"
		}
		fmt.Printf("%s %-12s %s%s\n", m.CreatedAt.Format("15:04:05"), m.UserID, m.Content, read)
	}
	return nil
}

func runJoin(cmd *cobra.Command, args []string) error {
	p, err := apiClient.Join(context.Background(), args[0], postUser)
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	fmt.Printf("%s joined %s\n", p.UserID, p.RoomID)
	return nil
}

func runLeave(cmd *cobra.Command, args []string) error {
	if err := apiClient.Leave(context.Background(), args[0], postUser); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	fmt.Printf("%s left %s\n", postUser, args[0])
	return nil
}

// defaultUser is $CHORUS_USER, then $USER, then "guest".
func defaultUser() string {
	for _, key := range []string{"CHORUS_USER", "USER"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return "guest"
}

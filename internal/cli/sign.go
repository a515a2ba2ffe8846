package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/chorus/internal/broadcast"
	"github.com/raphaelgruber/chorus/internal/config"
	"github.com/spf13/cobra"
)

var signTimestamp int64

var signCmd = &cobra.Command{
	Use:   "sign <room> <event> [json-data]",
	Short: "Print a signed push delivery request",
	Long: `Print the signed URL and body the server would POST to the push backbone
for one event. Useful for checking credentials with curl.

Credentials come from PUSHER_APP_ID, PUSHER_KEY, PUSHER_SECRET and
PUSHER_HOST or PUSHER_CLUSTER.

Examples:
  chorus sign lobby new-status '{"status_type":"generating"}'
  chorus sign lobby user-left '{"user_id":"sam"}' --timestamp 1353088179`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runSign,
}

func init() {
	signCmd.Flags().Int64Var(&signTimestamp, "timestamp", 0, "unix timestamp to sign with (default now)")
}

func runSign(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.PusherEnabled() {
		return errors.New("push backbone credentials are not configured")
	}

	data := json.RawMessage("{}")
	if len(args) == 3 {
		if !json.Valid([]byte(args[2])) {
			return fmt.Errorf("event data is not valid JSON: %s", args[2])
		}
		data = json.RawMessage(args[2])
	}

	body, err := broadcast.EncodeEventBody(broadcast.Channel(args[0]), broadcast.Event(args[1]), data)
	if err != nil {
		return err
	}

	ts := signTimestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	p := broadcast.NewPusherClient(broadcast.PusherConfig{
		AppID:  cfg.PusherAppID,
		Key:    cfg.PusherKey,
		Secret: cfg.PusherSecret,
		Host:   cfg.PusherHost,
	}, nil, nil)

	fmt.Printf("POST %s\n", p.SignedURLAt(body, ts))
	fmt.Printf("Content-Type: application/json\n\n%s\n", body)
	return nil
}

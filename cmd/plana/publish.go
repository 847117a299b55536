package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/small-frappuccino/plana/pkg/bus"
	"github.com/small-frappuccino/plana/pkg/config"
	"github.com/small-frappuccino/plana/pkg/models"
)

// clientFactory opens the Redis client publish commands use.
type clientFactory func(envFiles []string) (*redis.Client, error)

func configClient(envFiles []string) (*redis.Client, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.RedisOptions()
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func newPublishCmd(envFiles *[]string) *cobra.Command {
	return newPublishCmdWith(envFiles, configClient)
}

func newPublishCmdWith(envFiles *[]string, open clientFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an invalidation event to the bots",
	}

	publish := func(cmd *cobra.Command, ev bus.Event) error {
		client, err := open(*envFiles)
		if err != nil {
			return err
		}
		defer client.Close()
		n, err := bus.NewPublisher(client).Publish(cmd.Context(), ev)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %s to %s (%d receivers)\n", ev.Kind, bus.Topic(ev.GuildID), n)
		return nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh <guild-id> [setting]",
		Short: "Ask the bots to reload a guild's settings",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID, err := models.ParseSnowflake(args[0])
			if err != nil {
				return err
			}
			refresh := &bus.ConfigRefresh{}
			if len(args) == 2 {
				if _, err := models.ParseSettingKind(args[1]); err != nil {
					return err
				}
				refresh.Name = args[1]
			}
			return publish(cmd, bus.Event{Kind: bus.KindGuildConfigRefresh, GuildID: guildID, Data: refresh})
		},
	})

	var file string
	messageCmd := &cobra.Command{
		Use:       "message <create|update|delete> <guild-id>",
		Short:     "Ask the bots to post, edit or delete a stored message",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"create", "update", "delete"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := map[string]bus.Kind{
				"create": bus.KindMessageCreate,
				"update": bus.KindMessageUpdate,
				"delete": bus.KindMessageDelete,
			}[args[0]]
			if !ok {
				return fmt.Errorf("unknown message action %q", args[0])
			}
			guildID, err := models.ParseSnowflake(args[1])
			if err != nil {
				return err
			}
			msg, err := readMessage(cmd, file)
			if err != nil {
				return err
			}
			if msg.GuildID == 0 {
				msg.GuildID = guildID
			}
			return publish(cmd, bus.Event{Kind: kind, GuildID: guildID, Data: msg})
		},
	}
	messageCmd.Flags().StringVarP(&file, "file", "f", "-", "JSON message record to publish, - for stdin")
	cmd.AddCommand(messageCmd)
	return cmd
}

func readMessage(cmd *cobra.Command, path string) (*models.Message, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var msg models.Message
	if err := json.NewDecoder(r).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

package backend

import (
	"context"
	"fmt"

	"github.com/small-frappuccino/plana/pkg/models"
)

func guildDataPath(guildID models.Snowflake) string {
	return fmt.Sprintf("/guilds/%s/data", guildID)
}

// GetGuildData fetches the stored structural snapshot of a guild.
func (c *Client) GetGuildData(ctx context.Context, guildID models.Snowflake) (*models.GuildData, bool, error) {
	var data models.GuildData
	found, err := c.do(ctx, "GET", guildDataPath(guildID), nil, &data)
	if err != nil || !found {
		return nil, false, err
	}
	return &data, true, nil
}

// UpdateGuildData replaces the stored snapshot. found is false when the
// backend has no record to replace.
func (c *Client) UpdateGuildData(ctx context.Context, data *models.GuildData) (bool, error) {
	return c.do(ctx, "PUT", guildDataPath(data.ID), data, &models.GuildData{})
}

// CreateGuildData stores a snapshot for a guild the backend has not seen.
func (c *Client) CreateGuildData(ctx context.Context, data *models.GuildData) (bool, error) {
	return c.do(ctx, "POST", guildDataPath(data.ID), data, &models.GuildData{})
}

// DeleteGuildData removes the stored snapshot.
func (c *Client) DeleteGuildData(ctx context.Context, guildID models.Snowflake) error {
	_, err := c.do(ctx, "DELETE", guildDataPath(guildID), nil, nil)
	return err
}

// GetMessage fetches a stored message definition.
func (c *Client) GetMessage(ctx context.Context, guildID, id models.Snowflake) (*models.Message, bool, error) {
	var msg models.Message
	found, err := c.do(ctx, "GET", fmt.Sprintf("/guilds/%s/messages/%s", guildID, id), nil, &msg)
	if err != nil || !found {
		return nil, false, err
	}
	return &msg, true, nil
}

// SaveMessage writes back a message definition, typically after the remote
// message id became known.
func (c *Client) SaveMessage(ctx context.Context, msg *models.Message) (bool, error) {
	if msg.ID == 0 {
		return false, fmt.Errorf("message has no id")
	}
	return c.do(ctx, "PUT", fmt.Sprintf("/messages/%s", msg.ID), msg, &models.Message{})
}

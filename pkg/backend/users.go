package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/small-frappuccino/plana/pkg/models"
)

func usersPath(guildID models.Snowflake) string {
	return fmt.Sprintf("/guilds/%s/users", guildID)
}

func userPath(guildID, userID models.Snowflake) string {
	return fmt.Sprintf("/guilds/%s/users/%s", guildID, userID)
}

func normalizeUser(u *models.User, guildID, userID models.Snowflake) *models.User {
	if u.GuildID == 0 {
		u.GuildID = guildID
	}
	if u.UserID == 0 {
		u.UserID = userID
	}
	if u.Data == nil {
		u.Data = map[string]json.RawMessage{}
	}
	return u
}

// GetUser fetches one user record.
func (c *Client) GetUser(ctx context.Context, guildID, userID models.Snowflake) (*models.User, bool, error) {
	u := models.NewUser(guildID, userID)
	found, err := c.do(ctx, "GET", userPath(guildID, userID), nil, u)
	if err != nil || !found {
		return nil, false, err
	}
	return normalizeUser(u, guildID, userID), true, nil
}

// CreateUser creates an empty user record.
func (c *Client) CreateUser(ctx context.Context, guildID, userID models.Snowflake) (*models.User, bool, error) {
	u := models.NewUser(guildID, userID)
	body := map[string]models.Snowflake{"user_id": userID}
	found, err := c.do(ctx, "POST", usersPath(guildID), body, u)
	if err != nil || !found {
		return nil, false, err
	}
	return normalizeUser(u, guildID, userID), true, nil
}

// ListUsers returns every stored user of a guild.
func (c *Client) ListUsers(ctx context.Context, guildID models.Snowflake) ([]*models.User, error) {
	var env listEnvelope[*models.User]
	if _, err := c.do(ctx, "GET", usersPath(guildID), nil, &env); err != nil {
		return nil, err
	}
	out := make([]*models.User, 0, len(env.Data))
	for _, u := range env.Data {
		if u == nil || u.UserID == 0 {
			continue
		}
		out = append(out, normalizeUser(u, guildID, u.UserID))
	}
	return out, nil
}

// SaveUser writes one user record.
func (c *Client) SaveUser(ctx context.Context, u *models.User) error {
	_, err := c.do(ctx, "POST", userPath(u.GuildID, u.UserID), u, nil)
	return err
}

// DeleteUser removes one user record.
func (c *Client) DeleteUser(ctx context.Context, guildID, userID models.Snowflake) error {
	_, err := c.do(ctx, "DELETE", userPath(guildID, userID), nil, nil)
	return err
}

// BulkUpdateUsers writes many user records in a single request.
func (c *Client) BulkUpdateUsers(ctx context.Context, users []*models.User) error {
	if len(users) == 0 {
		return nil
	}
	_, err := c.do(ctx, "PUT", "/users/bulk", users, nil)
	return err
}

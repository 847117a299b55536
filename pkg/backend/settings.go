package backend

import (
	"context"
	"fmt"

	"github.com/small-frappuccino/plana/pkg/models"
)

func settingPath(guildID models.Snowflake, kind models.SettingKind) string {
	return fmt.Sprintf("/guilds/%s/%s", guildID, kind.Resource())
}

func itemPath(guildID models.Snowflake, kind models.SettingKind, itemID models.Snowflake) string {
	return fmt.Sprintf("%s/%s", settingPath(guildID, kind), itemID)
}

// GetSetting fetches a singleton sub-config and decodes it over out, which
// should already hold the kind's defaults.
func (c *Client) GetSetting(ctx context.Context, guildID models.Snowflake, kind models.SettingKind, out any) (bool, error) {
	return c.do(ctx, "GET", settingPath(guildID, kind), nil, out)
}

// CreateSetting creates a singleton sub-config. A nil body sends an empty
// object so the backend applies its own defaults.
func (c *Client) CreateSetting(ctx context.Context, guildID models.Snowflake, kind models.SettingKind, body, out any) (bool, error) {
	if body == nil {
		body = map[string]any{}
	}
	return c.do(ctx, "POST", settingPath(guildID, kind), body, out)
}

// UpdateSetting saves a singleton sub-config with the verb the backend
// expects for the kind.
func (c *Client) UpdateSetting(ctx context.Context, guildID models.Snowflake, kind models.SettingKind, body, out any) (bool, error) {
	return c.do(ctx, kind.UpdateMethod(), settingPath(guildID, kind), body, out)
}

// DeleteSetting removes a singleton sub-config.
func (c *Client) DeleteSetting(ctx context.Context, guildID models.Snowflake, kind models.SettingKind) error {
	_, err := c.do(ctx, "DELETE", settingPath(guildID, kind), nil, nil)
	return err
}

// ListReactRoles returns every react-role configuration of a guild.
func (c *Client) ListReactRoles(ctx context.Context, guildID models.Snowflake) ([]models.ReactRoleSetting, error) {
	var env listEnvelope[models.ReactRoleSetting]
	if _, err := c.do(ctx, "GET", settingPath(guildID, models.SettingReactRoles), nil, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return []models.ReactRoleSetting{}, nil
	}
	return env.Data, nil
}

// ListRSSFeeds returns every RSS feed of a guild.
func (c *Client) ListRSSFeeds(ctx context.Context, guildID models.Snowflake) ([]models.RSSFeed, error) {
	var env listEnvelope[models.RSSFeed]
	if _, err := c.do(ctx, "GET", settingPath(guildID, models.SettingRSS), nil, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return []models.RSSFeed{}, nil
	}
	return env.Data, nil
}

// SaveReactRole creates the configuration when it has no id yet and patches
// it otherwise. The stored record is decoded back into r.
func (c *Client) SaveReactRole(ctx context.Context, r *models.ReactRoleSetting) (bool, error) {
	if r.ID == 0 {
		return c.do(ctx, "POST", settingPath(r.GuildID, models.SettingReactRoles), r, r)
	}
	return c.do(ctx, "PATCH", itemPath(r.GuildID, models.SettingReactRoles, r.ID), r, r)
}

// SaveRSSFeed creates or replaces a feed. The stored record is decoded back
// into f.
func (c *Client) SaveRSSFeed(ctx context.Context, f *models.RSSFeed) (bool, error) {
	if f.ID == 0 {
		return c.do(ctx, "POST", settingPath(f.GuildID, models.SettingRSS), f, f)
	}
	return c.do(ctx, "PUT", itemPath(f.GuildID, models.SettingRSS, f.ID), f, f)
}

// DeleteItem removes one item of a collection sub-config.
func (c *Client) DeleteItem(ctx context.Context, guildID models.Snowflake, kind models.SettingKind, itemID models.Snowflake) error {
	if !kind.Collection() {
		return fmt.Errorf("%s is not a collection", kind)
	}
	_, err := c.do(ctx, "DELETE", itemPath(guildID, kind, itemID), nil, nil)
	return err
}

package commands

import (
	"context"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-multierror"

	"github.com/small-frappuccino/plana/pkg/log"
	"github.com/small-frappuccino/plana/pkg/models"
)

// Registrar lists, adds and removes a guild's registered commands.
type Registrar interface {
	GuildCommandNames(ctx context.Context, guildID models.Snowflake) (mapset.Set[string], error)
	AddGuildCommand(ctx context.Context, guildID models.Snowflake, name string) error
	RemoveGuildCommand(ctx context.Context, guildID models.Snowflake, name string) error
}

// SettingsSource supplies the current settings of a guild.
type SettingsSource interface {
	Get(ctx context.Context, guildID models.Snowflake) models.GuildSettings
}

// Action is what Reconcile did for one command.
type Action int

const (
	ActionNone Action = iota
	ActionAdded
	ActionRemoved
)

func (a Action) String() string {
	switch a {
	case ActionAdded:
		return "added"
	case ActionRemoved:
		return "removed"
	default:
		return "none"
	}
}

// Reconciler converges registered commands to what guild settings ask for.
type Reconciler struct {
	registrar    Registrar
	settings     SettingsSource
	guildTimeout time.Duration
}

type ReconcilerOption func(*Reconciler)

// WithGuildTimeout bounds the work ReconcileGuilds spends on each guild.
func WithGuildTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.guildTimeout = d }
}

func NewReconciler(registrar Registrar, settings SettingsSource, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{registrar: registrar, settings: settings}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile makes the registration of name match enabled. It issues at most
// one add or remove and none when the guild already matches.
func (r *Reconciler) Reconcile(ctx context.Context, guildID models.Snowflake, name string, enabled bool) (Action, error) {
	names, err := r.registrar.GuildCommandNames(ctx, guildID)
	if err != nil {
		return ActionNone, err
	}
	registered := names.Contains(name)
	switch {
	case enabled && !registered:
		if err := r.registrar.AddGuildCommand(ctx, guildID, name); err != nil {
			return ActionNone, err
		}
		return ActionAdded, nil
	case !enabled && registered:
		if err := r.registrar.RemoveGuildCommand(ctx, guildID, name); err != nil {
			return ActionNone, err
		}
		return ActionRemoved, nil
	default:
		return ActionNone, nil
	}
}

// ReconcileSetting reconciles the command gated by a sub-config after it
// was refreshed. An empty setting name reconciles every feature command;
// settings that gate no command are ignored.
func (r *Reconciler) ReconcileSetting(ctx context.Context, guildID models.Snowflake, setting string) error {
	var names []string
	if setting == "" {
		names = Feature
	} else if mapset.NewThreadUnsafeSet(Feature...).Contains(setting) {
		names = []string{setting}
	}
	if len(names) == 0 {
		return nil
	}

	s := r.settings.Get(ctx, guildID)
	var result *multierror.Error
	for _, name := range names {
		action, err := r.Reconcile(ctx, guildID, name, DesiredState(s, name))
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("reconcile %s: %w", name, err))
			continue
		}
		if action != ActionNone {
			log.DiscordLogger().Info("Reconciled guild command",
				"guild_id", guildID.String(), "command", name, "action", action.String())
		}
	}
	return result.ErrorOrNil()
}

// ReconcileGuilds reconciles every feature command of each guild, each
// under its own timeout. Failures are logged per guild and do not stop the
// others; cancelling ctx abandons the guilds not reached yet.
func (r *Reconciler) ReconcileGuilds(ctx context.Context, guildIDs []models.Snowflake) {
	for i, id := range guildIDs {
		if err := ctx.Err(); err != nil {
			log.DiscordLogger().Warn("Command reconciliation aborted",
				"done", i, "remaining", len(guildIDs)-i, "error", err)
			return
		}
		if err := r.reconcileGuild(ctx, id); err != nil {
			log.DiscordLogger().Warn("Command reconciliation failed", "guild_id", id.String(), "error", err)
		}
	}
}

func (r *Reconciler) reconcileGuild(ctx context.Context, guildID models.Snowflake) error {
	if r.guildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.guildTimeout)
		defer cancel()
	}
	return r.ReconcileSetting(ctx, guildID, "")
}

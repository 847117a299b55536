package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/small-frappuccino/plana/pkg/util"
)

const AppName = "plana"

// Config holds every runtime setting of the bot process.
type Config struct {
	DiscordToken string `mapstructure:"discord_token"`

	APIURL      string        `mapstructure:"api_url"`
	APIKey      string        `mapstructure:"api_key"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	RedisURL      string        `mapstructure:"redis_url"`
	RedisPassword string        `mapstructure:"redis_password"`
	Subscribe     []string      `mapstructure:"subscribe_guilds"`
	DedupeTTL     time.Duration `mapstructure:"dedupe_ttl"`

	UserFlushInterval  time.Duration `mapstructure:"user_flush_interval"`
	GuildFlushInterval time.Duration `mapstructure:"guild_flush_interval"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`

	SpoolPath   string `mapstructure:"spool_path"`
	LogDir      string `mapstructure:"log_dir"`
	LogLevel    string `mapstructure:"log_level"`
	ControlAddr string `mapstructure:"control_addr"`
}

// envNames maps config keys to the environment variables they are read from.
// The first four keep the names the deployment already uses.
var envNames = map[string]string{
	"discord_token":        "DISCORD_TOKEN",
	"api_url":              "PLANA_API_URL",
	"api_key":              "PLANA_API_KEY",
	"redis_url":            "REDIS_URL",
	"redis_password":       "PLANA_PASSWORD",
	"http_timeout":         "PLANA_HTTP_TIMEOUT",
	"subscribe_guilds":     "PLANA_SUBSCRIBE_GUILDS",
	"dedupe_ttl":           "PLANA_DEDUPE_TTL",
	"user_flush_interval":  "PLANA_USER_FLUSH_INTERVAL",
	"guild_flush_interval": "PLANA_GUILD_FLUSH_INTERVAL",
	"shutdown_timeout":     "PLANA_SHUTDOWN_TIMEOUT",
	"spool_path":           "PLANA_SPOOL_PATH",
	"log_dir":              "PLANA_LOG_DIR",
	"log_level":            "PLANA_LOG_LEVEL",
	"control_addr":         "PLANA_CONTROL_ADDR",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_timeout", 10*time.Second)
	v.SetDefault("dedupe_ttl", 30*time.Second)
	v.SetDefault("user_flush_interval", 15*time.Second)
	v.SetDefault("guild_flush_interval", 20*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("spool_path", util.SpoolPath(AppName))
	v.SetDefault("log_dir", util.LogDir(AppName))
	v.SetDefault("log_level", "info")
	v.SetDefault("subscribe_guilds", []string{})
}

// Load reads configuration from the environment after populating missing
// variables from envFiles and the $HOME/.local/bin/.env fallback.
func Load(envFiles ...string) (*Config, error) {
	util.LoadEnvFiles(envFiles...)

	v := viper.New()
	setDefaults(v)
	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Subscribe = normalizeList(cfg.Subscribe)
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	return cfg, nil
}

func normalizeList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate checks the settings the bot process cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DiscordToken) == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is not set"))
	}
	if c.APIURL == "" {
		errs = append(errs, errors.New("PLANA_API_URL is not set"))
	}
	if c.UserFlushInterval <= 0 || c.GuildFlushInterval <= 0 {
		errs = append(errs, errors.New("flush intervals must be positive"))
	}
	return errors.Join(errs...)
}

// RedisOptions builds client options for the invalidation broker. REDIS_URL
// may be a full redis:// URL or a bare host:port; PLANA_PASSWORD, when set,
// overrides any password in the URL.
func (c *Config) RedisOptions() (*redis.Options, error) {
	raw := strings.TrimSpace(c.RedisURL)
	if raw == "" {
		raw = "localhost:6379"
	}
	if !strings.Contains(raw, "://") {
		raw = "redis://" + raw
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if c.RedisPassword != "" {
		opts.Password = c.RedisPassword
	}
	return opts, nil
}

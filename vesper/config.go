package vesper

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/disgoorg/snowflake/v2"
	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log    LogConfig    `toml:"log"`
	Bot    BotConfig    `toml:"bot"`
	DB     DBConfig     `toml:"db"`
	Feeds  FeedsConfig  `toml:"feeds"`
	Spaces SpacesConfig `toml:"spaces"`
	Legacy LegacyConfig `toml:"legacy"`
}

type BotConfig struct {
	DevGuilds []snowflake.ID `toml:"dev_guilds"`
	Token     string         `toml:"token"`
	// OwnerID bypasses all admin checks everywhere.
	OwnerID string `toml:"owner_id"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
}

type FeedsConfig struct {
	TwitchClientID     string `toml:"twitch_client_id"`
	TwitchClientSecret string `toml:"twitch_client_secret"`
	// ThrottleSeconds overrides the per-subscription poll floor.
	ThrottleSeconds int `toml:"throttle_seconds"`
	// RenderFallback enables headless-browser resolution of channel
	// pages that only expose their canonical id after script runs.
	RenderFallback bool `toml:"render_fallback"`
}

type SpacesConfig struct {
	Key    string `toml:"key"`
	Secret string `toml:"secret"`
	Region string `toml:"region"`
	Bucket string `toml:"bucket"`
}

type LegacyConfig struct {
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
}

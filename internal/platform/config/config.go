package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures process-level settings so main stays lean. Guild-facing
// settings (clan tag, channels, role map) live in the persisted registry
// document and are managed through /setup, not the environment.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required"`
	ClanEmail    string `env:"CLAN_API_EMAIL,required"`
	ClanPassword string `env:"CLAN_API_PASSWORD,required"`

	DataDir    string `env:"DATA_DIR" envDefault:"."`
	HealthAddr string `env:"HEALTH_ADDR" envDefault:":8080"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// VerifyInterval is the cadence of the periodic ledger walk.
	VerifyInterval time.Duration `env:"VERIFY_INTERVAL" envDefault:"1h"`
	// VerifyPacing is the delay between members during a walk, kept small to
	// respect the clan API rate limits.
	VerifyPacing time.Duration `env:"VERIFY_PACING" envDefault:"500ms"`
}

// FromEnv builds the process config from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

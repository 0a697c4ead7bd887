package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"ENV"`
	LookbackDays   int    `mapstructure:"LOOKBACK_DAYS"`
	FeatureMode    string `mapstructure:"FEATURE_MODE"`
	Backend        string `mapstructure:"MATCH_BACKEND"`
	EpisodeFile    string `mapstructure:"EPISODE_FILE"`
	InpatientFile  string `mapstructure:"INPATIENT_FILE"`
	EDFile         string `mapstructure:"ED_FILE"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32  `mapstructure:"DB_MIN_CONNS"`
	EpisodeQuery   string `mapstructure:"EPISODE_QUERY"`
	InpatientQuery string `mapstructure:"INPATIENT_QUERY"`
	EDQuery        string `mapstructure:"ED_QUERY"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOOKBACK_DAYS", 1825)
	v.SetDefault("FEATURE_MODE", "inp ignore ed")
	v.SetDefault("MATCH_BACKEND", "binary-search")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOOKBACK_DAYS")
	v.BindEnv("FEATURE_MODE")
	v.BindEnv("MATCH_BACKEND")
	v.BindEnv("EPISODE_FILE")
	v.BindEnv("INPATIENT_FILE")
	v.BindEnv("ED_FILE")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("EPISODE_QUERY")
	v.BindEnv("INPATIENT_QUERY")
	v.BindEnv("ED_QUERY")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// UsesDatabase reports whether sources are loaded from Postgres instead
// of CSV files.
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

// Validate checks that the configuration names a usable source for every
// table the serve command needs: either file paths or a database URL with
// queries, never a mix that leaves a table unreachable.
func (c *Config) Validate() error {
	if c.LookbackDays < 1 {
		return fmt.Errorf("LOOKBACK_DAYS must be at least 1, got %d", c.LookbackDays)
	}
	if c.UsesDatabase() {
		if c.EpisodeQuery == "" {
			return fmt.Errorf("EPISODE_QUERY is required when DATABASE_URL is set")
		}
		if c.InpatientQuery == "" {
			return fmt.Errorf("INPATIENT_QUERY is required when DATABASE_URL is set")
		}
		return nil
	}
	if c.EpisodeFile == "" {
		return fmt.Errorf("EPISODE_FILE is required (or set DATABASE_URL)")
	}
	if c.InpatientFile == "" {
		return fmt.Errorf("INPATIENT_FILE is required (or set DATABASE_URL)")
	}
	return nil
}

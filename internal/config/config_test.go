package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "LOOKBACK_DAYS", "FEATURE_MODE", "MATCH_BACKEND"} {
		os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.LookbackDays != 1825 {
		t.Errorf("expected default lookback 1825, got %d", cfg.LookbackDays)
	}
	if cfg.FeatureMode != "inp ignore ed" {
		t.Errorf("expected default feature mode, got %q", cfg.FeatureMode)
	}
	if cfg.Backend != "binary-search" {
		t.Errorf("expected default backend binary-search, got %q", cfg.Backend)
	}
	if cfg.DBMaxConns != 20 {
		t.Errorf("expected default max conns 20, got %d", cfg.DBMaxConns)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Setenv("LOOKBACK_DAYS", "365")
	os.Setenv("FEATURE_MODE", "both")
	defer os.Unsetenv("LOOKBACK_DAYS")
	defer os.Unsetenv("FEATURE_MODE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LookbackDays != 365 {
		t.Errorf("expected lookback 365, got %d", cfg.LookbackDays)
	}
	if cfg.FeatureMode != "both" {
		t.Errorf("expected feature mode 'both', got %q", cfg.FeatureMode)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "file mode ok",
			cfg:     Config{LookbackDays: 10, EpisodeFile: "eps.csv", InpatientFile: "dad.csv"},
			wantErr: false,
		},
		{
			name:    "file mode missing inpatient",
			cfg:     Config{LookbackDays: 10, EpisodeFile: "eps.csv"},
			wantErr: true,
		},
		{
			name:    "db mode ok",
			cfg:     Config{LookbackDays: 10, DatabaseURL: "postgres://x", EpisodeQuery: "select 1", InpatientQuery: "select 2"},
			wantErr: false,
		},
		{
			name:    "db mode missing query",
			cfg:     Config{LookbackDays: 10, DatabaseURL: "postgres://x", EpisodeQuery: "select 1"},
			wantErr: true,
		},
		{
			name:    "bad lookback",
			cfg:     Config{LookbackDays: 0, EpisodeFile: "eps.csv", InpatientFile: "dad.csv"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

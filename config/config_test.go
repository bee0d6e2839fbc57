package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig without a file should use defaults: %v", err)
	}

	if cfg.Server.HTTPAddress != ":8080" {
		t.Errorf("Unexpected default HTTP address %q", cfg.Server.HTTPAddress)
	}
	if cfg.Game.QuestionSeconds != 30 || cfg.Game.PhotoSeconds != 20 {
		t.Errorf("Unexpected default timings: %+v", cfg.Game)
	}
	if cfg.Game.AllAnsweredGrace != 5 || cfg.Game.PhotoSkipRemainder != 3 {
		t.Errorf("Unexpected default grace periods: %+v", cfg.Game)
	}
	if cfg.Game.ResultsRetention != 60 {
		t.Errorf("Unexpected default retention: %d", cfg.Game.ResultsRetention)
	}
	if cfg.Rooms.MaxIdleMinutes != 30 {
		t.Errorf("Unexpected default idle limit: %d", cfg.Rooms.MaxIdleMinutes)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	yaml := `
server:
  http_address: ":9999"
game:
  question_seconds: 45
  base_points: 250
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.HTTPAddress != ":9999" {
		t.Errorf("File value should win, got %q", cfg.Server.HTTPAddress)
	}
	if cfg.Game.QuestionSeconds != 45 || cfg.Game.BasePoints != 250 {
		t.Errorf("File timings should win: %+v", cfg.Game)
	}
	// Untouched keys keep their defaults.
	if cfg.Game.LeaderboardSeconds != 10 {
		t.Errorf("Defaults should fill unset keys, got %d", cfg.Game.LeaderboardSeconds)
	}
}

package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Questions QuestionsConfig `mapstructure:"questions"`
	Game      GameConfig      `mapstructure:"game"`
	Rooms     RoomsConfig     `mapstructure:"rooms"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	// PublicURL is the address encoded into QR codes, i.e. the one
	// phones on the local network can actually reach.
	PublicURL string `mapstructure:"public_url"`
}

type QuestionsConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

type GameConfig struct {
	PhotoSeconds       int `mapstructure:"photo_seconds"`
	QuestionSeconds    int `mapstructure:"question_seconds"`
	LeaderboardSeconds int `mapstructure:"leaderboard_seconds"`
	WarningSeconds     int `mapstructure:"warning_seconds"`
	AllAnsweredGrace   int `mapstructure:"all_answered_grace_seconds"`
	PhotoSkipRemainder int `mapstructure:"photo_skip_remainder_seconds"`
	ResultsRetention   int `mapstructure:"results_retention_seconds"`
	BasePoints         int `mapstructure:"base_points"`
}

type RoomsConfig struct {
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
	MaxIdleMinutes       int `mapstructure:"max_idle_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("QUIZPARTY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.http_address", ":8080")
	viper.SetDefault("server.metrics_address", ":9100")
	viper.SetDefault("server.rpc_address", ":9101")
	viper.SetDefault("server.public_url", "http://localhost:8080")
	viper.SetDefault("questions.csv_path", "questions.csv")
	viper.SetDefault("game.photo_seconds", 20)
	viper.SetDefault("game.question_seconds", 30)
	viper.SetDefault("game.leaderboard_seconds", 10)
	viper.SetDefault("game.warning_seconds", 5)
	viper.SetDefault("game.all_answered_grace_seconds", 5)
	viper.SetDefault("game.photo_skip_remainder_seconds", 3)
	viper.SetDefault("game.results_retention_seconds", 60)
	viper.SetDefault("game.base_points", 100)
	viper.SetDefault("rooms.sweep_interval_minutes", 1)
	viper.SetDefault("rooms.max_idle_minutes", 30)

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/quizparty/quizparty/config"
	"github.com/quizparty/quizparty/logger"
	"github.com/quizparty/quizparty/server"
)

var version = "dev"

func main() {
	var (
		configPath string
		dev        bool
	)

	root := &cobra.Command{
		Use:     "quizparty",
		Short:   "Real-time quiz party game server",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Flags(), configPath, dev)
		},
	}
	flags := root.Flags()
	flags.StringVarP(&configPath, "config", "c", ".", "directory containing config.yaml")
	flags.BoolVar(&dev, "dev", false, "human-readable console logs")
	flags.String("listen", ":8080", "HTTP listen address")
	flags.String("questions", "questions.csv", "path to the question bank CSV")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(flags *pflag.FlagSet, configPath string, dev bool) error {
	if dev {
		logger.InitDevelopment()
	} else {
		logger.Init()
	}
	defer logger.Sync()

	// Command-line flags win over config file and environment.
	if f := flags.Lookup("listen"); f.Changed {
		viper.BindPFlag("server.http_address", f)
	}
	if f := flags.Lookup("questions"); f.Changed {
		viper.BindPFlag("questions.csv_path", f)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	gameServer, err := server.NewGameServer(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to initialize server: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Log.Info("Shutting down")
		gameServer.Shutdown()
	}()

	logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

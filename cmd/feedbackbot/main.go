// Command feedbackbot runs the anonymous employee feedback bot.
//
//	feedbackbot serve              # HTTP API plus the enabled chat transports
//	feedbackbot migrate            # create or update the schema and exit
//	feedbackbot console --as 42    # chat with the bot locally in the terminal
//
// Configuration comes from the environment; a .env file in the working
// directory (or the one named by --env-file) is loaded first when present.
//
// @title       Feedback Bot API
// @version     1.0
// @description Anonymous employee feedback bot: chat transports and management API.
// @BasePath    /api/v1
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-feedback-bot/internal/config"
	"github.com/tbourn/go-feedback-bot/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var envFile string

var rootCmd = &cobra.Command{
	Use:           "feedbackbot",
	Short:         "Anonymous employee feedback bot",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment (default .env)")
	rootCmd.AddCommand(newServeCmd(), newMigrateCmd(), newConsoleCmd())
}

// loadConfig applies the dotenv file, reads the configuration and installs
// the global logger.
func loadConfig() (config.Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, nil)
	return cfg, nil
}

// loadEnvFile loads path, or .env when path is empty. A missing default file
// is not an error; a missing explicit one is.
func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "feedbackbot:", err)
		os.Exit(1)
	}
}

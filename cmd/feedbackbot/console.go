package main

import (
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-feedback-bot/internal/sysutil"
	"github.com/tbourn/go-feedback-bot/internal/tui"
)

func newConsoleCmd() *cobra.Command {
	var identifier string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Chat with the bot in the terminal as one participant",
		Long: `Runs the conversation in-process against the configured database and
collaborators, without any network transport. Useful for trying the
registration flow and checking classifier, archive and escalation settings.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			identifier = strings.TrimSpace(identifier)
			if identifier == "" {
				return errors.New("--as must not be empty")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// The terminal belongs to the UI; keep log lines off it.
			sysutil.SetupLogger(cfg.LogLevel, false, io.Discard)

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			conv, err := buildConversation(cmd.Context(), cfg, db)
			if err != nil {
				return err
			}
			return tui.Run(cmd.Context(), conv, identifier, conv.StartCommandText())
		},
	}
	cmd.Flags().StringVar(&identifier, "as", "console", "participant identifier to chat as")
	return cmd
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/streamchat/internal/config"
	"github.com/stupiduntilnot/streamchat/internal/db"
	"github.com/stupiduntilnot/streamchat/internal/logger"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	runE := func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadBotConfig(cfgFile)
		if err != nil {
			return err
		}
		log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runBot(ctx, cfg, log)
	}

	root := &cobra.Command{
		Use:   "chatbot",
		Short: "Telegram chat bot that streams model answers",
		Long: "chatbot long-polls Telegram and answers every message by editing a\n" +
			"placeholder as the model streams. Running it without a subcommand starts the bot.",
		RunE:          runE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (environment variables take precedence)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start polling and answering messages",
		RunE:  runE,
	})
	root.AddCommand(newMigrateCmd(&cfgFile))
	root.AddCommand(newEventsCmd(&cfgFile))
	return root
}

func newMigrateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the SQLite tables and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := dbPath(*cfgFile)
			if err != nil {
				return err
			}
			database, err := db.OpenDB(path)
			if err != nil {
				return err
			}
			defer database.Close()
			if err := db.InitSchema(database); err != nil {
				return fmt.Errorf("failed to init schema: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready at %s\n", path)
			return nil
		},
	}
}

// dbPath resolves DB_PATH without requiring the credentials the bot needs.
func dbPath(cfgFile string) (string, error) {
	cfg, err := config.ReadBotConfig(cfgFile)
	if err != nil {
		return "", err
	}
	return cfg.DBPath, nil
}

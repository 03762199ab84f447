package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"duedil/internal/adapters/rest"
	"duedil/internal/channels"
	"duedil/internal/config"
	"duedil/internal/services/session"
)

var (
	cfg     config.Config
	log     *slog.Logger
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "duedil",
	Short:         "Company due-diligence client",
	Long:          "Browse companies, start due-diligence profile generation, follow it live, and edit the results.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(companiesCmd, addCmd, similarCmd, startCmd, watchCmd, setCmd, companySetCmd, deleteCmd)
}

func newClient() *rest.Client {
	return rest.New(cfg.APIBaseURL, rest.WithLogger(log))
}

func newSession(client *rest.Client, extra ...session.Option) *session.Session {
	factory := channels.Factory(client, channels.FromConfig(cfg, log))
	opts := append([]session.Option{
		session.WithLogger(log),
		session.WithSettleDelay(cfg.SettleDelay),
	}, extra...)
	return session.New(client, client, factory, opts...)
}

// Package cmd defines the spider command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-spider/internal/app"
	"github.com/JakeFAU/site-spider/internal/config"
	"github.com/JakeFAU/site-spider/internal/logging"
)

// Runner is the part of app.App the commands use. Tests swap in a fake via
// newRunner.
type Runner interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
}

var newRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.New(ctx, cfg, logger, app.Options{})
}

type envKey struct{}

// env is what PersistentPreRunE hands to subcommands.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

type rootFlags struct {
	configPath string
	logDev     bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "spider",
		Short: "Crawl a site and index its content hierarchy",
		Long: `spider crawls one or more sites, extracts heading and content records
with configurable CSS selectors and writes them to a search index sink.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(flags, cmd)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, e))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey{}).(*env); ok {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a YAML, JSON or TOML config file")
	cmd.PersistentFlags().BoolVar(&flags.logDev, "log-dev", false, "human friendly development logging")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level, overrides logging.level")

	cmd.AddCommand(newCrawlCmd(), newValidateCmd())
	return cmd
}

func loadEnv(flags *rootFlags, cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-dev") {
		cfg.Logging.Development = flags.logDev
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

func envFrom(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey{}).(*env)
	if !ok || e == nil {
		return nil, errors.New("command environment not initialized")
	}
	return e, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

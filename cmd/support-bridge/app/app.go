// Package app provides the support bridge application.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kart-io/support-bridge/cmd/support-bridge/app/options"
	"github.com/kart-io/support-bridge/internal/supportbridge"
)

const commandDesc = `Support Bridge

A webhook-driven support automation service. It ingests help-center
articles into a vector index and answers incoming customer conversations
with retrieval-augmented LLM completions, escalating to humans when it
cannot help.`

// NewCommand creates the root command with the serve and sync subcommands.
func NewCommand() *cobra.Command {
	opts := options.NewServerOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:          supportbridge.Name,
		Short:        "Webhook-driven support automation service",
		Long:         commandDesc,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd, configFile, opts)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file.")
	opts.AddFlags(cmd.PersistentFlags())

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	var forceUpdate bool
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one article ingestion pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), opts, forceUpdate)
		},
	}
	syncCmd.Flags().BoolVar(&forceUpdate, "force-update", false, "Re-ingest every article regardless of checksums.")

	cmd.AddCommand(serveCmd, syncCmd)
	return cmd
}

// loadConfig merges the config file and environment into the options. Flags
// set on the command line keep the highest precedence.
func loadConfig(cmd *cobra.Command, configFile string, opts *options.ServerOptions) error {
	v := viper.New()
	v.SetEnvPrefix("SUPPORT_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName(supportbridge.Name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/" + supportbridge.Name)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := v.Unmarshal(opts); err != nil {
		return fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return nil
}

func runServe(ctx context.Context, opts *options.ServerOptions) error {
	server, err := buildServer(ctx, opts)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}

func runSync(ctx context.Context, opts *options.ServerOptions, force bool) error {
	server, err := buildServer(ctx, opts)
	if err != nil {
		return err
	}
	return server.SyncOnce(ctx, force)
}

func buildServer(ctx context.Context, opts *options.ServerOptions) (*supportbridge.Server, error) {
	if err := opts.Complete(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg, err := opts.Config()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	server, err := cfg.NewServer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	return server, nil
}

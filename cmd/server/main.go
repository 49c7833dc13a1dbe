// Package main is the entry point for the guilddesk API server.
// It serves the dashboard REST API over HTTP and a gRPC health service.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parsascontentcorner/guilddesk/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "guilddesk",
		Short:        "Discord guild Q&A and bot setup dashboard backend",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and gRPC health servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context())
		},
	})
	rootCmd.AddCommand(newMigrateCmd())

	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())

	cmd.PersistentFlags().String("http-port", viper.GetString("HTTP_PORT"), "HTTP listen port")
	cmd.PersistentFlags().String("grpc-port", viper.GetString("GRPC_PORT"), "gRPC listen port")
	cmd.PersistentFlags().String("environment", viper.GetString("ENVIRONMENT"), "Environment (development, production)")
	cmd.PersistentFlags().String("log-level", viper.GetString("LOG_LEVEL"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", viper.GetString("LOG_FORMAT"), "Log format (json, console)")
	cmd.PersistentFlags().String("migrations-path", viper.GetString("DB_MIGRATIONS_PATH"), "Directory holding the SQL migrations")

	bindFlag(cmd, "HTTP_PORT", "http-port")
	bindFlag(cmd, "GRPC_PORT", "grpc-port")
	bindFlag(cmd, "ENVIRONMENT", "environment")
	bindFlag(cmd, "LOG_LEVEL", "log-level")
	bindFlag(cmd, "LOG_FORMAT", "log-format")
	bindFlag(cmd, "DB_MIGRATIONS_PATH", "migrations-path")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

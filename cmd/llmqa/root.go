package main

import (
	"github.com/spf13/cobra"

	"github.com/llmqa/llmqa/internal/config"
	"github.com/llmqa/llmqa/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the llmqa CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llmqa",
		Short: "llmqa - authenticated LLM question answering API",
		Long: `llmqa serves a question answering API in front of an LLM provider.
Users register, log in for a bearer token and ask questions with it.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewHashPasswordCmd())

	return cmd
}

// loadConfig layers defaults, the config file, the environment and the flags
// the user set on cmd. Without --config the XDG config file is used if present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file := configFile
	if file == "" {
		file, _ = xdg.FindConfigFile()
	}
	//nolint:wrapcheck // config errors already carry codes
	return config.Load(config.LoadOptions{
		File:  file,
		Flags: cmd.Flags(),
	})
}

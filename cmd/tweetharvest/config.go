package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"tweetharvest/pkg/auth"
	"tweetharvest/pkg/config"
)

const defaultConfigName = ".tweetharvest.yaml"

func newConfigCmd(g *globalOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
		Long: `Manage tweetharvest configuration files.

Configuration is loaded from, highest priority first:
  - command line flags
  - environment variables (TWITTER_APP_KEY, TWITTER_APP_SECRET, TWEETHARVEST_*)
  - .env files
  - the configuration file
  - default values`,
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file holding the defaults",
		Long: `Write every option with its default value to ./.tweetharvest.yaml, or to
the path given with --config. An existing file is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configFile
			if path == "" {
				path = defaultConfigName
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("configuration file already exists: %s", path)
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			newConsole(cmd, g).Success("Configuration file created: " + path)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the configuration after every source is applied. Credentials are masked.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configFile, changedFlags(cmd))
			if err != nil {
				return err
			}

			display := *cfg
			display.Twitter.AppKey = mask(display.Twitter.AppKey)
			display.Twitter.AppSecret = mask(display.Twitter.AppSecret)
			display.Archive.DSN = mask(display.Archive.DSN)

			data, err := yaml.Marshal(&display)
			if err != nil {
				return fmt.Errorf("failed to format configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for invalid values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			console := newConsole(cmd, g)
			cfg, err := config.Load(g.configFile, changedFlags(cmd))
			if err != nil {
				return err
			}
			if cfg.Twitter.AppKey == "" || cfg.Twitter.AppSecret == "" {
				console.Warning("No credentials in the configuration or environment; a stored profile will be needed")
			}
			console.Success("Configuration is valid")
			return nil
		},
	}

	configCmd.AddCommand(initCmd, showCmd, validateCmd)
	return configCmd
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return auth.Sanitize(&auth.Credentials{AppKey: s}).AppKey
}

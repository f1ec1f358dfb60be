// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/usersvc/usersvc/internal/config"
	"github.com/usersvc/usersvc/internal/logging"
)

// globalOptions holds flags shared by every subcommand.
type globalOptions struct {
	configFile string
	deps       *Deps
}

// NewRootCmd creates the root command for the usersvc CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	opts := &globalOptions{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:          "usersvc",
		Short:        "User accounts and login tokens",
		Long:         `usersvc manages user accounts and the login tokens issued to them.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/usersvc/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newUserCmd(opts))

	return cmd
}

// loadConfig resolves the configuration for cmd.
func (o *globalOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(o.configFile, cmd.Flags())
}

// setupLogging installs the default logger described by cfg.
func setupLogging(cfg *config.Config, w io.Writer) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	_, err = logging.SetDefault(logging.Options{
		Service: "usersvc",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   level,
		Output:  w,
	})
	return err
}

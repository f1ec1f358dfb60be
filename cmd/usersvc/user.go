// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UserSvc Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/usersvc/usersvc/internal/auth"
)

func newUserCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Run account operations against the configured storage",
	}
	cmd.AddCommand(newUserSignUpCmd(opts))
	cmd.AddCommand(newUserLoginCmd(opts))
	cmd.AddCommand(newUserLogoutCmd(opts))
	cmd.AddCommand(newUserValidateCmd(opts))
	return cmd
}

// passwordFlags reads a password from --password or, with
// --password-stdin, from the first line of standard input.
type passwordFlags struct {
	password string
	stdin    bool
}

func (p *passwordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.password, "password", "", "password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&p.stdin, "password-stdin", false, "read the password from standard input")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

func (p *passwordFlags) read(cmd *cobra.Command) (string, error) {
	if !p.stdin {
		return p.password, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", oops.Code("CLI_READ_PASSWORD_FAILED").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// withService opens the backend and builds a service for one command.
func withService(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, svc *auth.Service) error) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg, opts.deps.LogOutput); err != nil {
		return err
	}
	logger := slog.Default()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	backend, err := opts.deps.BackendOpener(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if backend.Close != nil {
		defer backend.Close()
	}

	svc, err := newService(cfg, backend, logger, nil)
	if err != nil {
		return err
	}
	return fn(ctx, svc)
}

func newUserSignUpCmd(opts *globalOptions) *cobra.Command {
	var (
		name, email string
		pw          passwordFlags
	)
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := pw.read(cmd)
			if err != nil {
				return err
			}
			return withService(cmd, opts, func(ctx context.Context, svc *auth.Service) error {
				user, err := svc.SignUp(ctx, name, email, password)
				if err != nil {
					return err
				}
				cmd.Printf("Registered %s (%s)\n", user.Email, user.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	_ = cmd.MarkFlagRequired("email")
	pw.register(cmd)
	return cmd
}

func newUserLoginCmd(opts *globalOptions) *cobra.Command {
	var (
		email string
		pw    passwordFlags
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Issue a login token and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := pw.read(cmd)
			if err != nil {
				return err
			}
			return withService(cmd, opts, func(ctx context.Context, svc *auth.Service) error {
				token, err := svc.Login(ctx, email, password)
				if errors.Is(err, auth.ErrUserNotFound) {
					return oops.Code("CLI_LOGIN_FAILED").Errorf("no user with email %s", email)
				}
				if err != nil {
					return err
				}
				if token == nil {
					return oops.Code("CLI_LOGIN_FAILED").Errorf("invalid credentials")
				}
				cmd.Println(token.Value)
				cmd.Printf("expires %s\n", token.ExpiresAt.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	_ = cmd.MarkFlagRequired("email")
	pw.register(cmd)
	return cmd
}

func newUserLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout TOKEN",
		Short: "Revoke a login token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *auth.Service) error {
				if err := svc.Logout(ctx, args[0]); err != nil {
					return err
				}
				cmd.Println("Token revoked")
				return nil
			})
		},
	}
}

func newUserValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate TOKEN",
		Short: "Show the owner of an active login token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, svc *auth.Service) error {
				user, err := svc.ValidateToken(ctx, args[0])
				if err != nil {
					return err
				}
				if user == nil {
					return oops.Code("CLI_TOKEN_INVALID").Errorf("token is not active")
				}
				cmd.Printf("%s (%s)\n", user.Email, user.ID)
				return nil
			})
		},
	}
}

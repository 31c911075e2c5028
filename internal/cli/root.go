package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tutorlink/tutorlink-api/internal/config"
	"github.com/tutorlink/tutorlink-api/internal/di"
	"github.com/tutorlink/tutorlink-api/internal/domain"
	"github.com/tutorlink/tutorlink-api/internal/observability"
)

type options struct {
	envFile string
	plain   bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "tutorlink-api",
		Short:         "TutorLink authentication API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return LoadEnvFile(opts.envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading configuration")
	cmd.PersistentFlags().BoolVar(&opts.plain, "plain", false, "non-interactive machine-readable output")
	cmd.AddCommand(
		newServeCommand(),
		newAdminCreateCommand(opts),
		newAdminTokenCommand(opts),
		newRevokeTokenCommand(opts),
	)
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, lp, err := observability.InitLogging(ctx, cfg, os.Stdout)
			if err != nil {
				return err
			}
			a, cleanup, err := di.InitializeApp(ctx, cfg, logger, lp)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			defer cleanup()
			return a.Run(ctx)
		},
	}
}

func newAdminCreateCommand(opts *options) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "admin-create",
		Short: "Provision an admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTools(cmd, opts, "admin-create", func(ctx context.Context, tools *di.Tools) ([]string, error) {
				admin, err := tools.Admins.Create(ctx, email, name)
				if err != nil {
					return nil, err
				}
				return []string{"admin_id=" + admin.ID.String(), "email=" + admin.Email}, nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newAdminTokenCommand(opts *options) *cobra.Command {
	var adminID, email string
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Mint an admin bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if adminID == "" && email == "" {
				return fmt.Errorf("one of --admin-id or --email is required")
			}
			return withTools(cmd, opts, "admin-token", func(ctx context.Context, tools *di.Tools) ([]string, error) {
				token, admin, err := tools.Admins.IssueToken(ctx, adminID, email)
				if err != nil {
					return nil, err
				}
				return []string{"admin_id=" + admin.ID.String(), "token=" + token}, nil
			})
		},
	}
	cmd.Flags().StringVar(&adminID, "admin-id", "", "admin id")
	cmd.Flags().StringVar(&email, "email", "", "admin email; checked against the admin when --admin-id is given")
	return cmd
}

func newRevokeTokenCommand(opts *options) *cobra.Command {
	var jti, kind string
	cmd := &cobra.Command{
		Use:   "revoke-token",
		Short: "Drop a token record from the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTools(cmd, opts, "revoke-token", func(ctx context.Context, tools *di.Tools) ([]string, error) {
				if !tools.Ledger.RevocationEnforced() {
					return nil, fmt.Errorf("token ledger is not tracking tokens; set REDIS_URL")
				}
				var err error
				switch domain.TokenKind(kind) {
				case domain.TokenKindAccess:
					err = tools.Ledger.RevokeAccess(ctx, jti)
				case domain.TokenKindRefresh:
					err = tools.Ledger.RevokeRefresh(ctx, jti)
				default:
					return nil, fmt.Errorf("unknown token kind %q", kind)
				}
				if err != nil {
					return nil, err
				}
				return []string{"kind=" + kind, "jti=" + jti}, nil
			})
		},
	}
	cmd.Flags().StringVar(&jti, "jti", "", "token id")
	cmd.Flags().StringVar(&kind, "kind", string(domain.TokenKindRefresh), "access or refresh")
	_ = cmd.MarkFlagRequired("jti")
	return cmd
}

func withTools(cmd *cobra.Command, opts *options, title string, fn func(context.Context, *di.Tools) ([]string, error)) error {
	cfg, err := config.Load()
	if err != nil {
		renderResult(cmd.OutOrStdout(), opts.plain, title, nil, err)
		return err
	}
	logger, _, err := observability.InitLogging(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	tools, cleanup, err := di.InitializeTools(cmd.Context(), cfg, logger)
	if err != nil {
		renderResult(cmd.OutOrStdout(), opts.plain, title, nil, err)
		return err
	}
	defer cleanup()

	details, err := fn(cmd.Context(), tools)
	renderResult(cmd.OutOrStdout(), opts.plain, title, details, err)
	return err
}

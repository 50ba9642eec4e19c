package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tapcard/tapcard-api/internal/app"
	"github.com/tapcard/tapcard-api/internal/config"
	"github.com/tapcard/tapcard-api/internal/domain/card"
	"github.com/tapcard/tapcard-api/internal/domain/split"
	"github.com/tapcard/tapcard-api/internal/pkg/database"
	"github.com/tapcard/tapcard-api/internal/pkg/jwt"
)

var errProduction = errors.New("refusing to issue development tokens in production")

func tokenCmd() *cobra.Command {
	var (
		role       string
		accountID  string
		terminalID string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			token, err := issueToken(cfg, role, accountID, terminalID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&role, "role", "r", jwt.RoleCustomer, "customer, merchant, terminal or admin")
	cmd.Flags().StringVarP(&accountID, "account", "a", "", "account id (merchant id for terminal tokens)")
	cmd.Flags().StringVarP(&terminalID, "terminal", "t", "", "terminal id, required for terminal tokens")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func issueToken(cfg *config.Config, role, accountID, terminalID string) (string, error) {
	if cfg.IsProduction() {
		return "", errProduction
	}
	id, err := uuid.Parse(accountID)
	if err != nil {
		return "", fmt.Errorf("invalid account id: %w", err)
	}

	svc := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	switch role {
	case jwt.RoleTerminal:
		if terminalID == "" {
			return "", errors.New("terminal tokens need --terminal")
		}
		return svc.GenerateTerminalToken(id, terminalID)
	case jwt.RoleCustomer, jwt.RoleMerchant, jwt.RoleAdmin:
		return svc.GenerateAccessToken(id, role)
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			db, err := database.NewPostgres(cfg.DatabaseURL, database.PoolConfig{MaxOpenConns: 2})
			if err != nil {
				return err
			}
			defer database.ClosePostgres(db)
			return database.Migrate(db)
		},
	}
}

func provisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision [account-id]",
		Short: "Create missing wallet and loan ledger balances for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}
			return withComponents(func(ctx context.Context, c *app.Components) error {
				account, err := c.Accounts.Provision(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wallet: %s\nloan:   %s\n", account.WalletBalanceID.String, account.LoanBalanceID.String)
				return nil
			})
		},
	}
}

func cardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Card registry operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "register [uid]",
		Short: "Register a blank card and print its dashboard code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(func(ctx context.Context, c *app.Components) error {
				created, err := card.NewService(card.NewRepository(c.DB)).Register(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uid:  %s\ncode: %s\n", created.UID, created.DashboardCode)
				return nil
			})
		},
	})

	return cmd
}

func momoCmd() *cobra.Command {
	var limit uint64

	cmd := &cobra.Command{
		Use:   "momo",
		Short: "Mobile-money operations",
	}

	poll := &cobra.Command{
		Use:   "poll",
		Short: "Run one status-poll pass over unresolved top-ups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(func(ctx context.Context, c *app.Components) error {
				n, err := c.TopUpService(nil).PollPending(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "polled %d requests\n", n)
				return nil
			})
		},
	}
	poll.Flags().Uint64Var(&limit, "limit", 100, "maximum requests to poll")
	cmd.AddCommand(poll)

	return cmd
}

func splitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Revenue split reconciliation",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "failures",
		Short: "List archived partial splits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			archive, err := app.NewArchive(cfg)
			if err != nil {
				return err
			}
			booker := split.NewBooker(nil, cfg.Currency)
			booker.SetArchive(archive)

			keys, err := booker.ListFailures(cmd.Context())
			if err != nil {
				return err
			}
			for _, key := range keys {
				rec, err := booker.GetFailure(cmd.Context(), key)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t(unreadable: %v)\n", key, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\torder=%s\tposted=%d\tfailed=%s\n", key, rec.OrderID, len(rec.Posted), rec.FailedLeg.Name)
			}
			return nil
		},
	})

	return cmd
}

func withComponents(fn func(ctx context.Context, c *app.Components) error) error {
	c, err := app.Open(config.Load())
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return fn(ctx, c)
}

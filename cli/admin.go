package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/warp/records-engine/api"
	"github.com/warp/records-engine/app"
	"github.com/warp/records-engine/export"
	"github.com/warp/records-engine/generic"
)

// =============================================================================
// TOKEN
// =============================================================================

func newTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <actor>",
		Short: "Sign a bearer token for the API",
		Long: `Sign an HS256 token whose subject is the actor. The secret defaults
to the configured jwt_secret (RECORDS_JWT_SECRET).

Example:
  curl -H "Authorization: Bearer $(recordsctl token teacher-1)" ...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := rootOpts.loadConfig()
				if err != nil {
					return err
				}
				secret = cfg.Server.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("no secret: pass --secret or set jwt_secret")
			}

			now := time.Now()
			claims := jwt.RegisteredClaims{
				ID:       uuid.NewString(),
				IssuedAt: jwt.NewNumericDate(now),
			}
			if ttl > 0 {
				claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
			}
			token, err := api.SignActor([]byte(secret), generic.ActorID(args[0]), claims)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			return rootOpts.emit(cmd.OutOrStdout(), token, map[string]any{"token": token, "jti": claims.ID})
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret (default: configured jwt_secret)")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime; 0 for no expiry")

	return cmd
}

// =============================================================================
// SCENARIOS
// =============================================================================

func newScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "List or load demo data sets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List demo scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios := app.Scenarios()
			if rootOpts.Format == "json" {
				return rootOpts.emit(cmd.OutOrStdout(), "", scenarios)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range scenarios {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Category, s.Description)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "load <id>",
		Short: "Reset the store and load a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.LoadScenario(ctx, args[0]); err != nil {
					return err
				}
				msg := export.Printer(rootOpts.language(a)).Sprintf(export.MsgScenarioLoaded, args[0])
				return rootOpts.emit(cmd.OutOrStdout(), msg, map[string]any{"status": "loaded", "scenario": args[0]})
			})
		},
	})

	return cmd
}

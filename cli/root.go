/*
root.go - recordsctl command tree

PURPOSE:
  Operator CLI over the same services as the HTTP API. Every command
  opens the configured store, runs one operation and closes it again, so
  it works against a stopped server's sqlite file or a shared postgres.

COMMANDS:
  submit -f sheet.yaml         Submit a batch document (JSON or YAML)
  import-students -f roster    Insert or replace roster entries
  generate-payments            Bill a class for one month
  export <entity>              Write an entity as CSV to stdout
  permissions pending          List requests awaiting a decision
  permissions approve <id>     Approve a pending request
  permissions reject <id>      Reject a pending request
  token <actor>                Sign a bearer token for the API
  scenario list|load <id>      Demo data sets (load resets the store)

GLOBAL FLAGS:
  --config, --driver, --db, --postgres-url override the config file and
  RECORDS_* environment the same way the server flags do. --actor stamps
  writes; --lang picks message and header language; --format is text or
  json.

SEE ALSO:
  - cmd/recordsctl/main.go: Entry point
  - app/app.go: Service wiring
*/
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/warp/records-engine/app"
	"github.com/warp/records-engine/config"
	"github.com/warp/records-engine/export"
	"github.com/warp/records-engine/generic"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath  string
	Driver      string
	DB          string
	PostgresURL string
	Actor       string
	Lang        string
	Format      string // "text" | "json"
	Verbose     bool

	// open builds the engine; tests replace it.
	open func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.App, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for recordsctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{open: app.New})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recordsctl",
		Short: "recordsctl - school records engine",
		Long:  "Batch entry, billing, leave approvals and exports against the records store.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", "records.json", "JSON config file (optional)")
	pf.StringVar(&opts.Driver, "driver", "", "store driver: sqlite or postgres")
	pf.StringVar(&opts.DB, "db", "", "SQLite database path")
	pf.StringVar(&opts.PostgresURL, "postgres-url", "", "PostgreSQL connection string")
	pf.StringVar(&opts.Actor, "actor", "", "actor id stamped on writes")
	pf.StringVar(&opts.Lang, "lang", "", "message and header language (en, id)")
	pf.StringVar(&opts.Format, "format", "text", "output format (text|json)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "log engine events to stderr")

	// Add subcommands
	cmd.AddCommand(newSubmitCommand(opts))
	cmd.AddCommand(newImportStudentsCommand(opts))
	cmd.AddCommand(newGeneratePaymentsCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newPermissionsCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	cmd.AddCommand(newScenarioCommand(opts))

	return cmd
}

// =============================================================================
// HELPERS
// =============================================================================

// loadConfig applies the global flags that were set over file and env.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.Driver != "" {
		cfg.Store.Driver = o.Driver
	}
	if o.DB != "" {
		cfg.Store.SQLitePath = o.DB
	}
	if o.PostgresURL != "" {
		cfg.Store.PostgresURL = o.PostgresURL
	}
	if o.Lang != "" {
		cfg.Server.Language = o.Lang
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// withApp opens the engine for one command and closes it afterwards.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	logCfg := cfg.Log
	if !o.Verbose {
		logCfg.Level = "error"
	}
	logger := logCfg.NewLogger(cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := o.open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func (o *RootOptions) language(a *app.App) language.Tag {
	if o.Lang != "" {
		return export.Parse(o.Lang)
	}
	return export.Parse(a.Config.Server.Language)
}

func (o *RootOptions) actor() generic.ActorID {
	return generic.ActorID(o.Actor)
}

// emit prints v as JSON in json mode and text otherwise.
func (o *RootOptions) emit(w io.Writer, text string, v any) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

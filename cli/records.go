package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/warp/records-engine/app"
	"github.com/warp/records-engine/export"
	"github.com/warp/records-engine/factory"
	"github.com/warp/records-engine/finance"
	"github.com/warp/records-engine/generic"
	"github.com/warp/records-engine/roster"
)

// =============================================================================
// SUBMIT
// =============================================================================

type submitOptions struct {
	*RootOptions
	File   string
	Entity string
}

func newSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &submitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit -f <sheet.json|sheet.yaml>",
		Short: "Submit a grade, tahfidz, payment or attendance sheet",
		Long: `Submit a batch document. The entity comes from the document's
"entity" field unless --entity is given.

Example:
  recordsctl submit -f math-7a.yaml --actor teacher-1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return runSubmit(ctx, cmd, opts, a)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "batch document")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "entity type, overriding the document")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runSubmit(ctx context.Context, cmd *cobra.Command, opts *submitOptions, a *app.App) error {
	data, err := os.ReadFile(opts.File)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", opts.File, err)
	}

	format := factory.FormatFor(opts.File)
	var sub *factory.Submission
	if opts.Entity != "" {
		sub, err = a.Factory.ParseFor(generic.EntityType(opts.Entity), data, format)
	} else {
		sub, err = a.Factory.Parse(data, format)
	}
	if err != nil {
		return err
	}
	if opts.Actor != "" {
		sub.WithActor(opts.actor())
	}

	out, err := sub.Submit(ctx, a.Services())
	if err != nil {
		if out.Inserted > 0 || out.Updated > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "kept %d inserted and %d updated before the failure\n", out.Inserted, out.Updated)
		}
		return err
	}

	p := export.Printer(opts.language(a))
	msg := p.Sprintf(export.MsgBatchSaved, out.Inserted, out.Updated)
	if out.Strategy == generic.StrategyUpsert {
		msg = p.Sprintf(export.MsgBatchUpserted, out.Upserted)
	}
	return opts.emit(cmd.OutOrStdout(), msg, map[string]any{
		"entity":   out.Entity,
		"inserted": out.Inserted,
		"updated":  out.Updated,
		"upserted": out.Upserted,
		"message":  msg,
	})
}

// =============================================================================
// ROSTER
// =============================================================================

func newImportStudentsCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import-students -f <roster.json|roster.yaml>",
		Short: "Insert or replace roster entries by student id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			var students []roster.Student
			if factory.FormatFor(file) == factory.FormatYAML {
				err = yaml.Unmarshal(data, &students)
			} else {
				err = json.Unmarshal(data, &students)
			}
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", file, err)
			}

			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Roster.Import(ctx, students)
				if err != nil {
					return err
				}
				msg := export.Printer(rootOpts.language(a)).Sprintf(export.MsgStudentsImported, n)
				return rootOpts.emit(cmd.OutOrStdout(), msg, map[string]any{"imported": n, "message": msg})
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "roster file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// =============================================================================
// PAYMENT GENERATION
// =============================================================================

type generateOptions struct {
	ClassID  string
	Category string
	Month    int
	Year     int
	Amount   string
}

func newGeneratePaymentsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate-payments",
		Short: "Bill every active student of a class for one month",
		Long: `Bill every active student of a class for one month. Students
already billed for the period are skipped, so re-running is safe.

Example:
  recordsctl generate-payments --class 7A --category spp --month 8 --year 2024 --amount 150000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(opts.Amount)
			if err != nil {
				return generic.Invalid("amount", "amount must be a decimal number")
			}
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Finance.GeneratePayments(ctx, finance.GenerateRequest{
					ClassID: opts.ClassID,
					Period:  generic.BillingPeriod{Category: opts.Category, Month: opts.Month, Year: opts.Year},
					Amount:  amount,
					Actor:   rootOpts.actor(),
				})
				if err != nil {
					return err
				}
				msg := export.Printer(rootOpts.language(a)).Sprintf(export.MsgPaymentsGenerated, len(res.Billed), res.Skipped)
				return rootOpts.emit(cmd.OutOrStdout(), msg, map[string]any{
					"billed":  res.Billed,
					"skipped": res.Skipped,
					"message": msg,
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.ClassID, "class", "", "class id (empty bills every active student)")
	cmd.Flags().StringVar(&opts.Category, "category", "spp", "payment category")
	cmd.Flags().IntVar(&opts.Month, "month", 0, "billing month (1-12)")
	cmd.Flags().IntVar(&opts.Year, "year", 0, "billing year")
	cmd.Flags().StringVar(&opts.Amount, "amount", "", "amount per student")
	_ = cmd.MarkFlagRequired("month")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

// =============================================================================
// EXPORT
// =============================================================================

func newExportCommand(rootOpts *RootOptions) *cobra.Command {
	var filters []string

	cmd := &cobra.Command{
		Use:   "export <entity>",
		Short: "Write grade, tahfidz_grade, payment, attendance or permission rows as CSV",
		Long: `Write an entity as CSV to stdout. Filters are column=value pairs.

Example:
  recordsctl export payment --filter month=8 --filter year=2024 --lang id > spp.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity := generic.EntityType(args[0])
			params := make(map[string]string, len(filters))
			for _, f := range filters {
				name, value, ok := strings.Cut(f, "=")
				if !ok {
					return fmt.Errorf("invalid filter %q: want column=value", f)
				}
				params[name] = value
			}
			key, err := export.Filter(entity, params)
			if err != nil {
				return err
			}

			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				table, err := a.Export.Export(ctx, entity, key, rootOpts.language(a))
				if err != nil {
					return err
				}
				return export.WriteCSV(cmd.OutOrStdout(), table)
			})
		},
	}

	cmd.Flags().StringArrayVar(&filters, "filter", nil, "column=value filter (repeatable)")

	return cmd
}

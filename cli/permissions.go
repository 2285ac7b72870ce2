package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/records-engine/app"
	"github.com/warp/records-engine/export"
	"github.com/warp/records-engine/generic"
)

func newPermissionsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "permissions",
		Aliases: []string{"perm"},
		Short:   "Review leave requests",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "List requests awaiting a decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				perms, err := a.Permission.ListPending(ctx)
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return rootOpts.emit(cmd.OutOrStdout(), "", perms)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTUDENT\tFROM\tTO\tREASON")
				for _, p := range perms {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.StudentID, p.StartDate, p.EndDate, p.Reason)
				}
				return tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				t, err := a.Permission.Approve(ctx, generic.RecordID(args[0]), rootOpts.actor())
				if err != nil {
					return err
				}
				return emitTransition(cmd, rootOpts, a, t)
			})
		},
	})

	var reason string
	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				t, err := a.Permission.Reject(ctx, generic.RecordID(args[0]), rootOpts.actor(), reason)
				if err != nil {
					return err
				}
				return emitTransition(cmd, rootOpts, a, t)
			})
		},
	}
	reject.Flags().StringVar(&reason, "reason", "", "rejection reason shown to the guardian")
	cmd.AddCommand(reject)

	return cmd
}

func emitTransition(cmd *cobra.Command, opts *RootOptions, a *app.App, t generic.Transitioned) error {
	lang := opts.language(a)
	status := strings.ToLower(export.Status(string(t.Status), lang))
	msg := export.Printer(lang).Sprintf(export.MsgPermissionDecided, status)
	return opts.emit(cmd.OutOrStdout(), msg, map[string]any{
		"id":          t.ID,
		"student_id":  t.TargetID,
		"status":      t.Status,
		"approved_by": t.ApprovedBy,
		"approved_at": t.ApprovedAt,
		"message":     msg,
	})
}

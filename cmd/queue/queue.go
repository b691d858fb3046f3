// Package queue provides the queue command for the pending-submission queue
package queue

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldscan/fieldscan/internal/app"
)

// Command creates the queue command with its subcommands
func Command(loader *app.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drain submissions waiting to be sent",
	}
	cmd.AddCommand(listCommand(loader), drainCommand(loader), removeCommand(loader))
	return cmd
}

func listCommand(loader *app.Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending submissions in send order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loader.Open(cmd.Context())
			if err != nil {
				return err
			}
			items, err := a.Offline.ListPending(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending submissions")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tPERFORMER\tRESULTS\tQUEUED\tATTEMPTS\tLAST ERROR")
			for _, it := range items {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%d\t%s\n",
					it.ID, it.EquipmentCode, it.PerformedBy, it.ResultCount,
					it.QueuedAt.Local().Format(time.DateTime), it.Attempts, it.LastError)
			}
			return w.Flush()
		},
	}
}

func drainCommand(loader *app.Loader) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Try to send every pending submission once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loader.Open(ctx)
			if err != nil {
				return err
			}
			if !a.Monitor.Check(ctx).Reachable && !force {
				fmt.Fprintf(cmd.OutOrStdout(), "backend unreachable, %d pending\n", a.Offline.PendingCount())
				return nil
			}

			report, err := a.Offline.DrainQueue(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d of %d, %d remaining\n", report.Sent, report.Attempted, report.Remaining)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Drain even when the health probe fails")
	return cmd
}

func removeCommand(loader *app.Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a pending submission without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 0)
			if err != nil {
				return fmt.Errorf("invalid queue id %q", args[0])
			}
			a, err := loader.Open(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Offline.RemovePending(cmd.Context(), uint(id)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed #%d, %d pending\n", id, a.Offline.PendingCount())
			return nil
		},
	}
}

package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/mmdatafocus/fieldsync/models"
	"github.com/spf13/cobra"
)

var (
	runsKind  string
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "Show the sync history, or one run with its failures",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := tenantContext(cmd)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run id %q", args[0])
			}
			run, err := models.GetSyncRun(ctx, uint(id))
			if err != nil {
				return err
			}
			return printRun(ctx, cmd, run)
		}

		runs, err := models.ListSyncRuns(ctx, runsKind, runsLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tTRIGGER\tTOTAL\tSYNCED\tERRORS\tCREATED")
		for _, r := range runs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				r.ID, r.Kind, r.Status, r.TriggeredBy, r.TotalEntities, r.EntitiesSynced, r.ErrorCount,
				r.CreatedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsKind, "kind", "", "only runs of this kind (groups, clients, client_payloads)")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to list")
	rootCmd.AddCommand(runsCmd)
}

func printRun(ctx context.Context, cmd *cobra.Command, run *models.SyncRun) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %d %s: %s, %d/%d synced, %d failed, %d accounts, %d errors, %dms\n",
		run.ID, run.Kind, run.Status, run.EntitiesSynced, run.TotalEntities, run.EntitiesFailed, run.AccountsSynced, run.ErrorCount, run.DurationMs)
	if run.ErrorCount == 0 {
		return nil
	}
	failures, err := models.ListSyncFailures(context.WithoutCancel(ctx), run.ID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tID\tNAME\tCATEGORY\tMESSAGE")
	for _, f := range failures {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", f.EntityKind, f.EntityId, f.EntityName, f.Category, f.Message)
	}
	return tw.Flush()
}

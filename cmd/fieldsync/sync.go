package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mmdatafocus/fieldsync/blobstore"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/offlinesync"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync against Fineract in this process",
	Long: `sync creates a run and executes it here instead of publishing it to the
worker topic. The run shows up in the history like any other.`,
}

var syncGroupsCmd = &cobra.Command{
	Use:   "groups <group-id>...",
	Short: "Pull groups with their members and accounts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, models.SyncKindGroups, args)
	},
}

var syncClientsCmd = &cobra.Command{
	Use:   "clients <client-id>...",
	Short: "Pull individual clients with their accounts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, models.SyncKindClients, args)
	},
}

var syncPayloadsCmd = &cobra.Command{
	Use:   "payloads [pending-id]...",
	Short: "Upload clients created while offline",
	Long:  "Without ids every pending client of the tenant is uploaded.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, models.SyncKindClientPayloads, args)
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <run-id>",
	Short: "Run again over the entities a finished run failed on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := tenantContext(cmd)
		if err != nil {
			return err
		}
		parentId, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q", args[0])
		}
		run, err := offlinesync.RetryRun(ctx, uint(parentId))
		if err != nil {
			return err
		}
		return execute(ctx, cmd, run)
	},
}

func init() {
	syncCmd.AddCommand(syncGroupsCmd, syncClientsCmd, syncPayloadsCmd, retryCmd)
	rootCmd.AddCommand(syncCmd)
}

func parseIds(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runSync(cmd *cobra.Command, kind string, args []string) error {
	ctx, err := tenantContext(cmd)
	if err != nil {
		return err
	}
	ids, err := parseIds(args)
	if err != nil {
		return err
	}
	if kind == models.SyncKindClientPayloads && len(ids) == 0 {
		if ids, err = offlinesync.PendingPayloadIds(ctx); err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no pending clients")
			return nil
		}
	}

	run, err := models.CreateSyncRun(ctx, kind, models.SyncTriggeredManual, ids, nil)
	if err != nil {
		return err
	}
	return execute(ctx, cmd, run)
}

func execute(ctx context.Context, cmd *cobra.Command, run *models.SyncRun) error {
	blobs, err := blobstore.NewFromEnv(ctx)
	if err != nil {
		return err
	}
	worker := offlinesync.NewWorker(offlinesync.FineractRemote, offlinesync.OptionsFromEnv(blobs))
	fmt.Fprintf(cmd.OutOrStdout(), "run %d: %s over %d entities\n", run.ID, run.Kind, run.TotalEntities)

	if err := worker.ProcessSyncRun(ctx, offlinesync.SyncPubSubPayload{RunId: run.ID, TenantId: run.TenantId}); err != nil {
		return err
	}
	// the context may be cancelled by now; the outcome is still worth printing
	done, err := models.GetSyncRun(context.WithoutCancel(ctx), run.ID)
	if err != nil {
		return err
	}
	return printRun(ctx, cmd, done)
}

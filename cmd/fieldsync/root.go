package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/utils"
	"github.com/spf13/cobra"
)

var tenantId string

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Operator tool for the field sync service",
	Long: `fieldsync runs the maintenance jobs of the field sync service from a shell:
schema migration, inline sync runs against Fineract and the run history.
It reads the same environment as the service.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ConnectDatabase(); err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db := config.GetDB(); db != nil {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tenantId, "tenant", os.Getenv("FIELDSYNC_TENANT"), "Fineract tenant identifier")
}

// tenantContext scopes every query the command makes to --tenant.
func tenantContext(cmd *cobra.Command) (context.Context, error) {
	tenant := strings.TrimSpace(tenantId)
	if tenant == "" {
		return nil, fmt.Errorf("--tenant is required")
	}
	return utils.SetTenantIdInContext(cmd.Context(), tenant), nil
}

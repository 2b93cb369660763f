package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runOnceTenant string

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run a single scan and exit",
	Long:  "run-once executes one scan cycle and exits. With --tenant it scans only that tenant; otherwise it runs a full tick across all active tenants. Exits non-zero when any tenant run fails.",
	RunE:  runOnce,
}

func init() {
	runOnceCmd.Flags().StringVar(&runOnceTenant, "tenant", "", "scan only this tenant id")
	rootCmd.AddCommand(runOnceCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runOnceTenant != "" {
		if _, err := eng.tenants.GetByID(ctx, runOnceTenant); err != nil {
			return startupError(fmt.Errorf("tenant %q: %w", runOnceTenant, err))
		}

		state, err := eng.runner.Run(ctx, runOnceTenant)
		if err != nil {
			return partialFailureError(fmt.Errorf("tenant run failed: %w", err))
		}

		fmt.Printf("tenant %s: scanned=%d skipped=%d sent=%d failed=%d\n",
			runOnceTenant,
			state.CandidatesScanned,
			state.CandidatesSkipped,
			state.DispatchesSent,
			state.DispatchesFailed,
		)
		if state.DispatchesFailed > 0 {
			return partialFailureError(fmt.Errorf("%d dispatches failed", state.DispatchesFailed))
		}
		return nil
	}

	summary, err := eng.scheduler.Tick(ctx)
	if err != nil {
		return partialFailureError(fmt.Errorf("tick failed: %w", err))
	}

	fmt.Printf("tick: run=%d failed=%d skipped=%d duration=%s\n",
		summary.TenantsRun,
		summary.TenantsFailed,
		summary.TenantsSkipped,
		summary.Finished.Sub(summary.Started).Round(time.Millisecond),
	)
	if summary.PartialFailure() {
		return partialFailureError(fmt.Errorf("%d tenant runs failed", summary.TenantsFailed))
	}
	return nil
}

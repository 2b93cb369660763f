package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/nioasoft/reminder-engine/internal/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last run state for every tenant",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
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

	states, err := eng.runStates.List(cmd.Context())
	if err != nil {
		return partialFailureError(fmt.Errorf("list run states: %w", err))
	}
	if len(states) == 0 {
		fmt.Println("no tenant runs recorded yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TENANT\tLAST RUN\tSTATE\tSCANNED\tSENT\tFAILED\tERROR")
	for i := range states {
		s := &states[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			s.TenantID,
			s.LastRunStartedAt.UTC().Format(time.RFC3339),
			runStateLabel(s),
			s.CandidatesScanned,
			s.DispatchesSent,
			s.DispatchesFailed,
			lastErrorText(s),
		)
	}
	return w.Flush()
}

func runStateLabel(s *domain.TenantRunState) string {
	switch {
	case s.Completed():
		return "completed"
	case s.Cursor != "":
		return "resumable"
	default:
		return "incomplete"
	}
}

func lastErrorText(s *domain.TenantRunState) string {
	if s.LastError == nil {
		return "-"
	}
	text := *s.LastError
	if len(text) > 60 {
		return text[:57] + "..."
	}
	return text
}

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"relink/internal/gateway/handlers"
)

// NewStatusCmd 创建 status 命令
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's reconnection state and metrics",
		Example: `  relink status
  relink status --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			var status handlers.StatusResponse
			if err := cliCtx.APIClient().Get("/api/status", nil, &status); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if wantJSON(asJSON, out) {
				return printJSON(out, status)
			}
			printStatus(out, status)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func printStatus(out io.Writer, s handlers.StatusResponse) {
	st, m := s.State, s.Metrics

	fmt.Fprintf(out, "Phase:          %s\n", st.Phase)
	fmt.Fprintf(out, "Reconnecting:   %s\n", yesNo(st.IsReconnecting))
	if st.IsReconnecting {
		fmt.Fprintf(out, "  Cycle:        %s\n", st.CycleID)
		fmt.Fprintf(out, "  Reason:       %s\n", st.Reason)
		fmt.Fprintf(out, "  Attempt:      %d\n", st.CurrentAttempt)
		fmt.Fprintf(out, "  Next in:      %s\n", st.NextAttemptIn)
	}
	fmt.Fprintf(out, "Strategy:       %s\n", st.Strategy)
	fmt.Fprintf(out, "Circuit open:   %s (%d consecutive failures)\n",
		yesNo(st.CircuitBreakerOpen), st.Breaker.ConsecutiveFailures)
	fmt.Fprintf(out, "Fallback mode:  %s\n", yesNo(st.FallbackModeActive))
	fmt.Fprintf(out, "Delay factor:   %.2f\n", st.AdaptiveDelayMultiplier)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Attempts:       %d (%d ok, %d failed)\n",
		m.TotalAttempts, m.SuccessfulReconnections, m.FailedAttempts)
	fmt.Fprintf(out, "Avg reconnect:  %s\n", m.AverageReconnectionTime)
	fmt.Fprintf(out, "Uptime:         %s\n", m.CumulativeUptime)
	if !m.LastSuccessAt.IsZero() {
		fmt.Fprintf(out, "Last success:   %s\n", m.LastSuccessAt.Format("2006-01-02 15:04:05"))
	}
}

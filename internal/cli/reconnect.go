package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"relink/internal/gateway/handlers"
)

// NewReconnectCmd 创建 reconnect 命令
func NewReconnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconnect [reason]",
		Short: "Force a one-shot reconnection on the running daemon",
		Example: `  relink reconnect
  relink reconnect "switched uplink"`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			body := map[string]string{}
			if reason := strings.TrimSpace(strings.Join(args, " ")); reason != "" {
				body["reason"] = reason
			}

			var resp handlers.ReconnectResponse
			if err := cliCtx.APIClient().Post("/api/reconnect", body, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if wantJSON(asJSON, out) {
				return printJSON(out, resp)
			}
			if resp.Success {
				fmt.Fprintln(out, "Reconnected.")
			} else {
				fmt.Fprintf(out, "Reconnect failed (phase %s, fallback %s).\n",
					resp.State.Phase, yesNo(resp.State.FallbackModeActive))
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

// NewQualityCmd 创建 quality 命令
func NewQualityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quality",
		Short: "Run a quality assessment on the running daemon",
		Long: `Run a quality assessment on the running daemon.

The assessment may start a reconnection cycle when the connection is offline
or its quality score is below the threshold, and may retune the base delay
and attempt limit from recent history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			var q handlers.QualityView
			if err := cliCtx.APIClient().Post("/api/quality", nil, &q); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if wantJSON(asJSON, out) {
				return printJSON(out, q)
			}
			fmt.Fprintf(out, "Online:        %s\n", yesNo(q.IsOnline))
			fmt.Fprintf(out, "Score:         %d\n", q.QualityScore)
			fmt.Fprintf(out, "Samples:       %d\n", q.SampleCount)
			fmt.Fprintf(out, "Success rate:  %.0f%%\n", q.RollingSuccessRate*100)
			fmt.Fprintf(out, "Avg latency:   %s\n", q.RollingAverageLatency)
			if q.Triggered {
				fmt.Fprintf(out, "Triggered reconnection: %s\n", q.Reason)
			}
			if q.Retuned {
				fmt.Fprintln(out, "Retuned base delay and attempt limit.")
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

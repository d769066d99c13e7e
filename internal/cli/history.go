package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"relink/internal/storage"
)

// NewHistoryCmd 创建 history 命令
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded reconnection events",
		Long: `Show reconnection events recorded by the daemon.

Events are read from the local history database, so the daemon does not need
to be running.`,
		Example: `  relink history
  relink history --limit 20
  relink history --cycle 6f1c...`,
		RunE: runHistory,
	}

	cmd.Flags().IntP("limit", "n", 50, "maximum number of events")
	cmd.Flags().String("cycle", "", "show only the events of one cycle")
	cmd.Flags().Bool("json", false, "output as JSON")

	cmd.AddCommand(newHistorySnapshotsCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}
	db, err := cliCtx.GetStorage()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	cycle, _ := cmd.Flags().GetString("cycle")
	asJSON, _ := cmd.Flags().GetBool("json")

	store := storage.NewEventStore(db)
	var events []*storage.EventRecord
	if cycle != "" {
		events, err = store.ListByCycle(cycle)
	} else {
		events, err = store.List(limit)
	}
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}

	out := cmd.OutOrStdout()
	if wantJSON(asJSON, out) {
		if events == nil {
			events = []*storage.EventRecord{}
		}
		return printJSON(out, events)
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "No events recorded.")
		return nil
	}
	printEvents(out, events)
	return nil
}

func printEvents(out io.Writer, events []*storage.EventRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tCYCLE\tATTEMPT\tDETAIL")
	for _, ev := range events {
		detail := ev.Reason
		if ev.Error != "" {
			detail = ev.Error
		}
		if ev.Strategy != "" {
			detail = "strategy=" + ev.Strategy
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			ev.At.Local().Format("2006-01-02 15:04:05"), ev.Kind, shortID(ev.CycleID), ev.Attempt, detail)
	}
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newHistorySnapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Show periodic metrics snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}
			db, err := cliCtx.GetStorage()
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}

			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")

			snaps, err := storage.NewSnapshotStore(db).List(limit)
			if err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}

			out := cmd.OutOrStdout()
			if wantJSON(asJSON, out) {
				if snaps == nil {
					snaps = []*storage.Snapshot{}
				}
				return printJSON(out, snaps)
			}
			if len(snaps) == 0 {
				fmt.Fprintln(out, "No snapshots recorded.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TAKEN\tPHASE\tATTEMPTS\tOK\tFAILED\tAVG\tCIRCUIT\tFALLBACK")
			for _, s := range snaps {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
					s.TakenAt.Local().Format("2006-01-02 15:04:05"), s.Phase,
					s.TotalAttempts, s.SuccessfulReconnections, s.FailedAttempts,
					s.AverageReconnectionTime, yesNo(s.CircuitOpen), yesNo(s.FallbackActive))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "maximum number of snapshots")
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prune",
		Short:   "Delete events and snapshots older than a cutoff",
		Example: `  relink history prune --older-than 72h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}

			olderThan, _ := cmd.Flags().GetDuration("older-than")
			if olderThan <= 0 {
				olderThan = cliCtx.Config.Storage.Retention
			}
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			db, err := cliCtx.GetStorage()
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			res, err := db.Prune(time.Now().Add(-olderThan))
			if err != nil {
				return fmt.Errorf("failed to prune history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d events and %d snapshots older than %s\n",
				res.Events, res.Snapshots, olderThan)
			return nil
		},
	}
	cmd.Flags().Duration("older-than", 0, "age cutoff (defaults to storage.retention)")
	return cmd
}

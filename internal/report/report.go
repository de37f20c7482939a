package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"main/internal/experiment"
)

// PrintRun renders a finished experiment run as a per-phase table with an
// aggregate footer.
func PrintRun(out io.Writer, run experiment.Run) {
	fmt.Fprintf(out, "\nRun %s (%s)\n", run.RunID, run.Note)
	fmt.Fprintf(out, "%s to %s\n", run.StartedAt.Format("2006-01-02 15:04:05"), run.EndsAt.Format("2006-01-02 15:04:05"))
	if len(run.Symbols) > 0 {
		fmt.Fprintf(out, "Symbols: %s\n", strings.Join(run.Symbols, ", "))
	}

	if len(run.Results) == 0 {
		fmt.Fprintln(out, "No completed phases.")
		return
	}

	tbl := tablewriter.NewWriter(out)
	tbl.Header("Phase", "Preset", "PnL", "Trades", "Wins", "Losses", "Fees", "Ended")
	for _, result := range run.Results {
		tbl.Append(
			fmt.Sprintf("%d", result.PhaseIndex),
			result.Preset,
			result.Delta.Pnl.String(),
			fmt.Sprintf("%d", result.Delta.Trades),
			fmt.Sprintf("%d", result.Delta.Wins),
			fmt.Sprintf("%d", result.Delta.Losses),
			result.Delta.Fees.String(),
			result.EndedAt.Format("15:04:05"),
		)
	}
	tbl.Render()

	if run.Final != nil {
		fmt.Fprintf(out, "\nTotal PnL: %s | Trades: %d | Wins: %d | Losses: %d | Fees: %s\n",
			run.Final.TotalPnl.String(), run.Final.Trades, run.Final.Wins, run.Final.Losses, run.Final.Fees.String())
	}
	fmt.Fprintln(out)
}

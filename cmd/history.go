package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"volley/internal/report"
	"volley/internal/storage"
	"volley/internal/tui/history"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past bursts, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		export, _ := cmd.Flags().GetString("export")

		if len(args) == 1 {
			return showRun(cmd, store, args[0], export)
		}

		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := store.List(limit)
		if err != nil {
			return err
		}

		if interactive, _ := cmd.Flags().GetBool("interactive"); !interactive {
			printEntries(out, entries)
			return nil
		}

		final, err := tea.NewProgram(history.NewModel(entries), tea.WithOutput(out)).Run()
		if err != nil {
			return err
		}
		if m, ok := final.(history.Model); ok && m.Selected != nil {
			return showRun(cmd, store, m.Selected.ID, export)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Runs to list (0 for all)")
	historyCmd.Flags().BoolP("interactive", "i", false, "Browse runs in a table")
	historyCmd.Flags().String("export", "", "Write the shown run to <prefix>.csv and <prefix>_summary.json")
}

func showRun(cmd *cobra.Command, store *storage.Store, id, export string) error {
	r, err := store.Get(id)
	if err != nil {
		return err
	}
	report.Render(cmd.OutOrStdout(), r)
	if export == "" {
		return nil
	}
	if err := (report.FileSink{Prefix: export}).Save(cmd.Context(), r); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Reports saved to %s.csv and %s_summary.json\n", export, export)
	return nil
}

func printEntries(w io.Writer, entries []storage.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tURL\tWORKERS\tSUCCESS\tLATENCY\tTIMED OUT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d/%d\tp%g %s\t%t\n",
			e.ID,
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.URL,
			e.Workers,
			e.Success, e.Total,
			e.Rank, e.Latency.Round(time.Millisecond),
			e.TimedOut,
		)
	}
	tw.Flush()
}

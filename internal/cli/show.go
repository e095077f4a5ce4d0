package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// --- contexts command ---

var contextsCmd = &cobra.Command{
	Use:   "contexts",
	Short: "List persisted contexts",
	RunE:  runContexts,
}

func runContexts(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	list, err := db.ListContexts()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No contexts found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONTEXT\tENTRIES\tUPDATED")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, humanize.Comma(int64(c.Entries)), humanize.Time(time.UnixMilli(c.UpdatedAt)))
	}
	return w.Flush()
}

// --- show command ---

var (
	showLandmarks bool
	showLimit     int
)

var showCmd = &cobra.Command{
	Use:   "show <context>",
	Short: "Show the interesting elements of a context",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showLandmarks, "landmarks", false, "only show landmarks")
	showCmd.Flags().IntVarP(&showLimit, "limit", "n", 25, "maximum elements to show (0 for all)")
}

func runShow(cmd *cobra.Command, args []string) error {
	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.DB.Close()

	c, err := eng.Context(args[0])
	if err != nil {
		return err
	}

	items := c.Interesting()
	if showLandmarks {
		items = c.Landmarks()
	}
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing interesting yet.")
		return nil
	}
	if showLimit > 0 && len(items) > showLimit {
		items = items[:showLimit]
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tLANDMARK\tKIND\tEVENTS\tLAST TOUCHED\tHANDLE")
	for _, st := range items {
		mark := ""
		if st.Landmark {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			humanize.FtoaWithDigits(st.Score, 3), mark, st.StructureKind, st.Events,
			humanize.Time(st.LastTouched), st.Handle)
	}
	return w.Flush()
}

// --- history command ---

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <context>",
	Short: "Print the aggregated interaction history of a context",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "only the most recent entries (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.DB.Close()

	c, err := eng.Context(args[0])
	if err != nil {
		return err
	}

	history := c.History()
	start := 0
	if historyLimit > 0 && historyLimit < len(history) {
		start = len(history) - historyLimit
	}
	for i := start; i < len(history); i++ {
		a := history[i]
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s %s x%d score=%s\n",
			i, a.Kind, a.Handle, a.NumCollapsedEvents, humanize.FtoaWithDigits(a.Score, 3))
		if text := a.DurationsText(); text != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "   %s\n", text)
		}
	}
	return nil
}

package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lazypower/attention/internal/eventlog"
)

var ingestContext string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Replay a JSONL event log into a context",
	Long: `Replay a JSONL event log into a context, one event per line.
Without --context a new context with a random id is created.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestContext, "context", "", "context id (default: new random id)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	res, err := eventlog.ParseFile(args[0])
	if err != nil {
		return err
	}

	id := ingestContext
	if id == "" {
		id = uuid.NewString()
	}

	eng, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer eng.DB.Close()

	parsed, skipped, err := eng.Replay(cmd.Context(), id, res.Events)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	c, err := eng.Context(id)
	if err != nil {
		// Empty log.
		fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing ingested (%d malformed lines)\n", id, res.Skipped)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events ingested, %d without handle, %d malformed lines; %d history entries\n",
		id, parsed, skipped, res.Skipped, c.Len())
	return nil
}

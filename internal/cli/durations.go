package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/attention/internal/duration"
)

var durationsCmd = &cobra.Command{
	Use:   "durations",
	Short: "Encode and decode duration lists",
}

var durationsDecodeCmd = &cobra.Command{
	Use:   "decode <text>",
	Short: "Parse a duration list and print its ranges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := duration.ParseList(args[0])
		if err != nil {
			return err
		}
		var total time.Duration
		for i, d := range ds {
			tag := "referred"
			if d.Modified {
				tag = "modified"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d. %s .. %s %s (%s)\n", i,
				d.Begin.UTC().Format(time.RFC3339Nano), d.End.UTC().Format(time.RFC3339Nano), tag, d.Length())
			total += d.Length()
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d ranges, %s total\n", len(ds), total)
		return nil
	},
}

var durationsEncodeCmd = &cobra.Command{
	Use:   "encode <begin> <end> <modified|referred> [<begin> <end> <tag>...]",
	Short: "Render ranges given as RFC 3339 times in the duration wire format",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args)%3 != 0 {
			return fmt.Errorf("expected triples of <begin> <end> <tag>, got %d arguments", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var ds []duration.Duration
		for i := 0; i < len(args); i += 3 {
			begin, err := time.Parse(time.RFC3339Nano, args[i])
			if err != nil {
				return fmt.Errorf("begin: %w", err)
			}
			end, err := time.Parse(time.RFC3339Nano, args[i+1])
			if err != nil {
				return fmt.Errorf("end: %w", err)
			}
			if end.Before(begin) {
				return fmt.Errorf("range %d ends before it begins", i/3)
			}
			var modified bool
			switch args[i+2] {
			case "modified":
				modified = true
			case "referred":
			default:
				return fmt.Errorf("unknown tag %q", args[i+2])
			}
			ds = append(ds, duration.Duration{Begin: begin, End: end, Modified: modified})
		}
		fmt.Fprintln(cmd.OutOrStdout(), duration.FormatList(ds))
		return nil
	},
}

func init() {
	durationsCmd.AddCommand(durationsDecodeCmd)
	durationsCmd.AddCommand(durationsEncodeCmd)
}

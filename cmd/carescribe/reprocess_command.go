package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"carescribe/internal/config"
	"carescribe/internal/daemonrun"
	"carescribe/internal/reprocess"
)

func newReprocessCommand(ctx *commandContext) *cobra.Command {
	var subject string
	var force bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Re-run analysis for stored records with a missing or incomplete analysis",
		Long: "Re-run analysis for stored records. Without --force only records whose analysis is " +
			"missing or incomplete are processed; --subject limits the sweep to one subject.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(_ *config.Config, _ *slog.Logger, stack *daemonrun.Stack) error {
				result, err := stack.Reprocessor.Bulk(cmd.Context(), strings.TrimSpace(subject), force)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				printReprocessResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Only reprocess records for this subject id")
	cmd.Flags().BoolVar(&force, "force", false, "Reprocess records even when their analysis is complete")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printReprocessResult(out io.Writer, result reprocess.Result) {
	fmt.Fprintf(out, "Processed: %d\n", len(result.Processed))
	fmt.Fprintf(out, "Unchanged: %d\n", result.Unchanged)
	if result.Busy > 0 {
		fmt.Fprintf(out, "Busy:      %d\n", result.Busy)
	}
	fmt.Fprintf(out, "Failed:    %d\n", len(result.Failed))
	for _, name := range result.Processed {
		fmt.Fprintf(out, "  updated %s\n", name)
	}
	for _, name := range result.Failed {
		fmt.Fprintf(out, "  failed  %s\n", name)
	}
	fmt.Fprintf(out, "Duration:  %s\n", result.Duration.Round(time.Millisecond))
}

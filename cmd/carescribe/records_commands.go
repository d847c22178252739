package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"carescribe/internal/config"
	"carescribe/internal/daemonrun"
	"carescribe/internal/fileutil"
	"carescribe/internal/recordexport"
	"carescribe/internal/recordstore"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and export stored records",
	}
	recordsCmd.AddCommand(newRecordsListCommand(ctx))
	recordsCmd.AddCommand(newRecordsShowCommand(ctx))
	recordsCmd.AddCommand(newRecordsExportCommand(ctx))
	return recordsCmd
}

func newRecordsListCommand(ctx *commandContext) *cobra.Command {
	var subject string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(_ *config.Config, _ *slog.Logger, stack *daemonrun.Stack) error {
				records, err := loadRecords(cmd, stack, subject)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, records)
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No records found")
					return nil
				}
				fmt.Fprint(out, renderRecordTable(records))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Only list records for this subject id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newRecordsShowCommand(ctx *commandContext) *cobra.Command {
	var asYAML bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one record with its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(func(_ *config.Config, _ *slog.Logger, stack *daemonrun.Stack) error {
				record, transcript, err := stack.Store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if record == nil {
					return fmt.Errorf("record %q not found", args[0])
				}
				doc := recordDocument{Record: *record, Transcript: transcript}
				switch {
				case asJSON:
					return writeJSON(cmd, doc)
				case asYAML:
					return writeYAML(cmd.OutOrStdout(), doc)
				default:
					printRecord(cmd.OutOrStdout(), doc)
					return nil
				}
			})
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Output as YAML")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.MarkFlagsMutuallyExclusive("yaml", "json")
	return cmd
}

func newRecordsExportCommand(ctx *commandContext) *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "export <output.xlsx>",
		Short: "Write stored records to an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			return ctx.withStack(func(_ *config.Config, _ *slog.Logger, stack *daemonrun.Stack) error {
				records, err := loadRecords(cmd, stack, subject)
				if err != nil {
					return err
				}
				var buf bytes.Buffer
				if err := recordexport.WriteWorkbook(&buf, records); err != nil {
					return err
				}
				if err := fileutil.WriteFileAtomic(target, buf.Bytes(), 0o644); err != nil {
					return fmt.Errorf("write workbook: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", len(records), target)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Only export records for this subject id")
	return cmd
}

// recordDocument is the shape printed by records show.
type recordDocument struct {
	Record     recordstore.Record `json:"record" yaml:"record"`
	Transcript string             `json:"transcript" yaml:"transcript"`
}

func loadRecords(cmd *cobra.Command, stack *daemonrun.Stack, subject string) ([]recordstore.Record, error) {
	if subject = strings.TrimSpace(subject); subject != "" {
		return stack.Store.ListBySubject(cmd.Context(), subject)
	}
	return stack.Store.GetAll(cmd.Context())
}

func renderRecordTable(records []recordstore.Record) string {
	headers := []string{"Name", "Subject", "Display name", "Session date", "Created", "Analysis"}
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			record.Name,
			record.Metadata.SubjectID,
			record.Metadata.DisplayName,
			record.Metadata.SessionDate,
			formatCreated(record.CreatedAt),
			analysisState(record),
		})
	}
	return renderTable(headers, rows, nil)
}

func analysisState(record recordstore.Record) string {
	switch {
	case record.Analysis == nil:
		return "missing"
	case record.Analysis.Fallback:
		return "fallback"
	case record.Analysis.Complete():
		return "complete"
	default:
		return "partial"
	}
}

func formatCreated(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func printRecord(out io.Writer, doc recordDocument) {
	record := doc.Record
	fmt.Fprintf(out, "Name:         %s\n", record.Name)
	fmt.Fprintf(out, "File:         %s\n", record.FileName)
	fmt.Fprintf(out, "Created:      %s\n", formatCreated(record.CreatedAt))
	fmt.Fprintf(out, "Subject:      %s\n", record.Metadata.SubjectID)
	fmt.Fprintf(out, "Display name: %s\n", record.Metadata.DisplayName)
	fmt.Fprintf(out, "Session:      %s %s\n", record.Metadata.SessionID, record.Metadata.SessionDate)
	fmt.Fprintf(out, "Analysis:     %s\n", analysisState(record))
	if a := record.Analysis; a != nil {
		if a.Summary != "" {
			fmt.Fprintf(out, "Summary:      %s\n", a.Summary)
		}
		if len(a.Topics) > 0 {
			fmt.Fprintf(out, "Topics:       %s\n", strings.Join(a.Topics, ", "))
		}
		if len(a.Keywords) > 0 {
			fmt.Fprintf(out, "Keywords:     %s\n", strings.Join(a.Keywords, ", "))
		}
		for _, insight := range a.ActionableInsights {
			fmt.Fprintf(out, "  - %s\n", insight)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, doc.Transcript)
}

func writeYAML(out io.Writer, v any) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

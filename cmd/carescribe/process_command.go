package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"carescribe/internal/config"
	"carescribe/internal/daemonrun"
	"carescribe/internal/pipeline"
	"carescribe/internal/recordstore"
	"carescribe/internal/textextract"
)

type subjectFlags struct {
	subjectID   string
	displayName string
	contact     string
	program     string
	requestID   string
	sessionID   string
	sessionDate string
}

func (f *subjectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.subjectID, "subject-id", "", "Subject identifier")
	cmd.Flags().StringVar(&f.displayName, "display-name", "", "Subject display name")
	cmd.Flags().StringVar(&f.contact, "contact", "", "Subject contact")
	cmd.Flags().StringVar(&f.program, "program", "", "Program the session belongs to")
	cmd.Flags().StringVar(&f.requestID, "request-id", "", "Originating request identifier")
	cmd.Flags().StringVar(&f.sessionID, "session-id", "", "Tracking session identifier")
	cmd.Flags().StringVar(&f.sessionDate, "session-date", "", "Session date (YYYY-MM-DD or DD/MM/YYYY)")
}

func (f *subjectFlags) context() recordstore.SubjectContext {
	return recordstore.SubjectContext{
		SubjectID:   f.subjectID,
		DisplayName: f.displayName,
		Contact:     f.contact,
		Program:     f.program,
		RequestID:   f.requestID,
		SessionID:   f.sessionID,
		SessionDate: f.sessionDate,
	}.Normalized()
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var subject subjectFlags

	cmd := &cobra.Command{
		Use:   "process <media-file>",
		Short: "Transcribe and analyse one media file in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := resolveInputFile(args[0])
			if err != nil {
				return err
			}
			return ctx.withStack(func(cfg *config.Config, logger *slog.Logger, stack *daemonrun.Stack) error {
				if err := cfg.RequireTranscription(); err != nil {
					return err
				}
				if ext := strings.ToLower(filepath.Ext(source)); !cfg.AllowsExtension(ext) {
					return fmt.Errorf("unsupported media type %q; allowed: %s", ext, strings.Join(cfg.Pipeline.AllowedExtensions, ", "))
				}

				runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				job := pipeline.NewJob(source, filepath.Base(source), subject.context())
				result, err := stack.Coordinator.Run(runCtx, job)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job:    %s\n", result.Job.ID)
				fmt.Fprintf(out, "Record: %s\n", result.Record.Name)
				fmt.Fprintf(out, "Chunks: %d\n", result.Chunks)
				return nil
			})
		},
	}
	subject.register(cmd)
	return cmd
}

func newIngestTextCommand(ctx *commandContext) *cobra.Command {
	var subject subjectFlags

	cmd := &cobra.Command{
		Use:   "ingest-text <file>",
		Short: "Analyse and store a transcript from a .txt, .docx or .html file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := resolveInputFile(args[0])
			if err != nil {
				return err
			}
			if !textextract.Supported(filepath.Ext(source)) {
				return fmt.Errorf("unsupported transcript type %q; allowed: .txt, .docx, .html", filepath.Ext(source))
			}
			file, err := os.Open(source)
			if err != nil {
				return fmt.Errorf("open transcript: %w", err)
			}
			defer file.Close()
			text, err := textextract.Extract(source, file, textextract.DefaultMaxBytes)
			if err != nil {
				return err
			}

			return ctx.withStack(func(_ *config.Config, _ *slog.Logger, stack *daemonrun.Stack) error {
				record, err := stack.Coordinator.RunText(cmd.Context(), pipeline.TextJob{
					FileName: filepath.Base(source),
					Text:     text,
					Subject:  subject.context(),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Record: %s\n", record.Name)
				return nil
			})
		},
	}
	subject.register(cmd)
	return cmd
}

func resolveInputFile(arg string) (string, error) {
	path, err := config.ExpandPath(strings.TrimSpace(arg))
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("inspect %q: %w", abs, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%q is a directory", abs)
	}
	return abs, nil
}

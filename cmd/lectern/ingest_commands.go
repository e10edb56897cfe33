package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/api"
	"lectern/internal/queueaccess"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Start, inspect and reset book narrations",
	}

	ingestCmd.AddCommand(newIngestStartCommand(ctx))
	ingestCmd.AddCommand(newIngestStatusCommand(ctx))
	ingestCmd.AddCommand(newIngestCancelCommand(ctx))
	ingestCmd.AddCommand(newIngestResetCommand(ctx))

	return ingestCmd
}

func newIngestStartCommand(ctx *commandContext) *cobra.Command {
	var req api.StartIngestionRequest
	cmd := &cobra.Command{
		Use:   "start <book-id>",
		Short: "Queue narration of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				resp, err := access.StartIngestion(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Queued %s: %d jobs across %d sections (%s)\n",
					resp.Ingestion.BookID, resp.Jobs, len(resp.Sections), joinInts(resp.Sections))
				if resp.UsedFallback {
					fmt.Fprintln(out, "No body sections found; narrating every section")
				}
				if !access.Live() {
					fmt.Fprintln(out, "Jobs will run when the daemon starts")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.VoiceID, "voice", "", "Voice id (defaults to speech.default_voice_id)")
	cmd.Flags().StringVar(&req.Provider, "provider", "", "Speech provider (defaults to speech.default_provider)")
	cmd.Flags().StringVar(&req.Model, "model", "", "Provider model override")
	cmd.Flags().IntSliceVar(&req.Sections, "section", nil, "Section order to narrate (repeatable; defaults to body sections)")
	return cmd
}

func newIngestStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <book-id>",
		Short: "Show a book's narration progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				status, err := access.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, status)
				}
				printIngestionStatus(cmd, status)
				return nil
			})
		},
	}
}

func newIngestCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <book-id>",
		Short: "Cancel a book's narration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				status, err := access.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, status)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", status.BookID)
				return nil
			})
		},
	}
}

func newIngestResetCommand(ctx *commandContext) *cobra.Command {
	var purgeAudio bool
	cmd := &cobra.Command{
		Use:   "reset <book-id>",
		Short: "Delete a book's ingestion state so it can be narrated again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				resp, err := access.Reset(cmd.Context(), args[0], purgeAudio)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if !resp.HadIngestion {
					fmt.Fprintf(out, "%s had no ingestion state\n", resp.BookID)
				} else {
					fmt.Fprintf(out, "Reset %s\n", resp.BookID)
				}
				if purgeAudio {
					fmt.Fprintf(out, "Purged %d audio objects\n", resp.PurgedObjects)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&purgeAudio, "purge-audio", false, "Also delete the book's audio from object storage")
	return cmd
}

func printIngestionStatus(cmd *cobra.Command, status api.IngestionStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Book: %s\n", status.BookID)
	fmt.Fprintf(out, "Status: %s\n", status.Status)
	if status.Provider != "" {
		fmt.Fprintf(out, "Voice: %s (%s)\n", status.VoiceID, status.Provider)
	}
	fmt.Fprintf(out, "Sections: %d/%d\n", status.CompletedSections, status.TotalSections)
	if status.Ready {
		fmt.Fprintf(out, "Duration: %s\n", formatDurationMs(status.DurationMs))
	}
	fmt.Fprintf(out, "Ready: %s\n", yesNo(status.Ready))
	if status.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", status.Error)
	}
	if len(status.Jobs) > 0 {
		fmt.Fprintln(out, renderTable([]string{"Job status", "Count"}, countRows(status.Jobs), []columnAlignment{alignLeft, alignRight}))
	}
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lectern/internal/queueaccess"
)

var errUnhealthy = errors.New("one or more readiness checks failed")

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run readiness checks and show workflow state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				resp, err := access.Health(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if err := writeJSON(cmd, resp); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					rows := make([][]string, 0, len(resp.Checks))
					for _, check := range resp.Checks {
						state := "ok"
						if !check.Passed {
							state = "FAIL"
						}
						rows = append(rows, []string{check.Name, state, check.Detail})
					}
					fmt.Fprintln(out, renderTable([]string{"Check", "Result", "Detail"}, rows, nil))
					fmt.Fprintf(out, "Daemon running: %s\n", yesNo(access.Live() && resp.Workflow.Running))
					if access.Live() {
						fmt.Fprintf(out, "Workers: %d (active jobs: %d)\n", resp.Workflow.Workers, len(resp.Workflow.ActiveJobs))
						if resp.Workflow.LastError != "" {
							fmt.Fprintf(out, "Last error: %s\n", resp.Workflow.LastError)
						}
					}
					if len(resp.Workflow.JobStats) > 0 {
						fmt.Fprintln(out, renderTable([]string{"Job status", "Count"}, countRows(resp.Workflow.JobStats), []columnAlignment{alignLeft, alignRight}))
					}
				}
				if !resp.Healthy {
					return errUnhealthy
				}
				return nil
			})
		},
	}
}

// Package main implements the prospect CLI commands.
// This file contains the history command, which lists archived runs.
package main

import (
	"context"
	"fmt"

	"prospect/internal/store"

	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd lists archived research runs
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent research runs",
	Long: `Lists research runs archived in the local SQLite database,
newest first. Use 'prospect show <run-id>' to reopen a report.`,
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	archive, err := store.Open(cfg.Archive.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open run archive: %w", err)
	}
	defer archive.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	runs, err := archive.RecentRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No archived runs yet. Start one with: prospect research \"<company>\"")
		return nil
	}

	fmt.Println(titleStyle.Render("Recent research runs"))
	for _, run := range runs {
		marker := okStyle.Render("✓")
		if run.Degraded {
			marker = failStyle.Render("✗")
		}
		fmt.Printf("%s %s  %s  %-30s %s\n",
			marker,
			runIDStyle.Render(shortID(run.RunID)),
			run.CreatedAt.Local().Format("2006-01-02 15:04"),
			run.Subject,
			subtleStyle.Render(fmt.Sprintf("%d findings", run.Findings)))
	}
	return nil
}

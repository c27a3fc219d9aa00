// Package main implements the prospect CLI commands.
// This file contains the show command, which reopens an archived report.
package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"prospect/internal/store"

	"github.com/spf13/cobra"
)

var showRaw bool

// showCmd renders the report of an archived run
var showCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show an archived research report",
	Long: `Renders the report of an archived run. The run id may be any
unique prefix of the full id; see 'prospect history' for the list.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	archive, err := store.Open(cfg.Archive.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open run archive: %w", err)
	}
	defer archive.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	run, err := archive.FindRun(ctx, args[0])
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return fmt.Errorf("no archived run matches %q; try 'prospect history'", args[0])
		}
		if errors.Is(err, store.ErrAmbiguousRunID) {
			return fmt.Errorf("run id prefix %q is ambiguous; use more characters", args[0])
		}
		return err
	}

	if showRaw {
		fmt.Println(run.Markdown)
		return nil
	}

	fmt.Println(renderMarkdown(run.Markdown))
	fmt.Println(renderArchivedSummary(run))
	return nil
}

// renderArchivedSummary formats the per-domain footer for an archived run.
func renderArchivedSummary(run *store.ArchivedRun) string {
	var b strings.Builder
	b.WriteString(subtleStyle.Render(fmt.Sprintf("run %s  archived %s",
		shortID(run.RunID), run.CreatedAt.Local().Format("2006-01-02 15:04"))))
	for _, rec := range run.Domains {
		line := fmt.Sprintf("  %s %-8s %2d findings", statusGlyph(rec.Status), rec.Domain, len(rec.Findings))
		if rec.Failure != "" {
			line += "  " + subtleStyle.Render(rec.Failure)
		}
		b.WriteString("\n" + line)
	}
	return b.String()
}

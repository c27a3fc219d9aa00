// Package main implements the prospect CLI commands.
// This file contains the research command, the main entry point: it
// wires tools, LLM client, and archive into a supervisor and drives one
// research run.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"prospect/internal/llm"
	"prospect/internal/research"
	"prospect/internal/store"
	"prospect/internal/supervisor"
	"prospect/internal/tools"
	rtools "prospect/internal/tools/research"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	roleFlag    string
	jobDescFlag string
	outputPath  string
	plainOutput bool
	noArchive   bool
)

// researchCmd runs the full research pipeline for one company
var researchCmd = &cobra.Command{
	Use:   "research [company]",
	Short: "Research a company and produce a markdown report",
	Long: `Runs the full research pipeline for one company.

Three workers research the company in parallel:
  history  origins, milestones, pivots, funding and leadership changes
  future   roadmap, announced plans, market outlook, risks
  culture  values, work environment, engineering reputation

Each worker makes bounded tool calls (web search, page fetch) and
absorbs individual failures; the run finishes with whatever was found
when the budget or deadline runs out.

Examples:
  prospect research "Acme Corp"
  prospect research "Acme Corp" --role "Staff Engineer"
  prospect research "Acme Corp" --job-description posting.md -o report.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

// runResearch wires the run dependencies and executes the supervisor.
func runResearch(cmd *cobra.Command, args []string) error {
	subject := strings.Join(args, " ")

	jobContext, err := resolveJobContext(roleFlag, jobDescFlag)
	if err != nil {
		return err
	}

	req, err := research.NewRequest(subject, jobContext)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	if err := rtools.RegisterAll(registry, rtools.Config{
		SearchProvider: cfg.Tools.SearchProvider,
		TavilyAPIKey:   cfg.Tools.TavilyAPIKey,
		MaxResults:     cfg.Tools.MaxResults,
		FetchTimeout:   cfg.GetFetchTimeout(),
		MaxFetchBytes:  cfg.Tools.MaxFetchBytes,
	}); err != nil {
		return fmt.Errorf("failed to register research tools: %w", err)
	}

	sup, err := supervisor.New(cfg, registry)
	if err != nil {
		return err
	}

	// The LLM client is optional. Without one the supervisor falls back
	// to deterministic policies and template rendering.
	if cfg.LLM.APIKey != "" {
		client, cerr := llm.NewClient(cfg)
		if cerr != nil {
			logger.Warn("LLM unavailable, continuing offline", zap.Error(cerr))
		} else {
			sup.SetClient(client)
		}
	} else {
		fmt.Println(subtleStyle.Render("No LLM API key set; running with deterministic research policies."))
	}

	if embedder, eerr := llm.NewEmbedderFromConfig(cfg); eerr == nil && embedder != nil {
		sup.SetEmbedder(embedder)
	}

	if cfg.Archive.Enabled && !noArchive {
		archive, aerr := store.Open(cfg.Archive.DatabasePath)
		if aerr != nil {
			logger.Warn("Run archive unavailable", zap.Error(aerr))
		} else {
			defer archive.Close()
			sup.SetArchiver(archive)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Handle graceful shutdown. The supervisor turns a cancelled run
	// into a report built from whatever finished, so cancel rather
	// than exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nResearch interrupted; keeping completed findings")
		cancel()
	}()

	var report research.Report
	if plainOutput {
		fmt.Printf("Researching %s...\n", req.Subject)
		report, err = sup.Run(ctx, req)
	} else {
		report, err = runWithProgress(ctx, cancel, sup, req)
	}
	if err != nil {
		return err
	}

	return printReport(report, outputPath)
}

// resolveJobContext merges the role flag and the job description into
// the request context. A job description that names a .txt or .md file
// is replaced by the file's content.
func resolveJobContext(role, jobDesc string) (string, error) {
	jobDesc = strings.TrimSpace(jobDesc)
	if jobDesc != "" {
		ext := strings.ToLower(filepath.Ext(jobDesc))
		if ext == ".txt" || ext == ".md" {
			data, err := os.ReadFile(jobDesc)
			if err != nil {
				return "", fmt.Errorf("failed to read job description file: %w", err)
			}
			jobDesc = strings.TrimSpace(string(data))
		}
	}

	role = strings.TrimSpace(role)
	switch {
	case role != "" && jobDesc != "":
		return fmt.Sprintf("Target role: %s\n\n%s", role, jobDesc), nil
	case role != "":
		return "Target role: " + role, nil
	default:
		return jobDesc, nil
	}
}

// printReport renders the report for the terminal and optionally writes
// the raw markdown to a file.
func printReport(report research.Report, outputPath string) error {
	fmt.Println(renderMarkdown(report.Markdown))
	fmt.Println(renderRunSummary(report))

	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(report.Markdown), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Println(subtleStyle.Render("Report written to " + outputPath))
	}
	return nil
}

// renderRunSummary formats the per-domain footer printed after a run.
func renderRunSummary(report research.Report) string {
	total := 0
	for _, ds := range report.Domains {
		total += ds.Findings
	}

	var b strings.Builder
	b.WriteString(subtleStyle.Render(fmt.Sprintf("run %s  findings %d", shortID(report.RunID), total)))
	for _, ds := range report.Domains {
		line := fmt.Sprintf("  %s %-8s %2d findings", statusGlyph(ds.Status), ds.Domain, ds.Findings)
		if ds.Failure != "" {
			line += "  " + subtleStyle.Render(ds.Failure)
		}
		b.WriteString("\n" + line)
	}
	if report.Degraded {
		b.WriteString("\n" + failStyle.Render("All research domains failed; the report above is a placeholder."))
	}
	return b.String()
}

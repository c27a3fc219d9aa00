// Package main implements the prospect CLI commands.
// This file contains the live progress display for a research run. The
// supervisor executes in a background goroutine while a bubbletea model
// consumes its event channel.
package main

import (
	"context"
	"fmt"
	"strings"

	"prospect/internal/research"
	"prospect/internal/supervisor"
	"prospect/internal/worker"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// runOutcome carries the supervisor result out of the run goroutine.
type runOutcome struct {
	report research.Report
	err    error
}

type eventMsg supervisor.Event

type eventsClosedMsg struct{}

type runDoneMsg runOutcome

// domainLine is the latest progress snapshot for one research domain.
type domainLine struct {
	state    worker.State
	attempt  int
	budget   int
	findings int
	failures int
	tool     string
}

// progressModel renders per-domain progress while a run is active.
type progressModel struct {
	spinner spinner.Model
	subject string
	phase   string

	events  <-chan supervisor.Event
	results <-chan runOutcome
	cancel  context.CancelFunc

	order   []research.Domain
	domains map[research.Domain]*domainLine

	outcome   *runOutcome
	cancelled bool
}

func newProgressModel(subject string, events <-chan supervisor.Event, results <-chan runOutcome, cancel context.CancelFunc) progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	order := research.Domains()
	domains := make(map[research.Domain]*domainLine, len(order))
	for _, d := range order {
		domains[d] = &domainLine{state: worker.StateIdle}
	}

	return progressModel{
		spinner: sp,
		subject: subject,
		phase:   "starting research run",
		events:  events,
		results: results,
		cancel:  cancel,
		order:   order,
		domains: domains,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent(), m.waitForResult())
}

// waitForEvent blocks on the supervisor event channel and hands the
// next event to Update. Re-issued after every event.
func (m progressModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m progressModel) waitForResult() tea.Cmd {
	return func() tea.Msg {
		return runDoneMsg(<-m.results)
	}
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// Cancel the run but keep waiting: the supervisor still
			// returns a report built from whatever finished.
			if !m.cancelled {
				m.cancelled = true
				m.phase = "stopping, keeping completed findings"
				m.cancel()
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.applyEvent(supervisor.Event(msg))
		return m, m.waitForEvent()

	case eventsClosedMsg:
		return m, nil

	case runDoneMsg:
		outcome := runOutcome(msg)
		m.outcome = &outcome
		return m, tea.Quit
	}
	return m, nil
}

// applyEvent folds one supervisor event into the display state.
func (m *progressModel) applyEvent(ev supervisor.Event) {
	switch ev.Type {
	case supervisor.EventRunStarted:
		m.phase = "planning research objectives"
	case supervisor.EventPlanReady:
		m.phase = "researching (" + ev.Message + ")"
	case supervisor.EventWorkerUpdate:
		if ev.Progress == nil {
			return
		}
		line, ok := m.domains[ev.Progress.Domain]
		if !ok {
			return
		}
		line.state = ev.Progress.State
		line.attempt = ev.Progress.Attempt
		line.budget = ev.Progress.Budget
		line.findings = ev.Progress.Findings
		line.failures = ev.Progress.Failures
		line.tool = ev.Progress.Tool
	case supervisor.EventSynthesisStarted:
		m.phase = "synthesizing report"
	case supervisor.EventReportReady:
		m.phase = "report ready (" + ev.Message + ")"
	case supervisor.EventArchiveFailed:
		m.phase = "archive failed: " + ev.Message
	}
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s  %s\n",
		m.spinner.View(),
		titleStyle.Render("Researching "+m.subject),
		subtleStyle.Render(m.phase)))

	for _, d := range m.order {
		b.WriteString("  " + renderDomainLine(d, m.domains[d]) + "\n")
	}
	b.WriteString(subtleStyle.Render("  press q or ctrl+c to stop early") + "\n")
	return b.String()
}

// renderDomainLine formats one domain's progress row.
func renderDomainLine(d research.Domain, line *domainLine) string {
	marker := subtleStyle.Render("·")
	note := "waiting"
	switch line.state {
	case worker.StateIterating:
		note = fmt.Sprintf("step %d/%d, %d findings", line.attempt, line.budget, line.findings)
		if line.tool != "" {
			note += ", " + line.tool
		}
	case worker.StateCompleted:
		marker = okStyle.Render("✓")
		note = fmt.Sprintf("done, %d findings", line.findings)
	case worker.StatePartiallyCompleted:
		marker = partialStyle.Render("◐")
		note = fmt.Sprintf("partial, %d findings, %d failures", line.findings, line.failures)
	case worker.StateFailed:
		marker = failStyle.Render("✗")
		note = "failed"
		if line.findings > 0 {
			note = fmt.Sprintf("failed, %d findings kept", line.findings)
		}
	}
	return fmt.Sprintf("%s %-8s %s", marker, d, subtleStyle.Render(note))
}

// runWithProgress executes the supervisor behind the live display and
// returns the run outcome once both finish.
func runWithProgress(ctx context.Context, cancel context.CancelFunc, sup *supervisor.Supervisor, req research.Request) (research.Report, error) {
	events := make(chan supervisor.Event, 64)
	results := make(chan runOutcome, 1)
	sup.SetEventChannel(events)

	go func() {
		report, err := sup.Run(ctx, req)
		close(events)
		results <- runOutcome{report: report, err: err}
	}()

	final, err := tea.NewProgram(newProgressModel(req.Subject, events, results, cancel)).Run()
	if err != nil {
		// The display failed; the run itself still finishes.
		outcome := <-results
		return outcome.report, outcome.err
	}

	m, ok := final.(progressModel)
	if !ok || m.outcome == nil {
		outcome := <-results
		return outcome.report, outcome.err
	}
	return m.outcome.report, m.outcome.err
}

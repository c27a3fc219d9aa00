package supervisor

import (
	"time"

	"prospect/internal/research"
	"prospect/internal/worker"
)

// EventType classifies run lifecycle events.
type EventType string

const (
	// EventRunStarted fires after request validation, before planning.
	EventRunStarted EventType = "run_started"

	// EventPlanReady fires once the research plan is settled.
	EventPlanReady EventType = "plan_ready"

	// EventWorkerUpdate relays one worker progress snapshot.
	EventWorkerUpdate EventType = "worker_update"

	// EventSynthesisStarted fires after the workers are joined.
	EventSynthesisStarted EventType = "synthesis_started"

	// EventReportReady fires once the report is assembled.
	EventReportReady EventType = "report_ready"

	// EventArchiveFailed fires when persisting the finished run failed.
	// Archive failures never fail the run itself.
	EventArchiveFailed EventType = "archive_failed"
)

// Event is one observable step of a research run. Domain and Progress are
// set only on worker updates.
type Event struct {
	Type      EventType
	Timestamp time.Time
	RunID     string
	Domain    research.Domain
	Message   string
	Progress  *worker.ProgressUpdate
}

// emit publishes an event without blocking. Events are dropped when no
// channel is wired or the channel is full.
func (s *Supervisor) emit(ev Event) {
	if s.events == nil {
		return
	}
	ev.Timestamp = time.Now()

	select {
	case s.events <- ev:
	default:
		// Channel full, skip
	}
}

// Audit logging for research runs. Audit events are structured JSON lines
// covering the full lifecycle of a run: worker fan-out, tool invocations,
// LLM calls, and synthesis. One file per day under .prospect/logs/.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Run lifecycle events
	AuditRunStart    AuditEventType = "run_start"
	AuditRunComplete AuditEventType = "run_complete"
	AuditRunAbort    AuditEventType = "run_abort"

	// Worker lifecycle events
	AuditWorkerStart    AuditEventType = "worker_start"
	AuditWorkerComplete AuditEventType = "worker_complete"
	AuditWorkerError    AuditEventType = "worker_error"

	// Tool execution events
	AuditToolInvoke   AuditEventType = "tool_invoke"
	AuditToolComplete AuditEventType = "tool_complete"
	AuditToolError    AuditEventType = "tool_error"

	// LLM API events
	AuditLLMRequest  AuditEventType = "llm_request"
	AuditLLMResponse AuditEventType = "llm_response"
	AuditLLMError    AuditEventType = "llm_error"

	// Synthesis events
	AuditSynthesisStart    AuditEventType = "synthesis_start"
	AuditSynthesisComplete AuditEventType = "synthesis_complete"
	AuditSynthesisFallback AuditEventType = "synthesis_fallback"

	// Archive events
	AuditArchiveWrite AuditEventType = "archive_write"
	AuditArchiveError AuditEventType = "archive_error"
)

// AuditEvent represents a structured audit log entry
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`               // Unix milliseconds
	EventType  AuditEventType         `json:"event"`            // Event type
	Category   string                 `json:"cat,omitempty"`    // Log category
	RunID      string                 `json:"run,omitempty"`    // Run correlation
	Domain     string                 `json:"domain,omitempty"` // Research domain if applicable
	Target     string                 `json:"target,omitempty"` // Target of operation (tool, provider, subject)
	Success    bool                   `json:"success"`          // Operation succeeded
	DurationMs int64                  `json:"dur_ms,omitempty"` // Duration in milliseconds
	Error      string                 `json:"error,omitempty"`  // Error message if failed
	Message    string                 `json:"msg"`              // Human-readable message
	Fields     map[string]interface{} `json:"fields,omitempty"` // Additional structured fields
}

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger writes structured audit events, optionally scoped to a run or domain
type AuditLogger struct {
	runID    string
	domain   string
	category Category
}

// InitAudit initializes the audit logging system
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n# Format: one JSON event per line\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithRun creates an audit logger scoped to a research run
func AuditWithRun(runID string) *AuditLogger {
	return &AuditLogger{runID: runID}
}

// AuditWithDomain creates an audit logger scoped to a run and domain
func AuditWithDomain(runID, domain string) *AuditLogger {
	return &AuditLogger{runID: runID, domain: domain}
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	// Fill in defaults
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RunID == "" && a.runID != "" {
		event.RunID = a.runID
	}
	if event.Domain == "" && a.domain != "" {
		event.Domain = a.domain
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// =============================================================================
// CONVENIENCE METHODS FOR COMMON EVENTS
// =============================================================================

// RunStart logs the start of a research run
func (a *AuditLogger) RunStart(runID, subject string, domains int) {
	a.Log(AuditEvent{
		EventType: AuditRunStart,
		RunID:     runID,
		Target:    subject,
		Success:   true,
		Fields:    map[string]interface{}{"domains": domains},
		Message:   fmt.Sprintf("Run started: %s (%d domains)", subject, domains),
	})
}

// RunComplete logs run completion with final report status
func (a *AuditLogger) RunComplete(runID string, degraded bool, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditRunComplete,
		RunID:      runID,
		Success:    !degraded,
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"degraded": degraded},
		Message:    fmt.Sprintf("Run completed (degraded=%v, %dms)", degraded, durationMs),
	})
}

// RunAbort logs a run aborted before worker launch
func (a *AuditLogger) RunAbort(runID string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: AuditRunAbort,
		RunID:     runID,
		Success:   false,
		Error:     errMsg,
		Message:   fmt.Sprintf("Run aborted: %s", errMsg),
	})
}

// WorkerStart logs a worker launch
func (a *AuditLogger) WorkerStart(domain string, budget int) {
	a.Log(AuditEvent{
		EventType: AuditWorkerStart,
		Domain:    domain,
		Success:   true,
		Fields:    map[string]interface{}{"budget": budget},
		Message:   fmt.Sprintf("Worker started: %s (budget %d)", domain, budget),
	})
}

// WorkerComplete logs a worker reaching a terminal status
func (a *AuditLogger) WorkerComplete(domain, status string, findings int, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditWorkerComplete,
		Domain:     domain,
		Success:    status != "failed",
		DurationMs: durationMs,
		Fields:     map[string]interface{}{"status": status, "findings": findings},
		Message:    fmt.Sprintf("Worker %s: %s (%d findings, %dms)", domain, status, findings, durationMs),
	})
}

// WorkerError logs a worker failure
func (a *AuditLogger) WorkerError(domain string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: AuditWorkerError,
		Domain:    domain,
		Success:   false,
		Error:     errMsg,
		Message:   fmt.Sprintf("Worker %s failed: %s", domain, errMsg),
	})
}

// ToolInvoke logs a tool invocation
func (a *AuditLogger) ToolInvoke(tool, query string) {
	a.Log(AuditEvent{
		EventType: AuditToolInvoke,
		Target:    tool,
		Success:   true,
		Fields:    map[string]interface{}{"query": query},
		Message:   fmt.Sprintf("Tool invoked: %s", tool),
	})
}

// ToolComplete logs a successful tool call
func (a *AuditLogger) ToolComplete(tool string, durationMs int64) {
	a.Log(AuditEvent{
		EventType:  AuditToolComplete,
		Target:     tool,
		Success:    true,
		DurationMs: durationMs,
		Message:    fmt.Sprintf("Tool completed: %s (%dms)", tool, durationMs),
	})
}

// ToolFailure logs a failed tool call with its failure class
func (a *AuditLogger) ToolFailure(tool, class string, durationMs int64, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType:  AuditToolError,
		Target:     tool,
		Success:    false,
		DurationMs: durationMs,
		Error:      errMsg,
		Fields:     map[string]interface{}{"class": class},
		Message:    fmt.Sprintf("Tool failed: %s [%s] %s", tool, class, errMsg),
	})
}

// LLMCall logs an LLM API call
func (a *AuditLogger) LLMCall(provider, model string, durationMs int64, success bool, errMsg string) {
	eventType := AuditLLMResponse
	if !success {
		eventType = AuditLLMError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     provider,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Fields:     map[string]interface{}{"model": model},
		Message:    fmt.Sprintf("LLM call: %s/%s (%dms, success=%v)", provider, model, durationMs, success),
	})
}

// SynthesisDone logs synthesis completion, noting fallback rendering
func (a *AuditLogger) SynthesisDone(runID string, fallback bool, durationMs int64) {
	eventType := AuditSynthesisComplete
	if fallback {
		eventType = AuditSynthesisFallback
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		RunID:      runID,
		Success:    true,
		DurationMs: durationMs,
		Message:    fmt.Sprintf("Synthesis done (fallback=%v, %dms)", fallback, durationMs),
	})
}

// ArchiveWrite logs a run archive write
func (a *AuditLogger) ArchiveWrite(runID string, success bool, errMsg string) {
	eventType := AuditArchiveWrite
	if !success {
		eventType = AuditArchiveError
	}
	a.Log(AuditEvent{
		EventType: eventType,
		RunID:     runID,
		Success:   success,
		Error:     errMsg,
		Message:   fmt.Sprintf("Archive write (success=%v)", success),
	})
}

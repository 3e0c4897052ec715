package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AuditEventType names an audit event; it is also the fact's second argument.
type AuditEventType string

const (
	// Inference runs -> infer_run/7 (last argument is the error, "" on success)
	AuditInferOK     AuditEventType = "infer_ok"
	AuditInferFailed AuditEventType = "infer_failed"

	// Compile cache -> compile_event/4
	AuditCompileHit  AuditEventType = "compile_hit"
	AuditCompileMiss AuditEventType = "compile_miss"

	// Relation store -> store_op/5
	AuditStoreLoad  AuditEventType = "store_load"
	AuditStoreWrite AuditEventType = "store_write"

	// Watcher -> watch_event/4
	AuditWatchReload AuditEventType = "watch_reload"
)

// AuditEvent is one JSON line of the audit log. Fact holds the same event as
// a Mangle fact so audit logs can be loaded back as a rule set's base facts.
type AuditEvent struct {
	Timestamp  int64          `json:"ts"`
	EventType  AuditEventType `json:"event"`
	RunID      string         `json:"run,omitempty"`
	Target     string         `json:"target,omitempty"`
	Count      int            `json:"count,omitempty"`
	DurationMs int64          `json:"dur_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Fact       string         `json:"fact"`
}

// AuditLogger appends audit events. The zero value and a nil logger discard.
type AuditLogger struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

var (
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// InitAudit opens path for appending and installs it as the global audit log.
// An empty path disables auditing.
func InitAudit(path string) error {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditLogger != nil && auditLogger.c != nil {
		_ = auditLogger.c.Close()
	}
	auditLogger = nil
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditLogger = &AuditLogger{w: file, c: file}
	return nil
}

// NewAuditLogger writes audit events to w.
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{w: w}
}

// SetAudit installs a as the global audit log; nil disables auditing.
func SetAudit(a *AuditLogger) {
	auditMu.Lock()
	defer auditMu.Unlock()
	auditLogger = a
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditLogger != nil && auditLogger.c != nil {
		_ = auditLogger.c.Close()
	}
	auditLogger = nil
}

// Audit returns the global audit logger, possibly nil.
func Audit() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()
	return auditLogger
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if a == nil || a.w == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	event.Fact = auditFact(event)

	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.w.Write(append(data, '\n'))
}

func auditFact(e AuditEvent) string {
	switch e.EventType {
	case AuditInferOK, AuditInferFailed:
		return fmt.Sprintf("infer_run(%d, /%s, \"%s\", \"%s\", %d, %d, \"%s\").",
			e.Timestamp, e.EventType, e.RunID, escapeString(e.Target), e.Count, e.DurationMs, escapeString(e.Error))
	case AuditCompileHit, AuditCompileMiss:
		return fmt.Sprintf("compile_event(%d, /%s, \"%s\", %d).",
			e.Timestamp, e.EventType, escapeString(e.Target), e.Count)
	case AuditStoreLoad, AuditStoreWrite:
		return fmt.Sprintf("store_op(%d, /%s, \"%s\", %d, %d).",
			e.Timestamp, e.EventType, escapeString(e.Target), e.Count, e.DurationMs)
	case AuditWatchReload:
		return fmt.Sprintf("watch_event(%d, /%s, \"%s\", %d).",
			e.Timestamp, e.EventType, escapeString(e.Target), e.Count)
	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\").",
			e.Timestamp, e.EventType, escapeString(e.Error))
	}
}

// InferRun records the end of an inference run.
func (a *AuditLogger) InferRun(runID, ruleSet string, derived int, d time.Duration, err error) {
	e := AuditEvent{
		EventType:  AuditInferOK,
		RunID:      runID,
		Target:     ruleSet,
		Count:      derived,
		DurationMs: d.Milliseconds(),
	}
	if err != nil {
		e.EventType = AuditInferFailed
		e.Error = err.Error()
	}
	a.Log(e)
}

// CompileLookup records a compile cache lookup.
func (a *AuditLogger) CompileLookup(fingerprint string, hit bool, clauses int) {
	e := AuditEvent{EventType: AuditCompileMiss, Target: fingerprint, Count: clauses}
	if hit {
		e.EventType = AuditCompileHit
	}
	a.Log(e)
}

// StoreOp records a relation load or write.
func (a *AuditLogger) StoreOp(event AuditEventType, table string, rows int, d time.Duration) {
	a.Log(AuditEvent{EventType: event, Target: table, Count: rows, DurationMs: d.Milliseconds()})
}

// WatchReload records a watcher-triggered rerun.
func (a *AuditLogger) WatchReload(path string, derived int) {
	a.Log(AuditEvent{EventType: AuditWatchReload, Target: path, Count: derived})
}

func escapeString(s string) string {
	if !strings.ContainsAny(s, "\"\\\n\r\t") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

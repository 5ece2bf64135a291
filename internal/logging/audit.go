package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// AuditEventType classifies an audit trail entry.
type AuditEventType string

const (
	AuditRunStart    AuditEventType = "run_start"
	AuditRunEnd      AuditEventType = "run_end"
	AuditPatchResult AuditEventType = "patch_result"
)

// AuditEvent is one JSONL line in the audit trail. Every applied run
// appends its events so a workspace's patch history can be replayed.
type AuditEvent struct {
	Timestamp    int64          `json:"ts"` // Unix milliseconds
	EventType    AuditEventType `json:"event"`
	RunID        string         `json:"run"`
	PatchID      string         `json:"patch,omitempty"`
	File         string         `json:"file,omitempty"`
	Status       string         `json:"status,omitempty"`
	BytesChanged int            `json:"bytes_changed,omitempty"`
	DurationMs   int64          `json:"dur_ms,omitempty"`
	Error        string         `json:"error,omitempty"`
	Message      string         `json:"msg,omitempty"`
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// InitAudit opens (or creates) the audit trail at path. Calling it with
// an empty path leaves auditing disabled; calling it twice is a no-op.
func InitAudit(path string) error {
	if path == "" {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the audit trail file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		_ = auditFile.Close()
		auditFile = nil
	}
}

// AuditEnabled reports whether events are being recorded.
func AuditEnabled() bool {
	auditMu.Lock()
	defer auditMu.Unlock()
	return auditFile != nil
}

// LogAudit appends one event to the audit trail. Events are dropped
// silently when auditing is disabled.
func LogAudit(event AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, _ = auditFile.Write(append(data, '\n'))
}

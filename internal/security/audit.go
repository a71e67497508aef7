package security

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditKind names what happened to the session.
type AuditKind string

const (
	AuditLogin              AuditKind = "auth.login"
	AuditTwoFactor          AuditKind = "auth.2fa"
	AuditLogout             AuditKind = "auth.logout"
	AuditSessionExpired     AuditKind = "auth.expired"
	AuditImpersonationStart AuditKind = "impersonate.start"
	AuditImpersonationEnd   AuditKind = "impersonate.end"
)

// AuditEvent is one line of the audit log. At and Run are filled in by
// Record.
type AuditEvent struct {
	At       time.Time              `json:"at"`
	Run      string                 `json:"run"`
	Kind     AuditKind              `json:"event"`
	Success  bool                   `json:"ok"`
	Email    string                 `json:"email,omitempty"`
	TargetID string                 `json:"target,omitempty"`
	Action   string                 `json:"action,omitempty"`
	ErrorMsg string                 `json:"error,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// AuditLogger appends session events as JSON lines. Every line written by
// one process shares a run id.
type AuditLogger struct {
	run string

	mu  sync.Mutex
	out io.WriteCloser
	enc *json.Encoder
}

// OpenAuditLog appends to dir/audit.log, rotating at 10 MB and keeping six
// months of history.
func OpenAuditLog(dir string) (*AuditLogger, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	return NewAuditLoggerTo(&lumberjack.Logger{
		Filename:   filepath.Join(dir, "audit.log"),
		MaxSize:    10,
		MaxBackups: 10,
		MaxAge:     180,
		Compress:   true,
	}), nil
}

// NewAuditLoggerTo writes to w.
func NewAuditLoggerTo(w io.WriteCloser) *AuditLogger {
	return &AuditLogger{run: uuid.NewString(), out: w, enc: json.NewEncoder(w)}
}

// Record appends ev. Error text is masked first since failed logins can
// echo the submitted form.
func (a *AuditLogger) Record(_ context.Context, ev AuditEvent) error {
	ev.At = time.Now().UTC()
	ev.Run = a.run
	ev.ErrorMsg = MaskString(ev.ErrorMsg)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enc.Encode(ev); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.out.Close()
}

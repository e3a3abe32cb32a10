// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides the tool-call audit trail with secret redaction.
package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/rigtools/internal/logging"
	"github.com/jeranaias/rigtools/internal/tools"
	"github.com/jeranaias/rigtools/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// DefaultMaxFileSize is the default max file size before rotation (10MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// DefaultMaxBackups is the number of rotated files kept.
const DefaultMaxBackups = 5

// rotationStamp sorts lexically in time order.
const rotationStamp = "20060102T150405.000000000"

// =============================================================================
// AUDIT EVENT
// =============================================================================

// AuditEvent is one recorded tool call.
type AuditEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	CallID     string    `json:"call_id"`
	Tool       string    `json:"tool"`
	Args       string    `json:"args,omitempty"` // Display form, truncated and redacted
	Success    bool      `json:"success"`
	ErrorClass string    `json:"error_class,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Truncated  bool      `json:"truncated,omitempty"`
}

// EventFromRecord converts an executor record into an audit event.
// Only the display argument is kept, never the full parameter map.
func EventFromRecord(rec tools.ExecutionRecord) AuditEvent {
	return AuditEvent{
		Timestamp:  rec.Timestamp.UTC(),
		CallID:     rec.CallID,
		Tool:       rec.ToolName,
		Args:       util.TruncateDisplay(util.SingleLine(tools.DisplayParams(rec.ToolName, rec.Params)), util.CallDisplayWidth),
		Success:    rec.Result.Success,
		ErrorClass: string(rec.Result.Class),
		Error:      util.TruncateDisplay(util.SingleLine(rec.Result.Error), util.ErrorDisplayWidth),
		DurationMS: rec.Duration.Milliseconds(),
		Truncated:  rec.Result.Truncated,
	}
}

// Status renders the outcome the way "audit tail" prints it.
func (e *AuditEvent) Status() string {
	if e.Success {
		return "SUCCESS"
	}
	if e.Error != "" {
		return fmt.Sprintf("ERROR(%s): %s", e.ErrorClass, e.Error)
	}
	return "FAILURE"
}

// ToLogLine formats the event as a single human-readable line.
func (e *AuditEvent) ToLogLine() string {
	return fmt.Sprintf("%s | %s | %s | %q | %dms | %s",
		e.Timestamp.Format("2006-01-02 15:04:05"),
		e.CallID,
		e.Tool,
		e.Args,
		e.DurationMS,
		e.Status(),
	)
}

// =============================================================================
// REDACTION
// =============================================================================

// Redactor defines the interface for secret redaction.
type Redactor interface {
	// Redact replaces sensitive data in the input string.
	Redact(input string) string
	// Name returns the name of this redactor.
	Name() string
}

// PatternRedactor redacts text matching a regex pattern.
type PatternRedactor struct {
	name    string
	pattern *regexp.Regexp
	replace string
}

// NewPatternRedactor creates a new pattern-based redactor.
func NewPatternRedactor(name string, pattern *regexp.Regexp, replace string) *PatternRedactor {
	return &PatternRedactor{name: name, pattern: pattern, replace: replace}
}

// Redact replaces matches with the replacement string.
func (r *PatternRedactor) Redact(input string) string {
	return r.pattern.ReplaceAllString(input, r.replace)
}

// Name returns the redactor name.
func (r *PatternRedactor) Name() string {
	return r.name
}

// secretPatterns are applied in order. More specific prefixes come first so
// "sk-ant-" is not half-eaten by the generic "sk-" rule.
var secretPatterns = []struct {
	name    string
	pattern *regexp.Regexp
	replace string
}{
	{"Anthropic", regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`), "[ANTHROPIC_KEY_REDACTED]"},
	{"OpenRouter", regexp.MustCompile(`sk-or-v1-[a-zA-Z0-9]{64}`), "[OPENROUTER_KEY_REDACTED]"},
	{"OpenAI", regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), "[OPENAI_KEY_REDACTED]"},
	{"GitHub", regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36,}`), "[GITHUB_TOKEN_REDACTED]"},
	{"AWS", regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[AWS_KEY_REDACTED]"},
	{"Bearer", regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-_.]+`), "Bearer [TOKEN_REDACTED]"},
	{"Password", regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*\S+`), "[PASSWORD_REDACTED]"},
	{"JWT", regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`), "[JWT_REDACTED]"},
}

func defaultRedactors() []Redactor {
	redactors := make([]Redactor, 0, len(secretPatterns))
	for _, sp := range secretPatterns {
		redactors = append(redactors, NewPatternRedactor(sp.name, sp.pattern, sp.replace))
	}
	return redactors
}

// RedactSecrets applies the default redaction patterns to input.
func RedactSecrets(input string) string {
	for _, sp := range secretPatterns {
		input = sp.pattern.ReplaceAllString(input, sp.replace)
	}
	return input
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

// ErrAuditClosed is returned by Log after Close.
var ErrAuditClosed = errors.New("audit log is closed")

// AuditOptions configures an AuditLogger.
type AuditOptions struct {
	// Path is the active log file. Rotated files sit next to it.
	Path string

	// MaxSize triggers rotation; 0 means DefaultMaxFileSize.
	MaxSize int64

	// MaxBackups is the number of rotated files kept.
	MaxBackups int

	// Key chains every line with a keyed BLAKE2b MAC.
	Key []byte

	// Redact scrubs secrets from args and errors.
	Redact bool

	// Store mirrors every event into sqlite. Optional.
	Store *AuditStore
}

// AuditLogger appends MAC-chained audit lines and implements tools.Recorder.
type AuditLogger struct {
	path       string
	file       *os.File
	mu         sync.Mutex
	maxSize    int64
	maxBackups int
	redact     bool
	redactors  []Redactor
	key        []byte
	prevMAC    []byte
	store      *AuditStore

	failureCount int
	lastFailure  error
}

var _ tools.Recorder = (*AuditLogger)(nil)

// NewAuditLogger opens (or creates) the log at opts.Path and resumes its chain.
func NewAuditLogger(opts AuditOptions) (*AuditLogger, error) {
	if opts.Path == "" {
		return nil, errors.New("audit log path is empty")
	}
	if err := checkKeyLength(opts.Key); err != nil {
		return nil, err
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxFileSize
	}
	if opts.MaxBackups < 0 {
		opts.MaxBackups = 0
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	prev, err := lastChainMAC(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resume audit chain: %w", err)
	}

	file, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &AuditLogger{
		path:       opts.Path,
		file:       file,
		maxSize:    opts.MaxSize,
		maxBackups: opts.MaxBackups,
		redact:     opts.Redact,
		redactors:  defaultRedactors(),
		key:        append([]byte(nil), opts.Key...),
		prevMAC:    prev,
		store:      opts.Store,
	}, nil
}

// RecordCall writes rec to the trail. Failures are logged, never returned,
// so a broken audit disk cannot change a tool result.
func (l *AuditLogger) RecordCall(rec tools.ExecutionRecord) {
	if err := l.Log(EventFromRecord(rec)); err != nil {
		logging.Error().
			Add(logging.Component("audit")).
			Add(logging.CallID(rec.CallID)).
			Add(logging.ErrorField(err)).
			Msg("audit write failed")
	}
}

// Log redacts event, appends it to the chain and mirrors it to the store.
func (l *AuditLogger) Log(event AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return ErrAuditClosed
	}

	if l.redact {
		event.Args = l.redactLocked(event.Args)
		event.Error = l.redactLocked(event.Error)
	}

	line, mac, err := sealLine(l.key, l.prevMAC, event)
	if err != nil {
		return l.failLocked(fmt.Errorf("failed to encode audit event: %w", err))
	}

	if err := l.checkRotationLocked(int64(len(line))); err != nil {
		return l.failLocked(err)
	}
	// Rotation may have reset the chain; seal against the current head.
	if len(l.prevMAC) == 0 {
		if line, mac, err = sealLine(l.key, nil, event); err != nil {
			return l.failLocked(err)
		}
	}

	if _, err := l.file.Write(line); err != nil {
		return l.failLocked(fmt.Errorf("failed to write audit log: %w", err))
	}
	if err := l.file.Sync(); err != nil {
		return l.failLocked(fmt.Errorf("failed to sync audit log: %w", err))
	}
	l.prevMAC = mac
	l.failureCount = 0

	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.store.Insert(ctx, event, encodeMAC(mac)); err != nil {
			return l.failLocked(fmt.Errorf("failed to mirror audit event: %w", err))
		}
	}
	return nil
}

func (l *AuditLogger) failLocked(err error) error {
	l.failureCount++
	l.lastFailure = err
	return err
}

// Redact applies the logger's redactors to input.
func (l *AuditLogger) Redact(input string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.redactLocked(input)
}

func (l *AuditLogger) redactLocked(input string) string {
	for _, r := range l.redactors {
		input = r.Redact(input)
	}
	return input
}

// Healthy reports whether the last write succeeded.
func (l *AuditLogger) Healthy() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failureCount == 0, l.lastFailure
}

// Path returns the active audit log file path.
func (l *AuditLogger) Path() string {
	return l.path
}

// =============================================================================
// FILE ROTATION
// =============================================================================

// Rotate closes the active file, renames it with a timestamp suffix and
// starts a new chain.
func (l *AuditLogger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotateLocked()
}

func (l *AuditLogger) rotateLocked() error {
	if l.file == nil {
		return ErrAuditClosed
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log for rotation: %w", err)
	}

	ext := filepath.Ext(l.path)
	base := strings.TrimSuffix(l.path, ext)
	rotatedPath := fmt.Sprintf("%s_%s%s", base, time.Now().UTC().Format(rotationStamp), ext)

	if err := os.Rename(l.path, rotatedPath); err != nil {
		l.file, _ = os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		l.file = nil
		return fmt.Errorf("failed to create new audit log after rotation: %w", err)
	}
	l.file = file
	l.prevMAC = nil

	return l.pruneLocked()
}

// checkRotationLocked rotates when the next write would exceed maxSize.
func (l *AuditLogger) checkRotationLocked(next int64) error {
	info, err := l.file.Stat()
	if err != nil {
		return nil
	}
	if info.Size() > 0 && info.Size()+next > l.maxSize {
		return l.rotateLocked()
	}
	return nil
}

// pruneLocked removes the oldest rotated files beyond maxBackups.
func (l *AuditLogger) pruneLocked() error {
	rotated, err := RotatedFiles(l.path)
	if err != nil {
		return err
	}
	for len(rotated) > l.maxBackups {
		if err := os.Remove(rotated[0]); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to prune audit log: %w", err)
		}
		rotated = rotated[1:]
	}
	return nil
}

// RotatedFiles returns the rotated siblings of path, oldest first.
func RotatedFiles(path string) ([]string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	matches, err := filepath.Glob(globEscape(base) + "_*" + globEscape(ext))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func globEscape(s string) string {
	return strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`).Replace(s)
}

// =============================================================================
// CLEANUP
// =============================================================================

// Sync flushes the audit log to disk.
func (l *AuditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Sync()
}

// Close closes the log file and the store.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.file != nil {
		errs = append(errs, l.file.Close())
		l.file = nil
	}
	if l.store != nil {
		errs = append(errs, l.store.Close())
		l.store = nil
	}
	return errors.Join(errs...)
}

// =============================================================================
// READING
// =============================================================================

// decodeEvent parses the event part of a sealed line.
func decodeEvent(raw json.RawMessage) (AuditEvent, error) {
	var ev AuditEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return AuditEvent{}, err
	}
	return ev, nil
}

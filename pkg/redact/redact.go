// Package redact implements the global redaction filter referenced by
// spec §6: API keys and bearer tokens must never reach a log sink.
package redact

import (
	"fmt"
	"regexp"

	"github.com/zeromicro/go-zero/core/logx"
)

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key["']?\s*[:=]\s*["']?)([A-Za-z0-9_\-\.]{8,})`),
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9_\-\.]{8,})`),
	regexp.MustCompile(`(?i)(secret["']?\s*[:=]\s*["']?)([A-Za-z0-9_\-\.]{8,})`),
}

const mask = "${1}***REDACTED***"

// String returns s with any recognizable credential substring masked.
// It is applied at sink time, never at capture time, so structured
// fields stay intact for anything that isn't a secret.
func String(s string) string {
	for _, p := range patterns {
		s = p.ReplaceAllString(s, mask)
	}
	return s
}

func value(v any) any {
	if s, ok := v.(string); ok {
		return String(s)
	}
	return String(fmt.Sprint(v))
}

// Writer wraps a logx.Writer and masks every value before it reaches
// the underlying sink, so an EXCHANGE_*_KEY or LLM_*_API_KEY accidentally
// interpolated into a log line never makes it to disk.
type Writer struct {
	inner logx.Writer
}

// NewWriter wraps inner. Install it process-wide with logx.SetWriter.
func NewWriter(inner logx.Writer) *Writer {
	return &Writer{inner: inner}
}

func (w *Writer) Alert(v string) { w.inner.Alert(String(v)) }
func (w *Writer) Close() error   { return w.inner.Close() }

func (w *Writer) Error(v any, fields ...logx.LogField) {
	w.inner.Error(value(v), fields...)
}

func (w *Writer) Info(v any, fields ...logx.LogField) {
	w.inner.Info(value(v), fields...)
}

func (w *Writer) Severe(v any) { w.inner.Severe(value(v)) }

func (w *Writer) Slow(v any, fields ...logx.LogField) {
	w.inner.Slow(value(v), fields...)
}

func (w *Writer) Stack(v any) { w.inner.Stack(value(v)) }

func (w *Writer) Stat(v any, fields ...logx.LogField) {
	w.inner.Stat(value(v), fields...)
}

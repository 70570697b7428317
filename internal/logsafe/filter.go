// Package logsafe wraps a slog.Handler so records that look like they carry
// secret material are redacted before they reach any sink. It is a last line
// of defense; code should never log credentials in the first place.
package logsafe

import (
	"context"
	"log/slog"
	"strings"
)

// redactedMessage replaces the record message when a sensitive marker is
// detected.
const redactedMessage = "[REDACTED: message contained sensitive data]"

// sensitiveMarkers are matched case-insensitively, either as `marker=` or as
// a quoted `"marker"`. Matching on the assignment form keeps ordinary prose
// like "password input required" loggable.
var sensitiveMarkers = []string{
	"password", "passwd", "pwd",
	"secret", "token", "key",
	"credential", "auth",
}

// Handler is a slog.Handler middleware that redacts suspicious records.
type Handler struct {
	next slog.Handler
}

// NewHandler wraps next with redaction.
func NewHandler(next slog.Handler) *Handler {
	return &Handler{next: next}
}

// Enabled delegates to the wrapped handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle redacts the message and every string attribute value that contains
// a sensitive marker, then forwards the record.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if !containsSensitive(r.Message) {
		clean := true
		r.Attrs(func(a slog.Attr) bool {
			if attrSensitive(a) {
				clean = false
				return false
			}
			return true
		})
		if clean {
			return h.next.Handle(ctx, r)
		}
	}

	out := slog.NewRecord(r.Time, r.Level, redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		if attrSensitive(a) {
			a.Value = slog.StringValue(redactedMessage)
		}
		out.AddAttrs(a)
		return true
	})
	return h.next.Handle(ctx, out)
}

// WithAttrs wraps the derived handler so redaction survives With calls.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	for i, a := range attrs {
		if attrSensitive(a) {
			attrs[i].Value = slog.StringValue(redactedMessage)
		}
	}
	return &Handler{next: h.next.WithAttrs(attrs)}
}

// WithGroup wraps the derived handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}

func redact(msg string) string {
	if containsSensitive(msg) {
		return redactedMessage
	}
	return msg
}

func attrSensitive(a slog.Attr) bool {
	if a.Value.Kind() != slog.KindString {
		return false
	}
	return containsSensitive(a.Value.String())
}

func containsSensitive(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker+"=") || strings.Contains(lower, `"`+marker+`"`) {
			return true
		}
	}
	return false
}

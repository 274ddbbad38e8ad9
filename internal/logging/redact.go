// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package logging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Redaction replaces PII values in log output.
const Redaction = "***"

// DefaultPIIFields are the attribute keys keyfold treats as personally
// identifying. A credential service logs around these values constantly;
// the handler guarantees they never reach a sink in the clear.
var DefaultPIIFields = []string{"email", "password", "session_id", "reset_token"}

// redactHandler wraps a slog.Handler, replacing the values of configured
// attribute keys and of key=value pairs embedded in message text.
type redactHandler struct {
	handler slog.Handler
	fields  map[string]struct{}
	pattern *regexp.Regexp
}

// NewRedactHandler wraps h so that attributes named in fields, and
// field=value fragments inside record messages, are redacted.
func NewRedactHandler(h slog.Handler, fields []string) slog.Handler {
	set := make(map[string]struct{}, len(fields))
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
		quoted = append(quoted, regexp.QuoteMeta(f))
	}
	return &redactHandler{
		handler: h,
		fields:  set,
		pattern: regexp.MustCompile(`(?i)(` + strings.Join(quoted, "|") + `)=[^;,\s]*`),
	}
}

// Handle rewrites the record with PII values replaced.
func (h *redactHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, h.filterMessage(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(h.redactAttr(a))
		return true
	})
	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, clean)
}

// Enabled returns true if the level is enabled.
func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs redacts the attributes before delegating.
func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		clean = append(clean, h.redactAttr(a))
	}
	return &redactHandler{handler: h.handler.WithAttrs(clean), fields: h.fields, pattern: h.pattern}
}

// WithGroup returns a new handler with the given group.
func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{handler: h.handler.WithGroup(name), fields: h.fields, pattern: h.pattern}
}

func (h *redactHandler) redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		clean := make([]any, 0, len(members))
		for _, m := range members {
			clean = append(clean, h.redactAttr(m))
		}
		return slog.Group(a.Key, clean...)
	}
	if _, ok := h.fields[a.Key]; ok {
		return slog.String(a.Key, Redaction)
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, h.filterMessage(a.Value.String()))
	}
	return a
}

// filterMessage redacts field=value fragments inside free-form text,
// e.g. "lookup failed for email=a@x.com" becomes "lookup failed for email=***".
func (h *redactHandler) filterMessage(msg string) string {
	return h.pattern.ReplaceAllStringFunc(msg, func(m string) string {
		name, _, _ := strings.Cut(m, "=")
		return fmt.Sprintf("%s=%s", name, Redaction)
	})
}

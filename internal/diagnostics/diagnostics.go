// Package diagnostics collects the non-fatal problems found while building a
// graph. Every skipped or unresolved record is reported here instead of
// aborting the build.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Severity grades a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Code identifies the kind of problem.
type Code string

const (
	CodeDuplicateType          Code = "duplicate-type"
	CodeDanglingExtends        Code = "dangling-extends"
	CodeUnknownComponentTarget Code = "unknown-component-target"
	CodeUnknownReferenceTarget Code = "unknown-reference-target"
	CodeUnknownInstanceType    Code = "unknown-instance-type"
	CodeUnresolvedReference    Code = "unresolved-reference"
	CodeMultiKeyHop            Code = "multi-key-hop"
	CodeEmptyKeyChain          Code = "empty-key-chain"
	CodeUnsetReference         Code = "unset-reference"
	CodeMissingInstanceID      Code = "missing-instance-id"
	CodeDuplicateInstance      Code = "duplicate-instance"
	CodeUnknownParent          Code = "unknown-parent"
	CodeDanglingReference      Code = "dangling-reference"
)

// Context attributes a diagnostic to the records that caused it.
type Context struct {
	Store    string `json:"store,omitempty"`
	Type     string `json:"type,omitempty"`
	Instance string `json:"instance,omitempty"`
	Field    string `json:"field,omitempty"`
	Target   string `json:"target,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func (c Context) attrs() []slog.Attr {
	var attrs []slog.Attr
	add := func(key, val string) {
		if val != "" {
			attrs = append(attrs, slog.String(key, val))
		}
	}
	add("store", c.Store)
	add("type", c.Type)
	add("instance", c.Instance)
	add("field", c.Field)
	add("target", c.Target)
	add("detail", c.Detail)
	return attrs
}

// Diagnostic is one reported problem.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
	Context  Context  `json:"context"`
}

// String renders the diagnostic on one line.
func (d Diagnostic) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s: %s", d.Severity, d.Code, d.Message)
	for _, a := range d.Context.attrs() {
		fmt.Fprintf(&sb, " %s=%s", a.Key, a.Value.String())
	}
	return sb.String()
}

// Collector accumulates diagnostics in the order they are reported.
// It is not safe for concurrent use.
type Collector struct {
	items  []Diagnostic
	logger *slog.Logger
}

// NewCollector returns an empty collector. Every diagnostic is also logged at
// debug level when logger is non-nil.
func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Collector{logger: logger}
}

// Add records a diagnostic.
func (c *Collector) Add(severity Severity, code Code, ctx Context, format string, args ...any) {
	d := Diagnostic{
		Severity: severity,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Context:  ctx,
	}
	c.items = append(c.items, d)

	attrs := append([]slog.Attr{
		slog.String("severity", string(severity)),
		slog.String("code", string(code)),
	}, ctx.attrs()...)
	c.logger.LogAttrs(context.Background(), slog.LevelDebug, d.Message, attrs...)
}

// Warn records a warning.
func (c *Collector) Warn(code Code, ctx Context, format string, args ...any) {
	c.Add(SeverityWarning, code, ctx, format, args...)
}

// Info records an informational diagnostic.
func (c *Collector) Info(code Code, ctx Context, format string, args ...any) {
	c.Add(SeverityInfo, code, ctx, format, args...)
}

// Len returns the number of collected diagnostics.
func (c *Collector) Len() int {
	return len(c.items)
}

// Items returns a copy of the collected diagnostics.
func (c *Collector) Items() []Diagnostic {
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

// Count returns how many diagnostics carry the given code.
func Count(items []Diagnostic, code Code) int {
	n := 0
	for _, d := range items {
		if d.Code == code {
			n++
		}
	}
	return n
}

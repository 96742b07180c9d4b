// Package diagnostics holds the user-facing error values produced by the
// namer, resolver and inference phases.
package diagnostics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/funvibe/sigcheck/internal/token"
)

// Severity separates real type errors from advisories.
type Severity int

const (
	SeverityError Severity = iota
	SeverityInfo
)

func (s Severity) String() string {
	if s == SeverityInfo {
		return "info"
	}
	return "error"
}

// DiagnosticError is a single reported problem. It implements error so that
// phases can pass it around like any other Go error.
type DiagnosticError struct {
	Code     ErrorCode
	Severity Severity
	Loc      token.Loc
	Message  string
	Related  []token.Loc
}

func (e *DiagnosticError) Error() string {
	return fmt.Sprintf("%s: %s [%d] %s", e.Loc, e.Severity, int(e.Code), e.Message)
}

// NewError creates an error-severity diagnostic.
func NewError(code ErrorCode, loc token.Loc, msg string, args ...any) *DiagnosticError {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &DiagnosticError{Code: code, Severity: SeverityError, Loc: loc, Message: msg}
}

// NewInfo creates an info-severity advisory.
func NewInfo(code ErrorCode, loc token.Loc, msg string, args ...any) *DiagnosticError {
	d := NewError(code, loc, msg, args...)
	d.Severity = SeverityInfo
	return d
}

// WithRelated attaches extra locations and returns the receiver.
func (e *DiagnosticError) WithRelated(locs ...token.Loc) *DiagnosticError {
	e.Related = append(e.Related, locs...)
	return e
}

// key identifies a diagnostic for de-duplication.
func (e *DiagnosticError) key() string {
	return fmt.Sprintf("%s:%d:%d:%d:%s", e.Loc.File, e.Loc.Start.Line, e.Loc.Start.Column, e.Code, e.Message)
}

// Less is the canonical diagnostic order: file, position, code, message.
func Less(a, b *DiagnosticError) bool {
	if a.Loc.File != b.Loc.File {
		return a.Loc.File < b.Loc.File
	}
	if a.Loc.Start != b.Loc.Start {
		return a.Loc.Start.Before(b.Loc.Start)
	}
	if a.Code != b.Code {
		return a.Code < b.Code
	}
	return a.Message < b.Message
}

// Sort orders diagnostics canonically and drops exact duplicates. The input
// slice is not modified.
func Sort(errs []*DiagnosticError) []*DiagnosticError {
	out := make([]*DiagnosticError, 0, len(errs))
	seen := make(map[string]bool, len(errs))
	for _, e := range errs {
		if e == nil {
			continue
		}
		k := e.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// ByFile groups diagnostics by the file of their primary location.
func ByFile(errs []*DiagnosticError) map[string][]*DiagnosticError {
	out := make(map[string][]*DiagnosticError)
	for _, e := range errs {
		out[e.Loc.File] = append(out[e.Loc.File], e)
	}
	return out
}

// Format renders diagnostics one per line, the way the CLI and golden tests
// show them.
func Format(errs []*DiagnosticError) string {
	var sb strings.Builder
	for _, e := range errs {
		sb.WriteString(e.Error())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// CountErrors returns how many diagnostics have error severity.
func CountErrors(errs []*DiagnosticError) int {
	n := 0
	for _, e := range errs {
		if e.Severity == SeverityError {
			n++
		}
	}
	return n
}

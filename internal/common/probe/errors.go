package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrAllCandidatesExhausted matches any *ExhaustedError via errors.Is.
var ErrAllCandidatesExhausted = errors.New("all candidates exhausted")

const maxDiagnosticBody = 512

// TransportError is one failed attempt: a transport error, a timeout, or a
// status outside the success range.
type TransportError struct {
	Candidate  string
	StatusCode int
	Body       any
	Err        error
}

func (e *TransportError) Error() string {
	// Without Err the failure came from status classification, whatever
	// the status value was.
	switch {
	case e.Err != nil:
		return e.Err.Error()
	case e.Body != nil:
		return fmt.Sprintf("status %d: %s", e.StatusCode, diagnosticBody(e.Body))
	default:
		return fmt.Sprintf("status %d", e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the attempt ran out of time.
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

func diagnosticBody(body any) string {
	var s string
	switch b := body.(type) {
	case string:
		s = b
	case []byte:
		s = string(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			s = fmt.Sprintf("%T", b)
		} else {
			s = string(raw)
		}
	}
	s = strings.TrimSpace(s)
	if len(s) > maxDiagnosticBody {
		s = s[:maxDiagnosticBody] + "..."
	}
	return s
}

// Attempt is one (candidate, outcome) pair of a probe run.
type Attempt struct {
	Candidate Candidate
	Err       error
	Duration  time.Duration
}

// AttemptSummary is the serializable form of an Attempt.
type AttemptSummary struct {
	Candidate  string `json:"candidate"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error"`
	DurationMs int64  `json:"durationMs"`
}

// FailureFormat selects how ExhaustedError renders its attempt list.
type FailureFormat string

const (
	FormatLines  FailureFormat = "lines"
	FormatInline FailureFormat = "inline"
)

// ExhaustedError is returned when every candidate failed. Attempts are in
// the order they were tried.
type ExhaustedError struct {
	Operation string
	Attempts  []Attempt
	Format    FailureFormat
}

func (e *ExhaustedError) Error() string {
	head := fmt.Sprintf("%s: all %d candidates failed", e.Operation, len(e.Attempts))
	if len(e.Attempts) == 0 {
		return e.Operation + ": no candidates configured"
	}

	var b strings.Builder
	b.WriteString(head)
	if e.Format == FormatInline {
		b.WriteString(": [")
		for i, a := range e.Attempts {
			if i > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "%s: %v", a.Candidate.ID(), a.Err)
		}
		b.WriteString("]")
		return b.String()
	}

	b.WriteString(":")
	for i, a := range e.Attempts {
		fmt.Fprintf(&b, "\n  %d. %s: %v", i+1, a.Candidate, a.Err)
	}
	return b.String()
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllCandidatesExhausted
}

// Summary returns the attempts in a form suitable for JSON responses.
func (e *ExhaustedError) Summary() []AttemptSummary {
	out := make([]AttemptSummary, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		s := AttemptSummary{
			Candidate:  a.Candidate.ID(),
			Method:     a.Candidate.method(),
			Path:       a.Candidate.Path,
			DurationMs: a.Duration.Milliseconds(),
		}
		if a.Err != nil {
			s.Error = a.Err.Error()
		}
		var te *TransportError
		if errors.As(a.Err, &te) {
			s.StatusCode = te.StatusCode
		}
		out = append(out, s)
	}
	return out
}

// AllTimedOut reports whether every attempt failed by timeout.
func (e *ExhaustedError) AllTimedOut() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		var te *TransportError
		if !errors.As(a.Err, &te) || !te.Timeout() {
			return false
		}
	}
	return true
}

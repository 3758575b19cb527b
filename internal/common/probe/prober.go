// Package probe tries an ordered list of request shapes for one logical
// operation until one of them succeeds.
//
// Candidates are attempted strictly one after another in the order given.
// A failed attempt may already have had side effects on the remote side, so
// candidates are never raced.
package probe

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tutor-chat/internal/common/metrics"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultSuccessMin = 200
	DefaultSuccessMax = 299

	tracerName = "tutor-chat/probe"
)

// Logger is the subset of the service logger the prober uses.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

type Config struct {
	Timeout    time.Duration
	SuccessMin int
	SuccessMax int
	Format     FailureFormat
}

// Prober runs the probing algorithm for one named operation. It holds no
// per-run state and is safe for concurrent use.
type Prober struct {
	operation  string
	timeout    time.Duration
	successMin int
	successMax int
	format     FailureFormat
	logger     Logger
	tracer     trace.Tracer
}

func New(operation string, cfg Config, log Logger) *Prober {
	p := &Prober{
		operation:  operation,
		timeout:    cfg.Timeout,
		successMin: cfg.SuccessMin,
		successMax: cfg.SuccessMax,
		format:     cfg.Format,
		logger:     log,
		tracer:     otel.Tracer(tracerName),
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.successMin == 0 && p.successMax == 0 {
		p.successMin, p.successMax = DefaultSuccessMin, DefaultSuccessMax
	}
	if p.format == "" {
		p.format = FormatLines
	}
	return p
}

// Operation returns the logical operation name.
func (p *Prober) Operation() string { return p.operation }

// Probe tries candidates in order and returns the first successful result.
// When the result wraps a decoded body (ContentCarrier) the body is
// returned. If every candidate fails the error is an *ExhaustedError with
// one Attempt per candidate.
func (p *Prober) Probe(ctx context.Context, t Transport, candidates []Candidate, payload Payload) (any, error) {
	ctx, span := p.tracer.Start(ctx, "probe."+p.operation, trace.WithAttributes(
		attribute.String("probe.operation", p.operation),
		attribute.Int("probe.candidates", len(candidates)),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.ProbeDuration.WithLabelValues(p.operation).Observe(time.Since(start).Seconds())
	}()

	attempts := make([]Attempt, 0, len(candidates))
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			// The caller gave up; record the rest without touching the network.
			for _, rest := range candidates[i:] {
				attempts = append(attempts, Attempt{Candidate: rest, Err: &TransportError{Candidate: rest.ID(), Err: err}})
			}
			break
		}

		attemptStart := time.Now()
		result, err := p.attempt(ctx, t, c, payload)
		elapsed := time.Since(attemptStart)

		if err == nil {
			metrics.ProbeAttempts.WithLabelValues(p.operation, c.ID(), "success").Inc()
			span.SetAttributes(attribute.String("probe.winner", c.ID()), attribute.Int("probe.attempts", i+1))
			p.debug("candidate succeeded", map[string]interface{}{
				"candidate": c.ID(),
				"attempt":   i + 1,
				"elapsedMs": elapsed.Milliseconds(),
			})
			return result, nil
		}

		metrics.ProbeAttempts.WithLabelValues(p.operation, c.ID(), "failure").Inc()
		span.AddEvent("candidate failed", trace.WithAttributes(
			attribute.String("probe.candidate", c.ID()),
			attribute.String("error", err.Error()),
		))
		p.debug("candidate failed", map[string]interface{}{
			"candidate": c.ID(),
			"attempt":   i + 1,
			"error":     err.Error(),
			"elapsedMs": elapsed.Milliseconds(),
		})
		attempts = append(attempts, Attempt{Candidate: c, Err: err, Duration: elapsed})
	}

	exhausted := &ExhaustedError{Operation: p.operation, Attempts: attempts, Format: p.format}
	metrics.ProbeExhausted.WithLabelValues(p.operation).Inc()
	span.SetStatus(codes.Error, "all candidates exhausted")
	if p.logger != nil {
		p.logger.Warn("all endpoint candidates failed", map[string]interface{}{
			"operation": p.operation,
			"attempts":  exhausted.Summary(),
		})
	}
	return nil, exhausted
}

func (p *Prober) attempt(ctx context.Context, t Transport, c Candidate, payload Payload) (any, error) {
	req, err := c.Build(payload)
	if err != nil {
		return nil, &TransportError{Candidate: c.ID(), Err: err}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := t.Send(attemptCtx, req)
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %v", context.DeadlineExceeded, p.timeout, err)
		}
		return nil, &TransportError{Candidate: c.ID(), Err: err}
	}

	if sc, ok := result.(StatusCarrier); ok {
		status := sc.Status()
		var body any
		if cc, ok := result.(ContentCarrier); ok {
			body = cc.Content()
		}
		if status < p.successMin || status > p.successMax {
			return nil, &TransportError{Candidate: c.ID(), StatusCode: status, Body: body}
		}
		if _, ok := result.(ContentCarrier); ok {
			return body, nil
		}
		return result, nil
	}

	if cc, ok := result.(ContentCarrier); ok {
		return cc.Content(), nil
	}
	return result, nil
}

func (p *Prober) debug(msg string, fields map[string]interface{}) {
	if p.logger == nil {
		return
	}
	fields["operation"] = p.operation
	p.logger.Debug(msg, fields)
}

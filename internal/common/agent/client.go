// Package agent talks to the hosted tutoring agent. Its request conventions
// are not known in advance, so both operations go through an endpoint
// prober and every reply goes through the envelope decoder.
package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"tutor-chat/internal/common/envelope"
	"tutor-chat/internal/common/errors"
	"tutor-chat/internal/common/metrics"
	"tutor-chat/internal/common/probe"
	"tutor-chat/pkg/registry"
)

const (
	OperationStartRun     = registry.OperationStartRun
	OperationFetchSession = registry.OperationFetchSession

	SourceAgent    = "agent"
	SourceFallback = "fallback"
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// FallbackFunc produces a reply through some other, known-good path.
type FallbackFunc func(ctx context.Context) (string, error)

// Reply is the decoded outcome of one question.
type Reply struct {
	Text       string                 `json:"text"`
	Source     string                 `json:"source"`
	Raw        any                    `json:"raw,omitempty"`
	Diagnostic []probe.AttemptSummary `json:"diagnostic,omitempty"`
}

type Options struct {
	StartCandidates []probe.Candidate
	FetchCandidates []probe.Candidate
	Probe           probe.Config
	Decoder         *envelope.Decoder
}

type Client struct {
	transport       probe.Transport
	start           *probe.Prober
	fetch           *probe.Prober
	startCandidates []probe.Candidate
	fetchCandidates []probe.Candidate
	decoder         *envelope.Decoder
	logger          Logger
}

func NewClient(transport probe.Transport, opts Options, log Logger) *Client {
	decoder := opts.Decoder
	if decoder == nil {
		decoder = envelope.New(envelope.WithDegradeHook(DegradeHook(log)))
	}
	return &Client{
		transport:       transport,
		start:           probe.New(OperationStartRun, opts.Probe, log),
		fetch:           probe.New(OperationFetchSession, opts.Probe, log),
		startCandidates: append([]probe.Candidate(nil), opts.StartCandidates...),
		fetchCandidates: append([]probe.Candidate(nil), opts.FetchCandidates...),
		decoder:         decoder,
		logger:          log,
	}
}

// DegradeHook counts replies that only decoded to a generic string form.
func DegradeHook(log Logger) func(v any) {
	return func(v any) {
		metrics.DecodeDegraded.Inc()
		if log != nil {
			log.Debug("reply decoded to generic string form", map[string]interface{}{
				"type": fmt.Sprintf("%T", v),
			})
		}
	}
}

// RequestReply starts an agent run for the session and decodes its reply.
// When every start candidate fails and fallback is non-nil, the fallback
// answers instead and the reply carries the probe diagnostics.
func (c *Client) RequestReply(ctx context.Context, sessionID string, body any, fallback FallbackFunc) (*Reply, error) {
	raw, err := c.start.Probe(ctx, c.transport, c.startCandidates, probe.Payload{SessionID: sessionID, Body: body})
	if err == nil {
		return &Reply{Text: c.decoder.Decode(raw), Source: SourceAgent, Raw: raw}, nil
	}

	var exhausted *probe.ExhaustedError
	if !stderrors.As(err, &exhausted) {
		return nil, err
	}
	if fallback == nil {
		return nil, agentError(OperationStartRun, exhausted)
	}

	if c.logger != nil {
		c.logger.Info("agent unavailable, using chat completion", map[string]interface{}{
			"sessionId": sessionID,
			"attempts":  len(exhausted.Attempts),
		})
	}

	start := time.Now()
	text, ferr := fallback(ctx)
	if ferr != nil {
		metrics.FallbackInvocations.WithLabelValues("failure").Inc()
		return nil, errors.NewFallbackFailedError(stderrors.Join(exhausted, ferr)).
			WithMetadata("attempts", exhausted.Summary())
	}
	metrics.FallbackInvocations.WithLabelValues("success").Inc()
	if c.logger != nil {
		c.logger.Debug("chat completion answered", map[string]interface{}{
			"sessionId": sessionID,
			"elapsedMs": time.Since(start).Milliseconds(),
		})
	}

	return &Reply{Text: text, Source: SourceFallback, Diagnostic: exhausted.Summary()}, nil
}

// FetchState reads the agent's server-side memory for a session and
// returns the raw envelope.
func (c *Client) FetchState(ctx context.Context, sessionID string) (any, error) {
	raw, err := c.fetch.Probe(ctx, c.transport, c.fetchCandidates, probe.Payload{SessionID: sessionID})
	if err != nil {
		var exhausted *probe.ExhaustedError
		if stderrors.As(err, &exhausted) {
			return nil, agentError(OperationFetchSession, exhausted)
		}
		return nil, err
	}
	return raw, nil
}

// Decode turns any envelope into display text.
func (c *Client) Decode(v any) string {
	return c.decoder.Decode(v)
}

func agentError(operation string, exhausted *probe.ExhaustedError) *errors.StandardError {
	if exhausted.AllTimedOut() {
		return errors.NewAgentTimeoutError(operation).WithMetadata("attempts", exhausted.Summary())
	}
	return errors.NewAgentUnavailableError(operation, exhausted).WithMetadata("attempts", exhausted.Summary())
}

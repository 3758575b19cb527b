package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// SessionParam says where a candidate places the session identifier.
type SessionParam string

const (
	SessionNone  SessionParam = "none"
	SessionPath  SessionParam = "path"
	SessionQuery SessionParam = "query"
	SessionBody  SessionParam = "body"
)

// SessionPlaceholder is substituted with the escaped session id in a path.
const SessionPlaceholder = "{session_id}"

const defaultSessionKey = "session_id"

// Candidate is one guessed request shape for a logical operation.
type Candidate struct {
	Name         string       `json:"name" mapstructure:"name"`
	Method       string       `json:"method" mapstructure:"method"`
	Path         string       `json:"path" mapstructure:"path"`
	BodyKey      string       `json:"bodyKey,omitempty" mapstructure:"body_key"`
	SessionParam SessionParam `json:"sessionParam,omitempty" mapstructure:"session_param"`
	SessionKey   string       `json:"sessionKey,omitempty" mapstructure:"session_key"`
}

// ID identifies the candidate in logs, metrics and diagnostics.
func (c Candidate) ID() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Method + " " + c.Path
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s (%s %s)", c.ID(), c.method(), c.Path)
}

func (c Candidate) method() string {
	if c.Method == "" {
		return http.MethodPost
	}
	return strings.ToUpper(c.Method)
}

func (c Candidate) sessionKey() string {
	if c.SessionKey == "" {
		return defaultSessionKey
	}
	return c.SessionKey
}

// Validate reports configuration mistakes before any network call.
func (c Candidate) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("candidate %q: path is required", c.ID())
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("candidate %q: path must start with '/'", c.ID())
	}
	switch c.method() {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("candidate %q: unsupported method %q", c.ID(), c.Method)
	}
	switch c.SessionParam {
	case "", SessionNone, SessionPath, SessionQuery, SessionBody:
	default:
		return fmt.Errorf("candidate %q: unknown session param %q", c.ID(), c.SessionParam)
	}
	if c.SessionParam == SessionBody && c.method() == http.MethodGet {
		return fmt.Errorf("candidate %q: GET cannot carry the session in the body", c.ID())
	}
	return nil
}

// ValidateAll validates a candidate list.
func ValidateAll(candidates []Candidate) error {
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Payload is the caller's request: an opaque body plus the session it belongs to.
type Payload struct {
	SessionID string
	Body      any
}

// Request is the transport-level request built from a candidate and a payload.
type Request struct {
	Candidate string
	Method    string
	Path      string
	Query     url.Values
	Body      any
}

// Build shapes payload according to the candidate's calling convention.
// The payload body itself is never mutated.
func (c Candidate) Build(p Payload) (*Request, error) {
	req := &Request{
		Candidate: c.ID(),
		Method:    c.method(),
		Path:      c.Path,
	}

	if strings.Contains(req.Path, SessionPlaceholder) || c.SessionParam == SessionPath {
		if p.SessionID == "" {
			return nil, fmt.Errorf("candidate %q needs a session id in the path", c.ID())
		}
		escaped := url.PathEscape(p.SessionID)
		if strings.Contains(req.Path, SessionPlaceholder) {
			req.Path = strings.ReplaceAll(req.Path, SessionPlaceholder, escaped)
		} else {
			req.Path = strings.TrimSuffix(req.Path, "/") + "/" + escaped
		}
	}

	if c.SessionParam == SessionQuery && p.SessionID != "" {
		req.Query = url.Values{}
		req.Query.Set(c.sessionKey(), p.SessionID)
	}

	if req.Method == http.MethodGet || req.Method == http.MethodDelete {
		return req, nil
	}

	body := p.Body
	if c.BodyKey != "" {
		body = map[string]any{c.BodyKey: p.Body}
	}
	if c.SessionParam == SessionBody && p.SessionID != "" {
		merged, err := withField(body, c.sessionKey(), p.SessionID)
		if err != nil {
			return nil, fmt.Errorf("candidate %q: %w", c.ID(), err)
		}
		body = merged
	}
	req.Body = body
	return req, nil
}

func withField(body any, key string, value any) (map[string]any, error) {
	switch b := body.(type) {
	case nil:
		return map[string]any{key: value}, nil
	case map[string]any:
		out := make(map[string]any, len(b)+1)
		for k, v := range b {
			out[k] = v
		}
		out[key] = value
		return out, nil
	default:
		return nil, fmt.Errorf("cannot attach %q to a %T body", key, body)
	}
}

// Transport sends one request. The result is either a value carrying a
// status (see StatusCarrier) or a plain decoded value.
type Transport interface {
	Send(ctx context.Context, req *Request) (any, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (any, error)

func (f TransportFunc) Send(ctx context.Context, req *Request) (any, error) {
	return f(ctx, req)
}

// StatusCarrier is implemented by transport results that expose a status.
type StatusCarrier interface {
	Status() int
}

// ContentCarrier is implemented by transport results that wrap a decoded body.
type ContentCarrier interface {
	Content() any
}

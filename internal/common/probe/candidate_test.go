package probe

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidate_Build(t *testing.T) {
	body := map[string]any{"input": "What is 3*4?"}

	tests := []struct {
		name      string
		candidate Candidate
		payload   Payload
		wantPath  string
		wantQuery string
		wantBody  any
		wantErr   string
	}{
		{
			name:      "raw body, session in body",
			candidate: Candidate{Name: "runs", Method: http.MethodPost, Path: "/v1/runs", SessionParam: SessionBody},
			payload:   Payload{SessionID: "abc", Body: body},
			wantPath:  "/v1/runs",
			wantBody:  map[string]any{"input": "What is 3*4?", "session_id": "abc"},
		},
		{
			name:      "body keyword wraps payload",
			candidate: Candidate{Name: "messages", Path: "/v1/agent/run", BodyKey: "messages"},
			payload:   Payload{Body: []any{"hi"}},
			wantPath:  "/v1/agent/run",
			wantBody:  map[string]any{"messages": []any{"hi"}},
		},
		{
			name:      "custom session key",
			candidate: Candidate{Name: "thread", Path: "/v1/runs", BodyKey: "input", SessionParam: SessionBody, SessionKey: "thread_id"},
			payload:   Payload{SessionID: "t1", Body: "2+2"},
			wantPath:  "/v1/runs",
			wantBody:  map[string]any{"input": "2+2", "thread_id": "t1"},
		},
		{
			name:      "path parameter without placeholder is appended",
			candidate: Candidate{Name: "memory", Method: http.MethodGet, Path: "/v1/memory/", SessionParam: SessionPath},
			payload:   Payload{SessionID: "abc"},
			wantPath:  "/v1/memory/abc",
		},
		{
			name:      "query parameter",
			candidate: Candidate{Name: "q", Method: http.MethodGet, Path: "/v1/sessions", SessionParam: SessionQuery},
			payload:   Payload{SessionID: "abc"},
			wantPath:  "/v1/sessions",
			wantQuery: "session_id=abc",
		},
		{
			name:      "session in body needs an object body",
			candidate: Candidate{Name: "bad", Path: "/v1/runs", SessionParam: SessionBody},
			payload:   Payload{SessionID: "abc", Body: "plain text"},
			wantErr:   "cannot attach",
		},
		{
			name:      "placeholder without session id",
			candidate: Candidate{Name: "p", Method: http.MethodGet, Path: "/v1/sessions/{session_id}"},
			payload:   Payload{},
			wantErr:   "needs a session id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.candidate.Build(tt.payload)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.candidate.ID(), req.Candidate)
			assert.Equal(t, tt.wantPath, req.Path)
			assert.Equal(t, tt.wantBody, req.Body)
			if tt.wantQuery != "" {
				assert.Equal(t, tt.wantQuery, req.Query.Encode())
			} else {
				assert.Nil(t, req.Query)
			}
		})
	}

	assert.Equal(t, map[string]any{"input": "What is 3*4?"}, body)
}

func TestCandidate_Validate(t *testing.T) {
	assert.NoError(t, Candidate{Name: "ok", Method: "get", Path: "/v1/x"}.Validate())
	assert.NoError(t, Candidate{Path: "/v1/x"}.Validate())

	assert.ErrorContains(t, Candidate{Name: "nopath"}.Validate(), "path is required")
	assert.ErrorContains(t, Candidate{Name: "rel", Path: "v1/x"}.Validate(), "must start with")
	assert.ErrorContains(t, Candidate{Name: "m", Method: "TRACE", Path: "/x"}.Validate(), "unsupported method")
	assert.ErrorContains(t, Candidate{Name: "s", Path: "/x", SessionParam: "cookie"}.Validate(), "unknown session param")
	assert.ErrorContains(t, Candidate{Name: "g", Method: "GET", Path: "/x", SessionParam: SessionBody}.Validate(), "GET cannot")

	err := ValidateAll([]Candidate{{Name: "a", Path: "/a"}, {Name: "b"}})
	assert.ErrorContains(t, err, `"b"`)
}

func TestCandidate_ID(t *testing.T) {
	assert.Equal(t, "named", Candidate{Name: "named", Path: "/x"}.ID())
	assert.Equal(t, "GET /x", Candidate{Method: "GET", Path: "/x"}.ID())
}

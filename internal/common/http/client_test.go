package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-chat/internal/common/probe"
)

func TestClient_Send_DecodesJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/runs", r.URL.Path)
		assert.Equal(t, "abc", r.URL.Query().Get("session_id"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hi", body["input"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"output":"hello"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", 5*time.Second, WithBearerToken("secret"))
	result, err := client.Send(context.Background(), &probe.Request{
		Method: http.MethodPost,
		Path:   "/v1/runs",
		Query:  url.Values{"session_id": {"abc"}},
		Body:   map[string]interface{}{"input": "hi"},
	})

	require.NoError(t, err)
	resp, ok := result.(*Response)
	require.True(t, ok)
	assert.Equal(t, http.StatusCreated, resp.Status())
	assert.Equal(t, map[string]interface{}{"output": "hello"}, resp.Content())
}

func TestClient_Send_NonJSONAndEmptyBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/text":
			w.Write([]byte("plain answer"))
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)

	result, err := client.Send(context.Background(), &probe.Request{Method: http.MethodGet, Path: "/text"})
	require.NoError(t, err)
	assert.Equal(t, "plain answer", result.(*Response).Data)

	result, err = client.Send(context.Background(), &probe.Request{Method: http.MethodGet, Path: "/empty"})
	require.NoError(t, err)
	assert.Nil(t, result.(*Response).Data)
	assert.Equal(t, http.StatusNoContent, result.(*Response).StatusCode)
}

func TestClient_Send_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	_, err := NewClient(addr, time.Second).Send(context.Background(), &probe.Request{Method: http.MethodGet, Path: "/x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_WithProber_FallsThroughToWorkingEndpoint(t *testing.T) {
	var hits []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/v1/agents/runs":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Not Found"}`))
		case "/v1/sessions/s-1/runs":
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"detail":"field required: message"}`))
		case "/v1/runs":
			w.Write([]byte(`{"response":{"text":"Das Ergebnis ist 12."}}`))
		}
	}))
	defer server.Close()

	candidates := []probe.Candidate{
		{Name: "agents-runs", Method: http.MethodPost, Path: "/v1/agents/runs", BodyKey: "input", SessionParam: probe.SessionBody},
		{Name: "session-runs", Method: http.MethodPost, Path: "/v1/sessions/{session_id}/runs", BodyKey: "input"},
		{Name: "runs-message", Method: http.MethodPost, Path: "/v1/runs", BodyKey: "message", SessionParam: probe.SessionBody},
	}
	prober := probe.New("start-run", probe.Config{Timeout: 2 * time.Second}, nil)

	result, err := prober.Probe(context.Background(), NewClient(server.URL, 5*time.Second), candidates, probe.Payload{
		SessionID: "s-1",
		Body:      map[string]interface{}{"text": "3*4?"},
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"response": map[string]interface{}{"text": "Das Ergebnis ist 12."}}, result)
	assert.Equal(t, []string{"POST /v1/agents/runs", "POST /v1/sessions/s-1/runs", "POST /v1/runs"}, hits)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "limits are per client")

	fixed = fixed.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))

	fixed = fixed.Add(limiterIdleTTL + time.Second)
	rl.Allow("10.0.0.3")
	rl.mu.Lock()
	assert.Len(t, rl.limiters, 1)
	rl.mu.Unlock()
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	var rejected string
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), func(w http.ResponseWriter, r *http.Request, client string) {
		rejected = client
		w.WriteHeader(http.StatusTooManyRequests)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	req.RemoteAddr = "192.0.2.7:5555"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "192.0.2.7", rejected)
}

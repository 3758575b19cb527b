// internal/actions/tutor/load-memory/models.go
package loadmemory

type Output struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Source    string `json:"source"`
	Raw       any    `json:"raw,omitempty"`
}

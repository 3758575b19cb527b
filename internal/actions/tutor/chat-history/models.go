// internal/actions/tutor/chat-history/models.go
package chathistory

import (
	"time"

	"tutor-chat/internal/models"
)

type Output struct {
	SessionID string        `json:"session_id"`
	Turns     []models.Turn `json:"turns"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
	LastReply string        `json:"last_reply,omitempty"`
}

func newOutput(s *models.Session) *Output {
	out := &Output{SessionID: s.ID, Turns: s.Turns}
	if !s.UpdatedAt.IsZero() {
		at := s.UpdatedAt
		out.UpdatedAt = &at
	}
	if reply, ok := s.LastReply(); ok {
		out.LastReply = reply.Text
	}
	return out
}

package models

import (
	"context"
	"encoding/base64"
	"strings"
	"time"
)

// Role is the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a tutoring conversation
type Turn struct {
	Role         Role      `json:"role"`
	Text         string    `json:"text"`
	ImageDataURL string    `json:"imageDataUrl,omitempty"`
	Source       string    `json:"source,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Question is what a student submits: text, an image, or both.
type Question struct {
	SessionID    string `json:"sessionId"`
	Text         string `json:"text"`
	ImageDataURL string `json:"imageDataUrl,omitempty"`
}

// IsEmpty reports whether neither text nor image was given.
func (q Question) IsEmpty() bool {
	return strings.TrimSpace(q.Text) == "" && q.ImageDataURL == ""
}

// UserTurn converts the question into a history entry.
func (q Question) UserTurn(at time.Time) Turn {
	return Turn{Role: RoleUser, Text: q.Text, ImageDataURL: q.ImageDataURL, CreatedAt: at}
}

// AgentInput is the body sent to the agent's run endpoints.
func (q Question) AgentInput() map[string]interface{} {
	input := map[string]interface{}{"text": q.Text}
	if q.ImageDataURL != "" {
		input["image"] = q.ImageDataURL
	}
	return input
}

// DataURL encodes raw image bytes as a base64 data URL.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Session is the display-side view of one conversation
type Session struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// LastReply returns the newest assistant turn, if any.
func (s *Session) LastReply() (Turn, bool) {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleAssistant {
			return s.Turns[i], true
		}
	}
	return Turn{}, false
}

// HistoryStore persists conversation turns per session.
type HistoryStore interface {
	Append(ctx context.Context, sessionID string, turns ...Turn) error
	Load(ctx context.Context, sessionID string) ([]Turn, error)
	Clear(ctx context.Context, sessionID string) error
}

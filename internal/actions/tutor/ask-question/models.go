// internal/actions/tutor/ask-question/models.go
package askquestion

import "tutor-chat/internal/common/probe"

type Input struct {
	SessionID    string `json:"session_id"`
	Text         string `json:"text"`
	ImageDataURL string `json:"image_data_url"`
}

type Output struct {
	SessionID    string                 `json:"session_id"`
	Reply        string                 `json:"reply"`
	Source       string                 `json:"source"`
	ImageDataURL string                 `json:"image_data_url,omitempty"`
	Diagnostic   []probe.AttemptSummary `json:"diagnostic,omitempty"`
}

// internal/actions/tutor/ask-question/handler.go
package askquestion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"tutor-chat/internal/common/agent"
	"tutor-chat/internal/common/config"
	"tutor-chat/internal/common/errors"
	httpx "tutor-chat/internal/common/http"
	"tutor-chat/internal/common/logger"
	"tutor-chat/internal/common/metrics"
	"tutor-chat/internal/common/validation"
	"tutor-chat/internal/models"
)

const (
	TaskType = "ask-question"

	// SourceLocal marks replies produced from client-side history.
	SourceLocal = "local"

	multipartOverhead = 1 << 20
)

type AgentClient interface {
	RequestReply(ctx context.Context, sessionID string, body any, fallback agent.FallbackFunc) (*agent.Reply, error)
}

type Completer interface {
	Complete(ctx context.Context, history []models.Turn, q models.Question) (string, error)
}

type Handler struct {
	config    *Config
	agent     AgentClient
	completer Completer
	history   models.HistoryStore
	errors    *errors.ErrorHandler
	logger    logger.Logger
	now       func() time.Time
	newID     func() string
}

// NewHandler wires the action. completer and history may be nil when the
// fallback or history store is disabled; agentClient may be nil in local
// memory mode.
func NewHandler(cfg *Config, agentClient AgentClient, completer Completer, history models.HistoryStore, log logger.Logger) *Handler {
	log = log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    cfg,
		agent:     agentClient,
		completer: completer,
		history:   history,
		errors:    errors.NewErrorHandler(log),
		logger:    log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	input, err := h.parseInput(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, output)
}

// Execute answers one question and records both turns.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	q := models.Question{
		SessionID:    strings.TrimSpace(input.SessionID),
		Text:         strings.TrimSpace(input.Text),
		ImageDataURL: input.ImageDataURL,
	}
	if q.IsEmpty() {
		return nil, errors.NewInvalidQuestionError("text or image is required")
	}
	if q.SessionID == "" {
		q.SessionID = h.newID()
	}
	asked := h.now()

	var (
		reply *agent.Reply
		err   error
	)
	if h.config.MemoryMode == config.MemoryModeLocal || h.agent == nil {
		reply, err = h.answerLocally(ctx, q)
	} else {
		reply, err = h.agent.RequestReply(ctx, q.SessionID, q.AgentInput(), h.fallback(q))
	}
	if err != nil {
		return nil, err
	}

	h.record(ctx, q, reply, asked)
	metrics.ActionsCompleted.WithLabelValues(TaskType, reply.Source).Inc()
	h.logger.Info("question answered", map[string]interface{}{
		"sessionId": q.SessionID,
		"source":    reply.Source,
		"hasImage":  q.ImageDataURL != "",
		"replyLen":  len(reply.Text),
	})

	return &Output{
		SessionID:    q.SessionID,
		Reply:        reply.Text,
		Source:       reply.Source,
		ImageDataURL: q.ImageDataURL,
		Diagnostic:   reply.Diagnostic,
	}, nil
}

// answerLocally sends the stored conversation to the chat completion path.
func (h *Handler) answerLocally(ctx context.Context, q models.Question) (*agent.Reply, error) {
	if h.completer == nil {
		return nil, errors.NewFallbackFailedError(fmt.Errorf("chat completion is not configured"))
	}
	history, err := h.loadHistory(ctx, q.SessionID)
	if err != nil {
		return nil, err
	}
	text, err := h.completer.Complete(ctx, history, q)
	if err != nil {
		return nil, errors.NewFallbackFailedError(err)
	}
	return &agent.Reply{Text: text, Source: SourceLocal}, nil
}

func (h *Handler) fallback(q models.Question) agent.FallbackFunc {
	if h.completer == nil {
		return nil
	}
	return func(ctx context.Context) (string, error) {
		history, err := h.loadHistory(ctx, q.SessionID)
		if err != nil {
			h.logger.Warn("history unavailable for chat completion", map[string]interface{}{
				"sessionId": q.SessionID,
				"error":     err.Error(),
			})
			history = nil
		}
		return h.completer.Complete(ctx, history, q)
	}
}

func (h *Handler) loadHistory(ctx context.Context, sessionID string) ([]models.Turn, error) {
	if h.history == nil {
		return nil, nil
	}
	return h.history.Load(ctx, sessionID)
}

// record stores the exchange. A store failure is logged, not returned: the
// student already has an answer.
func (h *Handler) record(ctx context.Context, q models.Question, reply *agent.Reply, asked time.Time) {
	if h.history == nil {
		return
	}
	answer := models.Turn{Role: models.RoleAssistant, Text: reply.Text, Source: reply.Source, CreatedAt: h.now()}
	if err := h.history.Append(ctx, q.SessionID, q.UserTurn(asked), answer); err != nil {
		h.logger.Warn("failed to record conversation", map[string]interface{}{
			"sessionId": q.SessionID,
			"error":     err.Error(),
		})
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	metrics.ActionsFailed.WithLabelValues(TaskType, string(errors.Normalize(err).Code)).Inc()
	h.errors.HandleHTTPError(w, r, err)
}

// ==========================
// Request parsing
// ==========================

func (h *Handler) parseInput(w http.ResponseWriter, r *http.Request) (*Input, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		return h.parseMultipart(w, r)
	case "application/json", "":
		return h.parseJSON(w, r)
	default:
		return nil, errors.NewInvalidQuestionError(fmt.Sprintf("unsupported content type %q", mediaType))
	}
}

func (h *Handler) parseJSON(w http.ResponseWriter, r *http.Request) (*Input, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxDataURLBytes()+multipartOverhead)

	var doc map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		return nil, errors.NewInvalidQuestionError(fmt.Sprintf("invalid JSON body: %v", err))
	}

	result, err := validation.ValidateQuestion(doc, h.config.MaxTextLength)
	if err != nil {
		return nil, errors.NewInvalidQuestionError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewInvalidQuestionError(result.Error()).WithMetadata("errors", result.Errors)
	}

	input := &Input{}
	input.SessionID, _ = doc["session_id"].(string)
	input.Text, _ = doc["text"].(string)
	if dataURL, _ := doc["image_data_url"].(string); dataURL != "" {
		if err := h.checkDataURL(dataURL); err != nil {
			return nil, err
		}
		input.ImageDataURL = dataURL
	}
	return input, nil
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) (*Input, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxImageBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.config.MaxImageBytes + multipartOverhead); err != nil {
		return nil, errors.NewInvalidQuestionError(fmt.Sprintf("invalid form: %v", err))
	}

	input := &Input{
		SessionID: r.FormValue("session_id"),
		Text:      r.FormValue("text"),
	}
	if h.config.MaxTextLength > 0 && utf8.RuneCountInString(input.Text) > h.config.MaxTextLength {
		return nil, errors.NewInvalidQuestionError(fmt.Sprintf("text exceeds %d characters", h.config.MaxTextLength))
	}

	file, header, err := r.FormFile("image")
	if err == http.ErrMissingFile {
		return input, nil
	}
	if err != nil {
		return nil, errors.NewInvalidQuestionError(fmt.Sprintf("invalid image field: %v", err))
	}
	defer file.Close()

	if header.Size > h.config.MaxImageBytes {
		return nil, errors.NewImageTooLargeError(header.Size, h.config.MaxImageBytes)
	}
	data, err := io.ReadAll(io.LimitReader(file, h.config.MaxImageBytes+1))
	if err != nil {
		return nil, errors.NewInvalidQuestionError(fmt.Sprintf("failed to read image: %v", err))
	}
	if int64(len(data)) > h.config.MaxImageBytes {
		return nil, errors.NewImageTooLargeError(int64(len(data)), h.config.MaxImageBytes)
	}

	contentType := imageType(header.Filename, header.Header.Get("Content-Type"), data)
	if !h.allowed(contentType) {
		return nil, errors.NewUnsupportedImageTypeError(contentType)
	}
	input.ImageDataURL = models.DataURL(contentType, data)
	return input, nil
}

// checkDataURL enforces type and size limits on an inline image.
func (h *Handler) checkDataURL(dataURL string) error {
	head, payload, ok := strings.Cut(strings.TrimPrefix(dataURL, "data:"), ",")
	if !ok {
		return errors.NewInvalidQuestionError("malformed image data URL")
	}
	contentType := normalizeType(strings.TrimSuffix(head, ";base64"))
	if !h.allowed(contentType) {
		return errors.NewUnsupportedImageTypeError(contentType)
	}
	size := int64(base64.StdEncoding.DecodedLen(len(payload)))
	if size > h.config.MaxImageBytes {
		return errors.NewImageTooLargeError(size, h.config.MaxImageBytes)
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return errors.NewInvalidQuestionError("image data URL is not valid base64")
	}
	return nil
}

func (h *Handler) maxDataURLBytes() int64 {
	return int64(base64.StdEncoding.EncodedLen(int(h.config.MaxImageBytes))) + 64
}

func (h *Handler) allowed(contentType string) bool {
	for _, t := range h.config.AllowedTypes {
		if normalizeType(t) == contentType {
			return true
		}
	}
	return false
}

// imageType prefers the sniffed type, then the part header, then the
// file extension.
func imageType(filename, declared string, data []byte) string {
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return normalizeType(sniffed)
	}
	if declared != "" && declared != "application/octet-stream" {
		return normalizeType(declared)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "application/octet-stream"
	}
	return normalizeType(http.DetectContentType(data))
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if mediaType, _, err := mime.ParseMediaType(t); err == nil {
		t = mediaType
	}
	if t == "image/jpg" {
		return "image/jpeg"
	}
	return t
}

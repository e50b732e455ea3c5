package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loomnote/chat-backend/internal/orchestrator"
)

// TurnRequest is the body of the streaming chat turn endpoint. The last
// entry of Messages is the new user message; prior entries are advisory
// only, the store is the source of truth for history.
type TurnRequest struct {
	Messages       []orchestrator.TurnMessage `json:"messages" binding:"required"`
	ConversationID string                     `json:"conversationId" binding:"required"`
	ModelID        string                     `json:"modelId"`
}

// Event protocol payloads. Every record is framed as `data: <json>\n\n`;
// the final record is the literal `data: [DONE]`.
type streamEvent struct {
	Status  string               `json:"status"`
	Content string               `json:"content,omitempty"`
	Result  *orchestrator.Result `json:"result,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// StreamTurn is the chat turn endpoint. Validation and ownership failures
// are rejected with an HTTP status before the stream starts; anything after
// headers are committed is reported in-band via the error event.
func (h *handler) StreamTurn(c *gin.Context) {
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scope, err := h.requestScope(c)
	if err != nil {
		respondError(c, err)
		return
	}

	// An unparseable id falls through as uuid.Nil and is rejected by
	// Prepare as a validation failure.
	conversationID, _ := uuid.Parse(req.ConversationID)

	turn, err := h.orchestrator.Prepare(c.Request.Context(), orchestrator.TurnRequest{
		Scope:          scope,
		ConversationID: conversationID,
		Messages:       req.Messages,
		ModelID:        req.ModelID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// Set headers for SSE
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	sink, err := newEventStreamWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	// The request context is canceled when the caller disconnects, which
	// aborts the upstream gateway read.
	h.orchestrator.Run(c.Request.Context(), turn, sink)
	sink.Done()
}

// eventStreamWriter emits the turn event protocol over an SSE-style body.
// It implements orchestrator.EventSink.
type eventStreamWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

func newEventStreamWriter(w http.ResponseWriter) (*eventStreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &eventStreamWriter{writer: w, flusher: flusher}, nil
}

func (s *eventStreamWriter) writeEvent(event streamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Processing emits the heartbeat sent before the first content delta.
func (s *eventStreamWriter) Processing() error {
	return s.writeEvent(streamEvent{Status: "processing"})
}

// Delta emits one streaming event carrying exactly the delta's text,
// never the accumulated content.
func (s *eventStreamWriter) Delta(text string) error {
	return s.writeEvent(streamEvent{Status: "streaming", Content: text})
}

// Completed emits the terminal success event with the full content.
func (s *eventStreamWriter) Completed(result orchestrator.Result) error {
	return s.writeEvent(streamEvent{Status: "completed", Result: &result})
}

// Failed emits the terminal error event.
func (s *eventStreamWriter) Failed(msg string) error {
	return s.writeEvent(streamEvent{Status: "error", Error: msg})
}

// Done writes the literal end-of-transport marker after the terminal event.
func (s *eventStreamWriter) Done() error {
	if _, err := fmt.Fprint(s.writer, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("write done: %w", err)
	}
	s.flusher.Flush()
	return nil
}

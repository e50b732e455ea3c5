// Package orchestrator drives one chat turn: persist the user message,
// stream the model's completion, relay each delta to the caller, and
// persist the assembled assistant message when generation finishes.
//
// The orchestrator holds no state across turns. The only in-memory state is
// the accumulation buffer for the turn in flight. Concurrent turns on the
// same conversation are not serialized; two simultaneous turns may
// interleave their persisted messages.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loomnote/chat-backend/internal/apperr"
	"github.com/loomnote/chat-backend/internal/gateway"
	"github.com/loomnote/chat-backend/internal/models"
	"github.com/loomnote/chat-backend/internal/store"
)

// TurnMessage is one entry of the caller-supplied message list.
type TurnMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is a validated-shape request for one chat turn. The last
// message must be the caller's new user message.
type TurnRequest struct {
	Scope          store.Scope
	ConversationID uuid.UUID
	Messages       []TurnMessage
	ModelID        string
}

// Result is the payload of the terminal completed event. Content equals the
// exact concatenation of every delta emitted during the turn.
type Result struct {
	Content        string    `json:"content"`
	ConversationID uuid.UUID `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventSink receives the turn's event protocol in emission order. A sink
// error means the caller is gone; the orchestrator aborts the turn.
type EventSink interface {
	Processing() error
	Delta(text string) error
	Completed(result Result) error
	Failed(msg string) error
}

// Turn states.
const (
	stateReceived      = "received"
	stateUserPersisted = "user-persisted"
	stateGenerating    = "generating"
	stateCompleted     = "completed"
	stateError         = "error"
)

// Turn is a validated turn ready to run. Prepared before the response
// stream is committed so ownership and validation failures can still map
// to HTTP status codes.
type Turn struct {
	req     TurnRequest
	history []models.Message
	state   string
}

// Orchestrator coordinates the conversation store and the model gateway
// for the duration of one turn.
type Orchestrator struct {
	store   *store.ConversationStore
	gateway *gateway.Client
}

// New creates an Orchestrator.
func New(s *store.ConversationStore, g *gateway.Client) *Orchestrator {
	return &Orchestrator{store: s, gateway: g}
}

// Prepare validates the request and resolves conversation ownership. It has
// no side effects: nothing is persisted and the model is not contacted.
func (o *Orchestrator) Prepare(ctx context.Context, req TurnRequest) (*Turn, error) {
	if len(req.Messages) == 0 {
		return nil, apperr.New(apperr.KindValidation, "message list is empty")
	}
	if req.ConversationID == uuid.Nil {
		return nil, apperr.New(apperr.KindValidation, "conversation id is required")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != models.RoleMessageUser {
		return nil, apperr.New(apperr.KindValidation, "last message must be a user message")
	}
	if last.Content == "" {
		return nil, apperr.New(apperr.KindValidation, "message content is empty")
	}

	_, history, err := o.store.Get(ctx, req.Scope, req.ConversationID)
	if err != nil {
		return nil, err
	}

	return &Turn{req: req, history: history, state: stateReceived}, nil
}

// Run executes a prepared turn, emitting events to the sink.
//
// Exactly one user message is written, always. The assistant message is
// written at most once, and only when the full model output is known: a
// gateway failure mid-stream leaves the deltas already relayed visible to
// the caller but writes nothing to the store.
func (o *Orchestrator) Run(ctx context.Context, turn *Turn, sink EventSink) {
	userContent := turn.req.Messages[len(turn.req.Messages)-1].Content

	if _, err := o.store.AppendMessage(ctx, turn.req.ConversationID, models.RoleMessageUser, userContent, nil); err != nil {
		log.Printf("Failed to save user message for conversation %s: %v", turn.req.ConversationID, err)
		turn.fail(sink, "failed to save message")
		return
	}
	turn.state = stateUserPersisted

	stream, err := o.gateway.Stream(ctx, turn.req.ModelID, turn.gatewayHistory(userContent))
	if err != nil {
		log.Printf("Model gateway call failed: %v", err)
		turn.fail(sink, gatewayMessage(err))
		return
	}
	defer stream.Close()
	turn.state = stateGenerating

	// Heartbeat before first content.
	if err := sink.Processing(); err != nil {
		return
	}

	var buf strings.Builder
	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Model stream failed mid-turn: %v", err)
			turn.fail(sink, gatewayMessage(err))
			return
		}
		buf.WriteString(delta.Text)
		if err := sink.Delta(delta.Text); err != nil {
			// Caller disconnected. Closing the stream aborts the upstream
			// read; the turn never reaches completed, so no assistant
			// message is written.
			return
		}
	}

	assistant, err := o.store.AppendMessage(ctx, turn.req.ConversationID, models.RoleMessageAssistant, buf.String(), nil)
	if err != nil {
		log.Printf("Failed to save assistant message for conversation %s: %v", turn.req.ConversationID, err)
		turn.fail(sink, "failed to save response")
		return
	}
	turn.state = stateCompleted

	if err := sink.Completed(Result{
		Content:        buf.String(),
		ConversationID: turn.req.ConversationID,
		Timestamp:      assistant.CreatedAt,
	}); err != nil {
		log.Printf("Failed to emit terminal event: %v", err)
	}
}

func (t *Turn) fail(sink EventSink, msg string) {
	t.state = stateError
	if err := sink.Failed(msg); err != nil {
		log.Printf("Failed to emit error event: %v", err)
	}
}

// gatewayHistory frames the persisted history plus the new user message for
// the model call. The caller-supplied prior messages are not trusted; the
// store is the source of truth for history.
func (t *Turn) gatewayHistory(userContent string) []gateway.Message {
	msgs := make([]gateway.Message, 0, len(t.history)+1)
	for _, m := range t.history {
		msgs = append(msgs, gateway.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, gateway.Message{Role: models.RoleMessageUser, Content: userContent})
	return msgs
}

// gatewayMessage produces the caller-safe error text for a gateway failure.
func gatewayMessage(err error) string {
	var ge *gateway.GatewayError
	if errors.As(err, &ge) && ge.StatusCode != 0 {
		return "model endpoint returned an error"
	}
	return "model request failed"
}

// Package gateway is a thin client for one external OpenAI-compatible
// chat-completion endpoint. It frames the request, requests incremental
// delivery, and decodes the `data: ...` event stream into content deltas.
//
// The wire framing is informal (records separated by blank lines, a literal
// `data: [DONE]` sentinel that is not JSON), so the decoder is an explicit
// line-buffered reader rather than an SSE library: partial reads split
// mid-line are accumulated until the newline arrives.
//
// The gateway never retries. A failed generation is reported to the caller
// as a GatewayError and surfaces as an error turn.
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one chat message in the upstream request framing.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContentDelta is one incremental fragment of model output.
type ContentDelta struct {
	Text string
}

// GatewayError reports an upstream failure. StatusCode and Body are set for
// non-2xx responses; Err is set for transport failures mid-stream.
type GatewayError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model gateway: %v", e.Err)
	}
	return fmt.Sprintf("model gateway: upstream returned %d: %s", e.StatusCode, e.Body)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Client talks to a single chat-completion endpoint with bearer-token auth.
type Client struct {
	baseURL      string
	apiKey       string
	defaultModel string
	temperature  float64
	httpClient   *http.Client
}

// NewClient creates a gateway client. A zero timeout means no client-side
// bound beyond the transport default.
func NewClient(baseURL, apiKey, defaultModel string, temperature float64, timeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		defaultModel: defaultModel,
		temperature:  temperature,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// chatRequest is the upstream chat-completion request framing.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature,omitempty"`
}

// streamChunk is one decodable record of the upstream event stream.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		Index        int    `json:"index"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Stream opens a streaming completion for the given history. A non-2xx
// response yields a *GatewayError before any delta. The returned stream
// must be closed by the caller.
func (c *Client) Stream(ctx context.Context, modelID string, messages []Message) (*CompletionStream, error) {
	if modelID == "" {
		modelID = c.defaultModel
	}

	body, err := json.Marshal(chatRequest{
		Model:       modelID,
		Messages:    messages,
		Stream:      true,
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return &CompletionStream{
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
	}, nil
}

// CompletionStream is an in-flight streaming completion. Recv returns one
// ContentDelta per decodable record carrying text, io.EOF after the [DONE]
// sentinel (or a clean upstream EOF), and a *GatewayError on a mid-stream
// transport failure. Deltas received before a mid-stream failure are valid
// partial content.
type CompletionStream struct {
	body    io.ReadCloser
	reader  *bufio.Reader
	done    bool
	termErr error
}

// Recv returns the next content delta.
func (s *CompletionStream) Recv() (ContentDelta, error) {
	if s.done {
		if s.termErr != nil {
			err := s.termErr
			s.termErr = nil
			return ContentDelta{}, err
		}
		return ContentDelta{}, io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			s.done = true
			return ContentDelta{}, &GatewayError{Err: fmt.Errorf("read stream: %w", err)}
		}
		atEOF := err == io.EOF

		if delta, ok := s.decodeLine(line); ok {
			return delta, nil
		}
		if s.done {
			if s.termErr != nil {
				err := s.termErr
				s.termErr = nil
				return ContentDelta{}, err
			}
			return ContentDelta{}, io.EOF
		}
		if atEOF {
			s.done = true
			return ContentDelta{}, io.EOF
		}
	}
}

// decodeLine decodes one event line. The second return value reports whether
// a content delta was produced. Undecodable records are skipped, not fatal.
func (s *CompletionStream) decodeLine(line string) (ContentDelta, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return ContentDelta{}, false
	}
	if !strings.HasPrefix(line, "data: ") {
		return ContentDelta{}, false
	}

	data := strings.TrimPrefix(line, "data: ")
	// The end-of-stream sentinel is a literal marker, never decoded as JSON.
	if data == "[DONE]" {
		s.done = true
		return ContentDelta{}, false
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return ContentDelta{}, false
	}

	// An in-band error record terminates the stream.
	if chunk.Error != nil {
		s.done = true
		s.termErr = &GatewayError{Err: fmt.Errorf("%s (%s)", chunk.Error.Message, chunk.Error.Type)}
		return ContentDelta{}, false
	}

	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			return ContentDelta{Text: choice.Delta.Content}, true
		}
	}
	return ContentDelta{}, false
}

// Close releases the underlying response body. Closing aborts the transport
// read, which is how a caller-side disconnect frees the upstream call.
func (s *CompletionStream) Close() error {
	return s.body.Close()
}

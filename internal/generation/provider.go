// Package generation talks to the text generation backend behind the paid
// features.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Kind classifies provider failures for the caller.
type Kind string

const (
	KindUnsupportedLocation Kind = "unsupported_location"
	KindRateLimited         Kind = "rate_limited"
	KindUnavailable         Kind = "unavailable"
	KindBadResponse         Kind = "bad_response"
)

// Error is returned for every failed generation.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("generation %s (HTTP %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("generation %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

type Request struct {
	System string
	Prompt string
}

type Response struct {
	Text  string
	Model string
}

// Provider generates text for a feature request.
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// HTTPProvider is a client for an OpenAI compatible chat completions API.
type HTTPProvider struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	log        *slog.Logger
}

func NewHTTPProvider(baseURL, apiKey, model string, log *slog.Logger) *HTTPProvider {
	return &HTTPProvider{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		Model:      model,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.With("component", "generation"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (p *HTTPProvider) Generate(ctx context.Context, req Request) (Response, error) {
	body := chatRequest{Model: p.Model}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})

	raw, err := json.Marshal(body)
	if err != nil {
		return Response{}, &Error{Kind: KindBadResponse, Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return Response{}, &Error{Kind: KindUnavailable, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		return Response{}, &Error{Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Response{}, &Error{Kind: KindUnavailable, Status: resp.StatusCode, Err: err}
	}
	if kind, failed := classify(resp.StatusCode); failed {
		p.log.WarnContext(ctx, "generation request failed", "status", resp.StatusCode, "kind", kind)
		return Response{}, &Error{Kind: kind, Status: resp.StatusCode, Err: errors.New(errorMessage(data))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Response{}, &Error{Kind: KindBadResponse, Status: resp.StatusCode, Err: err}
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return Response{}, &Error{Kind: KindBadResponse, Status: resp.StatusCode, Err: errors.New("empty completion")}
	}
	model := parsed.Model
	if model == "" {
		model = p.Model
	}
	return Response{Text: parsed.Choices[0].Message.Content, Model: model}, nil
}

func classify(status int) (Kind, bool) {
	switch {
	case status == http.StatusForbidden:
		return KindUnsupportedLocation, true
	case status == http.StatusTooManyRequests:
		return KindRateLimited, true
	case status >= 500:
		return KindUnavailable, true
	case status >= 400:
		return KindBadResponse, true
	}
	return "", false
}

func errorMessage(data []byte) string {
	var parsed chatResponse
	if json.Unmarshal(data, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

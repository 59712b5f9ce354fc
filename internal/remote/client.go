// Package remote provides the HTTP client for the platform's messaging
// backend. The engine consumes it through the API interface so tests can
// substitute a fake.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/studyhall/tutormsg/internal/message"
	"github.com/studyhall/tutormsg/internal/textutil"
)

// API is the backend surface the synchronization engine needs. All
// fetches return the full message set for the participant; the engine's
// reconciliation depends on that (no delta fetches).
type API interface {
	FetchMessages(ctx context.Context) ([]message.Message, error)
	AppendMessage(ctx context.Context, conversationKey string, direction message.Direction, body, recipientID string) (message.Message, error)
	MarkRead(ctx context.Context, messageID string) error
	ResolveCounterpart(ctx context.Context, conversationKey string) (string, error)
	GetEligibility(ctx context.Context, conversationKeys []string) (map[string]bool, error)
}

// Config holds configuration for creating a client.
type Config struct {
	URL           string
	APIKey        string
	AllowInsecure bool
	Timeout       time.Duration
	RateLimitQPS  int

	// ParticipantID and Role identify the local participant; every
	// fetch is scoped to them.
	ParticipantID string
	Role          message.Role
}

// Client talks JSON over HTTP to the messaging backend.
type Client struct {
	baseURL       string
	apiKey        string
	participantID string
	role          message.Role
	httpClient    *http.Client
	limiter       *rate.Limiter
}

// Compile-time check that Client implements API.
var _ API = (*Client)(nil)

// New creates a new backend client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote URL is required")
	}
	if cfg.ParticipantID == "" {
		return nil, fmt.Errorf("participant_id is required")
	}
	if !cfg.Role.Valid() {
		return nil, fmt.Errorf("role must be %q or %q, got %q", message.RoleStudent, message.RoleTutor, cfg.Role)
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "http" && !cfg.AllowInsecure {
		return nil, fmt.Errorf("HTTPS required for remote connections; set allow_insecure = true under [remote] for trusted networks")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("remote URL must include a host")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	qps := cfg.RateLimitQPS
	if qps <= 0 {
		qps = 10
	}

	return &Client{
		baseURL:       strings.TrimSuffix(cfg.URL, "/"),
		apiKey:        cfg.APIKey,
		participantID: cfg.ParticipantID,
		role:          cfg.Role,
		httpClient:    &http.Client{Timeout: timeout},
		limiter:       rate.NewLimiter(rate.Limit(qps), qps),
	}, nil
}

// doRequest performs a rate-limited, authenticated HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// apiError represents an error response from the backend.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleErrorResponse reads an error response and returns an appropriate error.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("backend error (%d): %s", resp.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("backend error (%d): %s", resp.StatusCode, string(body))
}

// wireMessage matches the backend's message JSON.
type wireMessage struct {
	ID              string `json:"id"`
	ConversationKey string `json:"conversation_key"`
	Direction       string `json:"direction"`
	Kind            string `json:"kind"`
	Body            string `json:"body"`
	SentAt          string `json:"sent_at"`
	Read            bool   `json:"read"`
	EventDate       string `json:"event_date,omitempty"`
	EventTime       string `json:"event_time,omitempty"`
	SenderName      string `json:"sender_name,omitempty"`
}

// parseTime parses an RFC3339 time string, zero on failure.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toMessage(w wireMessage) message.Message {
	return message.Message{
		ID:              w.ID,
		ConversationKey: w.ConversationKey,
		Direction:       message.Direction(w.Direction),
		Kind:            message.Kind(w.Kind),
		Body:            textutil.SanitizeUTF8(w.Body),
		SentAt:          parseTime(w.SentAt),
		Read:            w.Read,
		EventDate:       w.EventDate,
		EventTime:       w.EventTime,
		SenderName:      w.SenderName,
	}
}

// messagesResponse matches the backend's message list response.
type messagesResponse struct {
	Messages []wireMessage `json:"messages"`
}

// FetchMessages returns the participant's full message set, both
// directions, for reconciliation.
func (c *Client) FetchMessages(ctx context.Context) ([]message.Message, error) {
	path := fmt.Sprintf("/api/v1/messages?participant=%s&role=%s",
		url.QueryEscape(c.participantID), url.QueryEscape(string(c.role)))

	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp)
	}

	var mr messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}

	msgs := make([]message.Message, len(mr.Messages))
	for i, w := range mr.Messages {
		msgs[i] = toMessage(w)
	}
	return msgs, nil
}

// appendRequest matches the backend's send request body.
type appendRequest struct {
	ConversationKey string `json:"conversation_key"`
	Direction       string `json:"direction"`
	Body            string `json:"body"`
	SenderID        string `json:"sender_id"`
	RecipientID     string `json:"recipient_id"`
}

// AppendMessage sends a message and returns the canonical record the
// backend created for it.
func (c *Client) AppendMessage(ctx context.Context, conversationKey string, direction message.Direction, body, recipientID string) (message.Message, error) {
	payload, err := json.Marshal(appendRequest{
		ConversationKey: conversationKey,
		Direction:       string(direction),
		Body:            body,
		SenderID:        c.participantID,
		RecipientID:     recipientID,
	})
	if err != nil {
		return message.Message{}, fmt.Errorf("encode send request: %w", err)
	}

	resp, err := c.doRequest(ctx, "POST", "/api/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return message.Message{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return message.Message{}, handleErrorResponse(resp)
	}

	var w wireMessage
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return message.Message{}, fmt.Errorf("decode send response: %w", err)
	}
	return toMessage(w), nil
}

// MarkRead acknowledges a single message as read.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	path := "/api/v1/messages/" + url.PathEscape(messageID) + "/read"
	resp, err := c.doRequest(ctx, "POST", path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return handleErrorResponse(resp)
	}
	return nil
}

// counterpartResponse matches the backend's counterpart lookup response.
type counterpartResponse struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name,omitempty"`
}

// ResolveCounterpart returns the participant ID of the other side of a
// conversation.
func (c *Client) ResolveCounterpart(ctx context.Context, conversationKey string) (string, error) {
	path := "/api/v1/conversations/" + url.PathEscape(conversationKey) + "/counterpart"
	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", handleErrorResponse(resp)
	}

	var cr counterpartResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode counterpart response: %w", err)
	}
	if cr.ParticipantID == "" {
		return "", fmt.Errorf("backend returned empty counterpart for %s", conversationKey)
	}
	return cr.ParticipantID, nil
}

// eligibilityRequest matches the backend's eligibility query body.
type eligibilityRequest struct {
	Keys []string `json:"keys"`
}

// eligibilityResponse matches the backend's eligibility response.
type eligibilityResponse struct {
	Eligible map[string]bool `json:"eligible"`
}

// GetEligibility returns, for each key, whether messaging is still
// permitted for that conversation context.
func (c *Client) GetEligibility(ctx context.Context, conversationKeys []string) (map[string]bool, error) {
	payload, err := json.Marshal(eligibilityRequest{Keys: conversationKeys})
	if err != nil {
		return nil, fmt.Errorf("encode eligibility request: %w", err)
	}

	resp, err := c.doRequest(ctx, "POST", "/api/v1/eligibility", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp)
	}

	var er eligibilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode eligibility response: %w", err)
	}
	if er.Eligible == nil {
		er.Eligible = make(map[string]bool)
	}
	return er.Eligible, nil
}

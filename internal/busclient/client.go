// Package busclient speaks the agent bus protocol: pull-mode registration,
// inbox polling, acks, progress events and signed replies.
package busclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const SignatureHeader = "X-Bus-Signature"

type InboxEvent struct {
	MessageID      string         `json:"message_id"`
	Type           string         `json:"type"`
	From           string         `json:"from"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Body           string         `json:"body"`
	Meta           map[string]any `json:"meta,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ReplyTo is the address a response should go to: meta.reply_to when set,
// otherwise the sender.
func (e InboxEvent) ReplyTo() string {
	if rt, _ := e.Meta["reply_to"].(string); strings.TrimSpace(rt) != "" {
		return strings.TrimSpace(rt)
	}
	return e.From
}

// Message is an outgoing bus message.
type Message struct {
	To             string         `json:"to"`
	From           string         `json:"from"`
	ConversationID string         `json:"conversation_id,omitempty"`
	RequestID      string         `json:"request_id"`
	Type           string         `json:"type"`
	Body           string         `json:"body"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// StatusError is a non-2xx answer from the bus.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bus %s %s failed status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

type Client struct {
	baseURL string
	agentID string
	secret  string
	http    *http.Client
}

// NewClient returns a client that acts as agentID and signs with secret.
func NewClient(baseURL, agentID, secret string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		agentID: agentID,
		secret:  secret,
		http:    &http.Client{Timeout: 40 * time.Second},
	}
}

func (c *Client) AgentID() string { return c.agentID }

func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches payload under secret.
func Verify(secret string, payload []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), want)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, headers map[string]string, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	blob, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode >= 400 {
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(blob))}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(blob, out)
}

func (c *Client) signed(ctx context.Context, method, path string, payload any, out any) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, blob, map[string]string{
		"X-Agent-ID":    c.agentID,
		SignatureHeader: Sign(c.secret, blob),
	}, out)
}

// Register (re)announces the agent in pull mode. Registrations expire after
// ttl, so callers renew on a heartbeat.
func (c *Client) Register(ctx context.Context, capabilities []string, ttl time.Duration) error {
	blob, _ := json.Marshal(map[string]any{
		"agent_id":     c.agentID,
		"capabilities": capabilities,
		"mode":         "pull",
		"ttl":          int(ttl.Seconds()),
		"secret":       c.secret,
	})
	return c.do(ctx, http.MethodPost, "/v1/agents/register", blob, nil, nil)
}

func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if msg.From == "" {
		msg.From = c.agentID
	}
	var resp struct {
		MessageID string `json:"message_id"`
	}
	if err := c.signed(ctx, http.MethodPost, "/v1/messages", msg, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.MessageID) == "" {
		return "", errors.New("bus: missing message_id in response")
	}
	return resp.MessageID, nil
}

// Poll long-polls the inbox. The returned cursor is the one to pass next
// time; it is unchanged on error.
func (c *Client) Poll(ctx context.Context, cursor int, wait time.Duration) ([]InboxEvent, int, error) {
	q := url.Values{}
	q.Set("agent_id", c.agentID)
	q.Set("cursor", strconv.Itoa(cursor))
	q.Set("wait", strconv.Itoa(int(wait.Seconds())))
	raw := q.Encode()
	var resp struct {
		Events []InboxEvent `json:"events"`
		Cursor string       `json:"cursor"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/inbox?"+raw, nil, map[string]string{SignatureHeader: Sign(c.secret, []byte(raw))}, &resp)
	if err != nil {
		return nil, cursor, err
	}
	next, err := strconv.Atoi(strings.TrimSpace(resp.Cursor))
	if err != nil {
		next = cursor
	}
	return resp.Events, next, nil
}

func (c *Client) Ack(ctx context.Context, messageID, status, reason string) error {
	return c.signed(ctx, http.MethodPost, "/v1/acks", map[string]any{
		"agent_id":   c.agentID,
		"message_id": messageID,
		"status":     status,
		"reason":     reason,
	}, nil)
}

// Event attaches a progress, error or final event to a message.
func (c *Client) Event(ctx context.Context, messageID, eventType, body string, meta map[string]any) error {
	return c.signed(ctx, http.MethodPost, "/v1/events", map[string]any{
		"message_id": messageID,
		"type":       eventType,
		"body":       body,
		"meta":       meta,
	}, nil)
}

// Package agent talks to a hosted assistant over the OpenAI Assistants v2
// HTTP API: look the assistant up by name, open a thread, post messages,
// run the assistant and poll for its reply.
package agent

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

	"go.uber.org/zap"
)

const (
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultPollInterval = time.Second
	replyWindow         = 20
)

type Config struct {
	BaseURL        string
	APIKey         string
	PollInterval   time.Duration
	ReplyTimeout   time.Duration
	RequestTimeout time.Duration
}

type Client struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	replyTimeout time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		pollInterval: cfg.PollInterval,
		replyTimeout: cfg.ReplyTimeout,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
	}
}

// FindAssistant pages through the account's assistants and returns the one
// whose name equals name exactly.
func (c *Client) FindAssistant(ctx context.Context, name string) (*Assistant, error) {
	after := ""
	for {
		q := url.Values{"limit": {"100"}}
		if after != "" {
			q.Set("after", after)
		}
		var page assistantList
		if err := c.do(ctx, http.MethodGet, "/assistants?"+q.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("list assistants: %w", err)
		}
		for _, a := range page.Data {
			if a.Name == name {
				return &a, nil
			}
		}
		if !page.HasMore || page.LastID == "" {
			return nil, fmt.Errorf("%w: no assistant named %q", ErrAssistantNotFound, name)
		}
		after = page.LastID
	}
}

func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	var t Thread
	if err := c.do(ctx, http.MethodPost, "/threads", struct{}{}, &t); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return &t, nil
}

func (c *Client) PostMessage(ctx context.Context, threadID, content string) (*Message, error) {
	var m Message
	req := messageRequest{Role: "user", Content: content}
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", req, &m); err != nil {
		return nil, fmt.Errorf("post message: %w", err)
	}
	return &m, nil
}

// CreateRunAndPoll starts the assistant on the thread and waits for the run
// to reach a terminal status.
func (c *Client) CreateRunAndPoll(ctx context.Context, threadID, assistantID string) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", runRequest{AssistantID: assistantID}, &run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	for !run.Terminal() {
		if err := c.sleep(ctx); err != nil {
			return nil, err
		}
		if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+run.ID, nil, &run); err != nil {
			return nil, fmt.Errorf("poll run %s: %w", run.ID, err)
		}
	}

	if run.Status != "completed" {
		msg := run.Status
		if run.LastError != nil {
			msg += ": " + run.LastError.Message
		}
		return &run, fmt.Errorf("%w: %s", ErrRunFailed, msg)
	}
	return &run, nil
}

// ListMessages returns the newest messages on the thread, newest first.
func (c *Client) ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	var list messageList
	path := fmt.Sprintf("/threads/%s/messages?limit=%d&order=desc", threadID, limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return list.Data, nil
}

// LatestReply returns the newest completed assistant message that the
// watermark does not cover. ok is false when there is none yet.
func (c *Client) LatestReply(ctx context.Context, threadID string, after Watermark) (Message, bool, error) {
	msgs, err := c.ListMessages(ctx, threadID, replyWindow)
	if err != nil {
		return Message{}, false, err
	}
	for _, m := range msgs {
		if after.consumed(m.ID) {
			// same-second messages may be listed in either order
			continue
		}
		if m.CreatedAt < after.CreatedAt {
			break
		}
		if m.Role == "assistant" && m.Completed() {
			return m, true, nil
		}
	}
	return Message{}, false, nil
}

func (c *Client) sleep(ctx context.Context) error {
	t := time.NewTimer(c.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		var apiErr apiError
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("assistant API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("assistant API error (%d): %s", resp.StatusCode, string(b))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

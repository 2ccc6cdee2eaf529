package agent

import "errors"

var (
	ErrAssistantNotFound = errors.New("assistant not found")
	ErrRunFailed         = errors.New("assistant run did not complete")
)

type Assistant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

type assistantList struct {
	Data    []Assistant `json:"data"`
	HasMore bool        `json:"has_more"`
	LastID  string      `json:"last_id"`
}

type Thread struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

type messageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type MessageText struct {
	Value string `json:"value"`
}

type MessageContent struct {
	Type string       `json:"type"`
	Text *MessageText `json:"text,omitempty"`
}

type Message struct {
	ID        string           `json:"id"`
	ThreadID  string           `json:"thread_id"`
	Role      string           `json:"role"`
	CreatedAt int64            `json:"created_at"`
	Content   []MessageContent `json:"content"`
}

// Completed reports whether the message carries a text value in its first
// content part.
func (m Message) Completed() bool {
	return len(m.Content) > 0 && m.Content[0].Text != nil
}

// Text returns the first content part's text value.
func (m Message) Text() string {
	if !m.Completed() {
		return ""
	}
	return m.Content[0].Text.Value
}

type messageList struct {
	Data []Message `json:"data"`
}

type runRequest struct {
	AssistantID string `json:"assistant_id"`
}

type Run struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	AssistantID string    `json:"assistant_id"`
	Status      string    `json:"status"`
	LastError   *RunError `json:"last_error,omitempty"`
}

type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Terminal reports whether the run has stopped changing state.
func (r Run) Terminal() bool {
	switch r.Status {
	case "completed", "failed", "cancelled", "expired", "incomplete", "requires_action":
		return true
	}
	return false
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Watermark marks the newest assistant reply already consumed. Creation
// times have one-second resolution, so message ids are kept as well: Tied
// holds earlier consumed replies created in the same second as MessageID.
type Watermark struct {
	CreatedAt int64
	MessageID string
	Tied      []string
}

func (w Watermark) consumed(id string) bool {
	if id == w.MessageID {
		return true
	}
	for _, t := range w.Tied {
		if t == id {
			return true
		}
	}
	return false
}

// Covers reports whether m has been consumed or is older than the watermark.
func (w Watermark) Covers(m Message) bool {
	return w.consumed(m.ID) || m.CreatedAt < w.CreatedAt
}

// Advance returns the watermark after consuming m.
func (w Watermark) Advance(m Message) Watermark {
	next := Watermark{CreatedAt: m.CreatedAt, MessageID: m.ID}
	if w.MessageID != "" && m.CreatedAt == w.CreatedAt {
		next.Tied = append(append([]string(nil), w.Tied...), w.MessageID)
	}
	return next
}

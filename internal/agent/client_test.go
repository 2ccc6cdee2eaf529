package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a minimal in-memory Assistants endpoint. Every run completes
// after one poll and appends reply(prompt) as an assistant message.
type fakeAPI struct {
	mu         sync.Mutex
	assistants [][]Assistant
	messages   []Message
	reply      func(prompt string) string
	runStatus  string
	polls      int
	clock      int64
	seq        int
	authHeader string
}

func (f *fakeAPI) next() (string, int64) {
	f.seq++
	return fmt.Sprintf("msg_%d", f.seq), f.clock
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authHeader = r.Header.Get("Authorization")
	w.Header().Set("Content-Type", "application/json")

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/assistants":
		page := 0
		if after := r.URL.Query().Get("after"); after != "" {
			fmt.Sscanf(after, "page_%d", &page)
		}
		resp := assistantList{Data: f.assistants[page]}
		if page+1 < len(f.assistants) {
			resp.HasMore = true
			resp.LastID = fmt.Sprintf("page_%d", page+1)
		}
		json.NewEncoder(w).Encode(resp)
	case r.Method == http.MethodPost && path == "/threads":
		json.NewEncoder(w).Encode(Thread{ID: "thread_1"})
	case r.Method == http.MethodPost && path == "/threads/thread_1/messages":
		var req messageRequest
		json.NewDecoder(r.Body).Decode(&req)
		id, at := f.next()
		m := Message{ID: id, Role: req.Role, CreatedAt: at, Content: []MessageContent{{Type: "text", Text: &MessageText{Value: req.Content}}}}
		f.messages = append(f.messages, m)
		json.NewEncoder(w).Encode(m)
	case r.Method == http.MethodPost && path == "/threads/thread_1/runs":
		json.NewEncoder(w).Encode(Run{ID: "run_1", Status: "queued"})
	case r.Method == http.MethodGet && path == "/threads/thread_1/runs/run_1":
		f.polls++
		status := f.runStatus
		if status == "" {
			status = "completed"
		}
		if status == "completed" {
			prompt := f.messages[len(f.messages)-1].Text()
			id, at := f.next()
			f.messages = append(f.messages, Message{ID: id, Role: "assistant", CreatedAt: at,
				Content: []MessageContent{{Type: "text", Text: &MessageText{Value: f.reply(prompt)}}}})
		}
		json.NewEncoder(w).Encode(Run{ID: "run_1", Status: status, LastError: &RunError{Message: "boom"}})
	case r.Method == http.MethodGet && path == "/threads/thread_1/messages":
		var out []Message
		for i := len(f.messages) - 1; i >= 0; i-- {
			out = append(out, f.messages[i])
		}
		json.NewEncoder(w).Encode(messageList{Data: out})
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"no route"}}`))
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test", PollInterval: time.Millisecond}, nil)
}

func TestFindAssistant_PagesUntilExactMatch(t *testing.T) {
	api := &fakeAPI{assistants: [][]Assistant{
		{{ID: "asst_a", Name: "Payment term extractor v2"}},
		{{ID: "asst_b", Name: "Payment term extractor"}},
	}}
	c := newTestClient(t, api)

	a, err := c.FindAssistant(context.Background(), "Payment term extractor")
	require.NoError(t, err)
	assert.Equal(t, "asst_b", a.ID)
	assert.Equal(t, "Bearer sk-test", api.authHeader)
}

func TestFindAssistant_NotFound(t *testing.T) {
	api := &fakeAPI{assistants: [][]Assistant{{{ID: "asst_a", Name: "Other"}}}}
	c := newTestClient(t, api)

	_, err := c.FindAssistant(context.Background(), "Payment term extractor")
	assert.ErrorIs(t, err, ErrAssistantNotFound)
}

func TestConversation_SendAndAwaitReply(t *testing.T) {
	api := &fakeAPI{
		assistants: [][]Assistant{{{ID: "asst_1", Name: "PT"}}},
		reply:      func(p string) string { return "echo:" + p },
	}
	c := newTestClient(t, api)
	ctx := context.Background()

	conv, err := c.Open(ctx, "PT")
	require.NoError(t, err)
	assert.Equal(t, "thread_1", conv.ThreadID())

	require.NoError(t, conv.Send(ctx, "first"))
	reply, mark, err := conv.AwaitReply(ctx, Watermark{})
	require.NoError(t, err)
	assert.Equal(t, "echo:first", reply)
	assert.NotEmpty(t, mark.MessageID)

	require.NoError(t, conv.Send(ctx, "second"))
	reply, _, err = conv.AwaitReply(ctx, mark)
	require.NoError(t, err)
	assert.Equal(t, "echo:second", reply)
}

func TestAwaitReply_SkipsCoveredReplies(t *testing.T) {
	api := &fakeAPI{
		assistants: [][]Assistant{{{ID: "asst_1", Name: "PT"}}},
		reply:      func(p string) string { return "old" },
	}
	c := newTestClient(t, api)
	ctx := context.Background()

	conv, err := c.Open(ctx, "PT")
	require.NoError(t, err)
	require.NoError(t, conv.Send(ctx, "first"))
	_, mark, err := conv.AwaitReply(ctx, Watermark{})
	require.NoError(t, err)

	// nothing new has been posted, so the wait only ends with the context
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, same, err := conv.AwaitReply(waitCtx, mark)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, mark, same)
}

func TestCreateRunAndPoll_Failed(t *testing.T) {
	api := &fakeAPI{
		assistants: [][]Assistant{{{ID: "asst_1", Name: "PT"}}},
		runStatus:  "failed",
	}
	c := newTestClient(t, api)
	ctx := context.Background()

	conv, err := c.Open(ctx, "PT")
	require.NoError(t, err)
	err = conv.Send(ctx, "hello")
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.True(t, strings.Contains(err.Error(), "boom"))
}

func TestWatermarkCovers(t *testing.T) {
	w := Watermark{CreatedAt: 10, MessageID: "msg_5"}
	assert.True(t, w.Covers(Message{ID: "msg_5", CreatedAt: 10}))
	assert.True(t, w.Covers(Message{ID: "msg_4", CreatedAt: 9}))
	assert.False(t, w.Covers(Message{ID: "msg_6", CreatedAt: 10}))
	assert.False(t, w.Covers(Message{ID: "msg_7", CreatedAt: 11}))
	assert.False(t, Watermark{}.Covers(Message{ID: "msg_1", CreatedAt: 1}))
}

func TestMessageCompleted(t *testing.T) {
	assert.False(t, Message{}.Completed())
	assert.False(t, Message{Content: []MessageContent{{Type: "image_file"}}}.Completed())
	m := Message{Content: []MessageContent{{Type: "text", Text: &MessageText{Value: "hi"}}}}
	assert.True(t, m.Completed())
	assert.Equal(t, "hi", m.Text())
}

func TestLatestReply_SameSecondListedAfterWatermark(t *testing.T) {
	listed := []Message{
		{ID: "msg_2", Role: "assistant", CreatedAt: 5, Content: []MessageContent{{Type: "text", Text: &MessageText{Value: "old"}}}},
		{ID: "msg_3", Role: "assistant", CreatedAt: 5, Content: []MessageContent{{Type: "text", Text: &MessageText{Value: "new"}}}},
		{ID: "msg_1", Role: "user", CreatedAt: 4, Content: []MessageContent{{Type: "text", Text: &MessageText{Value: "prompt"}}}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messageList{Data: listed})
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test", PollInterval: time.Millisecond}, nil)

	m, ok, err := c.LatestReply(context.Background(), "thread_1", Watermark{CreatedAt: 5, MessageID: "msg_2"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", m.Text())

	_, ok, err = c.LatestReply(context.Background(), "thread_1", Watermark{CreatedAt: 5, MessageID: "msg_3", Tied: []string{"msg_2"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWatermarkAdvance(t *testing.T) {
	w := Watermark{}.Advance(Message{ID: "msg_2", CreatedAt: 5})
	assert.Equal(t, Watermark{CreatedAt: 5, MessageID: "msg_2"}, w)

	w = w.Advance(Message{ID: "msg_3", CreatedAt: 5})
	assert.Equal(t, Watermark{CreatedAt: 5, MessageID: "msg_3", Tied: []string{"msg_2"}}, w)
	assert.True(t, w.Covers(Message{ID: "msg_2", CreatedAt: 5}))
	assert.False(t, w.Covers(Message{ID: "msg_4", CreatedAt: 5}))

	w = w.Advance(Message{ID: "msg_5", CreatedAt: 6})
	assert.Equal(t, Watermark{CreatedAt: 6, MessageID: "msg_5"}, w)
}

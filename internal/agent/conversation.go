package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Conversation is a thread bound to one assistant. It is opened per upload
// and never reused.
type Conversation struct {
	client    *Client
	assistant *Assistant
	thread    *Thread
}

// Open looks the assistant up by name and starts a fresh thread.
func (c *Client) Open(ctx context.Context, assistantName string) (*Conversation, error) {
	assistant, err := c.FindAssistant(ctx, assistantName)
	if err != nil {
		return nil, err
	}
	thread, err := c.CreateThread(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Info("conversation opened",
		zap.String("assistant", assistant.ID),
		zap.String("thread", thread.ID))
	return &Conversation{client: c, assistant: assistant, thread: thread}, nil
}

func (conv *Conversation) ThreadID() string { return conv.thread.ID }

// Send posts content as a user message and runs the assistant on it.
func (conv *Conversation) Send(ctx context.Context, content string) error {
	if _, err := conv.client.PostMessage(ctx, conv.thread.ID, content); err != nil {
		return err
	}
	run, err := conv.client.CreateRunAndPoll(ctx, conv.thread.ID, conv.assistant.ID)
	if err != nil {
		return err
	}
	conv.client.logger.Debug("run finished", zap.String("run", run.ID), zap.String("status", run.Status))
	return nil
}

// AwaitReply polls at the client's interval until an assistant reply the
// watermark does not cover shows up. Only ctx, or the reply timeout when one
// is configured, ends the wait early.
func (conv *Conversation) AwaitReply(ctx context.Context, after Watermark) (string, Watermark, error) {
	if conv.client.replyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, conv.client.replyTimeout)
		defer cancel()
	}
	for {
		m, ok, err := conv.client.LatestReply(ctx, conv.thread.ID, after)
		if err != nil {
			// transient list failures are polled through
			conv.client.logger.Warn("unable to retrieve assistant response", zap.Error(err))
		} else if ok {
			return m.Text(), after.Advance(m), nil
		}
		if err := conv.client.sleep(ctx); err != nil {
			return "", after, fmt.Errorf("waiting for assistant reply: %w", err)
		}
	}
}

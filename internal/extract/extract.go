// Package extract drives the chunked conversation that turns payment term
// descriptions into numeric terms.
package extract

import (
	"context"
	"fmt"

	"github.com/ericksa/ptextract/internal/agent"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of descriptions sent per agent message.
const DefaultBatchSize = 20

// Conversation is one open thread with the assistant.
type Conversation interface {
	Send(ctx context.Context, content string) error
	// AwaitReply blocks until an assistant reply newer than after appears.
	AwaitReply(ctx context.Context, after agent.Watermark) (string, agent.Watermark, error)
}

// Result is what a run accumulated. When Aborted is set, Terms holds only
// the chunks answered before the abort.
type Result struct {
	Terms      []Term `json:"terms"`
	Chunks     int    `json:"chunks"`
	ChunksDone int    `json:"chunks_done"`
	Aborted    bool   `json:"aborted"`
	Reason     string `json:"reason,omitempty"`
}

type Extractor struct {
	conv      Conversation
	batchSize int
	logger    *zap.Logger
}

func New(conv Conversation, batchSize int, logger *zap.Logger) *Extractor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{conv: conv, batchSize: batchSize, logger: logger}
}

// Run sends the unique descriptions chunk by chunk, in order. A reply whose
// accepted line count differs from the chunk size stops the run without an
// error. A conversation error also stops the run and is returned alongside
// the partial result.
func (e *Extractor) Run(ctx context.Context, column string, unique []string) (*Result, error) {
	chunks := Chunk(unique, e.batchSize)
	res := &Result{Chunks: len(chunks)}
	var mark agent.Watermark

	for i, chunk := range chunks {
		start := i * e.batchSize
		end := start + e.batchSize
		log := e.logger.With(zap.Int("chunk", i), zap.Int("start_row", start), zap.Int("end_row", end))

		prompt := RenderPrompt(column, chunk)
		log.Debug("sending chunk", zap.String("prompt", prompt))
		if err := e.conv.Send(ctx, prompt); err != nil {
			res.abort(fmt.Sprintf("sending rows %d to %d failed: %v", start, end, err))
			return res, fmt.Errorf("send chunk %d: %w", i, err)
		}

		reply, next, err := e.conv.AwaitReply(ctx, mark)
		if err != nil {
			res.abort(fmt.Sprintf("waiting for rows %d to %d failed: %v", start, end, err))
			return res, fmt.Errorf("await reply for chunk %d: %w", i, err)
		}
		mark = next
		log.Debug("assistant replied", zap.String("reply", reply))

		terms := ParseReply(reply)
		if len(terms) != len(chunk) {
			res.abort(fmt.Sprintf("mismatch in the number of terms for rows %d to %d: sent %d, got %d", start, end, len(chunk), len(terms)))
			log.Warn("term count mismatch, stopping",
				zap.Int("sent", len(chunk)),
				zap.Int("received", len(terms)),
				zap.Int("kept", len(res.Terms)))
			return res, nil
		}
		res.Terms = append(res.Terms, terms...)
		res.ChunksDone++
	}
	return res, nil
}

func (r *Result) abort(reason string) {
	r.Aborted = true
	r.Reason = reason
}

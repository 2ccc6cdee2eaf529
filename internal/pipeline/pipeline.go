// Package pipeline runs one upload end to end: open a conversation, load
// the workbook, pick the column, extract, write and record the result.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ericksa/ptextract/internal/agent"
	"github.com/ericksa/ptextract/internal/extract"
	"github.com/ericksa/ptextract/internal/history"
	"github.com/ericksa/ptextract/internal/sheet"
	"github.com/ericksa/ptextract/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Status string

const (
	StatusSaved         Status = "saved"
	StatusNoTerms       Status = "no_terms"
	StatusLoadFailed    Status = "load_failed"
	StatusColumnUnknown Status = "column_unknown"
)

// Opener starts a fresh conversation with the named assistant.
type Opener interface {
	Open(ctx context.Context, assistantName string) (extract.Conversation, error)
}

type clientOpener struct{ c *agent.Client }

func (o clientOpener) Open(ctx context.Context, name string) (extract.Conversation, error) {
	conv, err := o.c.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ClientOpener adapts an agent client to Opener.
func ClientOpener(c *agent.Client) Opener { return clientOpener{c: c} }

type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

type Options struct {
	AssistantName string
	BatchSize     int
	Archiver      storage.Archiver
	Recorder      Recorder
	Logger        *zap.Logger
}

type Service struct {
	opener    Opener
	assistant string
	batchSize int
	archiver  storage.Archiver
	recorder  Recorder
	logger    *zap.Logger
	now       func() time.Time
}

func New(opener Opener, opts Options) *Service {
	s := &Service{
		opener:    opener,
		assistant: opts.AssistantName,
		batchSize: opts.BatchSize,
		archiver:  opts.Archiver,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if s.batchSize <= 0 {
		s.batchSize = extract.DefaultBatchSize
	}
	if s.archiver == nil {
		s.archiver = storage.NopArchiver{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Request names a workbook already on disk. Column may be empty.
type Request struct {
	Path   string
	Column string
}

type Outcome struct {
	RunID       string          `json:"run_id"`
	Status      Status          `json:"status"`
	Column      string          `json:"column,omitempty"`
	Columns     []string        `json:"columns,omitempty"`
	UniqueTerms int             `json:"unique_terms"`
	Result      *extract.Result `json:"result,omitempty"`
	OutputPath  string          `json:"output_path,omitempty"`
	Detail      string          `json:"detail,omitempty"`
}

// Message is the status line shown to the uploader.
func (o *Outcome) Message() string {
	switch o.Status {
	case StatusSaved:
		return fmt.Sprintf("Payment terms saved successfully to %s", o.OutputPath)
	case StatusNoTerms:
		return "No payment terms found in the responses."
	case StatusColumnUnknown:
		return fmt.Sprintf("Could not identify the payment term column. Available columns: %s", strings.Join(o.Columns, ", "))
	default:
		return "Failed to process the file. Please try uploading again."
	}
}

// Process runs one extraction. The returned error is reserved for failing
// to open the conversation; every other failure is reported in the outcome.
func (s *Service) Process(ctx context.Context, req Request) (*Outcome, error) {
	started := s.now()
	out := &Outcome{RunID: uuid.NewString()}
	log := s.logger.With(zap.String("run", out.RunID), zap.String("file", filepath.Base(req.Path)))

	conv, err := s.opener.Open(ctx, s.assistant)
	if err != nil {
		return nil, fmt.Errorf("open conversation with %q: %w", s.assistant, err)
	}

	defer func() {
		s.record(ctx, log, req, out, started)
	}()

	tbl, err := sheet.Load(req.Path)
	if err != nil {
		log.Error("an error occurred while processing the file", zap.Error(err))
		out.Status = StatusLoadFailed
		out.Detail = err.Error()
		return out, nil
	}

	column, err := sheet.SelectColumn(tbl, req.Column)
	if err != nil {
		log.Warn("no payment term column", zap.Strings("columns", tbl.Columns), zap.Error(err))
		out.Status = StatusColumnUnknown
		out.Columns = tbl.Columns
		out.Detail = err.Error()
		return out, nil
	}
	out.Column = column
	if column != sheet.CanonicalColumn && req.Column == "" {
		log.Info("guessed the column containing payment terms", zap.String("column", column))
	}

	values, _ := tbl.Column(column)
	unique := sheet.UniqueTerms(values)
	out.UniqueTerms = len(unique)
	log.Info("unique terms collected", zap.Int("count", len(unique)), zap.Strings("terms", unique))

	res, err := extract.New(conv, s.batchSize, log).Run(ctx, column, unique)
	out.Result = res
	if err != nil {
		log.Error("extraction stopped", zap.Error(err), zap.Int("kept", len(res.Terms)))
	}

	if len(res.Terms) == 0 {
		out.Status = StatusNoTerms
		log.Info("no terms to save")
		return out, nil
	}

	output := sheet.OutputPath(req.Path)
	if err := sheet.WriteTerms(output, res.Terms); err != nil {
		log.Error("writing output failed", zap.Error(err))
		out.Status = StatusLoadFailed
		out.Detail = err.Error()
		return out, nil
	}
	out.Status = StatusSaved
	out.OutputPath = output
	log.Info("payment terms saved",
		zap.String("output", output),
		zap.Int("unique_descriptions", countDescriptions(res.Terms)))

	for _, p := range []string{req.Path, output} {
		object, err := s.archiver.Archive(ctx, out.RunID, p)
		if err != nil {
			log.Warn("archive failed", zap.String("path", p), zap.Error(err))
			continue
		}
		if object != "" {
			log.Debug("archived", zap.String("object", object))
		}
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, log *zap.Logger, req Request, out *Outcome, started time.Time) {
	if s.recorder == nil {
		return
	}
	run := history.Run{
		ID:          out.RunID,
		FileName:    filepath.Base(req.Path),
		Column:      out.Column,
		UniqueTerms: out.UniqueTerms,
		Status:      string(out.Status),
		OutputPath:  out.OutputPath,
		StartedAt:   started,
		FinishedAt:  s.now(),
	}
	if r := out.Result; r != nil {
		run.Chunks, run.ChunksDone, run.Terms = r.Chunks, r.ChunksDone, len(r.Terms)
		run.Aborted, run.Reason = r.Aborted, r.Reason
	}
	if run.Reason == "" {
		run.Reason = out.Detail
	}
	// recorded even when the request was cancelled
	if err := s.recorder.Record(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("recording run failed", zap.Error(err))
	}
}

func countDescriptions(terms []extract.Term) int {
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		seen[t.Description] = struct{}{}
	}
	return len(seen)
}

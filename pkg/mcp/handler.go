package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ericksa/ptextract/internal/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const ToolName = "extract_payment_terms"

type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// ExtractInput names a workbook inside the media directory.
type ExtractInput struct {
	Path   string `json:"path" jsonschema:"workbook path relative to the media directory"`
	Column string `json:"column,omitempty" jsonschema:"column name or 1-based number holding the payment terms"`
}

type ExtractOutput struct {
	Message string            `json:"message"`
	Outcome *pipeline.Outcome `json:"outcome"`
}

// Handler exposes the extraction pipeline as an MCP tool over streamable HTTP.
type Handler struct {
	proc   Processor
	root   string
	log    *zap.Logger
	server *mcp.Server
	http   http.Handler
}

func NewHandler(proc Processor, mediaRoot string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{proc: proc, root: mediaRoot, log: logger}
	h.initMCPServer()
	return h
}

func (h *Handler) initMCPServer() {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "ptextract",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolName,
		Description: "Extract structured payment terms (description, days, cliff) from a workbook in the media directory and save them next to it.",
	}, h.extract)

	h.server = server
	h.http = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

// Server returns the underlying MCP server.
func (h *Handler) Server() *mcp.Server { return h.server }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.http.ServeHTTP(w, r)
}

func (h *Handler) extract(ctx context.Context, req *mcp.CallToolRequest, in ExtractInput) (*mcp.CallToolResult, any, error) {
	path, err := h.resolve(in.Path)
	if err != nil {
		return toolError(err), nil, nil
	}
	h.log.Info("tool call", zap.String("tool", ToolName), zap.String("path", path), zap.String("column", in.Column))

	outcome, err := h.proc.Process(ctx, pipeline.Request{Path: path, Column: in.Column})
	if err != nil {
		h.log.Error("tool call failed", zap.String("tool", ToolName), zap.Error(err))
		return toolError(err), nil, nil
	}

	out := ExtractOutput{Message: outcome.Message(), Outcome: outcome}
	body, err := json.Marshal(out)
	if err != nil {
		return toolError(err), nil, nil
	}
	return &mcp.CallToolResult{
		IsError: outcome.Status != pipeline.StatusSaved && outcome.Status != pipeline.StatusNoTerms,
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(body)},
		},
	}, nil, nil
}

// resolve keeps p inside the media root.
func (h *Handler) resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("path is required")
	}
	clean := filepath.Clean(string(filepath.Separator) + filepath.FromSlash(p))
	full := filepath.Join(h.root, clean)
	info, err := os.Stat(full)
	if err != nil {
		return "", fmt.Errorf("workbook %s: %w", p, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("workbook %s is a directory", p)
	}
	return full, nil
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: err.Error()},
		},
	}
}

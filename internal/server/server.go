// Package server wires the upload page, run history and auxiliary
// endpoints onto a gorilla/mux router.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"path"
	"strconv"

	"github.com/ericksa/ptextract/internal/config"
	"github.com/ericksa/ptextract/internal/history"
	"github.com/ericksa/ptextract/internal/middleware"
	"github.com/ericksa/ptextract/internal/pipeline"
	"github.com/ericksa/ptextract/internal/storage"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/upload.html"))

const defaultRunLimit = 20

type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

type RunLister interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
}

type Deps struct {
	Config     *config.Config
	ConfigPath string
	Media      *storage.Media
	Processor  Processor
	Runs       RunLister
	// MCP is mounted at /mcp when set.
	MCP    http.Handler
	Logger *zap.Logger
}

type Server struct {
	deps   Deps
	config *config.ConfigAPI
	log    *zap.Logger
}

func New(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{deps: deps, config: config.NewConfigAPI(deps.Config, deps.ConfigPath), log: log}
}

// current is the live config; /configure/reload may replace it.
func (s *Server) current() config.ExtractorConfig {
	return s.config.Current().Extractor
}

type page struct {
	Message     string
	DownloadURL string
	Column      string
}

func (s *Server) Router() *mux.Router {
	cfg := s.current()
	router := mux.NewRouter()
	middleware.Register(router, s.log)

	router.HandleFunc("/health", healthHandler).Methods("GET")
	router.HandleFunc("/runs", s.runsHandler).Methods("GET")

	router.HandleFunc("/", s.formHandler).Methods("GET")
	router.Handle("/", s.limitUpload(http.HandlerFunc(s.uploadHandler))).Methods("POST")

	router.PathPrefix(cfg.Media.URLPrefix).Handler(
		http.StripPrefix(cfg.Media.URLPrefix, http.FileServer(http.Dir(s.deps.Media.Root()))))

	router.PathPrefix("/configure").Handler(s.config.Router())

	if s.deps.MCP != nil {
		router.PathPrefix("/mcp").Handler(s.deps.MCP)
	}
	return router
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) formHandler(w http.ResponseWriter, r *http.Request) {
	s.render(w, page{})
}

// limitUpload applies the upload size limit in effect for each request.
func (s *Server) limitUpload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.MaxBody(s.current().Server.MaxUploadSize)(next).ServeHTTP(w, r)
	})
}

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	cfg := s.current()
	if err := r.ParseMultipartForm(cfg.Server.MaxUploadSize); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	savedPath, err := s.deps.Media.Save(header.Filename, file)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error("saving upload failed", zap.Error(err))
		http.Error(w, "failed to save upload", http.StatusInternalServerError)
		return
	}

	column := r.FormValue("column")
	if column == "" {
		column = cfg.Extraction.Column
	}
	outcome, err := s.deps.Processor.Process(r.Context(), pipeline.Request{Path: savedPath, Column: column})
	if err != nil {
		s.log.Error("extraction failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	p := page{Message: outcome.Message(), Column: r.FormValue("column")}
	if outcome.Status == pipeline.StatusSaved {
		if rel, err := s.deps.Media.Rel(outcome.OutputPath); err == nil {
			p.DownloadURL = path.Join(cfg.Media.URLPrefix, rel)
		}
	}
	s.render(w, p)
}

func (s *Server) runsHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		http.Error(w, "run history disabled", http.StatusNotFound)
		return
	}
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.deps.Runs.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"runs": runs})
}

func (s *Server) render(w http.ResponseWriter, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, p); err != nil {
		s.log.Error("rendering page failed", zap.Error(err))
	}
}

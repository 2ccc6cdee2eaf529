package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
)

const redacted = "***"

// ConfigAPI exposes the effective configuration over HTTP with secrets redacted
type ConfigAPI struct {
	cfg    Config
	path   string
	mu     sync.RWMutex
	router *mux.Router
}

// NewConfigAPI serves a copy of cfg. path is the file handed to Load on
// reload.
func NewConfigAPI(cfg *Config, path string) *ConfigAPI {
	api := &ConfigAPI{
		cfg:    *cfg,
		path:   path,
		router: mux.NewRouter(),
	}
	api.routes()
	return api
}

func (api *ConfigAPI) Router() *mux.Router {
	return api.router
}

// Current returns the effective configuration, including reloaded values.
func (api *ConfigAPI) Current() Config {
	api.mu.RLock()
	defer api.mu.RUnlock()
	return api.cfg
}

func (api *ConfigAPI) routes() {
	api.router.HandleFunc("/configure", api.getConfig).Methods("GET")
	api.router.HandleFunc("/configure/", api.getConfig).Methods("GET")
	api.router.HandleFunc("/configure/reload", api.reloadConfig).Methods("POST")
	api.router.HandleFunc("/configure/validate", api.validateConfig).Methods("POST")
}

func (api *ConfigAPI) getConfig(w http.ResponseWriter, r *http.Request) {
	api.mu.RLock()
	defer api.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.cfg.Redacted())
}

func (api *ConfigAPI) reloadConfig(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()
	reloaded, err := Load(api.path)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to reload config: %v", err), http.StatusInternalServerError)
		return
	}
	if err := reloaded.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("invalid configuration: %v", err), http.StatusBadRequest)
		return
	}
	if fields := RestartRequired(api.cfg, *reloaded); len(fields) > 0 {
		http.Error(w, fmt.Sprintf("restart required to change: %s", strings.Join(fields, ", ")), http.StatusConflict)
		return
	}
	api.cfg = *reloaded
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.cfg.Redacted())
}

func (api *ConfigAPI) validateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("invalid configuration: %v", err), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"valid": true, "message": "configuration is valid"})
}

// RestartRequired lists the sections that differ between old and next and
// cannot be applied to a running server. Only extraction.column and
// server.max_upload_size are read per request.
func RestartRequired(old, next Config) []string {
	o, n := old.Extractor, next.Extractor
	o.Extraction.Column, n.Extraction.Column = "", ""
	o.Server.MaxUploadSize, n.Server.MaxUploadSize = 0, 0

	var fields []string
	if o.Server != n.Server {
		fields = append(fields, "server")
	}
	if o.Media != n.Media {
		fields = append(fields, "media")
	}
	if o.Agent != n.Agent {
		fields = append(fields, "agent")
	}
	if o.Extraction != n.Extraction {
		fields = append(fields, "extraction.batch_size")
	}
	if o.History != n.History {
		fields = append(fields, "history")
	}
	if o.Archive != n.Archive {
		fields = append(fields, "archive")
	}
	if o.Log != n.Log {
		fields = append(fields, "log")
	}
	return fields
}

// Redacted returns a copy with credentials masked.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Extractor.Agent.APIKey != "" {
		cp.Extractor.Agent.APIKey = redacted
	}
	if cp.Extractor.Archive.AccessKey != "" {
		cp.Extractor.Archive.AccessKey = redacted
	}
	if cp.Extractor.Archive.SecretKey != "" {
		cp.Extractor.Archive.SecretKey = redacted
	}
	if cp.Extractor.History.Driver == "postgres" && cp.Extractor.History.DSN != "" {
		cp.Extractor.History.DSN = redacted
	}
	return &cp
}

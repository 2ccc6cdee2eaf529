package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ericksa/ptextract/internal/agent"
	"github.com/ericksa/ptextract/internal/config"
	"github.com/ericksa/ptextract/internal/history"
	"github.com/ericksa/ptextract/internal/logging"
	"github.com/ericksa/ptextract/internal/pipeline"
	"github.com/ericksa/ptextract/internal/storage"
	"go.uber.org/zap"
)

type commandContext struct {
	configFlag string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logger  *zap.Logger
	history *history.Store
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = fmt.Errorf("failed to load config: %w", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = fmt.Errorf("invalid config: %w", err)
			return
		}
		logger, err := logging.New(cfg.Extractor.Log)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

func (c *commandContext) historyStore() (*history.Store, error) {
	if c.history != nil {
		return c.history, nil
	}
	h := c.config.Extractor.History
	store, err := history.Open(h.Driver, h.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	c.history = store
	return store, nil
}

func (c *commandContext) archiver() (storage.Archiver, error) {
	a := c.config.Extractor.Archive
	if !a.Enabled {
		return storage.NopArchiver{}, nil
	}
	return storage.NewMinIOArchiver(storage.MinIOConfig{
		Endpoint:  a.Endpoint,
		AccessKey: a.AccessKey,
		SecretKey: a.SecretKey,
		Bucket:    a.Bucket,
		Prefix:    a.Prefix,
		Region:    a.Region,
		UseSSL:    a.UseSSL,
	})
}

// pipeline wires the agent client, run history and archive into one
// extraction service.
func (c *commandContext) pipeline() (*pipeline.Service, error) {
	cfg := c.config.Extractor
	if cfg.Agent.APIKey == "" {
		return nil, fmt.Errorf("no API key configured: set OPENAI_API_KEY or extractor.agent.api_key")
	}
	store, err := c.historyStore()
	if err != nil {
		return nil, err
	}
	arch, err := c.archiver()
	if err != nil {
		return nil, err
	}
	client := agent.NewClient(agent.Config{
		BaseURL:        cfg.Agent.BaseURL,
		APIKey:         cfg.Agent.APIKey,
		PollInterval:   cfg.Agent.PollInterval,
		ReplyTimeout:   cfg.Agent.ReplyTimeout,
		RequestTimeout: cfg.Agent.RequestTimeout,
	}, c.logger.Named("agent"))

	return pipeline.New(pipeline.ClientOpener(client), pipeline.Options{
		AssistantName: cfg.Agent.AssistantName,
		BatchSize:     cfg.Extraction.BatchSize,
		Archiver:      arch,
		Recorder:      store,
		Logger:        c.logger.Named("pipeline"),
	}), nil
}

func (c *commandContext) close() {
	if c.history != nil {
		c.history.Close()
		c.history = nil
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

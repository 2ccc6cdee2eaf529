package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete extractor configuration
// The structure matches the config.yaml file and can be overridden by environment variables

type Config struct {
	Extractor ExtractorConfig `json:"extractor" mapstructure:"extractor"`
}

// ExtractorConfig contains the main extractor configuration

type ExtractorConfig struct {
	Server     ServerConfig     `json:"server" mapstructure:"server"`
	Media      MediaConfig      `json:"media" mapstructure:"media"`
	Agent      AgentConfig      `json:"agent" mapstructure:"agent"`
	Extraction ExtractionConfig `json:"extraction" mapstructure:"extraction"`
	History    HistoryConfig    `json:"history" mapstructure:"history"`
	Archive    ArchiveConfig    `json:"archive" mapstructure:"archive"`
	Log        LogConfig        `json:"log" mapstructure:"log"`
}

// ServerConfig contains server-specific configuration

type ServerConfig struct {
	Addr          string        `json:"addr" mapstructure:"addr"`
	ReadTimeout   time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	MaxUploadSize int64         `json:"max_upload_size" mapstructure:"max_upload_size"`
}

// MediaConfig says where uploads and generated workbooks live

type MediaConfig struct {
	Root      string `json:"root" mapstructure:"root"`
	URLPrefix string `json:"url_prefix" mapstructure:"url_prefix"`
}

// AgentConfig contains the hosted assistant configuration

type AgentConfig struct {
	BaseURL        string        `json:"base_url" mapstructure:"base_url"`
	APIKey         string        `json:"api_key" mapstructure:"api_key"`
	AssistantName  string        `json:"assistant_name" mapstructure:"assistant_name"`
	PollInterval   time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	ReplyTimeout   time.Duration `json:"reply_timeout" mapstructure:"reply_timeout"`
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
}

type ExtractionConfig struct {
	BatchSize int    `json:"batch_size" mapstructure:"batch_size"`
	Column    string `json:"column" mapstructure:"column"`
}

// HistoryConfig selects the database/sql driver used for run records

type HistoryConfig struct {
	Driver string `json:"driver" mapstructure:"driver"`
	DSN    string `json:"dsn" mapstructure:"dsn"`
}

type ArchiveConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool   `json:"use_ssl" mapstructure:"use_ssl"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	Prefix    string `json:"prefix" mapstructure:"prefix"`
	Region    string `json:"region" mapstructure:"region"`
}

type LogConfig struct {
	Level       string `json:"level" mapstructure:"level"`
	Development bool   `json:"development" mapstructure:"development"`
}

// Load loads the configuration from file and environment variables.
// An empty path searches ./config.yaml and $HOME/.ptextract/config.yaml.
func Load(path string) (*Config, error) {
	// Load .env first (ignore error if not present)
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ptextract")
	}
	v.SetEnvPrefix("PTX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	_ = v.BindEnv("extractor.agent.api_key", "PTX_EXTRACTOR_AGENT_API_KEY", "OPENAI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Extractor.Media.Root = resolvePath(cfg.Extractor.Media.Root)
	if cfg.Extractor.History.Driver == "sqlite3" {
		cfg.Extractor.History.DSN = resolvePath(cfg.Extractor.History.DSN)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("extractor.server.addr", ":8080")
	v.SetDefault("extractor.server.read_timeout", "30s")
	// uploads block until every chunk has been answered
	v.SetDefault("extractor.server.write_timeout", "0s")
	v.SetDefault("extractor.server.idle_timeout", "60s")
	v.SetDefault("extractor.server.max_upload_size", 32<<20)

	v.SetDefault("extractor.media.root", "./media")
	v.SetDefault("extractor.media.url_prefix", "/media/")

	// Agent defaults
	v.SetDefault("extractor.agent.base_url", "https://api.openai.com/v1")
	v.SetDefault("extractor.agent.assistant_name", "Payment term extractor")
	v.SetDefault("extractor.agent.poll_interval", "1s")
	v.SetDefault("extractor.agent.reply_timeout", "0s")
	v.SetDefault("extractor.agent.request_timeout", "60s")

	v.SetDefault("extractor.extraction.batch_size", 20)
	v.SetDefault("extractor.extraction.column", "")

	v.SetDefault("extractor.history.driver", "sqlite3")
	v.SetDefault("extractor.history.dsn", "~/.ptextract/history.db")

	// Archive defaults
	v.SetDefault("extractor.archive.enabled", false)
	v.SetDefault("extractor.archive.endpoint", "127.0.0.1:9000")
	v.SetDefault("extractor.archive.access_key", "minioadmin")
	v.SetDefault("extractor.archive.secret_key", "minioadmin")
	v.SetDefault("extractor.archive.use_ssl", false)
	v.SetDefault("extractor.archive.bucket", "payment-terms")
	v.SetDefault("extractor.archive.prefix", "runs")
	v.SetDefault("extractor.archive.region", "")

	v.SetDefault("extractor.log.level", "info")
	v.SetDefault("extractor.log.development", false)
}

// resolvePath resolves ~ to home directory and cleans the path
func resolvePath(p string) string {
	if p == "" {
		return p
	}
	if p[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	return filepath.Clean(p)
}

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*[a-z0-9]$`)

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	e := c.Extractor

	// Validate server configuration
	if e.Server.Addr == "" {
		return errors.New("server address cannot be empty")
	}
	if _, err := net.ResolveTCPAddr("tcp", e.Server.Addr); err != nil {
		return fmt.Errorf("invalid server address: %v", err)
	}
	if e.Server.MaxUploadSize <= 0 {
		return errors.New("server max_upload_size must be positive")
	}

	if e.Media.Root == "" {
		return errors.New("media root cannot be empty")
	}
	if !strings.HasPrefix(e.Media.URLPrefix, "/") || !strings.HasSuffix(e.Media.URLPrefix, "/") {
		return fmt.Errorf("media url_prefix must start and end with '/': %q", e.Media.URLPrefix)
	}

	// Validate agent configuration
	if _, err := url.ParseRequestURI(e.Agent.BaseURL); err != nil {
		return fmt.Errorf("invalid agent base url: %v", err)
	}
	if e.Agent.AssistantName == "" {
		return errors.New("agent assistant_name cannot be empty")
	}
	if e.Agent.PollInterval <= 0 {
		return errors.New("agent poll_interval must be positive")
	}
	if e.Agent.ReplyTimeout < 0 {
		return errors.New("agent reply_timeout cannot be negative")
	}

	if e.Extraction.BatchSize <= 0 {
		return errors.New("extraction batch_size must be positive")
	}

	switch e.History.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported history driver: %q", e.History.Driver)
	}
	if e.History.DSN == "" {
		return errors.New("history dsn cannot be empty")
	}

	// Validate archive configuration
	if e.Archive.Enabled {
		if e.Archive.Endpoint == "" {
			return errors.New("archive endpoint cannot be empty when archive is enabled")
		}
		if e.Archive.AccessKey == "" {
			return errors.New("archive access key cannot be empty when archive is enabled")
		}
		if e.Archive.SecretKey == "" {
			return errors.New("archive secret key cannot be empty when archive is enabled")
		}
		if !isValidBucketName(e.Archive.Bucket) {
			return fmt.Errorf("invalid archive bucket name: %s", e.Archive.Bucket)
		}
	}

	return nil
}

// isValidBucketName checks if a bucket name is valid according to MinIO/S3 rules
func isValidBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	return bucketNamePattern.MatchString(name)
}

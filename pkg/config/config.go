package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/qphi/dragen-report/pkg/fsutil"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes environment variable overrides, e.g.
	// DRAGEN_REPORT_GLOBAL_LOG_LEVEL.
	EnvPrefix = "DRAGEN_REPORT"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultConcurrency is the default number of instances extracted in
	// parallel.
	DefaultConcurrency = 1

	// DefaultMarkdownMaxChars caps generated markdown summaries.
	DefaultMarkdownMaxChars = 65000

	// DefaultS3Prefix is the key prefix used when none is configured.
	DefaultS3Prefix = "reports"

	// DefaultS3Region is the region used when none is configured.
	DefaultS3Region = "us-east-1"
)

// Config is the root configuration for dragen-report.
type Config struct {
	Global  GlobalConfig  `yaml:"global" mapstructure:"global"`
	Input   InputConfig   `yaml:"input" mapstructure:"input"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Upload  UploadConfig  `yaml:"upload" mapstructure:"upload"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// InputConfig locates the validator logs.
type InputConfig struct {
	// BaseDir is the root of the validator log tree.
	BaseDir string `yaml:"base_dir" mapstructure:"base_dir"`

	// Instances is a glob, relative to BaseDir, selecting run-instance
	// directories (e.g. "IN*").
	Instances string `yaml:"instances" mapstructure:"instances"`
}

// ExtractConfig tunes the failure detail extraction stage.
type ExtractConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// OutputConfig contains report output settings.
type OutputConfig struct {
	Path             string `yaml:"path" mapstructure:"path"`
	Owner            string `yaml:"owner,omitempty" mapstructure:"owner"`
	MarkdownMaxChars int    `yaml:"markdown_max_chars" mapstructure:"markdown_max_chars"`
}

// UploadConfig contains remote storage settings for finished reports.
type UploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig configures upload to S3-compatible storage.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
}

// defaults lists every key so environment overrides resolve even when the
// config file omits them.
var defaults = map[string]any{
	"global.log_level":            DefaultLogLevel,
	"input.base_dir":              "",
	"input.instances":             "",
	"extract.concurrency":         DefaultConcurrency,
	"output.path":                 "",
	"output.owner":                "",
	"output.markdown_max_chars":   DefaultMarkdownMaxChars,
	"upload.s3.enabled":           false,
	"upload.s3.endpoint_url":      "",
	"upload.s3.region":            DefaultS3Region,
	"upload.s3.bucket":            "",
	"upload.s3.prefix":            DefaultS3Prefix,
	"upload.s3.access_key_id":     "",
	"upload.s3.secret_access_key": "",
	"upload.s3.force_path_style":  false,
	"upload.s3.storage_class":     "",
	"upload.s3.acl":               "",
}

// Load reads the optional YAML file at path, applies environment overrides
// and defaults. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Extract.Concurrency == 0 {
		c.Extract.Concurrency = DefaultConcurrency
	}

	if c.Output.MarkdownMaxChars == 0 {
		c.Output.MarkdownMaxChars = DefaultMarkdownMaxChars
	}

	if c.Upload.S3 == nil {
		c.Upload.S3 = &S3UploadConfig{}
	}

	if c.Upload.S3.Region == "" {
		c.Upload.S3.Region = DefaultS3Region
	}

	if c.Upload.S3.Prefix == "" {
		c.Upload.S3.Prefix = DefaultS3Prefix
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Extract.Concurrency < 1 {
		return fmt.Errorf("extract.concurrency must be at least 1, got %d", c.Extract.Concurrency)
	}

	if c.Output.MarkdownMaxChars < 0 {
		return fmt.Errorf("output.markdown_max_chars must not be negative")
	}

	if _, err := fsutil.ParseOwner(c.Output.Owner); err != nil {
		return fmt.Errorf("output.owner: %w", err)
	}

	if s3 := c.Upload.S3; s3 != nil && s3.Enabled && s3.Bucket == "" {
		return fmt.Errorf("upload.s3.bucket is required when S3 upload is enabled")
	}

	return nil
}

// ValidateInput checks the settings needed to generate a report.
func (c *Config) ValidateInput() error {
	if c.Input.BaseDir == "" {
		return errors.New("base directory is required (--base-dir)")
	}

	if c.Input.Instances == "" {
		return errors.New("instance pattern is required (--instances)")
	}

	if c.Output.Path == "" {
		return errors.New("output path is required (--output)")
	}

	if _, err := filepath.Match(c.Input.Instances, ""); err != nil {
		return fmt.Errorf("invalid instance pattern %q: %w", c.Input.Instances, err)
	}

	info, err := os.Stat(c.Input.BaseDir)
	if err != nil {
		return fmt.Errorf("base directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("base directory %q is not a directory", c.Input.BaseDir)
	}

	return nil
}

// Redacted returns a copy of the configuration with secrets masked.
func (c *Config) Redacted() *Config {
	out := *c

	if c.Upload.S3 != nil {
		s3 := *c.Upload.S3
		if s3.SecretAccessKey != "" {
			s3.SecretAccessKey = "********"
		}

		out.Upload.S3 = &s3
	}

	return &out
}

// YAML renders the configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}

	return data, nil
}

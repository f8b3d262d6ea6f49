// Package soloconfig defines solod's configuration document and how it is read.
//
// The document is JSON, or YAML when the file name ends in .yaml or .yml. Unknown
// fields are rejected. A typical config:
//
//	{
//	  "Scheduler": {"AbortTimeoutMs": 8000, "DefaultPolicy": "queue"},
//	  "Executor": {"Type": "openai", "OpenAI": {"Model": "dall-e-3", "APIKeyEnv": "OPENAI_API_KEY"}},
//	  "Daemon": {"SocketPath": "/tmp/solo/socket"},
//	  "History": {"Driver": "sqlite", "Path": "/var/lib/solo/history.db"}
//	}
package soloconfig

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/twitter/solo/common"
	solog "github.com/twitter/solo/common/log"
	"github.com/twitter/solo/runner"
)

const (
	ExecutorSim    = "sim"
	ExecutorOpenAI = "openai"

	HistoryMemory = "memory"
	HistorySqlite = "sqlite"
)

type Config struct {
	Scheduler SchedulerConfig
	Executor  ExecutorConfig
	Daemon    DaemonConfig
	HTTP      HTTPConfig
	History   HistoryConfig
	Log       solog.Config
}

type SchedulerConfig struct {
	AbortTimeoutMs int `json:",omitempty"`
	// Applied to submissions that do not name a policy.
	DefaultPolicy     runner.BusyPolicy
	DefaultDebounceMs int `json:",omitempty"`
}

func (c SchedulerConfig) AbortTimeout() time.Duration {
	return time.Duration(c.AbortTimeoutMs) * time.Millisecond
}

func (c SchedulerConfig) DefaultDebounce() time.Duration {
	return time.Duration(c.DefaultDebounceMs) * time.Millisecond
}

// DefaultOptions are the SubmitOptions used when a request carries none.
func (c SchedulerConfig) DefaultOptions() runner.SubmitOptions {
	o := runner.DefaultSubmitOptions()
	o.BusyPolicy = c.DefaultPolicy
	o.Debounce = c.DefaultDebounce()
	return o
}

type ExecutorConfig struct {
	Type   string
	OpenAI OpenAIConfig
}

type OpenAIConfig struct {
	Model string `json:",omitempty"`
	// Name of the environment variable holding the API key; the key itself never lives in config.
	APIKeyEnv string `json:",omitempty"`
	BaseURL   string `json:",omitempty"`
	TimeoutMs int    `json:",omitempty"`
}

func (c OpenAIConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

func (c OpenAIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type DaemonConfig struct {
	// Empty means protocol.LocateSocket().
	SocketPath string `json:",omitempty"`
	MaxConns   int    `json:",omitempty"`
}

type HTTPConfig struct {
	Addr string `json:",omitempty"`
}

type HistoryConfig struct {
	Driver string
	Path   string `json:",omitempty"`
	Size   int    `json:",omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.Scheduler.AbortTimeoutMs == 0 {
		c.Scheduler.AbortTimeoutMs = int(common.DefaultAbortTimeout / time.Millisecond)
	}
	if c.Executor.Type == "" {
		c.Executor.Type = ExecutorSim
	}
	if c.Executor.Type == ExecutorOpenAI && c.Executor.OpenAI.APIKeyEnv == "" {
		c.Executor.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Daemon.MaxConns == 0 {
		c.Daemon.MaxConns = common.DefaultMaxConns
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = common.DefaultHTTPAddr
	}
	if c.History.Driver == "" {
		c.History.Driver = HistoryMemory
	}
	if c.History.Size == 0 {
		c.History.Size = common.DefaultHistorySize
	}
}

func (c *Config) Validate() error {
	if c.Scheduler.AbortTimeoutMs < 0 {
		return errors.Errorf("Scheduler.AbortTimeoutMs must not be negative, got %d", c.Scheduler.AbortTimeoutMs)
	}
	if c.Scheduler.DefaultDebounceMs < 0 {
		return errors.Errorf("Scheduler.DefaultDebounceMs must not be negative, got %d", c.Scheduler.DefaultDebounceMs)
	}
	switch c.Executor.Type {
	case ExecutorSim, ExecutorOpenAI:
	default:
		return errors.Errorf("unknown Executor.Type %q", c.Executor.Type)
	}
	if c.Daemon.MaxConns < 0 {
		return errors.Errorf("Daemon.MaxConns must not be negative, got %d", c.Daemon.MaxConns)
	}
	switch c.History.Driver {
	case HistoryMemory:
	case HistorySqlite:
		if c.History.Path == "" {
			return errors.New("History.Path is required for the sqlite driver")
		}
	default:
		return errors.Errorf("unknown History.Driver %q", c.History.Driver)
	}
	if c.History.Size < 0 {
		return errors.Errorf("History.Size must not be negative, got %d", c.History.Size)
	}
	return nil
}

// Parse decodes text as a config document. path only selects the format.
func Parse(path string, text []byte) (*Config, error) {
	if len(bytes.TrimSpace(text)) == 0 {
		text = []byte("{}")
	}
	jb, format, err := coerceToJSONBytes(path, text)
	if err != nil {
		return nil, err
	}

	var c Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, errors.Wrapf(err, "Couldn't parse %s config", format)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.Errorf("Couldn't parse %s config: trailing data", format)
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &c, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Couldn't read config %s", path)
	}
	return Parse(path, text)
}

func (c *Config) String() string {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(b)
}

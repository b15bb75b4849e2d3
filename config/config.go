// Package config loads the process configuration of the toolflow CLI and server.
package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/assistants"
	"github.com/effective-security/toolflow/dispatcher"
	"github.com/effective-security/toolflow/encoding"
	"github.com/effective-security/toolflow/pkg/llmfactory"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
)

const (
	// DefaultListenAddr is the address of the JSON-RPC server.
	DefaultListenAddr = "127.0.0.1:8080"
	// DefaultToolTimeout bounds tool calls made by the CLI and server.
	// Set tool_timeout to "0s" for calls bounded only by the request.
	DefaultToolTimeout = "30s"
)

// Configuration of the process.
type Configuration struct {
	LLM        llmfactory.Config `json:"llm" yaml:"llm"`
	Loop       Loop              `json:"loop" yaml:"loop"`
	Dispatcher Dispatcher        `json:"dispatcher" yaml:"dispatcher"`
	Store      Store             `json:"store" yaml:"store"`
	Server     Server            `json:"server" yaml:"server"`
	Tavily     Tavily            `json:"tavily" yaml:"tavily"`
}

// Loop configures the orchestration loop.
type Loop struct {
	MaxRounds    int     `json:"max_rounds,omitempty" yaml:"max_rounds,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Temperature  float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Dispatcher configures tool invocation.
type Dispatcher struct {
	// ToolTimeout is a duration string, such as "30s".
	ToolTimeout      string `json:"tool_timeout,omitempty" yaml:"tool_timeout,omitempty"`
	StrictParameters bool   `json:"strict_parameters,omitempty" yaml:"strict_parameters,omitempty"`
	// ResultFormat is json, yaml, toml or plain_text.
	ResultFormat string `json:"result_format,omitempty" yaml:"result_format,omitempty"`
}

// Store configures the history checkpoint.
type Store struct {
	// Kind is memory, redis or sqlite. Empty disables checkpoints.
	Kind        string `json:"kind,omitempty" yaml:"kind,omitempty"`
	RedisURL    string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	SQLitePath  string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`
	Prefix      string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	MaxMessages int    `json:"max_messages,omitempty" yaml:"max_messages,omitempty"`
}

// Server configures the JSON-RPC surface.
type Server struct {
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
}

// Tavily configures the web_search tool.
type Tavily struct {
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// Load returns the configuration from file, with ${ENV} references expanded
// and defaults applied. An empty file name returns the defaults.
func Load(file string) (*Configuration, error) {
	cfg := new(Configuration)
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "failed to load config %q", file)
		}
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Configuration) applyDefaults() error {
	c.Loop.MaxRounds = values.NumbersCoalesce(c.Loop.MaxRounds, assistants.DefaultMaxRounds)
	c.Dispatcher.ToolTimeout = values.StringsCoalesce(c.Dispatcher.ToolTimeout, DefaultToolTimeout)
	c.Dispatcher.ResultFormat = values.StringsCoalesce(c.Dispatcher.ResultFormat, encoding.ModeDefault)
	c.Server.ListenAddr = values.StringsCoalesce(c.Server.ListenAddr, DefaultListenAddr)
	c.Store.Prefix = values.StringsCoalesce(c.Store.Prefix, "toolflow")

	if _, err := c.Dispatcher.Timeout(); err != nil {
		return err
	}
	if _, err := encoding.NewEncoder(c.Dispatcher.ResultFormat); err != nil {
		return err
	}
	switch c.Store.Kind {
	case "", StoreMemory, StoreRedis, StoreSQLite:
	default:
		return errors.Errorf("unsupported store kind: %q", c.Store.Kind)
	}
	return nil
}

// Timeout returns the parsed tool timeout.
func (d *Dispatcher) Timeout() (time.Duration, error) {
	if d.ToolTimeout == "" {
		return dispatcher.DefaultTimeout, nil
	}
	t, err := time.ParseDuration(d.ToolTimeout)
	if err != nil {
		return 0, errors.WithMessagef(err, "invalid tool_timeout %q", d.ToolTimeout)
	}
	return t, nil
}

// Options returns the dispatcher options.
func (d *Dispatcher) Options() []dispatcher.Option {
	timeout, _ := d.Timeout()
	return []dispatcher.Option{
		dispatcher.WithTimeout(timeout),
		dispatcher.WithStrictParameters(d.StrictParameters),
	}
}

// LoopOptions returns the assistant options.
func (c *Configuration) LoopOptions() []assistants.Option {
	opts := []assistants.Option{
		assistants.WithMaxRounds(c.Loop.MaxRounds),
		assistants.WithResultFormat(c.Dispatcher.ResultFormat),
	}
	if c.Loop.SystemPrompt != "" {
		opts = append(opts, assistants.WithSystemPrompt(c.Loop.SystemPrompt))
	}
	if c.Loop.Temperature > 0 {
		opts = append(opts, assistants.WithTemperature(c.Loop.Temperature))
	}
	if c.Loop.MaxTokens > 0 {
		opts = append(opts, assistants.WithMaxTokens(c.Loop.MaxTokens))
	}
	return opts
}

// Package config loads Chorus's runtime settings: the agent home directory,
// default model behaviour, the Slack gateway, the Kafka audit mirror, tool
// limits, and the roster of agents to bind on startup. Loading follows the
// teacher's convention: a JSON file provides the base, environment
// variables (via github.com/kelseyhightower/envconfig) override it group by
// group.
package config

import (
	"path/filepath"
	"regexp"
	"time"

	"github.com/George-Strauch/chorus/internal/auditbus"
	"github.com/George-Strauch/chorus/internal/gateway"
)

// Config is the root configuration struct.
type Config struct {
	Paths  PathsConfig         `json:"paths"`
	Model  ModelConfig         `json:"model"`
	Slack  gateway.SlackConfig `json:"slack"`
	Audit  auditbus.Config     `json:"audit"`
	Tools  ToolsConfig         `json:"tools"`
	Agents []AgentConfig       `json:"agents"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups filesystem path settings. Home is the root under which
// every agent gets its own workspace subdirectory and the shared sqlite
// store lives.
type PathsConfig struct {
	Home string `json:"home"`
}

// ---------------------------------------------------------------------------
// Model – default LLM behaviour, overridable per agent
// ---------------------------------------------------------------------------

// ModelConfig groups default LLM model and tool-loop settings. An
// AgentConfig with its own Model overrides Name for that agent only.
type ModelConfig struct {
	Name              string  `json:"name" envconfig:"MODEL"`
	MaxTokens         int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature       float64 `json:"temperature" envconfig:"TEMPERATURE"`
	MaxToolIterations int     `json:"maxToolIterations" envconfig:"MAX_TOOL_ITERATIONS"`

	AnthropicAPIKey  string `json:"anthropicApiKey,omitempty" envconfig:"ANTHROPIC_API_KEY"`
	AnthropicAPIBase string `json:"anthropicApiBase,omitempty" envconfig:"ANTHROPIC_API_BASE"`
	OpenAIAPIKey     string `json:"openaiApiKey,omitempty" envconfig:"OPENAI_API_KEY"`
	OpenAIAPIBase    string `json:"openaiApiBase,omitempty" envconfig:"OPENAI_API_BASE"`
}

// ---------------------------------------------------------------------------
// Tools – tool-specific behaviour
// ---------------------------------------------------------------------------

// ToolsConfig contains tool-specific settings.
type ToolsConfig struct {
	Exec ExecToolConfig `json:"exec"`
}

// ExecToolConfig mirrors execshell's tunables. Load fills and defaults these
// values, but cmd/chorus does not pass them on: the shell executor it builds
// uses execshell's own DefaultTimeout and DefaultMaxOutputBytes.
type ExecToolConfig struct {
	Timeout        time.Duration `json:"timeout" envconfig:"EXEC_TIMEOUT"`
	MaxOutputBytes int           `json:"maxOutputBytes" envconfig:"EXEC_MAX_OUTPUT_BYTES"`
}

// ---------------------------------------------------------------------------
// Agents – the roster bound at startup
// ---------------------------------------------------------------------------

// AgentConfig describes one agent identity: the channel it owns, its
// permission profile, and the docs text always injected into its system
// prompt. Model, when empty, falls back to ModelConfig.Name.
type AgentConfig struct {
	Name        string `json:"name"`
	ChannelID   string `json:"channelId"`
	Model       string `json:"model,omitempty"`
	Permissions string `json:"permissions"` // preset name ("open"/"standard"/"locked") or a JSON profile
	Docs        string `json:"docs,omitempty"`
}

var agentNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,30}[a-z0-9]$`)

// ValidAgentName reports whether name satisfies the agent-name grammar,
// checked by cmd/chorus before it binds an agent.
func ValidAgentName(name string) bool {
	return agentNamePattern.MatchString(name)
}

// WorkspacePath returns the filesystem root for one agent's workspace,
// rooted under Paths.Home.
func (c *Config) WorkspacePath(agent string) string {
	return filepath.Join(c.Paths.Home, "agents", agent)
}

// DBPath returns the path to the shared sqlite store, rooted under
// Paths.Home.
func (c *Config) DBPath() string {
	return filepath.Join(c.Paths.Home, "chorus.db")
}

// DefaultConfig returns a Config with sensible defaults. No agents are
// registered by default; the roster comes from the config file.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Home: "~/.chorus-agents",
		},
		Model: ModelConfig{
			Name:              "claude-sonnet-4-5",
			MaxTokens:         8192,
			Temperature:       0.7,
			MaxToolIterations: 25,
		},
		Slack: gateway.SlackConfig{
			APIBase: "https://slack.com/api",
		},
		Tools: ToolsConfig{
			Exec: ExecToolConfig{
				Timeout:        60 * time.Second,
				MaxOutputBytes: 50_000,
			},
		},
	}
}

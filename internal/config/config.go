package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"adfbridge/internal/logging"
	"adfbridge/internal/tracker"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "adfbridge.yaml"

// ErrMissingCredentials is returned by ValidateCredentials.
var ErrMissingCredentials = errors.New("missing Jira credentials")

// Config holds all adfbridge configuration.
type Config struct {
	Jira      JiraConfig      `yaml:"jira"`
	MCP       MCPConfig       `yaml:"mcp"`
	Journal   JournalConfig   `yaml:"journal"`
	DevServer DevServerConfig `yaml:"devserver"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// JiraConfig configures the direct REST transport.
type JiraConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	APIToken string `yaml:"api_token"`
	Timeout  string `yaml:"timeout"`
}

// MCPConfig configures the protocol server client.
type MCPConfig struct {
	URL        string `yaml:"url"`
	Timeout    string `yaml:"timeout"`
	UpdateTool string `yaml:"update_tool"`
}

// JournalConfig configures the submission journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DevServerConfig configures the auto-restarting protocol server.
type DevServerConfig struct {
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args"`
	WatchDir    string   `yaml:"watch_dir"`
	Extensions  []string `yaml:"extensions"`
	Debounce    string   `yaml:"debounce"`
	StopTimeout string   `yaml:"stop_timeout"`
}

// LoggingConfig configures process logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Jira: JiraConfig{
			Timeout: "30s",
		},
		MCP: MCPConfig{
			URL:        "http://localhost:8000/mcp",
			Timeout:    "60s",
			UpdateTool: tracker.DefaultUpdateTool,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(logging.DirName, "journal.db"),
		},
		DevServer: DevServerConfig{
			Command:     "mcp-atlassian",
			Args:        []string{"--transport", "streamable-http", "--port", "8000"},
			WatchDir:    "src",
			Extensions:  []string{".py"},
			Debounce:    "500ms",
			StopTimeout: "5s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a .env file from the working directory when present, then the
// YAML file at path (defaults when missing), then environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logging.ConfigWarn("could not read .env: %v", err)
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		logging.Config("loaded %s", path)
	case os.IsNotExist(err):
		logging.ConfigDebug("no config at %s, using defaults", path)
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("JIRA_URL"); v != "" {
		c.Jira.URL = v
	}
	if v := os.Getenv("JIRA_USERNAME"); v != "" {
		c.Jira.Username = v
	}
	if v := os.Getenv("JIRA_API_TOKEN"); v != "" {
		c.Jira.APIToken = v
	}
	if v := os.Getenv("MCP_URL"); v != "" {
		c.MCP.URL = v
	}
	if v := os.Getenv("MCP_UPDATE_TOOL"); v != "" {
		c.MCP.UpdateTool = v
	}
	if v := os.Getenv("ADFBRIDGE_JOURNAL"); v != "" {
		switch strings.ToLower(v) {
		case "off", "false", "0", "no":
			c.Journal.Enabled = false
		default:
			c.Journal.Enabled = true
			c.Journal.Path = v
		}
	}
}

// Credentials returns the REST credentials.
func (c *Config) Credentials() tracker.Credentials {
	return tracker.Credentials{
		BaseURL:  strings.TrimRight(c.Jira.URL, "/"),
		Username: c.Jira.Username,
		APIToken: c.Jira.APIToken,
	}
}

// ValidateCredentials reports which credential variables are unset.
func (c *Config) ValidateCredentials() error {
	var missing []string
	if c.Jira.URL == "" {
		missing = append(missing, "JIRA_URL")
	}
	if c.Jira.Username == "" {
		missing = append(missing, "JIRA_USERNAME")
	}
	if c.Jira.APIToken == "" {
		missing = append(missing, "JIRA_API_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks durations and required values.
func (c *Config) Validate() error {
	if c.MCP.URL == "" {
		return fmt.Errorf("mcp.url is required")
	}
	if c.MCP.UpdateTool == "" {
		return fmt.Errorf("mcp.update_tool is required")
	}
	for name, v := range map[string]string{
		"jira.timeout":           c.Jira.Timeout,
		"mcp.timeout":            c.MCP.Timeout,
		"devserver.debounce":     c.DevServer.Debounce,
		"devserver.stop_timeout": c.DevServer.StopTimeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			if _, nerr := strconv.Atoi(v); nerr != nil {
				return fmt.Errorf("invalid %s %q: %w", name, v, err)
			}
		}
	}
	return nil
}

// GetJiraTimeout returns the REST timeout as a duration.
func (c *Config) GetJiraTimeout() time.Duration {
	return parseDuration(c.Jira.Timeout, 30*time.Second)
}

// GetMCPTimeout returns the protocol client timeout as a duration.
func (c *Config) GetMCPTimeout() time.Duration {
	return parseDuration(c.MCP.Timeout, 60*time.Second)
}

// GetDebounce returns the dev server debounce window.
func (c *Config) GetDebounce() time.Duration {
	return parseDuration(c.DevServer.Debounce, 500*time.Millisecond)
}

// GetStopTimeout returns how long a stopping server may take before it is killed.
func (c *Config) GetStopTimeout() time.Duration {
	return parseDuration(c.DevServer.StopTimeout, 5*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	// bare numbers are seconds
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

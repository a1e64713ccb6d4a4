package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"lsp-tester/src/internal/common"
	"lsp-tester/src/internal/constants"
	"lsp-tester/src/internal/registry"
	"lsp-tester/src/internal/types"
)

// Config contains the harness configuration
type Config struct {
	Servers  map[string]*ServerConfig `yaml:"servers"`
	Timeouts TimeoutConfig            `yaml:"timeouts,omitempty"`
	Logging  LoggingConfig            `yaml:"logging,omitempty"`
	// Settings is answered to workspace/configuration requests
	Settings map[string]interface{} `yaml:"settings,omitempty"`
}

// ServerConfig contains configuration for a single LSP server
type ServerConfig struct {
	Command               string            `yaml:"command"`
	Args                  []string          `yaml:"args"`
	WorkingDir            string            `yaml:"working_dir,omitempty"`
	Env                   map[string]string `yaml:"env,omitempty"`
	InitializationOptions interface{}       `yaml:"initialization_options,omitempty"`
}

// TimeoutConfig bounds the harness's waits. Zero values fall back to the defaults.
type TimeoutConfig struct {
	Request     time.Duration `yaml:"request,omitempty"`
	Initialize  time.Duration `yaml:"initialize,omitempty"`
	Diagnostics time.Duration `yaml:"diagnostics,omitempty"`
	Shutdown    time.Duration `yaml:"shutdown,omitempty"`
}

// LoggingConfig selects the component log level
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig decodes and validates YAML configuration, filling default timeouts
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.Timeouts = cfg.Timeouts.WithDefaults()
	return &cfg, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := MarshalConfig(cfg)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MarshalConfig encodes configuration as YAML
func MarshalConfig(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// GenerateDefaultConfig generates a default configuration file
func GenerateDefaultConfig(path string) error {
	return SaveConfig(GetDefaultConfig(), path)
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if len(cfg.Servers) == 0 {
		return fmt.Errorf("servers configuration is required")
	}

	for language, serverConfig := range cfg.Servers {
		if serverConfig == nil || serverConfig.Command == "" {
			return fmt.Errorf("command is required for language %s", language)
		}
	}

	for name, d := range map[string]time.Duration{
		"request":     cfg.Timeouts.Request,
		"initialize":  cfg.Timeouts.Initialize,
		"diagnostics": cfg.Timeouts.Diagnostics,
		"shutdown":    cfg.Timeouts.Shutdown,
	} {
		if d < 0 {
			return fmt.Errorf("timeout %s must be positive, got %v", name, d)
		}
	}

	if _, err := common.ParseLogLevel(cfg.Logging.Level); err != nil {
		return err
	}

	return nil
}

// WithDefaults returns a copy with unset timeouts replaced by the harness defaults
func (t TimeoutConfig) WithDefaults() TimeoutConfig {
	if t.Request == 0 {
		t.Request = constants.DefaultRequestTimeout
	}
	if t.Initialize == 0 {
		t.Initialize = constants.DefaultInitializeTimeout
	}
	if t.Diagnostics == 0 {
		t.Diagnostics = constants.DefaultDiagnosticsTimeout
	}
	if t.Shutdown == 0 {
		t.Shutdown = constants.ProcessShutdownTimeout
	}
	return t
}

// LogLevel parses the configured level; an empty level is info
func (c *Config) LogLevel() common.LogLevel {
	level, err := common.ParseLogLevel(c.Logging.Level)
	if err != nil {
		return common.LogInfo
	}
	return level
}

// Languages returns the configured language names, sorted
func (c *Config) Languages() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClientConfigFor resolves the launch config for a language. Registry environment
// defaults are merged under the configured env, and the working dir falls back to rootDir.
func (c *Config) ClientConfigFor(language, rootDir string) (types.ClientConfig, error) {
	sc, ok := c.Servers[language]
	if !ok || sc == nil {
		return types.ClientConfig{}, fmt.Errorf("no server configured for language %s (configured: %v)", language, c.Languages())
	}

	workingDir := sc.WorkingDir
	if workingDir == "" {
		workingDir = rootDir
	}

	env := map[string]string{}
	initOpts := sc.InitializationOptions
	if info, known := registry.GetLanguageByName(language); known {
		for k, v := range info.GetEnvironmentWithWorkingDir(workingDir) {
			env[k] = v
		}
		if initOpts == nil && len(info.InitializationOptions) > 0 {
			initOpts = info.GetInitOptions()
		}
	}
	for k, v := range sc.Env {
		env[k] = v
	}

	return types.ClientConfig{
		Command:               sc.Command,
		Args:                  append([]string{}, sc.Args...),
		WorkingDir:            workingDir,
		Env:                   env,
		InitializationOptions: initOpts,
	}, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lsp-tester", "config.yaml")
}

// GetDefaultConfig returns a configuration with every registry language's default server
func GetDefaultConfig() *Config {
	cfg := &Config{
		Servers:  make(map[string]*ServerConfig),
		Timeouts: TimeoutConfig{}.WithDefaults(),
		Logging:  LoggingConfig{Level: "info"},
	}
	for _, name := range registry.GetLanguageNames() {
		cfg.Servers[name] = defaultServerConfig(name)
	}
	return cfg
}

func defaultServerConfig(language string) *ServerConfig {
	info, ok := registry.GetLanguageByName(language)
	if !ok {
		return nil
	}
	return &ServerConfig{
		Command: info.DefaultCommand,
		Args:    append([]string{}, info.DefaultArgs...),
	}
}

// GenerateConfigForLanguages generates a Config for the specified languages only
func GenerateConfigForLanguages(languages []string) *Config {
	cfg := &Config{
		Servers:  make(map[string]*ServerConfig),
		Timeouts: TimeoutConfig{}.WithDefaults(),
		Logging:  LoggingConfig{Level: "info"},
	}
	if len(languages) == 0 {
		common.CLILogger.Warn("No languages provided, returning empty config")
		return cfg
	}

	for _, language := range languages {
		if sc := defaultServerConfig(language); sc != nil {
			cfg.Servers[language] = sc
			common.CLILogger.Debug("Added %s server configuration", language)
		} else {
			common.CLILogger.Warn("No default configuration found for language: %s", language)
		}
	}

	if len(cfg.Servers) == 0 {
		common.CLILogger.Warn("No valid server configurations generated")
	}

	return cfg
}

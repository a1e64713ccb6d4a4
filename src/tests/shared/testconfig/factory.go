package testconfig

import (
	"time"

	"lsp-tester/src/config"
	"lsp-tester/src/tests/shared/fakelsp"
)

// FakeLanguage is the config key the fake server is registered under
const FakeLanguage = "fake"

// NewFakeServerConfig returns a server config that re-executes the test binary at exe
// as the fake language server. Extra env entries script its behavior (see fakelsp.Env*).
func NewFakeServerConfig(exe string, env map[string]string) *config.ServerConfig {
	merged := map[string]string{fakelsp.EnvServerMode: "1"}
	for k, v := range env {
		merged[k] = v
	}
	return &config.ServerConfig{
		Command: exe,
		Args:    []string{"-test.run=^$"},
		Env:     merged,
	}
}

// NewFakeConfig creates a configuration with only the fake server and short timeouts
func NewFakeConfig(exe string, env map[string]string) *config.Config {
	return &config.Config{
		Servers: map[string]*config.ServerConfig{
			FakeLanguage: NewFakeServerConfig(exe, env),
		},
		Timeouts: NewFastTimeouts(),
		Logging:  config.LoggingConfig{Level: "info"},
		Settings: map[string]interface{}{
			fakelsp.ServerName: map[string]interface{}{"strict": true},
		},
	}
}

// NewFastTimeouts keeps failing tests quick
func NewFastTimeouts() config.TimeoutConfig {
	return config.TimeoutConfig{
		Request:     2 * time.Second,
		Initialize:  5 * time.Second,
		Diagnostics: 2 * time.Second,
		Shutdown:    2 * time.Second,
	}
}

// NewMultiLangConfig creates a configuration with the default servers of the given languages
func NewMultiLangConfig(languages []string) *config.Config {
	cfg := config.GenerateConfigForLanguages(languages)
	cfg.Timeouts = NewFastTimeouts()
	return cfg
}

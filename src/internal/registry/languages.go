package registry

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LanguageInfo describes a language the harness can drive a server for
type LanguageInfo struct {
	Name           string   // Registry name (typescript, python, java, ...)
	LanguageID     string   // LSP languageId sent in didOpen
	Extensions     []string // File extensions for this language
	DefaultCommand string   // Default LSP server command
	DefaultArgs    []string // Default arguments for the LSP server

	InitializationOptions map[string]interface{} // LSP initialization options
	InitializeTimeout     time.Duration          // Initialize timeout duration
	EnvironmentVars       map[string]string      // Environment variables to set
}

var languageRegistry = map[string]LanguageInfo{
	"go": {
		Name:              "go",
		LanguageID:        "go",
		Extensions:        []string{".go"},
		DefaultCommand:    "gopls",
		DefaultArgs:       []string{"serve"},
		InitializeTimeout: 15 * time.Second,
	},
	"python": {
		Name:              "python",
		LanguageID:        "python",
		Extensions:        []string{".py", ".pyi"},
		DefaultCommand:    "pyright-langserver",
		DefaultArgs:       []string{"--stdio"},
		InitializeTimeout: 30 * time.Second,
	},
	"javascript": {
		Name:              "javascript",
		LanguageID:        "javascript",
		Extensions:        []string{".js", ".mjs", ".cjs"},
		DefaultCommand:    "typescript-language-server",
		DefaultArgs:       []string{"--stdio"},
		InitializeTimeout: 30 * time.Second,
	},
	"javascriptreact": {
		Name:              "javascriptreact",
		LanguageID:        "javascriptreact",
		Extensions:        []string{".jsx"},
		DefaultCommand:    "typescript-language-server",
		DefaultArgs:       []string{"--stdio"},
		InitializeTimeout: 30 * time.Second,
	},
	"typescript": {
		Name:              "typescript",
		LanguageID:        "typescript",
		Extensions:        []string{".ts", ".mts", ".cts"},
		DefaultCommand:    "typescript-language-server",
		DefaultArgs:       []string{"--stdio"},
		InitializeTimeout: 30 * time.Second,
	},
	"typescriptreact": {
		Name:              "typescriptreact",
		LanguageID:        "typescriptreact",
		Extensions:        []string{".tsx"},
		DefaultCommand:    "typescript-language-server",
		DefaultArgs:       []string{"--stdio"},
		InitializeTimeout: 30 * time.Second,
	},
	"java": {
		Name:              "java",
		LanguageID:        "java",
		Extensions:        []string{".java"},
		DefaultCommand:    "jdtls",
		InitializeTimeout: 90 * time.Second,
	},
	"rust": {
		Name:              "rust",
		LanguageID:        "rust",
		Extensions:        []string{".rs"},
		DefaultCommand:    "rust-analyzer",
		InitializeTimeout: 15 * time.Second,
		InitializationOptions: map[string]interface{}{
			"checkOnSave": map[string]interface{}{
				"enable": true,
			},
		},
		EnvironmentVars: map[string]string{
			"CARGO_MANIFEST_DIR": "${workingDir}",
		},
	},
	"csharp": {
		Name:              "csharp",
		LanguageID:        "csharp",
		Extensions:        []string{".cs"},
		DefaultCommand:    "omnisharp",
		DefaultArgs:       []string{"-lsp"},
		InitializeTimeout: 45 * time.Second,
		EnvironmentVars: map[string]string{
			"DOTNET_CLI_TELEMETRY_OPTOUT": "1",
			"DOTNET_NOLOGO":               "1",
		},
	},
}

// PlainTextLanguageID is used for files with no registered extension
const PlainTextLanguageID = "plaintext"

// Extension to language mapping for efficient lookups
var extensionToLanguage = func() map[string]string {
	m := make(map[string]string)
	for name, lang := range languageRegistry {
		for _, ext := range lang.Extensions {
			m[ext] = name
		}
	}
	return m
}()

// GetLanguageByName returns language information by name
func GetLanguageByName(name string) (*LanguageInfo, bool) {
	lang, exists := languageRegistry[name]
	if !exists {
		return nil, false
	}
	return &lang, true
}

// GetLanguageByExtension returns language information by file extension
func GetLanguageByExtension(ext string) (*LanguageInfo, bool) {
	langName, exists := extensionToLanguage[strings.ToLower(ext)]
	if !exists {
		return nil, false
	}
	lang := languageRegistry[langName]
	return &lang, true
}

// DetectLanguageID returns the LSP languageId for a file path, or plaintext when unknown
func DetectLanguageID(path string) string {
	if lang, ok := GetLanguageByExtension(filepath.Ext(path)); ok {
		return lang.LanguageID
	}
	return PlainTextLanguageID
}

// GetLanguageNames returns the sorted list of registered language names
func GetLanguageNames() []string {
	names := make([]string, 0, len(languageRegistry))
	for name := range languageRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsLanguageSupported checks if a language is supported
func IsLanguageSupported(name string) bool {
	_, exists := languageRegistry[name]
	return exists
}

// ValidateLanguage validates if the language is supported and returns error if not
func ValidateLanguage(name string) error {
	if !IsLanguageSupported(name) {
		return fmt.Errorf("unsupported language: %s (supported: %v)", name, GetLanguageNames())
	}
	return nil
}

// GetInitOptions returns a copy of the initialization options for this language
func (l *LanguageInfo) GetInitOptions() map[string]interface{} {
	result := make(map[string]interface{}, len(l.InitializationOptions))
	for k, v := range l.InitializationOptions {
		result[k] = v
	}
	return result
}

// GetEnvironmentWithWorkingDir returns environment variables with ${workingDir} substituted
func (l *LanguageInfo) GetEnvironmentWithWorkingDir(workingDir string) map[string]string {
	result := make(map[string]string, len(l.EnvironmentVars))
	for k, v := range l.EnvironmentVars {
		if v == "${workingDir}" && workingDir != "" {
			v = workingDir
		}
		result[k] = v
	}
	return result
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	versionpkg "lsp-tester/src/internal/version"
)

// CLI Constants
const (
	CmdRun        = "run"
	CmdConfig     = "config"
	CmdConfigInit = "init"
	CmdConfigShow = "show"
	CmdVersion    = "version"
	FlagConfig    = "config"
	FlagLang      = "lang"
	FlagWait      = "wait"
	FlagFailOnErr = "fail-on-error"
	FlagWatch     = "watch"
	FlagNoColor   = "no-color"
	FlagLogLevel  = "log-level"
	FlagVerbose   = "verbose"
	FlagOut       = "out"
	FlagRoot      = "root"
	FlagForce     = "force"
	FlagJobs      = "jobs"
	EnvPrefix     = "LSP_TESTER"
)

// DefaultJobs is how many files a run diagnoses in parallel
const DefaultJobs = 4

// Root command
var rootCmd = &cobra.Command{
	Use:   "lsp-tester",
	Short: "LSP Tester - drive a language server as a black box and check its diagnostics",
	Long: `LSP Tester starts a Language Server Protocol server, performs the initialize
handshake, opens documents and reports the diagnostics the server publishes.

QUICK START:
  lsp-tester config init                           # Write ~/.lsp-tester/config.yaml
  lsp-tester run --lang python main.py             # Open a file and print its diagnostics

AVAILABLE COMMANDS:
    lsp-tester run PATH...                         # Diagnose files with the configured server
    lsp-tester config init                         # Write the default configuration
    lsp-tester config show                         # Print the effective configuration
    lsp-tester version                             # Show version information

ENVIRONMENT:
  Every flag can also be set as LSP_TESTER_<FLAG>, e.g. LSP_TESTER_CONFIG=./servers.yaml
  or LSP_TESTER_FAIL_ON_ERROR=true. Command-line flags win over the environment.

EXIT STATUS:
  0 success, 1 when --fail-on-error found error diagnostics or failed files,
  2 when the command itself failed.

Use 'lsp-tester <command> --help' for detailed command information.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Command definitions
var (
	runCmd = &cobra.Command{
		Use:   CmdRun + " PATH...",
		Short: "Open files in a language server and report diagnostics",
		Long: `Spawn the language server configured for --lang, open every file, wait for the first
diagnostics the server publishes for each and print a report.

A directory PATH stands for the source files below it, skipping what .gitignore
excludes. When --lang is omitted it is detected from the first file's extension.

Usage Examples:
  lsp-tester run --lang typescript src/index.ts
  lsp-tester run --config servers.yaml --wait 10s a.py b.py
  lsp-tester run --fail-on-error main.go        # Exit non-zero on error diagnostics
  lsp-tester run --jobs 1 a.py b.py             # Diagnose one file at a time
  lsp-tester run --lang go ./internal           # Every .go file under ./internal
  lsp-tester run --watch src/app.ts             # Re-diagnose on every save until Ctrl+C`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRunCmd,
	}

	configCmd = &cobra.Command{
		Use:   CmdConfig,
		Short: "Manage the lsp-tester configuration",
		RunE:  runConfigCmd,
	}

	configInitCmd = &cobra.Command{
		Use:   CmdConfigInit,
		Short: "Write the default configuration",
		Long: `Write a configuration with the default server of every supported language.

By default the file goes to ~/.lsp-tester/config.yaml. An existing file is only
replaced with --force.`,
		Args: cobra.NoArgs,
		RunE: runConfigInitCmd,
	}

	configShowCmd = &cobra.Command{
		Use:   CmdConfigShow,
		Short: "Print the effective configuration",
		Long: `Print the configuration a run would use after defaults, flags and
LSP_TESTER_* environment variables are applied.`,
		Args: cobra.NoArgs,
		RunE: runConfigShowCmd,
	}

	versionCmd = &cobra.Command{
		Use:   CmdVersion,
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE:  runVersionCmd,
	}
)

func init() {
	rootCmd.PersistentFlags().StringP(FlagConfig, "c", "", "Configuration file path (default ~/.lsp-tester/config.yaml if present)")
	rootCmd.PersistentFlags().String(FlagLogLevel, "", "Log level: debug, info, warn, error")

	runCmd.Flags().StringP(FlagLang, "l", "", "Language whose server to run (detected from the first file when empty)")
	runCmd.Flags().Duration(FlagWait, 0, "How long to wait for each file's diagnostics (default from config, 5s)")
	runCmd.Flags().Bool(FlagFailOnErr, false, "Exit with an error when any file has error diagnostics")
	runCmd.Flags().Bool(FlagNoColor, false, "Disable colored output")
	runCmd.Flags().BoolP(FlagWatch, "w", false, "Keep the files open and re-diagnose them when they change on disk")
	runCmd.Flags().String(FlagRoot, "", "Workspace root sent in initialize (default current directory)")
	runCmd.Flags().IntP(FlagJobs, "j", DefaultJobs, "How many files to keep waiting on diagnostics at once")

	configInitCmd.Flags().StringP(FlagOut, "o", "", "Output file (default ~/.lsp-tester/config.yaml)")
	configInitCmd.Flags().BoolP(FlagForce, "f", false, "Overwrite an existing file")

	versionCmd.Flags().BoolP(FlagVerbose, "v", false, "Show build details")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func runConfigCmd(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

func runVersionCmd(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	if v.GetBool(FlagVerbose) {
		fmt.Fprintln(cmd.OutOrStdout(), versionpkg.GetFullVersionInfo())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "lsp-tester %s\n", versionpkg.GetVersion())
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

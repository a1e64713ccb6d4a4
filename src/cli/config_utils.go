package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lsp-tester/src/config"
	"lsp-tester/src/internal/common"
)

// newViper layers LSP_TESTER_* environment variables under the command's flags.
// A flag given on the command line wins; otherwise the environment, then the flag default.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	return v, nil
}

// loadEffectiveConfig resolves the configuration a command runs with. An explicit
// --config must load; the default path is used only when it exists, and the built-in
// defaults otherwise. The returned path is empty when no file was read.
func loadEffectiveConfig(v *viper.Viper) (*config.Config, string, error) {
	path := v.GetString(FlagConfig)

	var cfg *config.Config
	switch {
	case path != "":
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", path, err)
		}
		cfg = loaded
	case common.IsRegularFile(config.GetDefaultConfigPath()):
		path = config.GetDefaultConfigPath()
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load default config from %s: %w", path, err)
		}
		cfg = loaded
	default:
		common.CLILogger.Debug("No configuration file found, using built-in defaults")
		cfg = config.GetDefaultConfig()
	}

	if level := v.GetString(FlagLogLevel); level != "" {
		if _, err := common.ParseLogLevel(level); err != nil {
			return nil, "", err
		}
		cfg.Logging.Level = level
	}

	if wait := v.GetDuration(FlagWait); wait != 0 {
		if wait < 0 {
			return nil, "", fmt.Errorf("--%s must be positive, got %v", FlagWait, wait)
		}
		cfg.Timeouts.Diagnostics = wait
	}

	common.SetLogLevel(cfg.LogLevel())
	return cfg, path, nil
}

func runConfigInitCmd(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	out := v.GetString(FlagOut)
	if out == "" {
		out = config.GetDefaultConfigPath()
	}
	out, err = common.ExpandPath(out)
	if err != nil {
		return err
	}

	if common.IsRegularFile(out) && !v.GetBool(FlagForce) {
		return fmt.Errorf("config file %s already exists (use --%s to overwrite)", out, FlagForce)
	}

	if err := config.GenerateDefaultConfig(out); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote configuration to %s\n", out)
	return nil
}

func runConfigShowCmd(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	cfg, path, err := loadEffectiveConfig(v)
	if err != nil {
		return err
	}

	data, err := config.MarshalConfig(cfg)
	if err != nil {
		return err
	}

	if path == "" {
		path = "built-in defaults"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n", path)
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

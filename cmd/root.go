// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dojoctl/internal/config"
	"github.com/xkilldash9x/dojoctl/internal/observability"
	"github.com/xkilldash9x/dojoctl/internal/ui"
)

type contextKey string

const configKey contextKey = "config"

// envPrefix namespaces environment overrides, e.g. DOJOCTL_DOJO_URL.
const envPrefix = "DOJOCTL"

// flagKeys maps command-line flags onto their configuration keys. Flags a
// command does not define are skipped.
var flagKeys = map[string]string{
	"url":                 "dojo.url",
	"token":               "dojo.token",
	"username":            "dojo.username",
	"password":            "dojo.password",
	"ignore-tls-errors":   "network.ignore_tls_errors",
	"proxy":               "network.proxy_url",
	"log-level":           "logger.level",
	"log-format":          "logger.format",
	"log-file":            "logger.log_file",
	"product":             "upload.product",
	"engagement":          "upload.engagement",
	"scan-dir":            "upload.scan_dir",
	"component-tags":      "upload.component_tags",
	"separate-products":   "upload.separate_products",
	"no-reuse-engagement": "upload.no_reuse_engagement",
	"summary-file":        "upload.summary_file",
	"summary-format":      "upload.summary_format",
}

// NewRootCommand builds a fresh command tree. Each call returns independent
// flag state, so tests and embedders can run it repeatedly.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "dojoctl",
		Short:         "dojoctl uploads CI security scan reports to DefectDojo.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			observability.InitializeWithWriter(cfg.Logger, cmd.ErrOrStderr())
			observability.GetLogger().Debug("Starting dojoctl", zap.String("version", Version), zap.String("command", cmd.Name()))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./dojoctl.yaml)")
	pf.String("url", "", "DefectDojo base URL")
	pf.String("token", "", "DefectDojo API token")
	pf.String("username", "", "DefectDojo username (if not using a token)")
	pf.String("password", "", "DefectDojo password (if not using a token)")
	pf.Bool("ignore-tls-errors", false, "skip TLS certificate verification")
	pf.String("proxy", "", "HTTP proxy URL for all requests")
	pf.String("log-level", "", "console log level (debug, info, warn, error)")
	pf.String("log-format", "", "console log format (console, json)")
	pf.String("log-file", "", "write a rotating JSON log to this file")

	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newMetricsCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute(ctx context.Context) int {
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	defer observability.Sync()
	if err == nil {
		return 0
	}
	if !errors.Is(err, ErrRunFailed) {
		ui.NewConsole(stderr).Error("%v", err)
	}
	observability.GetLogger().Debug("Command execution failed", zap.Error(err))
	return 1
}

// initializeConfig reads in the config file, environment overrides and flags.
// Precedence, lowest first: defaults, file, environment, flags.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("could not resolve config path '%s': %w", cfgFile, err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("dojoctl")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return bindFlags(cmd.Flags(), v)
}

func bindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not initialized")
	}
	return cfg, nil
}

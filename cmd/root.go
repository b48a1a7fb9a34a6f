// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signupflow/internal/config"
	"github.com/xkilldash9x/signupflow/internal/flow"
	"github.com/xkilldash9x/signupflow/internal/observability"
)

const (
	envPrefix = "SIGNUPFLOW"
	// configKeyAnnotation ties a flag to the configuration key it overrides.
	configKeyAnnotation = "signupflow/config-key"
)

// app carries state shared by the command tree of one invocation.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	cfgFile string
	envFile string
}

// NewRootCommand builds a fresh command tree. Every call gets its own viper
// instance so tests and repeated invocations never share flag state.
func NewRootCommand() *cobra.Command {
	return newRootCommand(nil)
}

// newRootCommand lets tests substitute the browser used by `run`.
func newRootCommand(launch flow.Launcher) *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "signupflow",
		Short: "Provision a disposable mailbox, sign up, confirm and activate a trial.",
		// Version is set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd); err != nil {
				// Still report through a logger; config may be the thing that failed.
				observability.InitializeLogger(config.NewDefaultConfig().Logger)
				return err
			}
			observability.InitializeLogger(a.cfg.Logger)
			observability.GetLogger().Debug("Configuration loaded.",
				zap.String("version", Version),
				zap.String("config_file", a.v.ConfigFileUsed()),
			)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	bindFlag(flags, "log-level", "logger.level")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(a, launch),
		newMailboxCmd(a),
		newWatchCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree and prints any error to stderr.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
	}
	observability.Sync()
	return err
}

// bindFlag records which configuration key a flag overrides.
func bindFlag(flags *pflag.FlagSet, name, key string) {
	_ = flags.SetAnnotation(name, configKeyAnnotation, []string{key})
}

// load reads, in increasing precedence: defaults, the config file, the
// dotenv file, the environment, then flags set on the command line.
func (a *app) load(cmd *cobra.Command) error {
	if a.envFile != "" {
		// Never overrides variables that are already set.
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading env file %s: %w", a.envFile, err)
		}
	}

	v := a.v
	config.SetDefaults(v)
	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
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

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys, ok := f.Annotations[configKeyAnnotation]
		if !ok || len(keys) == 0 || !f.Changed {
			return
		}
		if err := v.BindPFlag(keys[0], f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return fmt.Errorf("failed to bind flags: %w", bindErr)
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

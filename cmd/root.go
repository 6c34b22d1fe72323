// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/brit/playwrightium/internal/browser"
	"github.com/brit/playwrightium/internal/config"
	"github.com/brit/playwrightium/internal/observability"
)

type contextKey struct{}

var configKey = contextKey{}

// Execute runs the CLI with a context that ends on interrupt.
func Execute(ctx context.Context) error {
	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// newRootCmd builds the command tree. Manager options reach every session
// the run command creates.
func newRootCmd(opts ...browser.ManagerOption) *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "playwrightium",
		Short:         "Playwrightium drives browsers through a WebDriver-style API.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.Initialize(cfg.Logger, zapcore.AddSync(cmd.ErrOrStderr()))
			observability.GetLogger().Debug("Starting playwrightium.", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			observability.Sync()
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./playwrightium.yaml, then $HOME)")
	root.SetVersionTemplate("{{.Name}} version {{.Version}}\n")

	root.AddCommand(newRunCmd(v, opts...))
	root.AddCommand(newValidateCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// configFrom returns the configuration stored by the root pre-run.
func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/internal/app"
)

// ServeOptions serve 命令参数
type ServeOptions struct {
	ConfigFile string
}

// NewServeCommand 创建 serve 命令
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve <" + strings.Join(app.Services(), "|") + ">",
		Short: "Run one of the gacha services",
		Long: `Run a gacha service until SIGINT or SIGTERM.

Without --config the service looks for <service>.yaml in . and ./configs.
Any key can be overridden by a GACHA_ prefixed environment variable,
e.g. GACHA_HTTP_ADDR=:9000 or GACHA_LOG_LEVEL=debug.

Example:
  gacha serve profile --config configs/profile.yaml
  GACHA_ENV=prod gacha serve catalog`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: app.Services(),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "", "path to the config file")
	return cmd
}

func runServe(ctx context.Context, service string, opts *ServeOptions) error {
	bootLogger, err := clog.New(&clog.Config{Level: "info", Format: "json"}, clog.WithNamespace(service))
	if err != nil {
		return err
	}

	cfg, loader, err := app.LoadConfig(ctx, service, opts.ConfigFile, bootLogger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			a.Logger.Error("shutdown failed", clog.Error(err))
		}
	}()

	if err := a.WatchLogLevel(ctx, loader); err != nil {
		a.Logger.Warn("log level hot reload disabled", clog.Error(err))
	}
	if file := loader.ConfigFileUsed(); file != "" {
		a.Logger.Info("configuration loaded", clog.String("file", file))
	}
	return a.Run(ctx)
}

// Package cmd defines the CLI commands for the curator executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/curation-tracker/internal/app"
	"github.com/JakeFAU/curation-tracker/internal/config"
	"github.com/JakeFAU/curation-tracker/internal/tracking"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

const closeTimeout = 10 * time.Second

// App defines the application interface that commands use. Tests inject a
// mock through newApp.
type App interface {
	Logger() *zap.Logger
	Kinds() []string
	Tracker(kind string) (*tracking.Tracker, error)
	Submitter(kind string, ids []int64) (tracking.Submitter, error)
	Resume(ctx context.Context, kinds ...string) ([]*tracking.Session, error)
	Serve(ctx context.Context) error
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace
// it with a mock factory.
var newApp = func(ctx context.Context, configPath string) (App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg)
}

// newRootCmd creates the root command. The built App is written to *built so
// the caller can close it whatever the subcommand returns.
func newRootCmd(built *App) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "curator",
		Short: "Submit curation analysis jobs and track them to completion.",
		Long: `curator asks the curation backend to analyze products or posts and
follows the job by polling the backend's aggregate counters. Tracking state is
persisted, so an interrupted run can be picked up again with "curator resume".`,
		SilenceUsage: true,

		// Build the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			*built = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); CURATOR_* env vars override it")

	cmd.AddCommand(newAnalyzeCmd(), newResumeCmd(), newStatusCmd(), newServeCmd())
	return cmd
}

// execute runs the CLI with args and closes the App afterwards.
func execute(ctx context.Context, args []string, out io.Writer) error {
	var appInstance App
	root := newRootCmd(&appInstance)
	root.SetArgs(args)
	root.SetOut(out)
	err := root.ExecuteContext(ctx)
	if appInstance != nil {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if cerr := appInstance.Close(closeCtx); cerr != nil {
			appInstance.Logger().Warn("application shutdown incomplete", zap.Error(cerr))
		}
	}
	return err
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

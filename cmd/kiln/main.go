package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benaskins/kiln/internal/audit"
	"github.com/benaskins/kiln/internal/config"
	"github.com/benaskins/kiln/internal/driver"
	"github.com/benaskins/kiln/internal/tasklog"
)

var rootCmd = &cobra.Command{
	Use:               "kiln",
	Short:             "Run build steps with task-structured console output",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	configPath   string
	styleFlag    string
	verbosity    string
	colorFlag    string
	showDuration bool
	stderrOnly   bool
)

// Shared by every command; set up in setup.
var (
	logCtx   *tasklog.Context
	teardown = driver.NewTeardown()
	auditLog *audit.Logger
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.kiln/config.yaml)")
	flags.StringVar(&styleFlag, "style", "", "output style: indent, flat, number or debug")
	flags.StringVarP(&verbosity, "verbosity", "v", "", "mute, warn, info, verbose or debug")
	flags.StringVar(&colorFlag, "color", "", "colour output: auto, always or never")
	flags.BoolVar(&showDuration, "show-duration", false, "print how long each task took")
	flags.BoolVar(&stderrOnly, "stderr-only", false, "write all output to stderr")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	teardown.Run()
	if logCtx != nil {
		logCtx.FlushOutput()
	}
	if auditLog != nil {
		auditLog.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyFlags(cmd, cfg)

	opts, err := logOptions(cfg, isTerminal(os.Stdout))
	if err != nil {
		return err
	}
	logCtx = tasklog.New(opts...)
	slog.SetDefault(slog.New(logCtx.SlogHandler()))

	if cfg.AuditLog != "" {
		auditLog, err = audit.NewLogger(cfg.AuditLog)
		if err != nil {
			return err
		}
	}
	return nil
}

// applyFlags overrides config values with the flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("style") {
		cfg.Style = styleFlag
	}
	if flags.Changed("verbosity") {
		cfg.Verbosity = verbosity
	}
	if flags.Changed("color") {
		cfg.Color = colorFlag
	}
	if flags.Changed("show-duration") {
		cfg.ShowTaskDuration = showDuration
	}
	if flags.Changed("stderr-only") {
		cfg.LogOnStderr = stderrOnly
	}
}

func logOptions(cfg *config.Config, tty bool) ([]tasklog.Option, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	style, _ := tasklog.ParseStyle(cfg.Style)
	v, _ := tasklog.ParseVerbosity(cfg.Verbosity)
	return []tasklog.Option{
		tasklog.WithStyle(style),
		tasklog.WithVerbosity(v),
		tasklog.WithShowTaskDuration(cfg.ShowTaskDuration),
		tasklog.WithLogOnStderr(cfg.LogOnStderr),
		tasklog.WithColor(useColor(cfg.Color, tty)),
	}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benaskins/kiln/internal/build"
	"github.com/benaskins/kiln/internal/spec"
)

var buildCmd = &cobra.Command{
	Use:   "build [file]",
	Short: "Run a build file",
	Long:  "Run the steps of a build file (default ./kiln.yaml) as nested tasks, stopping at the first failing step.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBuild,
}

var watchCmd = &cobra.Command{
	Use:   "watch [file]",
	Short: "Run a build file again whenever its directory changes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(watchCmd)
}

func buildFile(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return defaultBuildFile
}

func newRunner() *build.Runner {
	opts := []build.Option{build.WithTeardown(teardown)}
	if auditLog != nil {
		opts = append(opts, build.WithAudit(auditLog))
	}
	return build.New(logCtx, opts...)
}

func runBuild(cmd *cobra.Command, args []string) error {
	b, err := spec.Load(buildFile(args))
	if err != nil {
		return err
	}
	sum, err := newRunner().Run(cmd.Context(), b)
	if err != nil {
		return fmt.Errorf("build %s failed", b.Build.Name)
	}
	logCtx.Verbose("%d steps run in %s", sum.Steps, sum.Duration)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	return newRunner().Watch(cmd.Context(), buildFile(args))
}

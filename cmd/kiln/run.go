package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/benaskins/kiln/internal/driver"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [--] command [args...]",
	Short: "Run one command inside a task",
	Long:  "Run a single program with its output nested under a task, as a build step would.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.SetInterspersed(false)
	f.String("dir", "", "working directory")
	f.StringArrayP("env", "e", nil, "extra environment variable, KEY=VALUE (repeatable)")
	f.Duration("timeout", 0, "kill the program after this long")
	f.Bool("no-fail", false, "report a non-zero exit code as a warning")
	f.Bool("capture", false, "replay the program's output if it fails")
	f.Bool("merge-stderr", false, "send stderr into stdout")
	f.Bool("inherit-io", false, "connect the program directly to the terminal")
	f.Bool("quiet-command", false, "do not wrap the program in a task")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	dir, _ := f.GetString("dir")
	envs, _ := f.GetStringArray("env")
	timeout, _ := f.GetDuration("timeout")
	noFail, _ := f.GetBool("no-fail")
	capture, _ := f.GetBool("capture")
	merge, _ := f.GetBool("merge-stderr")
	inherit, _ := f.GetBool("inherit-io")
	quiet, _ := f.GetBool("quiet-command")

	p := driver.NewProcess(logCtx, args...).
		SetWorkingDir(dir).
		SetLogCommand(!quiet).
		SetFailOnError(!noFail).
		SetMergeStderr(merge).
		SetCollectStdout(capture).
		SetCollectStderr(capture).
		SetDestroyOnShutdown(teardown)
	if inherit {
		p.SetInheritIO(true)
	}
	for _, kv := range envs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid --env %q: want KEY=VALUE", kv)
		}
		p.SetEnv(k, v)
	}
	if auditLog != nil {
		p.SetRecorder(auditLog)
	}

	ctx := cmd.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		logCtx.Warn("%s exited with code %d", args[0], res.ExitCode)
	}
	logCtx.Verbose("finished in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

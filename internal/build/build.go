// Package build runs the steps of a build file as nested tasks.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"strings"
	"time"

	"github.com/benaskins/kiln/internal/audit"
	"github.com/benaskins/kiln/internal/driver"
	"github.com/benaskins/kiln/internal/spec"
	"github.com/benaskins/kiln/internal/tasklog"
)

// Runner executes build specs, one step at a time, depth-first.
type Runner struct {
	log      *tasklog.Context
	logger   *slog.Logger
	teardown *driver.Teardown
	audit    *audit.Logger
}

// Option configures the runner.
type Option func(*Runner)

// WithTeardown registers every running step with t, so interrupting the host
// kills the step's process tree.
func WithTeardown(t *driver.Teardown) Option {
	return func(r *Runner) {
		r.teardown = t
	}
}

// WithAudit records builds and process runs to l.
func WithAudit(l *audit.Logger) Option {
	return func(r *Runner) {
		r.audit = l
	}
}

func New(log *tasklog.Context, opts ...Option) *Runner {
	r := &Runner{
		log:    log,
		logger: slog.With("component", "build"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StepError reports the step that stopped a build.
type StepError struct {
	// Path is the step's name and those of its enclosing steps, outermost
	// first.
	Path []string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", strings.Join(e.Path, "/"), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Summary describes a finished build.
type Summary struct {
	Build    string
	Steps    int // commands executed
	Duration time.Duration
}

// Run executes b. The first failing step stops the build; its error is
// returned as a *StepError.
func (r *Runner) Run(ctx context.Context, b *spec.BuildSpec) (*Summary, error) {
	start := time.Now()
	sum := &Summary{Build: b.Build.Name}
	r.record(audit.Entry{Action: audit.ActionBuildStart, Build: b.Build.Name})
	r.logger.Debug("starting build", "build", b.Build.Name, "steps", b.Count(), "dir", b.BaseDir())

	task := r.log.StartTask("Build " + b.Build.Name)
	err := r.runSteps(ctx, b, b.Steps, nil, b.BaseDir(), b.Env, sum)
	sum.Duration = time.Since(start)

	entry := audit.Entry{
		Action:     audit.ActionBuildFinish,
		Build:      b.Build.Name,
		DurationMS: sum.Duration.Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
		entry.ExitCode = exitCode(err)
		r.log.Error("%v", err)
		_ = task.End("Build " + b.Build.Name + " failed after " + tasklog.DurationToken + " ms")
	} else {
		_ = task.End("Build " + b.Build.Name + " done in " + tasklog.DurationToken + " ms")
	}
	r.record(entry)
	return sum, err
}

func (r *Runner) runSteps(ctx context.Context, b *spec.BuildSpec, steps []spec.Step, parent []string, dir string, env map[string]string, sum *Summary) error {
	for i := range steps {
		s := &steps[i]
		path := append(append([]string(nil), parent...), s.Name)
		if err := ctx.Err(); err != nil {
			return &StepError{Path: path, Err: fmt.Errorf("%w: %w", driver.ErrInterrupted, err)}
		}

		stepDir := dir
		if s.Dir != "" {
			stepDir = s.Dir
			if !filepath.IsAbs(stepDir) {
				stepDir = filepath.Join(dir, stepDir)
			}
		}
		stepEnv := env
		if len(s.Env) > 0 {
			stepEnv = maps.Clone(env)
			if stepEnv == nil {
				stepEnv = map[string]string{}
			}
			maps.Copy(stepEnv, s.Env)
		}

		task := r.log.StartTask(s.Name)
		var err error
		if len(s.Steps) > 0 {
			err = r.runSteps(ctx, b, s.Steps, path, stepDir, stepEnv, sum)
		} else {
			err = r.runCommand(ctx, b, s, path, stepDir, stepEnv)
			sum.Steps++
		}
		_ = task.Done()
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runCommand(ctx context.Context, b *spec.BuildSpec, s *spec.Step, path []string, dir string, env map[string]string) error {
	args, err := s.Args()
	if err != nil {
		return &StepError{Path: path, Err: err}
	}

	p := driver.NewProcess(r.log, args...).
		SetWorkingDir(dir).
		SetLogCommand(s.LogCommand).
		SetCollectStdout(s.CollectOutput).
		SetCollectStderr(s.CollectOutput).
		SetFailOnError(s.FailsOnError()).
		SetDestroyOnShutdown(r.teardown)
	for k, v := range env {
		p.SetEnv(k, v)
	}
	if r.audit != nil {
		p.SetRecorder(r.audit.ForStep(b.Build.Name, strings.Join(path, "/")))
	}

	runCtx := ctx
	if s.Timeout.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout.Duration)
		defer cancel()
	}

	res, err := p.Run(runCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s: %w", s.Timeout.Duration, err)
		}
		return &StepError{Path: path, Err: err}
	}
	if res.ExitCode != 0 {
		r.log.Warn("%s exited with code %d", s.Name, res.ExitCode)
	}
	return nil
}

func (r *Runner) record(e audit.Entry) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Log(e); err != nil {
		r.logger.Warn("writing audit entry failed", "action", e.Action, "error", err)
	}
}

func exitCode(err error) int {
	var exitErr *driver.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

package spec

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"
)

var nameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// BuildSpec is the top-level structure of a build file.
type BuildSpec struct {
	Build Build             `yaml:"build"`
	Env   map[string]string `yaml:"env,omitempty"`
	Steps []Step            `yaml:"steps"`

	// Path is the file the spec was loaded from, if any.
	Path string `yaml:"-"`
}

type Build struct {
	Name string `yaml:"name"`
	Dir  string `yaml:"dir,omitempty"`
}

// Step is one command, or a group of nested steps, run as a task.
type Step struct {
	Name          string            `yaml:"name"`
	Command       string            `yaml:"command,omitempty"`
	Dir           string            `yaml:"dir,omitempty"`
	Env           map[string]string `yaml:"env,omitempty"`
	Timeout       Duration          `yaml:"timeout,omitempty"`
	FailOnError   *bool             `yaml:"fail_on_error,omitempty"` // default true
	LogCommand    bool              `yaml:"log_command,omitempty"`
	CollectOutput bool              `yaml:"collect_output,omitempty"`
	Steps         []Step            `yaml:"steps,omitempty"`
}

// FailsOnError reports whether a non-zero exit stops the build.
func (s *Step) FailsOnError() bool {
	return s.FailOnError == nil || *s.FailOnError
}

// Args splits the command with shell quoting rules.
func (s *Step) Args() ([]string, error) {
	return shellwords.Parse(s.Command)
}

// Count returns the number of steps, nested ones included.
func (b *BuildSpec) Count() int {
	return countSteps(b.Steps)
}

func countSteps(steps []Step) int {
	n := len(steps)
	for i := range steps {
		n += countSteps(steps[i].Steps)
	}
	return n
}

// BaseDir is the directory relative step dirs are resolved against: the
// build's dir, itself relative to the build file.
func (b *BuildSpec) BaseDir() string {
	base := "."
	if b.Path != "" {
		base = filepath.Dir(b.Path)
	}
	if b.Build.Dir == "" {
		return base
	}
	if filepath.IsAbs(b.Build.Dir) {
		return b.Build.Dir
	}
	return filepath.Join(base, b.Build.Dir)
}

// Duration wraps time.Duration for YAML unmarshaling from strings like "10s", "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Load reads and parses a build spec from a YAML file.
func Load(path string) (*BuildSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spec %s: %w", path, err)
	}

	var spec BuildSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing spec %s: %w", path, err)
	}
	spec.Path = path

	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("validating spec %s: %w", path, err)
	}

	return &spec, nil
}

// LoadDir reads all YAML build specs from a directory.
func LoadDir(dir string) ([]*BuildSpec, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("listing specs in %s: %w", dir, err)
	}

	// Also match .yml
	ymlEntries, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("listing specs in %s: %w", dir, err)
	}
	entries = append(entries, ymlEntries...)

	var specs []*BuildSpec
	for _, path := range entries {
		spec, err := Load(path)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	return specs, nil
}

// Validate checks that a build spec is well-formed.
func (b *BuildSpec) Validate() error {
	if b.Build.Name == "" {
		return fmt.Errorf("build.name is required")
	}
	if !nameRe.MatchString(b.Build.Name) {
		return fmt.Errorf("build.name %q is invalid: must match %s", b.Build.Name, nameRe)
	}
	if len(b.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	return validateSteps(b.Steps, "steps")
}

func validateSteps(steps []Step, path string) error {
	seen := map[string]bool{}
	for i := range steps {
		s := &steps[i]
		where := fmt.Sprintf("%s[%d]", path, i)
		if s.Name == "" {
			return fmt.Errorf("%s.name is required", where)
		}
		if !nameRe.MatchString(s.Name) {
			return fmt.Errorf("%s.name %q is invalid: must match %s", where, s.Name, nameRe)
		}
		if seen[s.Name] {
			return fmt.Errorf("%s.name %q is used by more than one step", where, s.Name)
		}
		seen[s.Name] = true

		switch {
		case s.Command == "" && len(s.Steps) == 0:
			return fmt.Errorf("step %q needs a command or nested steps", s.Name)
		case s.Command != "" && len(s.Steps) > 0:
			return fmt.Errorf("step %q has both a command and nested steps", s.Name)
		}
		if s.Command != "" {
			args, err := s.Args()
			if err != nil {
				return fmt.Errorf("step %q: invalid command: %w", s.Name, err)
			}
			if len(args) == 0 {
				return fmt.Errorf("step %q: command is blank", s.Name)
			}
		}
		if s.Timeout.Duration < 0 {
			return fmt.Errorf("step %q: timeout must be positive", s.Name)
		}
		if err := validateSteps(s.Steps, where+".steps"); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/benaskins/kiln/internal/spec"
)

type checkResult struct {
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
	Steps int    `json:"steps,omitempty"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

var checkCmd = &cobra.Command{
	Use:   "check [file-or-dir]",
	Short: "Validate build files",
	Long:  "Parse and validate YAML build files. Checks a specific file, every file in a directory, or ./kiln.yaml.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().Bool("json", false, "print results as JSON")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")

	target := defaultBuildFile
	if len(args) > 0 {
		target = args[0]
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", target, err)
	}

	var files []string
	if info.IsDir() {
		yamlFiles, _ := filepath.Glob(filepath.Join(target, "*.yaml"))
		ymlFiles, _ := filepath.Glob(filepath.Join(target, "*.yml"))
		files = append(yamlFiles, ymlFiles...)
		if len(files) == 0 {
			return fmt.Errorf("no YAML files found in %s", target)
		}
	} else {
		files = []string{target}
	}

	results, failed := checkFiles(files)

	if jsonOut {
		if err := printJSON(results); err != nil {
			return err
		}
	} else {
		out, errOut := logCtx.Out(), logCtx.Err()
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(out, "OK    %s (%s, %d steps)\n", r.Path, r.Name, r.Steps)
			} else {
				fmt.Fprintf(errOut, "FAIL  %s\n      %v\n", r.Path, r.Error)
			}
		}
		if len(files) > 1 {
			passed := len(files) - failed
			fmt.Fprintf(out, "\n%d/%d build files valid\n", passed, len(files))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d build file(s) failed validation", failed)
	}
	return nil
}

func checkFiles(files []string) ([]checkResult, int) {
	var results []checkResult
	var failed int
	for _, path := range files {
		s, err := spec.Load(path)
		if err != nil {
			results = append(results, checkResult{Path: path, Valid: false, Error: err.Error()})
			failed++
		} else {
			results = append(results, checkResult{Path: path, Name: s.Build.Name, Steps: s.Count(), Valid: true})
		}
	}
	return results, failed
}

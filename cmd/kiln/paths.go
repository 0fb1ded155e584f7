package main

import (
	"os"

	"golang.org/x/term"
)

// defaultBuildFile is read by build, check and watch when no file is given.
const defaultBuildFile = "kiln.yaml"

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// useColor resolves the color setting. "auto" colours a terminal unless
// NO_COLOR is set.
func useColor(setting string, tty bool) bool {
	switch setting {
	case "always":
		return true
	case "never":
		return false
	default:
		return tty && os.Getenv("NO_COLOR") == ""
	}
}

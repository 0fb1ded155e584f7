package tasklog

import (
	"fmt"
	"strings"
)

// Verbosity controls which events reach the decorator. Levels are ordered.
type Verbosity int

const (
	VerbosityMute Verbosity = iota
	VerbosityWarnAndError
	VerbosityInfo
	VerbosityVerbose
	VerbosityDebug
)

func (v Verbosity) String() string {
	switch v {
	case VerbosityMute:
		return "mute"
	case VerbosityWarnAndError:
		return "warn"
	case VerbosityInfo:
		return "info"
	case VerbosityVerbose:
		return "verbose"
	case VerbosityDebug:
		return "debug"
	default:
		return fmt.Sprintf("verbosity(%d)", int(v))
	}
}

// ParseVerbosity converts a config or flag value into a Verbosity.
// The empty string means VerbosityInfo.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mute", "quiet":
		return VerbosityMute, nil
	case "warn", "warn_and_error", "warn-and-error":
		return VerbosityWarnAndError, nil
	case "", "info":
		return VerbosityInfo, nil
	case "verbose":
		return VerbosityVerbose, nil
	case "debug":
		return VerbosityDebug, nil
	default:
		return VerbosityInfo, fmt.Errorf("unknown verbosity %q: must be mute, warn, info, verbose or debug", s)
	}
}

// accepts is the emission gate, evaluated for every event.
func (v Verbosity) accepts(k Kind) bool {
	switch v {
	case VerbosityMute:
		return false
	case VerbosityWarnAndError:
		return k == KindError || k == KindWarn
	}
	switch k {
	case KindDebug:
		return v >= VerbosityDebug
	case KindVerbose:
		return v >= VerbosityVerbose
	}
	return true
}

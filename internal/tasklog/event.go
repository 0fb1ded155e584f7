package tasklog

import "fmt"

// Kind identifies what a log event describes.
type Kind int

const (
	KindError Kind = iota
	KindWarn
	KindInfo
	KindVerbose
	KindDebug
	KindProgress
	KindStartTask
	KindStartTaskVerbose
	KindEndTask
)

var kindNames = [...]string{
	KindError:            "ERROR",
	KindWarn:             "WARN",
	KindInfo:             "INFO",
	KindVerbose:          "VERBOSE",
	KindDebug:            "DEBUG",
	KindProgress:         "PROGRESS",
	KindStartTask:        "START_TASK",
	KindStartTaskVerbose: "START_TASK_VERBOSE",
	KindEndTask:          "END_TASK",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsStartTask reports whether k opens a task.
func (k Kind) IsStartTask() bool {
	return k == KindStartTask || k == KindStartTaskVerbose
}

// MarshalText encodes the kind by name so events serialize as plain values.
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown event kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", text)
}

// Event is one log occurrence. Events are immutable values; DurationMillis is
// -1 for every kind except KindEndTask.
type Event struct {
	Kind           Kind   `json:"kind"`
	Message        string `json:"message"`
	DurationMillis int64  `json:"duration_ms"`
}

func newEvent(kind Kind, message string) Event {
	return Event{Kind: kind, Message: message, DurationMillis: -1}
}

func newEndTaskEvent(message string, durationMillis int64) Event {
	return Event{Kind: KindEndTask, Message: message, DurationMillis: durationMillis}
}

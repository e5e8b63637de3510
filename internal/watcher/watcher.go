package watcher

import (
	"time"
)

// Operation is a file system change.
type Operation int

const (
	// OpCreate is a new file.
	OpCreate Operation = iota
	// OpModify is a write to an existing file.
	OpModify
	// OpDelete is a removed file.
	OpDelete
	// OpRename is a file moved away; the new name arrives as a create.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a change to one page source.
type FileEvent struct {
	// Path is absolute.
	Path string
	// Slug is the page the path belongs to.
	Slug      string
	Operation Operation
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// Debounce is how long a path must stay quiet before its change is
	// emitted. Default: 500ms
	Debounce time.Duration

	// PollInterval is the scan interval when fsnotify is unavailable.
	// Default: 2s
	PollInterval time.Duration

	// EventBufferSize is the number of batches that may wait for the
	// consumer. Default: 64
	EventBufferSize int

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:        500 * time.Millisecond,
		PollInterval:    2 * time.Second,
		EventBufferSize: 64,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = defaults.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

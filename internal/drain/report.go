package drain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"asyncref/internal/queue"
)

// Outcome is the terminal state of a drain run.
type Outcome string

const (
	// OutcomeSkipped means another run held the lock.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeEmpty means there was nothing queued.
	OutcomeEmpty Outcome = "empty"
	// OutcomeCompleted means every queued row was processed.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means the run stopped on an error.
	OutcomeFailed Outcome = "failed"
)

// Human-readable terminal lines.
const (
	MessageSkipped   = "Another process is updating the reference index - skipping"
	MessageEmpty     = "No reference indexing tasks queued - nothing to do."
	MessageCompleted = "Reference indexing complete!"
)

// Report describes one drain run.
type Report struct {
	RunID     string
	Outcome   Outcome
	Queued    int
	Processed int
	Dropped   int
	Err       error
	Started   time.Time
	Finished  time.Time
}

// Duration returns how long the run took.
func (r Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// ExitCode is 0 for every outcome except a failure.
func (r Report) ExitCode() int {
	if r.Outcome == OutcomeFailed {
		return 1
	}
	return 0
}

// Lines renders the run for operators, one line per terminal state.
func (r Report) Lines() []string {
	switch r.Outcome {
	case OutcomeSkipped:
		return []string{MessageSkipped}
	case OutcomeEmpty:
		return []string{MessageEmpty}
	case OutcomeCompleted:
		return []string{processingLine(r.Queued), MessageCompleted}
	case OutcomeFailed:
		lines := make([]string, 0, 2)
		if r.Queued > 0 {
			lines = append(lines, processingLine(r.Queued))
		}
		return append(lines, ErrorLine(r.Err))
	default:
		return nil
	}
}

func processingLine(count int) string {
	return fmt.Sprintf("Processing reference index for %d record(s)", count)
}

// ErrorLine formats err as "ERROR! <message> (<code>)".
func ErrorLine(err error) string {
	if err == nil {
		return "ERROR! unknown failure (1)"
	}
	message := err.Error()
	var itemErr *ItemError
	if errors.As(err, &itemErr) && itemErr.Err != nil {
		message = itemErr.Err.Error()
	}
	return fmt.Sprintf("ERROR! %s (%d)", strings.TrimSpace(message), errorCode(err))
}

// ItemError reports the queue row whose processing stopped the run. The row
// and every row after it stay queued.
type ItemError struct {
	Item queue.Item
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("process %s: %v", e.Item.Key, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Code returns the exit code of the failed recompute, or 1 when the failure
// carried none.
func (e *ItemError) Code() int {
	return errorCode(e.Err)
}

func errorCode(err error) int {
	type coder interface{ Code() int }
	var c coder
	if errors.As(err, &c) && c.Code() != 0 {
		return c.Code()
	}
	return 1
}

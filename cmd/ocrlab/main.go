package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess   = 0 // Evaluation completed
	ExitRunFailed = 1 // The evaluation ran but failed on a sample
	ExitError     = 2 // Usage, configuration or runtime error
)

// RunFailedError indicates that the evaluation started but ended in the
// failed state.
type RunFailedError struct {
	RunID   string
	Message string
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("evaluation %s failed: %s", e.RunID, e.Message)
}

func main() {
	os.Exit(exitCode(execute()))
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintln(os.Stderr, err)

	var runErr *RunFailedError
	if errors.As(err, &runErr) {
		return ExitRunFailed
	}
	return ExitError
}

// Package sequence runs dependent asynchronous tasks one after another.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is one step of a sequence.
type Task func(ctx context.Context) error

// Named attaches a name to a task for error messages and logs.
type Named struct {
	Name string
	Task Task
}

// StepError reports which step stopped the sequence.
type StepError struct {
	Index int
	Name  string
	Err   error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("step %d (%s): %v", e.Index, e.Name, e.Err)
	}
	return fmt.Sprintf("step %d: %v", e.Index, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Run executes tasks in order and stops at the first failure or when ctx is
// done. done, if non-nil, is called exactly once with the outcome, which is
// also returned.
func Run(ctx context.Context, tasks []Task, done func(error)) error {
	named := make([]Named, len(tasks))
	for i, t := range tasks {
		named[i] = Named{Task: t}
	}
	return RunNamed(ctx, named, done)
}

// RunNamed is Run for named tasks.
func RunNamed(ctx context.Context, tasks []Named, done func(error)) error {
	start := time.Now()
	err := run(ctx, tasks)

	log.Debug().
		Int("tasks", len(tasks)).
		Dur("duration", time.Since(start)).
		AnErr("error", err).
		Msg("Sequence finished")

	if done != nil {
		done(err)
	}
	return err
}

func run(ctx context.Context, tasks []Named) error {
	for i, t := range tasks {
		if err := ctx.Err(); err != nil {
			return &StepError{Index: i, Name: t.Name, Err: err}
		}
		if t.Task == nil {
			continue
		}
		if err := t.Task(ctx); err != nil {
			return &StepError{Index: i, Name: t.Name, Err: err}
		}
	}
	return nil
}

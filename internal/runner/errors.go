package runner

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrNoTasks       = errors.New("no tasks to dispatch")
	ErrReadyTimeout  = errors.New("workers did not reach the ready barrier in time")
)

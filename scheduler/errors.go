package scheduler

import "errors"

var (
	// ErrRunnerRequired is returned when a loop is built without a sync
	// runner.
	ErrRunnerRequired = errors.New("scheduler: sync runner is required")

	// ErrNoChannels is returned when a loop is built with an empty
	// channel list.
	ErrNoChannels = errors.New("scheduler: at least one channel is required")

	// ErrAlreadyStarted is returned by Start on a running loop.
	ErrAlreadyStarted = errors.New("scheduler: loop already started")
)

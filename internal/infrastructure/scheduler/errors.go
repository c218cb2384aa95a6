package scheduler

import "errors"

var (
	// ErrInvalidSchedule is returned for a cron spec that cannot be parsed
	ErrInvalidSchedule = errors.New("invalid cron schedule")

	// ErrJobNotFound is returned when a job is not registered
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob is returned when a job name is registered twice
	ErrDuplicateJob = errors.New("job already registered")
)

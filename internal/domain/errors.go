package domain

import "errors"

var (
	// ErrEmptyQuery is returned when a track request has neither artist nor title
	ErrEmptyQuery = errors.New("track query is empty")

	// ErrInvalidQuery is returned for negative duration or BPM hints
	ErrInvalidQuery = errors.New("track query has negative duration or bpm")

	// ErrJobNotFound is returned when a job id is not in the registry
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal is returned when a command targets a finished job
	ErrJobTerminal = errors.New("job already in terminal state")

	// ErrJobNotTerminal is returned when evicting a job that is still live
	ErrJobNotTerminal = errors.New("job is not in a terminal state")

	// ErrNoMatch is returned by request paths when discovery admitted nothing
	ErrNoMatch = errors.New("no acceptable candidate found")
)

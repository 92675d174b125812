package domain

import "errors"

var (
	// ErrIntegrity marks a batch result that references no known record.
	ErrIntegrity = errors.New("integrity violation")
	// ErrInvalidTransition is returned for moves outside the status table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownCategory is returned when a category slug has no CMS mapping.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrBatchTerminated is returned for expired or canceled batches.
	ErrBatchTerminated = errors.New("batch terminated without results")
	// ErrNotFound is returned by repositories for missing rows.
	ErrNotFound = errors.New("not found")
)

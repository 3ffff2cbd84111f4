package idauthority

import (
	"errors"
)

var (
	// ErrNamespaceExhausted means the upper bound of the namespace was reached.
	// It is permanent and never retried.
	ErrNamespaceExhausted = errors.New("id namespace exhausted")

	// ErrTimeout means no block could be allocated before the deadline.
	// The error also wraps the last contention or backend failure.
	ErrTimeout = errors.New("id block allocation timed out")

	// ErrInvalidConfig means the configuration or the sizing was rejected.
	ErrInvalidConfig = errors.New("invalid id authority configuration")

	// ErrInvalidPartition means the partition is outside [0, MaxPartitions).
	ErrInvalidPartition = errors.New("invalid partition")

	// ErrCorruptCounter means a stored high-water mark could not be decoded.
	// It is permanent and never retried.
	ErrCorruptCounter = errors.New("corrupt id counter")

	// errTagExhausted is returned by a single attempt if the counter of the
	// selected tag cannot hold another block.
	errTagExhausted = errors.New("tag exhausted")
)

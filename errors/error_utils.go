// Package errors provides coded errors and helpers for categorizing them.
package errors

import (
	"context"
	"errors"
)

// IsMisbehaviorError reports whether the error was caused by something a peer sent us,
// which means the peer should be scored for it.
func IsMisbehaviorError(err error) bool {
	if err == nil {
		return false
	}

	switch CodeOf(err) {
	case ERR_MALFORMED,
		ERR_PROTOCOL_VIOLATION,
		ERR_BLOCK_INVALID,
		ERR_TX_INVALID,
		ERR_STALL:
		return true
	}

	return false
}

// IsContextError checks if an error is due to context cancellation or timeout.
func IsContextError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	switch CodeOf(err) {
	case ERR_CONTEXT_CANCELED:
		return true
	}

	return false
}

package errors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMisbehaviorError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "malformed", err: NewMalformedError("bad payload"), expected: true},
		{name: "protocol violation", err: NewProtocolViolationError("unsolicited"), expected: true},
		{name: "invalid block", err: NewBlockInvalidError("bad pow"), expected: true},
		{name: "invalid tx", err: NewTxInvalidError("bad script"), expected: true},
		{name: "stall", err: NewStallError("slow"), expected: true},
		{name: "tx not found", err: NewTxNotFoundError("orphan"), expected: false},
		{name: "not found", err: NewNotFoundError("peer"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsMisbehaviorError(tt.err))
		})
	}
}

func TestIsContextError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "context canceled", err: context.Canceled, expected: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, expected: true},
		{name: "wrapped context canceled", err: NewProcessingError("aborted", context.Canceled), expected: true},
		{name: "context canceled code", err: NewContextCanceledError("stopped"), expected: true},
		{name: "other", err: NewServiceError("down"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsContextError(tt.err))
		})
	}
}

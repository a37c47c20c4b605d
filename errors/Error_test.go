package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewCustomError(t *testing.T) {
	err := New(ERR_NOT_FOUND, "resource not found")
	require.NotNil(t, err)
	require.Equal(t, ERR_NOT_FOUND, err.Code())
	require.Equal(t, "resource not found", err.Message())

	secondErr := New(ERR_INVALID_ARGUMENT, "[ProcessMessage][%s] bad payload", "inv", err)
	thirdErr := New(ERR_MALFORMED, "[ProcessMessage][%s] failed to decode", "inv", secondErr)
	anotherErr := New(ERR_MALFORMED, "another malformed message")
	fourthErr := New(ERR_SERVICE_ERROR, "older error", thirdErr)
	fifthErr := New(ERR_PROTOCOL_VIOLATION, "peer misbehaved", fourthErr)

	require.True(t, anotherErr.Is(thirdErr))
	require.True(t, fourthErr.Is(New(ERR_MALFORMED, "")))
	require.True(t, fourthErr.Is(ErrMalformed))

	require.True(t, fourthErr.Is(err))
	require.True(t, fifthErr.Is(thirdErr))
	require.True(t, fifthErr.Is(err))

	require.False(t, anotherErr.Is(fourthErr))
	require.False(t, fifthErr.Is(ErrBlockNotFound))

	assert.Equal(t, "[ProcessMessage][inv] bad payload", secondErr.Message())
}

func Test_FmtErrorCustomError(t *testing.T) {
	err := New(ERR_NOT_FOUND, "resource not found")

	fmtError := fmt.Errorf("error: %w", err)
	secondErr := New(ERR_INVALID_ARGUMENT, "[ProcessMessage][%s] bad payload", "tx", fmtError)

	// a fmt wrapped error hides the code from Is
	require.False(t, secondErr.Is(err))

	// but the standard library still finds it in the chain
	require.True(t, errors.Is(secondErr, err))

	altErr := New(ERR_INVALID_ARGUMENT, "invalid argument", err)
	require.True(t, secondErr.Is(altErr))
}

func Test_ErrorIs(t *testing.T) {
	for _, code := range []ERR{
		ERR_NOT_FOUND,
		ERR_BLOCK_INVALID,
		ERR_TX_INVALID,
		ERR_MALFORMED,
		ERR_PROTOCOL_VIOLATION,
		ERR_RESOURCE_EXHAUSTED,
		ERR_DUPLICATE_ID,
		ERR_ALREADY_PRESENT,
		ERR_UNKNOWN,
	} {
		t.Run(code.String(), func(t *testing.T) {
			err := New(code, "some error")
			assert.True(t, errors.Is(err, New(code, "")))
		})
	}
}

func Test_ErrorWrapWithAdditionalContext(t *testing.T) {
	originalErr := New(ERR_TX_INVALID, "original error")
	wrappedErr := New(ERR_BLOCK_INVALID, "Some more additional context", originalErr)

	require.True(t, errors.Is(wrappedErr, originalErr))
	require.True(t, strings.Contains(wrappedErr.Error(), "Some more additional context"))
	require.True(t, strings.Contains(wrappedErr.Error(), "original error"))
}

func Test_ErrorEquality(t *testing.T) {
	err1 := New(ERR_NOT_FOUND, "resource not found")

	assert.True(t, err1.Is(New(ERR_NOT_FOUND, "resource not found")))
	assert.True(t, err1.Is(New(ERR_NOT_FOUND, "invalid argument")))
	assert.False(t, err1.Is(New(ERR_INVALID_ARGUMENT, "resource not found")))
}

func Test_UnwrapChain(t *testing.T) {
	baseErr := New(ERR_STALL, "base error")
	wrappedOnce := fmt.Errorf("error wrapped once: %w", baseErr)
	wrappedTwice := fmt.Errorf("error wrapped twice: %w", wrappedOnce)

	require.True(t, errors.Is(wrappedTwice, baseErr))
	require.True(t, errors.Is(wrappedTwice, wrappedOnce))
	require.Equal(t, ERR_STALL, CodeOf(wrappedTwice))
}

func Test_WrapStdlibError(t *testing.T) {
	err := NewContextCanceledError("processing aborted", context.Canceled)

	require.True(t, errors.Is(err, context.Canceled))
	require.True(t, errors.Is(err, ErrContextCanceled))
	require.Equal(t, context.Canceled, err.(*Error).WrappedErr())
}

func Test_As(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewDuplicateIDError("peer %d already exists", 7))

	var tErr *Error
	require.True(t, As(err, &tErr))
	assert.Equal(t, ERR_DUPLICATE_ID, tErr.Code())
	assert.Equal(t, "peer 7 already exists", tErr.Message())
}

func Test_NilError(t *testing.T) {
	var err *Error

	assert.Equal(t, "<nil>", err.Error())
	assert.Equal(t, ERR_UNKNOWN, err.Code())
	assert.False(t, err.Is(ErrNotFound))
	assert.Nil(t, err.Unwrap())
}

func Test_InvalidCode(t *testing.T) {
	err := New(ERR(9999), "what is this")

	assert.Equal(t, "invalid error code", err.Message())
	assert.Equal(t, "ERR(9999)", err.Code().String())
}

func TestErrorString(t *testing.T) {
	err := errors.New("some error")

	thisErr := NewProcessingError("failed to handle message [%s:%d]", "inv", 3, err)

	assert.Equal(t, "Error: PROCESSING (error code: 4), Message: failed to handle message [inv:3], Wrapped err: some error", thisErr.Error())
}

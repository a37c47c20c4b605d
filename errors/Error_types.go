package errors

var (
	ErrInvalidArgument    = New(ERR_INVALID_ARGUMENT, "invalid argument")
	ErrNotFound           = New(ERR_NOT_FOUND, "not found")
	ErrProcessing         = New(ERR_PROCESSING, "error processing")
	ErrConfiguration      = New(ERR_CONFIGURATION, "configuration error")
	ErrContextCanceled    = New(ERR_CONTEXT_CANCELED, "context canceled")
	ErrServiceNotStarted  = New(ERR_SERVICE_NOT_STARTED, "service not started")
	ErrServiceError       = New(ERR_SERVICE_ERROR, "service error")
	ErrBlockNotFound      = New(ERR_BLOCK_NOT_FOUND, "block not found")
	ErrBlockInvalid       = New(ERR_BLOCK_INVALID, "block invalid")
	ErrBlockParentUnknown = New(ERR_BLOCK_PARENT_UNKNOWN, "block parent unknown")
	ErrTxNotFound         = New(ERR_TX_NOT_FOUND, "tx not found")
	ErrTxInvalid          = New(ERR_TX_INVALID, "tx invalid")
	ErrMalformed          = New(ERR_MALFORMED, "malformed message")
	ErrProtocolViolation  = New(ERR_PROTOCOL_VIOLATION, "protocol violation")
	ErrResourceExhausted  = New(ERR_RESOURCE_EXHAUSTED, "resource exhausted")
	ErrStall              = New(ERR_STALL, "stalled request")
	ErrDuplicateID        = New(ERR_DUPLICATE_ID, "duplicate id")
	ErrAlreadyPresent     = New(ERR_ALREADY_PRESENT, "already present")
)

// errors initialization functions

func NewInvalidArgumentError(message string, params ...interface{}) error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}
func NewNotFoundError(message string, params ...interface{}) error {
	return New(ERR_NOT_FOUND, message, params...)
}
func NewProcessingError(message string, params ...interface{}) error {
	return New(ERR_PROCESSING, message, params...)
}
func NewConfigurationError(message string, params ...interface{}) error {
	return New(ERR_CONFIGURATION, message, params...)
}
func NewContextCanceledError(message string, params ...interface{}) error {
	return New(ERR_CONTEXT_CANCELED, message, params...)
}
func NewServiceNotStartedError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_NOT_STARTED, message, params...)
}
func NewServiceError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_ERROR, message, params...)
}
func NewBlockNotFoundError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_NOT_FOUND, message, params...)
}
func NewBlockInvalidError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_INVALID, message, params...)
}
func NewBlockParentUnknownError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_PARENT_UNKNOWN, message, params...)
}
func NewTxNotFoundError(message string, params ...interface{}) error {
	return New(ERR_TX_NOT_FOUND, message, params...)
}
func NewTxInvalidError(message string, params ...interface{}) error {
	return New(ERR_TX_INVALID, message, params...)
}
func NewMalformedError(message string, params ...interface{}) error {
	return New(ERR_MALFORMED, message, params...)
}
func NewProtocolViolationError(message string, params ...interface{}) error {
	return New(ERR_PROTOCOL_VIOLATION, message, params...)
}
func NewResourceExhaustedError(message string, params ...interface{}) error {
	return New(ERR_RESOURCE_EXHAUSTED, message, params...)
}
func NewStallError(message string, params ...interface{}) error {
	return New(ERR_STALL, message, params...)
}
func NewDuplicateIDError(message string, params ...interface{}) error {
	return New(ERR_DUPLICATE_ID, message, params...)
}
func NewAlreadyPresentError(message string, params ...interface{}) error {
	return New(ERR_ALREADY_PRESENT, message, params...)
}

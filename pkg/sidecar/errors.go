package sidecar

import "errors"

// ErrorCode enumerates the wire-level error codes.
type ErrorCode string

const (
	CodeInvalidJSON        ErrorCode = "INVALID_JSON"
	CodeInvalidMessage     ErrorCode = "INVALID_MESSAGE"
	CodeUnknownMethod      ErrorCode = "UNKNOWN_METHOD"
	CodeUnknownType        ErrorCode = "UNKNOWN_TYPE"
	CodeMissingParameter   ErrorCode = "MISSING_PARAMETER"
	CodeAudioPipelineError ErrorCode = "AUDIO_PIPELINE_ERROR"
	CodeModelLoadError     ErrorCode = "MODEL_LOAD_ERROR"
	CodeModelNotFound      ErrorCode = "MODEL_NOT_FOUND"
	CodeInvalidAudio       ErrorCode = "INVALID_AUDIO"
	CodeInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Protocol-level sentinels: package-level errors.New values, wrapped with
// fmt.Errorf("%w: ...") at call sites. Component packages declare their own
// categorical errors; the dispatcher translates everything to wire codes
// with errors.Is.
var (
	ErrUnknownMethod    = errors.New("unknown request method")
	ErrUnknownType      = errors.New("unknown message type")
	ErrMissingParameter = errors.New("request is missing a required parameter")
)

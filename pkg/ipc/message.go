// Package ipc implements the host-facing transport: line-delimited JSON
// framing over stdio, request/response correlation, and serialized event
// emission.
package ipc

import "encoding/json"

const ProtocolVersion = "1.0"

// MaxMessageBytes bounds a single inbound line.
const MaxMessageBytes = 1 << 20 // 1 MiB

// Inbound is the parsed shape of any line read from stdin. Only the fields
// relevant to its Type are populated.
type Inbound struct {
	Type    string          `json:"type"`
	Method  string          `json:"method,omitempty"`
	ID      string          `json:"id,omitempty"`
	Version string          `json:"version,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a successful reply to a request, correlated by ID.
type Response struct {
	Version string      `json:"version"`
	Type    string      `json:"type"`
	ID      string      `json:"id"`
	Result  interface{} `json:"result,omitempty"`
}

// NewResponse builds a response envelope for the given request id.
func NewResponse(id string, result interface{}) Response {
	return Response{Version: ProtocolVersion, Type: "response", ID: id, Result: result}
}

// EventMessage is an outbound, uncorrelated notification.
type EventMessage struct {
	Version   string      `json:"version"`
	Type      string      `json:"type"`
	EventType string      `json:"eventType"`
	Data      interface{} `json:"data,omitempty"`
}

// NewEvent builds an event envelope.
func NewEvent(eventType string, data interface{}) EventMessage {
	return EventMessage{Version: ProtocolVersion, Type: "event", EventType: eventType, Data: data}
}

// ErrorMessage is an outbound error, optionally correlated to a request id.
type ErrorMessage struct {
	Version      string `json:"version"`
	Type         string `json:"type"`
	ID           string `json:"id,omitempty"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Recoverable  bool   `json:"recoverable"`
}

// NewError builds an error envelope. id may be empty when no request could
// be correlated (e.g. malformed JSON before the id was parsed).
func NewError(id, code, message string, recoverable bool) ErrorMessage {
	return ErrorMessage{
		Version:      ProtocolVersion,
		Type:         "error",
		ID:           id,
		ErrorCode:    code,
		ErrorMessage: message,
		Recoverable:  recoverable,
	}
}

// ReadyMessage announces the sidecar is ready to accept requests.
type ReadyMessage struct {
	Version string `json:"version"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewReady(message string) ReadyMessage {
	return ReadyMessage{Version: ProtocolVersion, Type: "ready", Message: message}
}

// PongMessage replies to an inbound ping.
type PongMessage struct {
	Version string `json:"version"`
	Type    string `json:"type"`
	ID      string `json:"id"`
}

func NewPong(id string) PongMessage {
	return PongMessage{Version: ProtocolVersion, Type: "pong", ID: id}
}

// Package envelope defines the client-socket message envelope: a closed
// registry of typed, versionless messages exchanged with the browser client,
// independent of the JSON-RPC dialect spoken to the agent subprocess.
package envelope

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire shape of every message on the client socket.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     *Error          `json:"error,omitempty"`
}

// Error is the error object an envelope MAY carry alongside a payload.
// Details is set only for errors promoted from subprocess stderr/exit (§4.6):
// raw upstream text useful for debugging, never the primary user-facing
// message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Well-known error codes (§4.6 error taxonomy).
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeInvalidParams  = "INVALID_PARAMS"
	CodeUnknownType    = "UNKNOWN_TYPE"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeAPIError       = "API_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
)

// New constructs a well-formed envelope with a freshly generated id and the
// current timestamp. payload may be nil for types with no payload.
func New(msgType string, payload any) (*Envelope, error) {
	env := &Envelope{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return env, nil
}

// NewError constructs an error envelope of msgType carrying code/message,
// optionally alongside a payload (e.g. a session-scoped error that also
// reports the session id).
func NewError(msgType, code, message string, payload any) (*Envelope, error) {
	env, err := New(msgType, payload)
	if err != nil {
		return nil, err
	}
	env.Error = &Error{Code: code, Message: message}
	return env, nil
}

// ErrorSibling derives the error-role type for a given type. The error
// sibling of "x:y:request" is "x:y:error"; if no ":request" suffix exists,
// the type has no structural error sibling and the synthetic "system:error"
// applies instead.
func ErrorSibling(msgType string) string {
	if strings.HasSuffix(msgType, ":request") {
		return strings.TrimSuffix(msgType, ":request") + ":error"
	}
	return "system:error"
}

// SuccessSibling derives the success-role type for a given type. The success
// sibling of "x:y:request" is "x:y:success".
func SuccessSibling(msgType string) string {
	if strings.HasSuffix(msgType, ":request") {
		return strings.TrimSuffix(msgType, ":request") + ":success"
	}
	return msgType
}

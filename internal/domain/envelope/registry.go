package envelope

import (
	"encoding/json"
	"fmt"
)

// schema validates a decoded payload for one envelope type. Returning an
// error means the payload fails structural validation for that type.
type schema func(raw json.RawMessage) error

// registry is the closed set of known envelope types,  each mapped to its
// payload's structural validator. Types absent from this map are rejected by
// Validate with CodeUnknownType regardless of payload shape.
var registry = map[string]schema{
	TypeConnectionHeartbeatRequest: noopSchema,
	TypeConnectionHeartbeatSuccess: noopSchema,

	TypeACPSessionCreateRequest: noopSchema,
	TypeACPSessionCreateSuccess: noopSchema,
	TypeACPSessionCreateError:   noopSchema,

	TypeACPSessionLoadRequest: requireFields("sessionId"),
	TypeACPSessionLoadSuccess: noopSchema,
	TypeACPSessionLoadError:   noopSchema,

	TypeACPSessionCloseRequest: requireFields("sessionId"),
	TypeACPSessionCloseSuccess: requireFields("sessionId"),
	TypeACPSessionCloseError:   noopSchema,

	TypeACPSessionError: noopSchema,

	TypeACPPromptSendRequest: validatePromptSend,
	TypeACPPromptSendSuccess: noopSchema,
	TypeACPPromptSendError:   noopSchema,

	TypeACPPromptUpdate:   noopSchema,
	TypeACPPromptComplete: noopSchema,
	TypeACPPromptError:    noopSchema,

	TypeACPPromptCancelRequest: requireFields("sessionId", "requestId"),
	TypeACPPromptCancelSuccess: noopSchema,
	TypeACPPromptCancelError:   noopSchema,

	TypeACPPermissionRequest:  noopSchema,
	TypeACPPermissionResponse: validatePermissionResponse,

	TypeConnectionEstablishedSuccess: noopSchema,
	TypeSystemError:                  noopSchema,

	TypeACPInitializeRequest: noopSchema,
	TypeACPInitializeSuccess: noopSchema,
	TypeACPInitializeError:   noopSchema,
}

func noopSchema(json.RawMessage) error { return nil }

// requireFields returns a schema asserting the named top-level string fields
// are present and non-empty.
func requireFields(fields ...string) schema {
	return func(raw json.RawMessage) error {
		if len(raw) == 0 {
			return fmt.Errorf("missing payload, expected fields: %v", fields)
		}
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("payload is not a JSON object: %w", err)
		}
		for _, f := range fields {
			v, ok := m[f]
			if !ok || isEmptyJSONString(v) {
				return fmt.Errorf("missing required field %q", f)
			}
		}
		return nil
	}
}

func isEmptyJSONString(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return s == ""
}

func validatePromptSend(raw json.RawMessage) error {
	if err := requireFields("sessionId")(raw); err != nil {
		return err
	}
	var p PromptSendRequestPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("malformed prompt send payload: %w", err)
	}
	if len(p.Content) == 0 {
		return fmt.Errorf("content must contain at least one block")
	}
	return nil
}

func validatePermissionResponse(raw json.RawMessage) error {
	if err := requireFields("sessionId", "requestId")(raw); err != nil {
		return err
	}
	var p PermissionResponsePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("malformed permission response payload: %w", err)
	}
	if p.Outcome.Outcome == "" {
		return fmt.Errorf("missing required field %q", "outcome.outcome")
	}
	return nil
}

// Validate checks that msgType is a known envelope type and that data
// conforms to its structural schema. An unknown type always fails with
// CodeUnknownType regardless of payload; a known type with a malformed
// payload fails with CodeInvalidParams.
func Validate(msgType string, data json.RawMessage) error {
	s, ok := registry[msgType]
	if !ok {
		return &ValidationError{Code: CodeUnknownType, Message: fmt.Sprintf("unknown envelope type %q", msgType)}
	}
	if err := s(data); err != nil {
		return &ValidationError{Code: CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

// ValidationError is the structured error Validate returns, carrying the
// error code the connection server should attach to the resulting
// system:error (or domain-specific error) envelope.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsKnownType reports whether msgType is present in the closed registry.
func IsKnownType(msgType string) bool {
	_, ok := registry[msgType]
	return ok
}

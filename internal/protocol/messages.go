// Package protocol defines the JSON frames exchanged with clients over
// the WebSocket connection.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Inbound frame types.
const (
	TypeText  = "text"
	TypeAudio = "audio"
	TypeVideo = "video"
)

// Outbound frame types.
const (
	TypeResponse = "response"
	TypeError    = "error"
)

// Error codes carried in the details field of error responses. They name
// a coarse category only; internal error detail stays in the logs.
const (
	CodeInvalidMessage   = "invalid_message"
	CodeUnknownType      = "unknown_type"
	CodeEmptyContent     = "empty_content"
	CodeConversionFailed = "conversion_failed"
	CodeInternalError    = "internal_error"
)

// Error is a protocol-level error with a client-safe code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Frame is one inbound message. Content holds plain text for "text"
// frames and base64-encoded bytes for "audio" and "video" frames.
type Frame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ParseFrame validates a raw frame. Malformed payloads come back as a
// *Error so the caller can answer with a typed error response instead
// of terminating the session.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &Error{Code: CodeInvalidMessage, Message: "invalid JSON message"}
	}
	switch f.Type {
	case TypeText, TypeAudio, TypeVideo:
	default:
		return nil, &Error{Code: CodeUnknownType, Message: "unknown message type: " + f.Type}
	}
	if strings.TrimSpace(f.Content) == "" {
		return nil, &Error{Code: CodeEmptyContent, Message: "message content is empty"}
	}
	return &f, nil
}

// Payload returns the raw bytes carried by the frame, decoding base64
// for the binary kinds.
func (f *Frame) Payload() ([]byte, error) {
	if f.Type == TypeText {
		return []byte(f.Content), nil
	}
	b, err := base64.StdEncoding.DecodeString(f.Content)
	if err != nil {
		return nil, &Error{Code: CodeInvalidMessage, Message: "content is not valid base64"}
	}
	return b, nil
}

// Response is one outbound frame. Audio carries base64-encoded bytes,
// Video a storage path; both are null when absent.
type Response struct {
	Type          string  `json:"type"`
	Text          string  `json:"text"`
	Audio         *string `json:"audio"`
	Video         *string `json:"video"`
	Transcription *string `json:"transcription"`
	Details       string  `json:"details,omitempty"`
}

// NewResponse builds a success response with the given text.
func NewResponse(text string) *Response {
	return &Response{Type: TypeResponse, Text: text}
}

// NewError builds an error response with a fixed user-facing text and a
// coarse error code.
func NewError(text, code string) *Response {
	return &Response{Type: TypeError, Text: text, Details: code}
}

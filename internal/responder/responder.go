// Package responder defines the response generation boundary.
package responder

import (
	"context"
	"strings"
)

// Responder produces the assistant's reply for normalized text input.
type Responder interface {
	Generate(ctx context.Context, sessionID, text string) (string, error)
}

// Echo replies with the trimmed input text.
type Echo struct{}

// Generate implements Responder.
func (Echo) Generate(ctx context.Context, sessionID, text string) (string, error) {
	return strings.TrimSpace(text), nil
}

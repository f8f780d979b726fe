// Package media defines the modality converter boundaries: speech-to-text,
// text-to-speech and video frame decoding. The engines behind them are
// external; this package carries the contracts, HTTP clients for remote
// engines and mock engines for development and tests.
package media

import (
	"context"
	"errors"
)

// Sentinel errors for the conversion failure taxonomy.
var (
	ErrEmptyInput  = errors.New("media: empty input")
	ErrDecode      = errors.New("media: payload decode failed")
	ErrRecognition = errors.New("media: speech recognition failed")
	ErrOpen        = errors.New("media: could not open video stream")
)

// Frame is one decoded video frame.
type Frame struct {
	Index int
	Data  []byte
}

// SpeechToText transcribes audio bytes to text.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, locale string) (string, error)
}

// TextToSpeech synthesizes audio for the given text. Callers treat any
// error as "no audio"; synthesis failure never fails the response.
type TextToSpeech interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// FrameDecoder decodes a video byte stream into an ordered frame
// sequence.
type FrameDecoder interface {
	DecodeFrames(ctx context.Context, video []byte) ([]Frame, error)
}

// FrameStore persists a representative frame and returns an opaque
// reference to it.
type FrameStore interface {
	Save(ctx context.Context, frame Frame) (string, error)
}

// Engines bundles the three converter boundaries.
type Engines struct {
	STT     SpeechToText
	TTS     TextToSpeech
	Decoder FrameDecoder
}

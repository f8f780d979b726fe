package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MockSpeechToText treats the audio payload as UTF-8 text and returns it
// as the transcript. Binary payloads fail recognition, which exercises
// the degraded path without a real engine.
type MockSpeechToText struct{}

// Transcribe implements SpeechToText.
func (MockSpeechToText) Transcribe(ctx context.Context, audio []byte, locale string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyInput
	}
	if !utf8.Valid(audio) {
		return "", ErrRecognition
	}
	text := strings.TrimSpace(string(audio))
	if text == "" {
		return "", ErrRecognition
	}
	return text, nil
}

// MockTextToSpeech returns a deterministic payload derived from the text.
type MockTextToSpeech struct{}

// Synthesize implements TextToSpeech.
func (MockTextToSpeech) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	return []byte(fmt.Sprintf("MOCK-AUDIO[%s]:%s", voice, text)), nil
}

// MockFrameDecoder treats the video payload as newline-delimited frames.
type MockFrameDecoder struct{}

// DecodeFrames implements FrameDecoder.
func (MockFrameDecoder) DecodeFrames(ctx context.Context, video []byte) ([]Frame, error) {
	if len(video) == 0 {
		return nil, ErrEmptyInput
	}
	var frames []Frame
	for _, line := range bytes.Split(video, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		frames = append(frames, Frame{Index: len(frames), Data: line})
	}
	return frames, nil
}

package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const engineTimeout = 60 * time.Second

// httpEngine is the shared JSON POST client for remote conversion
// engines.
type httpEngine struct {
	baseURL string
	client  *http.Client
}

func newHTTPEngine(baseURL string) httpEngine {
	return httpEngine{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: engineTimeout},
	}
}

func (e httpEngine) post(ctx context.Context, path string, reqBody, respBody any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("engine returned status %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("failed to decode engine response: %w", err)
	}
	return nil
}

// HTTPSpeechToText calls a remote transcription engine.
type HTTPSpeechToText struct {
	httpEngine
}

// NewHTTPSpeechToText creates a client for the engine at baseURL.
func NewHTTPSpeechToText(baseURL string) *HTTPSpeechToText {
	return &HTTPSpeechToText{newHTTPEngine(baseURL)}
}

// Transcribe implements SpeechToText.
func (c *HTTPSpeechToText) Transcribe(ctx context.Context, audio []byte, locale string) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyInput
	}
	req := map[string]string{
		"audio":  base64.StdEncoding.EncodeToString(audio),
		"locale": locale,
	}
	var resp struct {
		Text string `json:"text"`
	}
	if err := c.post(ctx, "/v1/transcribe", req, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecognition, err)
	}
	if resp.Text == "" {
		return "", ErrRecognition
	}
	return resp.Text, nil
}

// HTTPTextToSpeech calls a remote synthesis engine.
type HTTPTextToSpeech struct {
	httpEngine
}

// NewHTTPTextToSpeech creates a client for the engine at baseURL.
func NewHTTPTextToSpeech(baseURL string) *HTTPTextToSpeech {
	return &HTTPTextToSpeech{newHTTPEngine(baseURL)}
}

// Synthesize implements TextToSpeech.
func (c *HTTPTextToSpeech) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	req := map[string]string{"text": text, "voice": voice}
	var resp struct {
		Audio string `json:"audio"`
	}
	if err := c.post(ctx, "/v1/synthesize", req, &resp); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(resp.Audio)
}

// HTTPFrameDecoder calls a remote frame extraction engine.
type HTTPFrameDecoder struct {
	httpEngine
}

// NewHTTPFrameDecoder creates a client for the engine at baseURL.
func NewHTTPFrameDecoder(baseURL string) *HTTPFrameDecoder {
	return &HTTPFrameDecoder{newHTTPEngine(baseURL)}
}

// DecodeFrames implements FrameDecoder.
func (c *HTTPFrameDecoder) DecodeFrames(ctx context.Context, video []byte) ([]Frame, error) {
	if len(video) == 0 {
		return nil, ErrEmptyInput
	}
	req := map[string]string{"video": base64.StdEncoding.EncodeToString(video)}
	var resp struct {
		Frames []string `json:"frames"`
	}
	if err := c.post(ctx, "/v1/frames", req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	frames := make([]Frame, 0, len(resp.Frames))
	for i, f := range resp.Frames {
		data, err := base64.StdEncoding.DecodeString(f)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d is not valid base64", ErrDecode, i)
		}
		frames = append(frames, Frame{Index: i, Data: data})
	}
	return frames, nil
}

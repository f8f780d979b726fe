// Package pipeline dispatches inbound messages: classify by kind,
// normalize to text through the modality converters, generate a
// response, persist the turn and build the outbound frame.
package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Necoverse/awa/internal/config"
	"github.com/Necoverse/awa/internal/domain"
	"github.com/Necoverse/awa/internal/media"
	"github.com/Necoverse/awa/internal/protocol"
	"github.com/Necoverse/awa/internal/responder"
	"github.com/Necoverse/awa/internal/store"
)

// Fixed user-facing texts. Internal error detail goes to the logs, never
// to the client.
const (
	msgGenericFailure = "Sorry, something went wrong."
	msgAudioFailure   = "Could not process the audio message."
	msgVideoFailure   = "Could not process the video message."
)

// Pipeline routes one inbound message through conversion, generation and
// persistence. Failures degrade to typed error responses; Handle never
// lets an error reach the caller's receive loop.
type Pipeline struct {
	responder responder.Responder
	stt       media.SpeechToText
	tts       media.TextToSpeech
	decoder   media.FrameDecoder
	frames    media.FrameStore
	store     store.Store
	locale    string
	voice     string
	log       zerolog.Logger
}

// New creates a pipeline.
func New(r responder.Responder, engines media.Engines, frames media.FrameStore, st store.Store, cfg config.MediaConfig, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		responder: r,
		stt:       engines.STT,
		tts:       engines.TTS,
		decoder:   engines.Decoder,
		frames:    frames,
		store:     st,
		locale:    cfg.Locale,
		voice:     cfg.Voice,
		log:       log.With().Str("component", "pipeline").Logger(),
	}
}

// Handle processes one message for the session identified by sessionID.
func (p *Pipeline) Handle(ctx context.Context, sessionID string, frame *protocol.Frame) *protocol.Response {
	switch frame.Type {
	case protocol.TypeText:
		return p.handleText(ctx, sessionID, frame.Content)
	case protocol.TypeAudio:
		return p.handleAudio(ctx, sessionID, frame)
	case protocol.TypeVideo:
		return p.handleVideo(ctx, sessionID, frame)
	default:
		return protocol.NewError(msgGenericFailure, protocol.CodeUnknownType)
	}
}

func (p *Pipeline) handleText(ctx context.Context, sessionID, content string) *protocol.Response {
	text, err := p.responder.Generate(ctx, sessionID, content)
	if err != nil {
		p.log.Error().Err(err).Str("session_id", sessionID).Msg("response generation failed")
		return protocol.NewError(msgGenericFailure, protocol.CodeInternalError)
	}

	audio := p.synthesize(ctx, sessionID, text)
	p.persist(ctx, &domain.ConversationTurn{
		SessionID:     sessionID,
		UserText:      content,
		AssistantText: text,
		AudioRef:      audio,
	})

	resp := protocol.NewResponse(text)
	resp.Audio = audio
	return resp
}

func (p *Pipeline) handleAudio(ctx context.Context, sessionID string, frame *protocol.Frame) *protocol.Response {
	payload, err := frame.Payload()
	if err != nil {
		p.log.Warn().Err(err).Str("session_id", sessionID).Msg("audio payload decode failed")
		return protocol.NewError(msgAudioFailure, protocol.CodeInvalidMessage)
	}

	transcript, err := p.stt.Transcribe(ctx, payload, p.locale)
	if err != nil {
		// No turn is written for a failed transcription; the raw audio
		// is not retained.
		p.log.Warn().Err(err).Str("session_id", sessionID).Msg("transcription failed")
		return protocol.NewError(msgAudioFailure, protocol.CodeConversionFailed)
	}

	text, err := p.responder.Generate(ctx, sessionID, transcript)
	if err != nil {
		p.log.Error().Err(err).Str("session_id", sessionID).Msg("response generation failed")
		return protocol.NewError(msgGenericFailure, protocol.CodeInternalError)
	}

	audio := p.synthesize(ctx, sessionID, text)
	p.persist(ctx, &domain.ConversationTurn{
		SessionID:     sessionID,
		UserText:      transcript,
		AssistantText: text,
		AudioRef:      audio,
	})

	resp := protocol.NewResponse(text)
	resp.Audio = audio
	resp.Transcription = &transcript
	return resp
}

func (p *Pipeline) handleVideo(ctx context.Context, sessionID string, frame *protocol.Frame) *protocol.Response {
	payload, err := frame.Payload()
	if err != nil {
		p.log.Warn().Err(err).Str("session_id", sessionID).Msg("video payload decode failed")
		return protocol.NewError(msgVideoFailure, protocol.CodeInvalidMessage)
	}

	frames, err := p.decoder.DecodeFrames(ctx, payload)
	if err != nil {
		p.log.Warn().Err(err).Str("session_id", sessionID).Msg("frame decoding failed")
		return protocol.NewError(msgVideoFailure, protocol.CodeConversionFailed)
	}
	if len(frames) == 0 {
		p.log.Warn().Str("session_id", sessionID).Msg("video contained no decodable frames")
		return protocol.NewError(msgVideoFailure, protocol.CodeConversionFailed)
	}

	// The last frame is the representative one.
	ref, err := p.frames.Save(ctx, frames[len(frames)-1])
	if err != nil {
		p.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to persist representative frame")
		return protocol.NewError(msgVideoFailure, protocol.CodeInternalError)
	}

	text := fmt.Sprintf("Video processed (%d frames)", len(frames))
	audio := p.synthesize(ctx, sessionID, text)
	p.persist(ctx, &domain.ConversationTurn{
		SessionID:     sessionID,
		UserText:      text,
		AssistantText: text,
		AudioRef:      audio,
		VideoRef:      &ref,
	})

	resp := protocol.NewResponse(text)
	resp.Audio = audio
	resp.Video = &ref
	return resp
}

// synthesize returns the base64-encoded audio for text, or nil when
// synthesis fails. Absence of audio is a degraded response, not an
// error.
func (p *Pipeline) synthesize(ctx context.Context, sessionID, text string) *string {
	audio, err := p.tts.Synthesize(ctx, text, p.voice)
	if err != nil {
		p.log.Warn().Err(err).Str("session_id", sessionID).Msg("speech synthesis failed")
		return nil
	}
	if len(audio) == 0 {
		return nil
	}
	encoded := base64.StdEncoding.EncodeToString(audio)
	return &encoded
}

// persist writes the turn. A storage fault is logged and swallowed; the
// already-computed response is still delivered. The write is detached
// from cancellation so a teardown racing an in-flight append lets it
// complete.
func (p *Pipeline) persist(ctx context.Context, turn *domain.ConversationTurn) {
	if _, err := p.store.AppendTurn(context.WithoutCancel(ctx), turn); err != nil {
		p.log.Error().Err(err).Str("session_id", turn.SessionID).Msg("failed to persist conversation turn")
	}
}

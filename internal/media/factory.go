package media

import (
	"github.com/rs/zerolog"

	"github.com/Necoverse/awa/internal/config"
)

// NewEngines builds the converter set for the configured mode. Mock mode
// needs no external engines and is the default for development.
func NewEngines(cfg config.MediaConfig, log zerolog.Logger) Engines {
	if cfg.Mode == config.MediaModeMock {
		log.Info().Msg("media mode mock, using mock conversion engines")
		return Engines{
			STT:     MockSpeechToText{},
			TTS:     MockTextToSpeech{},
			Decoder: MockFrameDecoder{},
		}
	}

	log.Info().
		Str("stt_url", cfg.STTURL).
		Str("tts_url", cfg.TTSURL).
		Str("frames_url", cfg.FramesURL).
		Msg("using remote conversion engines")
	return Engines{
		STT:     NewHTTPSpeechToText(cfg.STTURL),
		TTS:     NewHTTPTextToSpeech(cfg.TTSURL),
		Decoder: NewHTTPFrameDecoder(cfg.FramesURL),
	}
}

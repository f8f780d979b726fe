package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/Necoverse/awa/internal/config"
	"github.com/Necoverse/awa/internal/domain"
	"github.com/Necoverse/awa/internal/media"
	"github.com/Necoverse/awa/internal/protocol"
	"github.com/Necoverse/awa/internal/responder"
)

// memStore records appended turns in insertion order.
type memStore struct {
	mu         sync.Mutex
	turns      []domain.ConversationTurn
	failAppend bool
}

func (m *memStore) AppendTurn(ctx context.Context, turn *domain.ConversationTurn) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend {
		return "", errors.New("disk full")
	}
	m.turns = append(m.turns, *turn)
	return fmt.Sprintf("%d", len(m.turns)), nil
}

func (m *memStore) MergeProfile(ctx context.Context, userID string, preferences, interaction map[string]any) error {
	return nil
}

func (m *memStore) History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ConversationTurn
	for i := len(m.turns) - 1; i >= 0 && len(out) < limit; i-- {
		if m.turns[i].SessionID == sessionID {
			out = append(out, m.turns[i])
		}
	}
	return out, nil
}

func (m *memStore) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	return nil, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) sessionTurns(sessionID string) []domain.ConversationTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ConversationTurn
	for _, turn := range m.turns {
		if turn.SessionID == sessionID {
			out = append(out, turn)
		}
	}
	return out
}

type failingTTS struct{}

func (failingTTS) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	return nil, errors.New("synthesis backend down")
}

type fakeFrameStore struct{}

func (fakeFrameStore) Save(ctx context.Context, frame media.Frame) (string, error) {
	return "frames/frame_test.jpg", nil
}

func newTestPipeline(st *memStore) *Pipeline {
	return New(
		responder.Echo{},
		media.Engines{STT: media.MockSpeechToText{}, TTS: media.MockTextToSpeech{}, Decoder: media.MockFrameDecoder{}},
		fakeFrameStore{},
		st,
		config.MediaConfig{Locale: "en-US", Voice: "en-US-Standard"},
		zerolog.Nop(),
	)
}

func textFrame(content string) *protocol.Frame {
	return &protocol.Frame{Type: protocol.TypeText, Content: content}
}

func audioFrame(payload []byte) *protocol.Frame {
	return &protocol.Frame{Type: protocol.TypeAudio, Content: base64.StdEncoding.EncodeToString(payload)}
}

func videoFrame(payload []byte) *protocol.Frame {
	return &protocol.Frame{Type: protocol.TypeVideo, Content: base64.StdEncoding.EncodeToString(payload)}
}

func TestTextRoundTrip(t *testing.T) {
	st := &memStore{}
	p := newTestPipeline(st)

	resp := p.Handle(context.Background(), "s1", textFrame("Hello"))
	if resp.Type != protocol.TypeResponse {
		t.Fatalf("expected response, got %s (%s)", resp.Type, resp.Details)
	}
	if resp.Text != "Hello" {
		t.Fatalf("expected echoed text, got %q", resp.Text)
	}
	if resp.Audio == nil {
		t.Fatal("expected audio when synthesis succeeds")
	}
	if resp.Transcription != nil || resp.Video != nil {
		t.Fatalf("unexpected modality fields: %+v", resp)
	}

	turns := st.sessionTurns("s1")
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].UserText != "Hello" || turns[0].AssistantText != "Hello" {
		t.Fatalf("unexpected turn: %+v", turns[0])
	}
}

func TestTextSynthesisFailureDegrades(t *testing.T) {
	st := &memStore{}
	p := newTestPipeline(st)
	p.tts = failingTTS{}

	resp := p.Handle(context.Background(), "s1", textFrame("Hello"))
	if resp.Type != protocol.TypeResponse || resp.Text != "Hello" {
		t.Fatalf("text response must survive synthesis failure: %+v", resp)
	}
	if resp.Audio != nil {
		t.Fatal("expected null audio when synthesis fails")
	}
	turns := st.sessionTurns("s1")
	if len(turns) != 1 || turns[0].AudioRef != nil {
		t.Fatalf("unexpected turns: %+v", turns)
	}
}

func TestAudioMessage(t *testing.T) {
	st := &memStore{}
	p := newTestPipeline(st)

	resp := p.Handle(context.Background(), "s1", audioFrame([]byte("what time is it")))
	if resp.Type != protocol.TypeResponse {
		t.Fatalf("expected response, got %s (%s)", resp.Type, resp.Details)
	}
	if resp.Transcription == nil || *resp.Transcription != "what time is it" {
		t.Fatalf("unexpected transcription: %v", resp.Transcription)
	}

	turns := st.sessionTurns("s1")
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].UserText != "what time is it" {
		t.Fatalf("turn must persist the transcript, got %q", turns[0].UserText)
	}
}

func TestAudioRecognitionFailure(t *testing.T) {
	st := &memStore{}
	p := newTestPipeline(st)

	resp := p.Handle(context.Background(), "s1", audioFrame([]byte{0xff, 0xfe, 0x00, 0x81}))
	if resp.Type != protocol.TypeError {
		t.Fatalf("expected error response, got %s", resp.Type)
	}
	if resp.Details != protocol.CodeConversionFailed {
		t.Fatalf("expected conversion_failed, got %s", resp.Details)
	}
	if resp.Transcription != nil {
		t.Fatal("expected null transcription")
	}
	if len(st.sessionTurns("s1")) != 0 {
		t.Fatal("no turn may be persisted for a failed transcription")
	}
}

func TestAudioBadBase64(t *testing.T) {
	st := &memStore{}
	p := newTestPipeline(st)

	resp := p.Handle(context.Background(), "s1", &protocol.Frame{Type: protocol.TypeAudio, Content: "%%%"})
	if resp.Type != protocol.TypeError || resp.Details != protocol.CodeInvalidMessage {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(st.sessionTurns("s1")) != 0 {
		t.Fatal("no turn may be persisted for an undecodable payload")
	}
}

func TestVideoMessage(t *testing.T) {
	st := &memStore{}
	p := newTestPipeline(st)

	resp := p.Handle(context.Background(), "s1", videoFrame([]byte("f1\nf2")))
	if resp.Type != protocol.TypeResponse {
		t.Fatalf("expected response, got %s (%s)", resp.Type, resp.Details)
	}
	if resp.Text != "Video processed (2 frames)" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.Video == nil {
		t.Fatal("expected non-null video path")
	}

	turns := st.sessionTurns("s1")
	if len(turns) != 1 || turns[0].VideoRef == nil {
		t.Fatalf("expected 1 turn with video ref, got %+v", turns)
	}
}

func TestVideoNoFrames(t *testing.T) {
	st := &memStore{}
	p := newTestPipeline(st)

	resp := p.Handle(context.Background(), "s1", videoFrame([]byte("\n \n")))
	if resp.Type != protocol.TypeError || resp.Details != protocol.CodeConversionFailed {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(st.sessionTurns("s1")) != 0 {
		t.Fatal("no turn may be persisted when zero frames decode")
	}
}

func TestPersistenceFailureStillDelivers(t *testing.T) {
	st := &memStore{failAppend: true}
	p := newTestPipeline(st)

	resp := p.Handle(context.Background(), "s1", textFrame("Hello"))
	if resp.Type != protocol.TypeResponse || resp.Text != "Hello" {
		t.Fatalf("response must be delivered despite storage fault: %+v", resp)
	}
}

func TestFailureIsolationBetweenMessages(t *testing.T) {
	st := &memStore{}
	p := newTestPipeline(st)
	ctx := context.Background()

	if resp := p.Handle(ctx, "s1", audioFrame([]byte{0xff, 0xfe})); resp.Type != protocol.TypeError {
		t.Fatalf("expected error for message k, got %s", resp.Type)
	}
	if resp := p.Handle(ctx, "s1", textFrame("still here")); resp.Type != protocol.TypeResponse || resp.Text != "still here" {
		t.Fatalf("message k+1 must process correctly, got %+v", resp)
	}
	if len(st.sessionTurns("s1")) != 1 {
		t.Fatalf("expected exactly 1 turn, got %d", len(st.sessionTurns("s1")))
	}
}

func TestTurnOrderingMatchesArrival(t *testing.T) {
	st := &memStore{}
	p := newTestPipeline(st)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		p.Handle(ctx, "s1", textFrame(fmt.Sprintf("msg-%d", i)))
	}

	turns := st.sessionTurns("s1")
	if len(turns) != 10 {
		t.Fatalf("expected 10 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if want := fmt.Sprintf("msg-%d", i); turn.UserText != want {
			t.Fatalf("turn %d out of order: got %q, want %q", i, turn.UserText, want)
		}
	}
}

func TestConcurrentSessions(t *testing.T) {
	st := &memStore{}
	p := newTestPipeline(st)

	const sessions = 100
	const perSession = 10

	wg := conc.NewWaitGroup()
	for i := 0; i < sessions; i++ {
		sessionID := fmt.Sprintf("sess-%03d", i)
		wg.Go(func() {
			// Within a session messages are strictly sequential.
			for j := 0; j < perSession; j++ {
				p.Handle(context.Background(), sessionID, textFrame(fmt.Sprintf("msg-%d", j)))
			}
		})
	}
	wg.Wait()

	st.mu.Lock()
	total := len(st.turns)
	st.mu.Unlock()
	if total != sessions*perSession {
		t.Fatalf("expected %d turns, got %d", sessions*perSession, total)
	}

	for i := 0; i < sessions; i++ {
		turns := st.sessionTurns(fmt.Sprintf("sess-%03d", i))
		if len(turns) != perSession {
			t.Fatalf("session %d: expected %d turns, got %d", i, perSession, len(turns))
		}
		for j, turn := range turns {
			if want := fmt.Sprintf("msg-%d", j); turn.UserText != want {
				t.Fatalf("session %d turn %d out of order: got %q", i, j, turn.UserText)
			}
		}
	}
}

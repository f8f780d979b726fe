// Package ws accepts WebSocket connections and runs the per-session
// receive and write loops.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/Necoverse/awa/internal/config"
	"github.com/Necoverse/awa/internal/domain"
	"github.com/Necoverse/awa/internal/hub"
	"github.com/Necoverse/awa/internal/protocol"
)

// Pipeline processes one inbound frame and always returns a response.
type Pipeline interface {
	Handle(ctx context.Context, sessionID string, frame *protocol.Frame) *protocol.Response
}

// ProfileMerger records connection events on the user's profile.
type ProfileMerger interface {
	MergeProfile(ctx context.Context, userID string, preferences, interaction map[string]any) error
}

// Server handles WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	pipeline Pipeline
	profiles ProfileMerger
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewServer creates a WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, p Pipeline, profiles ProfileMerger, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		hub:      h,
		pipeline: p,
		profiles: profiles,
		log:      log.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Browser clients connect from arbitrary origins.
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the connection and owns its lifecycle until
// disconnect.
func (s *Server) HandleWebSocket(c echo.Context) error {
	clientID := c.Param("client_id")
	if clientID == "" {
		clientID = uuid.New().String()
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to upgrade WebSocket")
		return err
	}

	sess := hub.NewSession(clientID, conn)

	// Registration: record the connection event on the profile. If the
	// identity cannot be established the connection is refused.
	mctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = s.profiles.MergeProfile(mctx, clientID, nil, map[string]any{
		"last_connection": time.Now().UTC().Format(time.RFC3339),
	})
	cancel()
	if err != nil {
		s.log.Error().Err(err).Str("client_id", clientID).Msg("session registration failed")
		conn.Close()
		return nil
	}

	s.hub.Register(sess)
	sess.Activate()
	sess.SetReadLimit(s.cfg.WS.MaxMessageSize)

	wg := conc.NewWaitGroup()
	wg.Go(func() { s.writePump(sess) })
	s.readPump(sess)
	wg.Wait()
	return nil
}

// readPump reads frames and hands each one to the pipeline inline, so
// messages on one session are processed strictly sequentially: the next
// frame is not read until the previous one, persistence included, has
// fully returned.
func (s *Server) readPump(sess *hub.Session) {
	defer s.hub.Teardown(sess)

	sess.SetReadDeadline(time.Now().Add(s.cfg.WS.ReadTimeout))
	sess.SetPongHandler(func(string) error {
		sess.SetReadDeadline(time.Now().Add(s.cfg.WS.ReadTimeout))
		return nil
	})

	for {
		_, data, err := sess.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn().Err(err).Str("session_id", sess.ID).Msg("WebSocket read error")
			}
			return
		}
		sess.Touch()
		s.dispatch(sess, data)
	}
}

// writePump drains the session's outbound queue and keeps the
// connection alive with pings.
func (s *Server) writePump(sess *hub.Session) {
	ticker := time.NewTicker(s.cfg.WS.PingInterval)
	defer func() {
		ticker.Stop()
		s.hub.Teardown(sess)
	}()

	for {
		select {
		case message, ok := <-sess.Outbound():
			sess.SetWriteDeadline(time.Now().Add(s.cfg.WS.WriteTimeout))
			if !ok {
				// Session closed, complete the close handshake.
				sess.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sess.WriteMessage(websocket.TextMessage, message); err != nil {
				s.log.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			sess.SetWriteDeadline(time.Now().Add(s.cfg.WS.WriteTimeout))
			if err := sess.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch parses one raw frame and runs it through the pipeline. Every
// failure is answered on the same session; nothing here terminates the
// receive loop.
func (s *Server) dispatch(sess *hub.Session, data []byte) {
	if sess.State() != domain.SessionActive {
		s.log.Debug().Str("session_id", sess.ID).Stringer("state", sess.State()).Msg("dropping frame for inactive session")
		return
	}

	frame, err := protocol.ParseFrame(data)
	if err != nil {
		code := protocol.CodeInvalidMessage
		if perr, ok := err.(*protocol.Error); ok {
			code = perr.Code
		}
		s.log.Warn().Err(err).Str("session_id", sess.ID).Msg("malformed inbound frame")
		s.send(sess, protocol.NewError("Invalid message format.", code))
		return
	}

	resp := s.pipeline.Handle(sess.Context(), sess.ClientID, frame)
	s.send(sess, resp)
}

// send queues a response on the session. A send after close is dropped,
// never an error that propagates.
func (s *Server) send(sess *hub.Session, resp *protocol.Response) {
	if err := sess.SendJSON(resp); err != nil {
		s.log.Debug().Err(err).Str("session_id", sess.ID).Msg("response dropped")
	}
}

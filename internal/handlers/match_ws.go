// internal/handlers/match_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/clashcourse/clashcourse/internal/auth"
	"github.com/clashcourse/clashcourse/internal/match"
	"github.com/clashcourse/clashcourse/internal/middleware"
)

const (
	// outBufferSize is the per-connection outbound frame buffer. Broadcasts
	// enqueue non-blocking; a client that falls this far behind loses frames.
	outBufferSize = 16

	// writeTimeout bounds a single websocket write in the writer goroutine.
	writeTimeout = 3 * time.Second
)

// inboundFrame is the envelope for client messages.
type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type submitAnswerFrame struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// MatchWSHandler upgrades GET /ws/{match_id} to the battle protocol. The
// client authenticates with the seat token from match create/join, passed
// as ?token= or an Authorization bearer header.
func (s *Server) MatchWSHandler(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("match_id")

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"battle"},
		OriginPatterns: strings.Split(getEnv("WS_ORIGINS", "*"), ","),
	})
	if err != nil {
		s.Logger.Warnf("websocket accept for match %s failed: %v", matchID, err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "server error")

	if c.Subprotocol() != "battle" {
		c.Close(BadSubprotocolError, "client must speak the battle subprotocol")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = extractBearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		s.closeWithError(c, InvalidSeatTokenError, "missing seat token")
		return
	}
	player, tokenMatchID, err := auth.AuthenticateSeatToken(token)
	if err != nil {
		s.closeWithError(c, InvalidSeatTokenError, "invalid seat token")
		return
	}
	if tokenMatchID != matchID {
		s.closeWithError(c, MatchMismatchError, "token was issued for a different match")
		return
	}

	m, ok := s.Matches.Get(matchID)
	if !ok {
		s.closeWithError(c, MatchNotFoundError, "match not found")
		return
	}

	s.installBroadcasters(m)

	// The writer must be running before HandleConnect: the engine greets the
	// player (and may replay a snapshot) through the out channel.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	out := make(chan []byte, outBufferSize)
	go s.writePump(ctx, c, out)

	if err := m.HandleConnect(player, c, out, cancel); err != nil {
		s.closeWithError(c, NotSeatedError, "player not seated in this match")
		return
	}
	middleware.LogWebSocketConnect(s.Logger, matchID, player, r.RemoteAddr)

	readErr := s.readLoop(ctx, c, m, player)

	m.HandleDisconnect(player, c)
	middleware.LogWebSocketDisconnect(s.Logger, matchID, player, readErr)
	c.Close(websocket.StatusNormalClosure, "")
}

// installBroadcasters wires the match's fan-out closures on first connect.
// The engine invokes them with the match lock held, so they must not lock
// and must not block: one marshal per event, then a non-blocking enqueue to
// each player's writer channel.
func (s *Server) installBroadcasters(m *match.Match) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.BroadcastFn != nil {
		return
	}

	m.BroadcastFn = func(ev match.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.Logger.Errorf("match %s: marshal %s event: %v", m.ID, ev.Type, err)
			return
		}
		for _, p := range m.Players {
			if !p.Connected || p.Out == nil {
				continue
			}
			select {
			case p.Out <- data:
			default:
				s.Logger.Warnf("match %s: dropping %s frame for slow client %s", m.ID, ev.Type, p.Name)
			}
		}
	}
	m.BroadcastToPlayerFn = func(name string, ev match.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.Logger.Errorf("match %s: marshal %s event: %v", m.ID, ev.Type, err)
			return
		}
		for _, p := range m.Players {
			if p.Name != name {
				continue
			}
			if !p.Connected || p.Out == nil {
				return
			}
			select {
			case p.Out <- data:
			default:
				s.Logger.Warnf("match %s: dropping %s frame for slow client %s", m.ID, ev.Type, p.Name)
			}
			return
		}
	}
}

// writePump drains one connection's outbound channel onto the socket. Exits
// on context cancellation, channel close, or a failed write; the read loop
// notices the broken socket on its own.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-out:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.Logger.Debugf("websocket write failed: %v", err)
				return
			}
		}
	}
}

// readLoop routes inbound frames until the socket closes or errors. A
// normal closure returns nil.
func (s *Server) readLoop(ctx context.Context, c *websocket.Conn, m *match.Match, player string) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendErrorFrame(ctx, c, "invalid JSON frame")
			continue
		}

		switch frame.Type {
		case "submit_answer":
			var body submitAnswerFrame
			if err := json.Unmarshal(frame.Data, &body); err != nil {
				s.sendErrorFrame(ctx, c, "invalid submit_answer payload")
				continue
			}
			// Incorrect answers come back to the submitter as an
			// answer_feedback event; correct ones resolve the round with a
			// broadcast. Only admission and grading failures need a reply
			// here.
			if _, err := m.SubmitAnswer(ctx, player, body.QuestionID, body.Answer); err != nil {
				s.sendErrorFrame(ctx, c, submitErrorMessage(err))
			}
		case "skip_round":
			if err := m.VoteSkip(player); err != nil {
				s.sendErrorFrame(ctx, c, submitErrorMessage(err))
			}
		case "ping":
			s.sendEvent(ctx, c, match.Event{Type: match.EventPong})
		default:
			s.sendErrorFrame(ctx, c, fmt.Sprintf("unknown frame type: %s", frame.Type))
		}
	}
}

// sendEvent writes one event frame directly on the socket. Used for read
// loop replies; engine broadcasts go through the writer channel instead.
func (s *Server) sendEvent(ctx context.Context, c *websocket.Conn, ev match.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.Logger.Errorf("marshal %s frame: %v", ev.Type, err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Write(writeCtx, websocket.MessageText, data); err != nil {
		s.Logger.Debugf("direct write of %s frame failed: %v", ev.Type, err)
	}
}

func (s *Server) sendErrorFrame(ctx context.Context, c *websocket.Conn, msg string) {
	s.sendEvent(ctx, c, match.Event{Type: match.EventError, Data: match.ErrorData{Message: msg}})
}

// closeWithError sends a final error frame, then closes with an application
// close code so clients can distinguish rejection reasons.
func (s *Server) closeWithError(c *websocket.Conn, code websocket.StatusCode, msg string) {
	s.sendErrorFrame(context.Background(), c, msg)
	c.Close(code, msg)
}

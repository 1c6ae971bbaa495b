package cdpbridge

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"

	"cdpproxy/internal/allowlist"
)

// wsFrame is one result of an outstanding WebSocket receive.
type wsFrame struct {
	mt   int
	data []byte
	err  error
}

// SessionLoop runs the per-WebSocket state machine of spec §4.4: attach,
// forward inbound, forward outbound, enforce the allow-list, detach, close.
//
// Grounded on other_examples' devtoolsproxy-proxy.go proxyWebSocket (two
// concurrent sources feeding one select loop) and on the original Python
// proxy's devtools_socket, which races asyncio.Task(ws.receive()) against
// asyncio.Task(session_queue.get()) the same way.
type SessionLoop struct {
	Conn    *websocket.Conn
	Session *Session
	Bridge  *Bridge
	Allow   *allowlist.List // nil means "all methods allowed"
	Log     *slog.Logger
}

// Run attaches the session to the WebSocket traffic and blocks until either
// side terminates, then always runs the cleanup path (remove from table,
// detach, close) regardless of which side triggered the exit.
func (l *SessionLoop) Run(ctx context.Context) {
	defer l.cleanup(ctx)

	wsCh := l.startRead()
	inbox := l.Session.Inbox()
	for {
		select {
		case frame := <-wsCh:
			if frame.err != nil || frame.mt != websocket.TextMessage {
				return
			}
			if !l.handleInbound(frame.data) {
				return
			}
			wsCh = l.startRead()
		case m, ok := <-inbox:
			if !ok || m == nil {
				return
			}
			if !l.handleOutbound(m) {
				return
			}
		}
	}
}

func (l *SessionLoop) startRead() chan wsFrame {
	ch := make(chan wsFrame, 1)
	go func() {
		mt, data, err := l.Conn.ReadMessage()
		ch <- wsFrame{mt: mt, data: data, err: err}
	}()
	return ch
}

// handleInbound processes one client->browser text frame. Returns false if
// the loop should exit (transport error writing back to the client).
func (l *SessionLoop) handleInbound(data []byte) bool {
	var parsed Message
	if l.Allow != nil || l.Session.Mode == Flat {
		if err := json.Unmarshal(data, &parsed); err != nil {
			l.logError("malformed client frame", err)
			return true
		}
	}

	if l.Allow != nil {
		if !l.Allow.Permits(data) {
			return l.denyFrame(parsed.ID)
		}
	}

	switch l.Session.Mode {
	case Nested:
		if err := l.Bridge.SendToTarget(context.Background(), l.Session.ID, data); err != nil {
			l.logError("forwarding to target", err)
		}
	case Flat:
		parsed.SessionID = l.Session.ID
		out, err := json.Marshal(parsed)
		if err != nil {
			l.logError("re-encoding flat frame", err)
			return true
		}
		if err := l.Bridge.RawSend(out); err != nil {
			l.logError("raw_send", err)
			return false
		}
	}
	return true
}

// denyFrame answers an allow-list denial directly to the client without
// forwarding anything to the pipe (spec §4.4, §4.6, §8 invariant 5).
func (l *SessionLoop) denyFrame(clientID *int64) bool {
	deny := Message{
		ID:    clientID,
		Error: &CDPError{Code: ErrCodeNotAllowed, Message: "not allowed"},
	}
	if err := l.Conn.WriteJSON(deny); err != nil {
		l.logError("writing deny frame", err)
		return false
	}
	return true
}

// handleOutbound strips sessionId (clients must never see it, spec §8
// invariant 4) and relays m to the WebSocket as a text frame.
func (l *SessionLoop) handleOutbound(m *Message) bool {
	m.SessionID = ""
	if err := l.Conn.WriteJSON(m); err != nil {
		l.logError("writing to client", err)
		return false
	}
	return true
}

func (l *SessionLoop) cleanup(ctx context.Context) {
	if err := l.Bridge.Detach(ctx, l.Session.ID); err != nil {
		l.logError("detach", err)
	}
	_ = l.Conn.Close()
}

func (l *SessionLoop) logError(msg string, err error) {
	if l.Log == nil {
		return
	}
	l.Log.Error(msg, slog.String("sessionId", l.Session.ID), slog.String("err", err.Error()))
}

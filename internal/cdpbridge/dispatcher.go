package cdpbridge

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"cdpproxy/internal/cdppipe"
)

// Dispatcher is the single reader task of spec §4.2: it owns the decoder and
// demultiplexes every decoded pipe message into either a pending-request
// completion (via Registry) or a session inbox (via the session table).
//
// Grounded on the original Python proxy's manage_pipe coroutine, generalized
// the way other_examples' chromedp handler.go splits qres/qevents — except
// here routing precedence between "session" and "registry" is msg-shaped,
// not channel-shaped, because flat-mode replies carry both sessionId and id.
type Dispatcher struct {
	codec    *cdppipe.Codec
	registry *Registry
	sessions *sessionTable
	log      *slog.Logger

	done chan struct{}
}

func newDispatcher(codec *cdppipe.Codec, registry *Registry, sessions *sessionTable, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{codec: codec, registry: registry, sessions: sessions, log: log, done: make(chan struct{})}
}

// Run reads frames until the pipe closes or decodes a framing error. On
// return, every pending Call has failed and every session has seen the
// detach sentinel (spec §5 Cancellation, §8 invariant 6).
func (d *Dispatcher) Run() error {
	defer close(d.done)
	defer d.registry.failAll()
	defer d.sessions.detachAll()
	for {
		raw, err := d.codec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			d.log.Error("pipe framing error", slog.String("err", err.Error()))
			return err
		}
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			d.log.Error("pipe decode error", slog.String("err", err.Error()))
			continue
		}
		d.route(&m)
	}
}

// Done is closed once Run returns.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// route implements the five-way precedence of spec §4.2. Flat-mode session
// delivery (step 1) is checked before registry lookup (step 2) because a
// flat session's own setup-time attachTo* reply has no sessionId field yet
// and must still fall through to the registry (spec §9 design note).
func (d *Dispatcher) route(m *Message) {
	switch {
	case m.SessionID != "" && d.sessions.deliverTo(m.SessionID, m):
		return
	case m.ID != nil && d.registry.resolve(*m.ID, *m):
		return
	case m.Method == "Target.receivedMessageFromTarget":
		d.routeNestedEvent(m)
	case m.Method == "Target.detachedFromTarget":
		d.routeDetach(m)
	default:
		// Unhandled browser-scope event; dropped per spec §4.2 step 5.
	}
}

func (d *Dispatcher) routeNestedEvent(m *Message) {
	var params struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(m.Params, &params); err != nil {
		d.log.Error("malformed Target.receivedMessageFromTarget", slog.String("err", err.Error()))
		return
	}
	if params.SessionID == "" {
		return
	}
	var sub Message
	if err := json.Unmarshal([]byte(params.Message), &sub); err != nil {
		d.log.Error("malformed nested CDP message", slog.String("err", err.Error()))
		return
	}
	d.sessions.deliverTo(params.SessionID, &sub)
}

func (d *Dispatcher) routeDetach(m *Message) {
	var params struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(m.Params, &params); err != nil {
		return
	}
	if params.SessionID == "" {
		return
	}
	if s, ok := d.sessions.get(params.SessionID); ok {
		d.sessions.remove(params.SessionID)
		s.deliver(nil, d.sessions)
	}
}

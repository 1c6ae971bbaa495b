package cdpbridge

import (
	"context"
	"encoding/json"
	"log/slog"

	"cdpproxy/internal/cdppipe"
)

// Bridge ties the registry, dispatcher, and session table to one pipe codec
// — the concurrency discipline of spec §5 that keeps a single pipe-writer
// and single pipe-reader without deadlock.
type Bridge struct {
	registry *Registry
	sessions *sessionTable
	disp     *Dispatcher
	log      *slog.Logger
}

// New wires a Bridge around codec. Call Run in its own goroutine to start
// the dispatcher before issuing any Call.
func New(codec *cdppipe.Codec, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	sessions := newSessionTable()
	registry := NewRegistry(codec)
	return &Bridge{
		registry: registry,
		sessions: sessions,
		disp:     newDispatcher(codec, registry, sessions, log),
		log:      log,
	}
}

// Run drives the dispatcher's read loop until the pipe closes. Intended to
// run in its own goroutine; callers observe shutdown via Done.
func (b *Bridge) Run() error { return b.disp.Run() }

// Done is closed once the dispatcher has observed pipe EOF and unwound every
// session and pending call.
func (b *Bridge) Done() <-chan struct{} { return b.disp.Done() }

// Call issues a browser-scoped CDP request (no sessionId) and waits for its
// reply (spec §4.3 call).
func (b *Bridge) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	return b.registry.Call(ctx, method, params)
}

// AttachToTarget issues Target.attachToTarget for targetID and registers a
// Nested-mode session (spec §4.4 step 2).
func (b *Bridge) AttachToTarget(ctx context.Context, targetID string) (*Session, error) {
	params, _ := json.Marshal(map[string]any{"targetId": targetID, "flatten": false})
	return b.attach(ctx, "Target.attachToTarget", params, Nested)
}

// AttachToBrowserTarget issues Target.attachToBrowserTarget and registers a
// Flat-mode session (spec §4.4 step 1).
func (b *Bridge) AttachToBrowserTarget(ctx context.Context) (*Session, error) {
	return b.attach(ctx, "Target.attachToBrowserTarget", nil, Flat)
}

func (b *Bridge) attach(ctx context.Context, method string, params json.RawMessage, mode Mode) (*Session, error) {
	result, err := b.registry.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	var res struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, err
	}
	s := &Session{ID: res.SessionID, Mode: mode, inbox: make(chan *Message, inboxCapacity)}
	if !b.sessions.register(s) {
		// Chromium handed back a sessionId already live in our table; this
		// should not happen (spec §3 invariant), surfaced as a bridge bug
		// rather than silently overwriting the existing session.
		return nil, &CDPError{Code: ErrCodeInvalidParams, Message: "sessionId already in use: " + s.ID}
	}
	return s, nil
}

// Detach removes sessionID from the table and issues Target.detachFromTarget,
// tolerating error -32602 (session already gone) per spec §3, §7. Called
// from a session loop's cleanup path and is safe to call even if the
// dispatcher already removed the session on detachedFromTarget/EOF.
func (b *Bridge) Detach(ctx context.Context, sessionID string) error {
	b.sessions.remove(sessionID)
	params, _ := json.Marshal(map[string]any{"sessionId": sessionID})
	_, err := b.registry.Call(ctx, "Target.detachFromTarget", params)
	if err != nil && !IsInvalidParams(err) {
		return err
	}
	return nil
}

// SendToTarget forwards message to sessionID's target via
// Target.sendMessageToTarget; its envelope reply is discarded — the actual
// target reply arrives asynchronously through the session inbox (spec §4.4
// Inbound handling, nested mode).
func (b *Bridge) SendToTarget(ctx context.Context, sessionID string, message json.RawMessage) error {
	params, err := json.Marshal(map[string]any{"sessionId": sessionID, "message": string(message)})
	if err != nil {
		return err
	}
	_, err = b.registry.Call(ctx, "Target.sendMessageToTarget", params)
	return err
}

// RawSend is the flat-mode injection path: it writes obj (already carrying
// sessionId) straight to the pipe without registering a completion handle
// (spec §4.3 raw_send, §9 Open Question).
func (b *Bridge) RawSend(obj json.RawMessage) error {
	return b.registry.RawSend(obj)
}

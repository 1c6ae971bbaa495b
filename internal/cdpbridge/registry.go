package cdpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"cdpproxy/internal/cdppipe"
)

// ErrPipeClosed is returned by Call/RawSend once the dispatcher has observed
// pipe EOF; every pending registry entry fails with this error at that point
// (spec §4.2, §8 invariant 6).
var ErrPipeClosed = errors.New("cdpbridge: pipe closed")

// pending is the one-shot completion handle for an in-flight request id.
type pending struct {
	resultCh chan Message
}

// Registry is the monotonic id allocator and pipe writer described in spec
// §4.3. Id allocation, map insertion, and the framed write happen as one
// critical section under mu, exactly as the teacher's CDPConn.Send serializes
// writes with its own mutex — this guarantees wire order matches id order
// (spec §8 invariant 1).
type Registry struct {
	codec *cdppipe.Codec

	mu      sync.Mutex
	nextID  int64
	pending map[int64]*pending
	closed  bool
}

// NewRegistry creates a registry writing frames through codec. Ids start at
// 0 per spec §3.
func NewRegistry(codec *cdppipe.Codec) *Registry {
	return &Registry{codec: codec, pending: make(map[int64]*pending)}
}

// Call allocates the next id, sends {id, method, params}, and blocks for the
// matching reply. The dispatcher completes the returned channel from
// resolve/fail; Call never touches the session table.
func (r *Registry) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	msg, ch, err := r.send(method, params, "")
	if err != nil {
		return nil, err
	}
	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrPipeClosed
		}
		if reply.Error != nil {
			return nil, reply.Error
		}
		return reply.Result, nil
	case <-ctx.Done():
		r.forget(*msg.ID)
		return nil, ctx.Err()
	}
}

// RawSend is the flat-mode path (spec §9 Open Question, resolved): it writes
// a pre-formed, already-sessionId-qualified message without registering a
// completion handle, because no reply is expected for an event-shaped
// forwarded message — the actual reply, if any, arrives asynchronously
// through the session's inbox instead.
func (r *Registry) RawSend(obj json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrPipeClosed
	}
	return r.codec.Encode(obj)
}

func (r *Registry) send(method string, params json.RawMessage, sessionID string) (Message, chan Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Message{}, nil, ErrPipeClosed
	}
	id := r.nextID
	r.nextID++
	msg := WithID(id, Message{Method: method, Params: params, SessionID: sessionID})
	ch := make(chan Message, 1)
	r.pending[id] = &pending{resultCh: ch}
	if err := r.codec.Encode(msg); err != nil {
		delete(r.pending, id)
		return Message{}, nil, err
	}
	return msg, ch, nil
}

// resolve completes the pending entry for id, if any. Called only from the
// dispatcher goroutine.
func (r *Registry) resolve(id int64, m Message) bool {
	r.mu.Lock()
	p, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	p.resultCh <- m
	return true
}

func (r *Registry) forget(id int64) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// failAll marks the registry closed and fails every pending call with
// ErrPipeClosed, invoked once by the dispatcher on EOF.
func (r *Registry) failAll() {
	r.mu.Lock()
	r.closed = true
	pend := r.pending
	r.pending = nil
	r.mu.Unlock()
	for _, p := range pend {
		close(p.resultCh)
	}
}

package cdpbridge

import "sync"

// Mode distinguishes CDP sessions attached to the browser target ("flat",
// messages carry sessionId at top level) from sessions attached to a page
// target ("nested", messages are wrapped in Target.sendMessageToTarget /
// Target.receivedMessageFromTarget envelopes). See spec §3, GLOSSARY.
type Mode int

const (
	Nested Mode = iota
	Flat
)

// inboxCapacity is generous rather than unbounded (spec §5 "Backpressure":
// inboxes should be unbounded or generously bounded"). A session that can't
// drain 256 queued browser messages is treated as stalled and is dropped
// rather than letting it block the dispatcher shared by every other session.
const inboxCapacity = 256

// Session is one WebSocket client's attachment to a target, per spec §3.
// A nil *Message received from Inbox is the detach sentinel.
type Session struct {
	ID   string
	Mode Mode

	inbox chan *Message
}

// Inbox returns the session's receive channel of CDP messages destined for
// its WebSocket; a nil value read from it means "session is gone, stop"
// (spec §4.4 Outbound handling).
func (s *Session) Inbox() <-chan *Message { return s.inbox }

// deliver pushes into the inbox without blocking the dispatcher forever: if
// the consumer truly never drains (already torn down, or pathologically
// slow), the send would block every other session, so a full inbox instead
// closes the session (spec §5 Backpressure: "overflow closes the offending
// session rather than blocking the dispatcher").
func (s *Session) deliver(m *Message, table *sessionTable) {
	select {
	case s.inbox <- m:
	default:
		table.dropOverflowing(s.ID)
	}
}

// sessionTable is the sessionId -> Session map of spec §3's "Session table".
// Mutated only by the dispatcher goroutine and by session-loop bring-up and
// teardown (spec §5 "Shared resources").
type sessionTable struct {
	mu sync.Mutex
	m  map[string]*Session
}

func newSessionTable() *sessionTable {
	return &sessionTable{m: make(map[string]*Session)}
}

// register inserts a freshly attached session. Returns false if sessionID is
// already live (spec §3 invariant: no two live sessions share a sessionId).
func (t *sessionTable) register(s *Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.m[s.ID]; exists {
		return false
	}
	t.m[s.ID] = s
	return true
}

// remove deletes sessionID from the table. Safe to call more than once.
func (t *sessionTable) remove(sessionID string) {
	t.mu.Lock()
	delete(t.m, sessionID)
	t.mu.Unlock()
}

func (t *sessionTable) get(sessionID string) (*Session, bool) {
	t.mu.Lock()
	s, ok := t.m[sessionID]
	t.mu.Unlock()
	return s, ok
}

// deliverTo routes m to sessionID's inbox if that session is still live.
// Returns false if there is no such live session (caller falls through to
// the next routing rule, per spec §4.2).
func (t *sessionTable) deliverTo(sessionID string, m *Message) bool {
	s, ok := t.get(sessionID)
	if !ok {
		return false
	}
	s.deliver(m, t)
	return true
}

// detachAll pushes the detach sentinel into every live session's inbox, used
// once by the dispatcher on pipe EOF (spec §4.2, §8 invariant 6).
func (t *sessionTable) detachAll() {
	t.mu.Lock()
	sessions := make([]*Session, 0, len(t.m))
	for _, s := range t.m {
		sessions = append(sessions, s)
	}
	t.mu.Unlock()
	for _, s := range sessions {
		s.deliver(nil, t)
	}
}

// dropOverflowing force-detaches a session whose inbox is full, per the
// backpressure rule in spec §5.
func (t *sessionTable) dropOverflowing(sessionID string) {
	t.mu.Lock()
	s, ok := t.m[sessionID]
	if ok {
		delete(t.m, sessionID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	select {
	case s.inbox <- nil:
	default:
	}
}

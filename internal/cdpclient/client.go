// Package cdpclient is developer tooling for talking to a running proxy
// over its UNIX socket: the JSON endpoints (targets/new/close) and a thin
// CDP call/listen client over the devtools WebSocket endpoints. It backs
// the cdpproxy CLI subcommands (targets, new-target, close, send, watch).
//
// Grounded on the teacher's cmd/cdp.go and internal/cdp.go (CDPConn:
// pending-map id correlation, a buffered Events channel, one readLoop
// goroutine), adapted from dialing a TCP devtools port to dialing a UNIX
// socket path via a custom net.Dialer plumbed through both http.Transport
// and websocket.Dialer.
package cdpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Message mirrors the wire shape of cdpbridge.Message for CLI-side decoding;
// kept separate (rather than importing cdpbridge) since the CLI is an
// external client of the proxy, not a participant in its session table.
type Message struct {
	ID        int64           `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Error          `json:"error,omitempty"`
}

// Error is the CDP {code, message} error shape.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message) }

// HTTPClient returns an *http.Client that dials socketPath instead of a
// TCP host, for the /json/* endpoints (spec §6).
func HTTPClient(socketPath string) *http.Client {
	dialer := &net.Dialer{}
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

// GetJSON issues GET path against the proxy's unix socket and decodes the
// response body as JSON into out.
func GetJSON(ctx context.Context, socketPath, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix"+path, nil)
	if err != nil {
		return err
	}
	resp, err := HTTPClient(socketPath).Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cdpclient: %s: %s: %s", path, resp.Status, string(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetText is like GetJSON but returns the raw response body, for endpoints
// like /json/close/{id} that respond with plain text.
func GetText(ctx context.Context, socketPath, path string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix"+path, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := HTTPClient(socketPath).Do(req)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, err
	}
	return string(body), resp.StatusCode, nil
}

// Conn is a CDP connection to one devtools WebSocket endpoint on the proxy.
type Conn struct {
	ws     *websocket.Conn
	nextID int64

	mu      sync.Mutex
	pending map[int64]chan Message
	closed  bool

	Events chan Message
}

// dialer builds a websocket.Dialer that connects over socketPath regardless
// of the ws URL's host component.
func dialer(socketPath string) *websocket.Dialer {
	d := &net.Dialer{}
	return &websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
}

// Dial opens a WebSocket to wsPath (e.g. "/devtools/page/<id>") on the
// proxy listening at socketPath. withEvents sizes an event buffer for
// method-shaped (no id) messages; pass false for request/response-only use.
func Dial(socketPath, wsPath string, withEvents bool) (*Conn, error) {
	ws, _, err := dialer(socketPath).Dial("ws://unix"+wsPath, nil)
	if err != nil {
		return nil, err
	}
	c := &Conn{ws: ws, pending: make(map[int64]chan Message)}
	if withEvents {
		c.Events = make(chan Message, 100)
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.closed = true
			for _, ch := range c.pending {
				close(ch)
			}
			c.pending = nil
			if c.Events != nil {
				close(c.Events)
			}
			c.mu.Unlock()
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.ID != 0 {
			c.mu.Lock()
			if ch, ok := c.pending[msg.ID]; ok {
				ch <- msg
				delete(c.pending, msg.ID)
			}
			c.mu.Unlock()
		} else if msg.Method != "" && c.Events != nil {
			c.mu.Lock()
			if !c.closed {
				select {
				case c.Events <- msg:
				default:
				}
			}
			c.mu.Unlock()
		}
	}
}

// Call sends {id, method, params} and waits for the matching reply.
func (c *Conn) Call(ctx context.Context, method string, params json.RawMessage) (Message, error) {
	id := atomic.AddInt64(&c.nextID, 1)
	msg := Message{ID: id, Method: method, Params: params}
	data, err := json.Marshal(msg)
	if err != nil {
		return Message{}, err
	}
	ch := make(chan Message, 1)
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return Message{}, fmt.Errorf("cdpclient: connection closed")
	}
	c.pending[id] = ch
	c.mu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Message{}, err
	}
	select {
	case reply, ok := <-ch:
		if !ok {
			return Message{}, fmt.Errorf("cdpclient: connection closed")
		}
		return reply, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Message{}, ctx.Err()
	}
}

// Close closes the underlying WebSocket.
func (c *Conn) Close() error { return c.ws.Close() }

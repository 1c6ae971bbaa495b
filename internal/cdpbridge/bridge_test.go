package cdpbridge_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpproxy/internal/cdpbridge"
	"cdpproxy/internal/cdppipe"
)

// duplex adapts a pair of io.Pipe halves into the io.ReadWriter a
// cdppipe.Codec wants, the same shape the supervisor's net.FileConn gives it
// in production — here standing in for the Chromium end of the socketpair.
type duplex struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (d duplex) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d duplex) Write(p []byte) (int, error) { return d.w.Write(p) }

// harness wires a Bridge to a simulated Chromium pipe peer that a test can
// script by reading decoded requests and enqueuing responses.
type harness struct {
	bridge     *cdpbridge.Bridge
	browser    *cdppipe.Codec
	toProxyW   *io.PipeWriter // browser's write half; closing it simulates Chromium exiting
	bridgeDone chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	toProxyR, toProxyW := io.Pipe()
	toBrowserR, toBrowserW := io.Pipe()

	proxySide := duplex{r: toProxyR, w: toBrowserW}
	browserSide := duplex{r: toBrowserR, w: toProxyW}

	bridge := cdpbridge.New(cdppipe.New(proxySide), nil)
	h := &harness{bridge: bridge, browser: cdppipe.New(browserSide), toProxyW: toProxyW, bridgeDone: make(chan error, 1)}
	go func() { h.bridgeDone <- bridge.Run() }()
	return h
}

// respondOnce decodes one request from the simulated browser side and
// writes back a {id, result} reply built from makeResult(method, params).
func (h *harness) respondOnce(t *testing.T, makeResult func(method string, params json.RawMessage) any) {
	t.Helper()
	raw, err := h.browser.Decode()
	require.NoError(t, err)
	var req struct {
		ID     int64           `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	require.NoError(t, json.Unmarshal(raw, &req))
	result := makeResult(req.Method, req.Params)
	resultJSON, err := json.Marshal(result)
	require.NoError(t, err)
	require.NoError(t, h.browser.Encode(map[string]any{"id": req.ID, "result": json.RawMessage(resultJSON)}))
}

func TestBridgeCallRoundTrip(t *testing.T) {
	h := newHarness(t)
	go h.respondOnce(t, func(method string, _ json.RawMessage) any {
		assert.Equal(t, "Browser.getVersion", method)
		return map[string]string{"product": "HeadlessChrome/1.0"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := h.bridge.Call(ctx, "Browser.getVersion", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"product":"HeadlessChrome/1.0"}`, string(result))
}

func TestBridgeAttachToTargetAndNestedEvent(t *testing.T) {
	h := newHarness(t)
	go h.respondOnce(t, func(method string, _ json.RawMessage) any {
		assert.Equal(t, "Target.attachToTarget", method)
		return map[string]string{"sessionId": "S1"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	session, err := h.bridge.AttachToTarget(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "S1", session.ID)
	assert.Equal(t, cdpbridge.Nested, session.Mode)

	inner, _ := json.Marshal(map[string]any{"method": "Page.frameStoppedLoading", "params": map[string]any{"frameId": "F1"}})
	wrapped, _ := json.Marshal(map[string]any{"sessionId": "S1", "message": string(inner)})
	require.NoError(t, h.browser.Encode(map[string]any{"method": "Target.receivedMessageFromTarget", "params": json.RawMessage(wrapped)}))

	select {
	case m := <-session.Inbox():
		require.NotNil(t, m)
		assert.Equal(t, "Page.frameStoppedLoading", m.Method)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for nested event")
	}
}

func TestBridgeAttachToBrowserTargetIsFlatMode(t *testing.T) {
	h := newHarness(t)
	go h.respondOnce(t, func(method string, _ json.RawMessage) any {
		assert.Equal(t, "Target.attachToBrowserTarget", method)
		return map[string]string{"sessionId": "B1"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	session, err := h.bridge.AttachToBrowserTarget(ctx)
	require.NoError(t, err)
	assert.Equal(t, cdpbridge.Flat, session.Mode)
}

func TestBridgeDetachToleratesAlreadyGoneSession(t *testing.T) {
	h := newHarness(t)
	go h.respondOnce(t, func(method string, _ json.RawMessage) any {
		assert.Equal(t, "Target.detachFromTarget", method)
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := h.bridge.Detach(ctx, "gone")
	assert.NoError(t, err)
}

func TestBridgeUnwindsOnPipeClose(t *testing.T) {
	h := newHarness(t)
	go h.respondOnce(t, func(method string, _ json.RawMessage) any {
		return map[string]string{"sessionId": "S2"}
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	session, err := h.bridge.AttachToTarget(ctx, "T2")
	require.NoError(t, err)

	require.NoError(t, h.toProxyW.Close()) // simulate Chromium exiting: EOF on the proxy's read side

	select {
	case m := <-session.Inbox():
		assert.Nil(t, m, "detach sentinel expected")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for detach sentinel")
	}

	select {
	case err := <-h.bridgeDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatcher to unwind")
	}

	_, callErr := h.bridge.Call(context.Background(), "Browser.getVersion", nil)
	assert.ErrorIs(t, callErr, cdpbridge.ErrPipeClosed)
}

package cmd

import (
	"context"
	"strings"

	"cdpproxy/internal/cdpclient"
	"cdpproxy/internal/utility"
)

// resolveWsPath turns a --target value ("" or "browser" for the browser
// session, otherwise a target id) into the devtools WebSocket path to dial,
// by querying the same JSON endpoints a DevTools frontend would.
func resolveWsPath(ctx context.Context, socket, target string) (string, error) {
	if target == "" || target == "browser" {
		var version struct {
			WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
		}
		if err := cdpclient.GetJSON(ctx, socket, "/json/version", &version); err != nil {
			return "", utility.ErrRuntime("%v", err)
		}
		return wsPathFromURL(version.WebSocketDebuggerURL), nil
	}
	var records []struct {
		ID                   string `json:"id"`
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := cdpclient.GetJSON(ctx, socket, "/json/list", &records); err != nil {
		return "", utility.ErrRuntime("%v", err)
	}
	for _, r := range records {
		if r.ID == target {
			return wsPathFromURL(r.WebSocketDebuggerURL), nil
		}
	}
	return "", utility.ErrUser("no such target: %s", target)
}

// wsPathFromURL strips the ws: scheme the httpapi package writes
// (e.g. "ws:/devtools/page/<id>") down to the bare path gorilla/websocket's
// Dial still wants prefixed with "ws://unix" by the caller.
func wsPathFromURL(u string) string {
	return "/" + strings.TrimLeft(strings.TrimPrefix(u, "ws:"), "/")
}

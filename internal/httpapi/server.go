// Package httpapi implements the DevTools-compatible HTTP+WebSocket surface
// of spec §4.5/§6: four JSON endpoints translating CDP Target.* calls to
// DevTools-compatible responses, plus the two WebSocket upgrade endpoints
// that hand off into a cdpbridge.SessionLoop.
//
// Routing uses github.com/gorilla/mux for the path-parameterized routes
// (/json/close/{id}, /devtools/page/{id}), generalizing the teacher's plain
// net/http client calls (which never needed a router) the way the rest of
// the example pack routes CDP-adjacent HTTP traffic.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"cdpproxy/internal/allowlist"
	"cdpproxy/internal/cdpbridge"
)

var webkitVersionRE = regexp.MustCompile(`AppleWebKit/(\d+)\.(\d+)`)

// Server builds the DevTools HTTP surface backed by one Bridge.
type Server struct {
	bridge      *cdpbridge.Bridge
	allow       *allowlist.List
	log         *slog.Logger
	browserUUID uuid.UUID
	browserPath string
	upgrader    websocket.Upgrader
}

// New constructs a Server with a freshly generated per-process browser
// debugger path (spec §3 "Browser debugger path": stable for the process
// lifetime, hidden from json_list).
func New(bridge *cdpbridge.Bridge, allow *allowlist.List, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	id := uuid.New()
	return &Server{
		bridge:      bridge,
		allow:       allow,
		log:         log,
		browserUUID: id,
		browserPath: "/devtools/browser/" + id.String(),
		upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// BrowserDebuggerURL returns the ws: URL DevTools clients should use to
// attach at the browser level.
func (s *Server) BrowserDebuggerURL() string { return "ws:" + s.browserPath }

// Handler builds the mux.Router serving every endpoint in spec §6.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/json/version", s.jsonVersion).Methods(http.MethodGet)
	r.HandleFunc("/json/new", s.jsonNew).Methods(http.MethodGet)
	r.HandleFunc("/json/list", s.jsonList).Methods(http.MethodGet)
	r.HandleFunc("/json/close/{id}", s.jsonClose).Methods(http.MethodGet)
	r.HandleFunc("/devtools/page/{id}", s.wsNested).Methods(http.MethodGet)
	r.HandleFunc(s.browserPath, s.wsFlat).Methods(http.MethodGet)
	return r
}

type targetInfo struct {
	TargetID string `json:"targetId"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	URL      string `json:"url"`
}

type devtoolsRecord struct {
	Description          string `json:"description"`
	ID                   string `json:"id"`
	Title                string `json:"title"`
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

func targetToRecord(t targetInfo) devtoolsRecord {
	return devtoolsRecord{
		Description:          "",
		ID:                   t.TargetID,
		Title:                t.Title,
		Type:                 t.Type,
		URL:                  t.URL,
		WebSocketDebuggerURL: "ws:/devtools/page/" + t.TargetID,
	}
}

func (s *Server) getTargets(ctx context.Context) ([]targetInfo, error) {
	result, err := s.bridge.Call(ctx, "Target.getTargets", nil)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		TargetInfos []targetInfo `json:"targetInfos"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, err
	}
	return parsed.TargetInfos, nil
}

func (s *Server) jsonVersion(w http.ResponseWriter, r *http.Request) {
	result, err := s.bridge.Call(r.Context(), "Browser.getVersion", nil)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	var version struct {
		Product         string `json:"product"`
		Revision        string `json:"revision"`
		UserAgent       string `json:"userAgent"`
		ProtocolVersion string `json:"protocolVersion"`
		JSVersion       string `json:"jsVersion"`
	}
	if err := json.Unmarshal(result, &version); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	webkitVersion := fmt.Sprintf("0.0 (%s)", version.Revision)
	if m := webkitVersionRE.FindStringSubmatch(version.UserAgent); m != nil {
		webkitVersion = fmt.Sprintf("%s.%s (%s)", m[1], m[2], version.Revision)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"Browser":              version.Product,
		"Protocol-Version":     version.ProtocolVersion,
		"User-Agent":           version.UserAgent,
		"V8-Version":           version.JSVersion,
		"WebKit-Version":       webkitVersion,
		"webSocketDebuggerUrl": s.BrowserDebuggerURL(),
	})
}

func (s *Server) jsonNew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	createParams, _ := json.Marshal(map[string]string{"url": ""})
	created, err := s.bridge.Call(ctx, "Target.createTarget", createParams)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	var createdTarget struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(created, &createdTarget); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	targets, err := s.getTargets(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	for _, t := range targets {
		if t.TargetID == createdTarget.TargetID {
			writeJSON(w, http.StatusOK, targetToRecord(t))
			return
		}
	}
	// spec §4.5: json_new must confirm the created target by re-reading
	// Target.getTargets, failing if the newly created id is absent.
	s.writeError(w, http.StatusInternalServerError, fmt.Errorf("target %s went missing", createdTarget.TargetID))
}

func (s *Server) jsonList(w http.ResponseWriter, r *http.Request) {
	targets, err := s.getTargets(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	records := make([]devtoolsRecord, 0, len(targets))
	for _, t := range targets {
		records = append(records, targetToRecord(t))
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) jsonClose(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	params, _ := json.Marshal(map[string]string{"targetId": id})
	result, err := s.bridge.Call(r.Context(), "Target.closeTarget", params)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	var res struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if res.Success {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Target is closing"))
		return
	}
	// REDESIGN FLAG (spec §9 Open Question): the original returns HTTP 200
	// with "Failed to close..." here; this is the compliant DevTools
	// behavior the source itself marks TODO. See DESIGN.md.
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("No such target id: " + id))
}

func (s *Server) wsNested(w http.ResponseWriter, r *http.Request) {
	targetID := mux.Vars(r)["id"]
	s.serveWebSocket(w, r, func(ctx context.Context) (*cdpbridge.Session, error) {
		return s.bridge.AttachToTarget(ctx, targetID)
	})
}

func (s *Server) wsFlat(w http.ResponseWriter, r *http.Request) {
	s.serveWebSocket(w, r, func(ctx context.Context) (*cdpbridge.Session, error) {
		return s.bridge.AttachToBrowserTarget(ctx)
	})
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request, attach func(context.Context) (*cdpbridge.Session, error)) {
	session, err := attach(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", slog.String("err", err.Error()))
		_ = s.bridge.Detach(context.Background(), session.ID)
		return
	}
	loop := &cdpbridge.SessionLoop{Conn: conn, Session: session, Bridge: s.bridge, Allow: s.allow, Log: s.log}
	loop.Run(context.Background())
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.log.Error("request failed", slog.String("err", err.Error()))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

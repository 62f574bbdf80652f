// Package appiumtest provides an in-process fake Appium server for tests.
package appiumtest

import (
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// png is a 1x1 transparent pixel.
var png = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
	0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
	0x42, 0x60, 0x82,
}

// Server is a fake Appium server. It accepts every session, finds every
// element unless told otherwise, and records what it was asked to do.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	missing  map[string]bool
	sessions map[string]map[string]interface{}
	typed    []string
	counts   map[string]int
	nextID   atomic.Int64
}

// NewServer starts a fake server. Call Close when done.
func NewServer() *Server {
	s := &Server{
		missing:  make(map[string]bool),
		sessions: make(map[string]map[string]interface{}),
		counts:   make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Host returns the host the server listens on.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Listener.Addr().String())
	return host
}

// Port returns the port the server listens on.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// Hide makes element lookups by value fail with "no such element".
func (s *Server) Hide(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing[value] = true
}

// Count returns how many requests hit an endpoint kind: "session",
// "delete", "element", "click", "value", "actions", "back", "screenshot".
func (s *Server) Count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[kind]
}

// OpenSessions returns the number of sessions not yet deleted.
func (s *Server) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Typed returns every text sent to an element, in order.
func (s *Server) Typed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.typed...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 0 || parts[0] != "session" {
		notFound(w, "unknown command")
		return
	}

	var body map[string]interface{}
	if r.Body != nil && r.Method == http.MethodPost {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	// POST /session
	if len(parts) == 1 && r.Method == http.MethodPost {
		s.createSession(w, body)
		return
	}

	id := parts[1]
	s.mu.Lock()
	_, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "invalid session id", "session "+id+" does not exist")
		return
	}

	switch {
	case len(parts) == 2 && r.Method == http.MethodDelete:
		s.mu.Lock()
		delete(s.sessions, id)
		s.counts["delete"]++
		s.mu.Unlock()
		writeValue(w, nil)
	case len(parts) == 3 && parts[2] == "element":
		s.findElement(w, body)
	case len(parts) == 5 && parts[2] == "element" && parts[4] == "click":
		s.count("click")
		writeValue(w, nil)
	case len(parts) == 5 && parts[2] == "element" && parts[4] == "value":
		text, _ := body["text"].(string)
		s.mu.Lock()
		s.counts["value"]++
		s.typed = append(s.typed, text)
		s.mu.Unlock()
		writeValue(w, nil)
	case len(parts) == 3 && parts[2] == "actions":
		s.count("actions")
		writeValue(w, nil)
	case len(parts) == 3 && parts[2] == "back":
		s.count("back")
		writeValue(w, nil)
	case len(parts) == 3 && parts[2] == "screenshot":
		s.count("screenshot")
		writeValue(w, base64.StdEncoding.EncodeToString(png))
	default:
		notFound(w, "unknown command")
	}
}

func (s *Server) createSession(w http.ResponseWriter, body map[string]interface{}) {
	caps := map[string]interface{}{}
	if c, ok := body["capabilities"].(map[string]interface{}); ok {
		if am, ok := c["alwaysMatch"].(map[string]interface{}); ok {
			caps = am
		}
	}
	id := "session-" + strconv.FormatInt(s.nextID.Add(1), 10)

	s.mu.Lock()
	s.sessions[id] = caps
	s.counts["session"]++
	s.mu.Unlock()

	writeValue(w, map[string]interface{}{
		"sessionId":    id,
		"capabilities": caps,
	})
}

func (s *Server) findElement(w http.ResponseWriter, body map[string]interface{}) {
	value, _ := body["value"].(string)

	s.mu.Lock()
	s.counts["element"]++
	hidden := s.missing[value]
	s.mu.Unlock()

	if hidden {
		writeError(w, http.StatusNotFound, "no such element", "An element could not be located on the page using the given search parameters.")
		return
	}
	writeValue(w, map[string]interface{}{
		w3cElementKey: "element-" + strconv.FormatInt(s.nextID.Add(1), 10),
	})
}

func (s *Server) count(kind string) {
	s.mu.Lock()
	s.counts[kind]++
	s.mu.Unlock()
}

func writeValue(w http.ResponseWriter, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": value})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"value": map[string]interface{}{"error": code, "message": msg},
	})
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, "unknown command", msg)
}

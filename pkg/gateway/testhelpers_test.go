// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/lingr-ircd/pkg/ircd"
	"github.com/aiku/lingr-ircd/pkg/lingr"
)

// observeReply scripts one reply of the fake observe endpoint.
type observeReply struct {
	res *lingr.ObserveResult
	err *lingr.APIError
}

// fakeLingr is a scripted stand-in for the Lingr API.
type fakeLingr struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	calls    []string
	enter    *lingr.EnterResult
	user     *lingr.UserInfo
	info     *lingr.RoomInfo
	observes []observeReply
	// fail maps an API path to an error forced on every call to it.
	fail map[string]*lingr.APIError
}

func newFakeLingr(t *testing.T) *fakeLingr {
	t.Helper()
	f := &fakeLingr{
		t: t,
		user: &lingr.UserInfo{
			UserID:          "alice",
			DefaultNickname: "Alice W",
		},
		enter: &lingr.EnterResult{
			Ticket:     "tick-1",
			Counter:    1,
			OccupantID: "occ-self",
			Room: lingr.RoomDesc{
				ID:          "lobby",
				URL:         "http://www.lingr.com/room/lobby",
				Description: "the lobby",
			},
		},
		info: &lingr.RoomInfo{},
		fail: make(map[string]*lingr.APIError),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLingr) URL() string { return f.srv.URL }

func (f *fakeLingr) callPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// queueObserve appends scripted observe replies. Once the script is
// exhausted the endpoint blocks like a real long poll.
func (f *fakeLingr) queueObserve(replies ...observeReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observes = append(f.observes, replies...)
}

func (f *fakeLingr) setFail(path string, code int, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[path] = &lingr.APIError{Code: code, Message: msg}
}

func (f *fakeLingr) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		f.t.Errorf("bad form in %s: %v", r.URL.Path, err)
	}
	f.mu.Lock()
	f.calls = append(f.calls, r.URL.Path)
	if apiErr, ok := f.fail[r.URL.Path]; ok {
		f.mu.Unlock()
		writeAPIError(w, apiErr)
		return
	}
	f.mu.Unlock()

	switch r.URL.Path {
	case "/session/create":
		writeOK(w, map[string]any{"session": "sess-1"})
	case "/session/login", "/room/say", "/room/exit":
		writeOK(w, nil)
	case "/user/get_info":
		f.mu.Lock()
		u := *f.user
		f.mu.Unlock()
		writeOK(w, map[string]any{
			"user_id":          u.UserID,
			"default_nickname": u.DefaultNickname,
			"description":      u.Description,
		})
	case "/room/enter":
		f.mu.Lock()
		e := *f.enter
		f.mu.Unlock()
		writeOK(w, map[string]any{
			"ticket":      e.Ticket,
			"counter":     e.Counter,
			"occupant_id": e.OccupantID,
			"room": map[string]any{
				"id":          e.Room.ID,
				"url":         e.Room.URL,
				"description": e.Room.Description,
			},
		})
	case "/room/get_info":
		f.mu.Lock()
		occ := append([]lingr.Occupant(nil), f.info.Occupants...)
		f.mu.Unlock()
		writeOK(w, map[string]any{"occupants": occ})
	case "/room/observe":
		f.mu.Lock()
		if len(f.observes) == 0 {
			f.mu.Unlock()
			<-r.Context().Done()
			return
		}
		rep := f.observes[0]
		f.observes = f.observes[1:]
		f.mu.Unlock()
		if rep.err != nil {
			writeAPIError(w, rep.err)
			return
		}
		writeOK(w, map[string]any{
			"counter":   rep.res.Counter,
			"messages":  rep.res.Messages,
			"occupants": rep.res.Occupants,
		})
	default:
		f.t.Errorf("unexpected API call %s", r.URL.Path)
		http.NotFound(w, r)
	}
}

func writeOK(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"status": "ok"}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeAPIError(w http.ResponseWriter, apiErr *lingr.APIError) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "error",
		"error":  map[string]any{"code": apiErr.Code, "message": apiErr.Message},
	})
}

// mockConn captures everything the session writes and feeds it scripted
// client lines.
type mockConn struct {
	mu      sync.Mutex
	written []*ircd.Message
	closed  bool

	inbound chan *ircd.Message
	done    chan struct{}
	once    sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{
		inbound: make(chan *ircd.Message, 16),
		done:    make(chan struct{}),
	}
}

func (c *mockConn) ReadMessage() (*ircd.Message, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.done:
		return nil, fmt.Errorf("connection closed")
	}
}

func (c *mockConn) WriteMessage(msg *ircd.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	c.written = append(c.written, msg)
	return nil
}

func (c *mockConn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

func (c *mockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// reset discards everything captured so far.
func (c *mockConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = nil
}

func (c *mockConn) messages() []*ircd.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ircd.Message(nil), c.written...)
}

// lines renders every captured message for coarse assertions.
func (c *mockConn) lines() []string {
	msgs := c.messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.String()
	}
	return out
}

func (c *mockConn) countCommand(command string) int {
	n := 0
	for _, m := range c.messages() {
		if m.Command == command {
			n++
		}
	}
	return n
}

// newTestSession builds a session against the fake API with registration
// already completed, ready for direct handler calls.
func newTestSession(t *testing.T, f *fakeLingr) (*Session, *mockConn) {
	t.Helper()
	cfg := &Config{
		APIKey:              "test-key",
		APIBaseURL:          f.URL(),
		ObserveBackoffMinMS: 1,
		ObserveBackoffMaxMS: 20,
	}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	conn := newMockConn()
	reg := &ircd.Registration{
		Nick:     "alice",
		Username: "alice",
		Realname: "alice@example.com",
		Password: "hunter2",
	}
	s := NewSession(cfg, conn, reg, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s.ctx = ctx
	s.cancel = cancel
	if err := s.register(ctx); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Drop the welcome burst so tests assert on their own traffic only.
	conn.reset()
	return s, conn
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// Copyright 2024-2026 Aiku AI

package lingr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
)

// apiCall records one endpoint hit during a test.
type apiCall struct {
	Path   string
	Params url.Values
}

// fakeLingr wraps an httptest.Server simulating the Lingr API. It records
// calls and serves canned responses.
type fakeLingr struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []apiCall

	// Fail maps a path to an API error returned for it.
	Fail map[string]*APIError
	// Enter is returned from /room/enter.
	Enter EnterResult
	// ObserveQueue holds replies for successive /room/observe calls. The
	// last element repeats once the queue is exhausted.
	ObserveQueue []ObserveResult
	observeIdx   int
	// User is returned from /user/get_info.
	User UserInfo
	// Occupants is returned from /room/get_info.
	Occupants []Occupant
}

func newFakeLingr() *fakeLingr {
	f := &fakeLingr{
		Fail: make(map[string]*APIError),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeLingr) Close() {
	f.Server.Close()
}

func (f *fakeLingr) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]apiCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeLingr) CalledPath(path string) bool {
	for _, c := range f.Calls() {
		if c.Path == path {
			return true
		}
	}
	return false
}

func writeOK(w http.ResponseWriter, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["status"] = "ok"
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, apiErr *APIError) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "error",
		"error":  apiErr,
	})
}

func (f *fakeLingr) handler(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Path: r.URL.Path, Params: r.PostForm})
	failErr := f.Fail[r.URL.Path]
	f.mu.Unlock()

	if failErr != nil {
		writeAPIError(w, failErr)
		return
	}

	switch r.URL.Path {
	case "/session/create":
		writeOK(w, map[string]any{"session": "fake-session"})

	case "/session/login":
		writeOK(w, nil)

	case "/user/get_info":
		writeOK(w, map[string]any{
			"user_id":          f.User.UserID,
			"default_nickname": f.User.DefaultNickname,
			"description":      f.User.Description,
		})

	case "/room/enter":
		writeOK(w, map[string]any{
			"ticket":      f.Enter.Ticket,
			"counter":     f.Enter.Counter,
			"occupant_id": f.Enter.OccupantID,
			"room":        f.Enter.Room,
		})

	case "/room/observe":
		f.mu.Lock()
		var res ObserveResult
		if len(f.ObserveQueue) > 0 {
			idx := f.observeIdx
			if idx >= len(f.ObserveQueue) {
				idx = len(f.ObserveQueue) - 1
			}
			res = f.ObserveQueue[idx]
			f.observeIdx++
		}
		f.mu.Unlock()
		writeOK(w, map[string]any{
			"counter":   res.Counter,
			"messages":  res.Messages,
			"occupants": res.Occupants,
		})

	case "/room/say", "/room/exit":
		writeOK(w, nil)

	case "/room/get_info":
		f.mu.Lock()
		occupants := f.Occupants
		f.mu.Unlock()
		writeOK(w, map[string]any{"occupants": occupants})

	default:
		w.WriteHeader(http.StatusNotFound)
		writeAPIError(w, &APIError{Code: 100, Message: "unknown path " + r.URL.Path})
	}
}

// newTestClient returns a client pointed at the fake server.
func newTestClient(f *fakeLingr) *Client {
	return NewClient("test-key", f.Server.URL, zerolog.Nop())
}

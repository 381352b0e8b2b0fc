package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"ecobee_automation/internal/models"
	"ecobee_automation/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// --- parseInterval unit tests ---

func TestParseInterval(t *testing.T) {
	h := NewHandler(&service.Service{}, nil)

	cases := []struct {
		name string
		u    string
		want time.Duration
	}{
		{"default_when_missing", "/ws", 1 * time.Second},
		{"interval_string_valid", "/ws?interval=200ms", 200 * time.Millisecond},
		{"interval_ms_valid", "/ws?interval_ms=150", 150 * time.Millisecond},
		{"interval_too_large", "/ws?interval=20s", 1 * time.Second},
		{"interval_ms_too_large", "/ws?interval_ms=20000", 1 * time.Second},
		{"interval_invalid_string", "/ws?interval=bogus", 1 * time.Second},
		{"interval_ms_invalid", "/ws?interval_ms=NaN", 1 * time.Second},
		{"both_present_interval_wins", "/ws?interval=2s&interval_ms=150", 2 * time.Second},
		{"both_present_invalid_interval_ms_used", "/ws?interval=bogus&interval_ms=250", 250 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.u, nil)
			c, _ := gin.CreateTestContext(w)
			c.Request = req
			got := h.parseInterval(c)
			if got != tc.want {
				t.Fatalf("got %v, want %v for %s", got, tc.want, tc.u)
			}
		})
	}
}

// --- websocket integration tests ---

func wsURL(t *testing.T, base, token string) *url.URL {
	t.Helper()
	u, err := url.Parse(base)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	q := u.Query()
	q.Set("token", token)
	q.Set("interval_ms", "20") // fast ticks for the test
	u.RawQuery = q.Encode()
	return u
}

func TestWebSocket_StreamsAppendedEvents(t *testing.T) {
	auth := &mockAuth{parseSubject: "operator"}
	// Two events already "appended"; the handler dedupes by event id, so each
	// must arrive exactly once even though the mock returns both every poll.
	later := time.Now().UTC().Add(time.Minute)
	logs := &mockEventLog{resp: []models.AutomationEvent{
		{EventID: "e1", OccurredAt: later, Type: "LOGIN", Description: "portal session established"},
		{EventID: "e2", OccurredAt: later.Add(time.Second), Type: "MODE_CHANGE", Device: "home", Description: "mode set to heat"},
	}}
	s := &service.Service{Authorization: auth, EventLog: logs}

	r := gin.New()
	h := NewHandler(s, nil)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	defer srv.Close()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(wsURL(t, srv.URL, "good").String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	type envelope struct {
		Type  string          `json:"type"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}

	seen := map[string]int{}
	for i := 0; i < 2; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read event %d: %v", i, err)
		}
		if env.Type != "event" || len(env.Data) == 0 {
			t.Fatalf("bad envelope: %+v", env)
		}
		var e models.AutomationEvent
		if err := json.Unmarshal(env.Data, &e); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		seen[e.EventID]++
	}
	if seen["e1"] != 1 || seen["e2"] != 1 {
		t.Fatalf("expected each event exactly once, got %v", seen)
	}
	if auth.lastParseToken != "good" {
		t.Fatalf("token not validated: %q", auth.lastParseToken)
	}
}

func TestSendNewEvents_PrunesDedupSetBelowWatermark(t *testing.T) {
	logs := &mockEventLog{}
	h := NewHandler(&service.Service{EventLog: logs}, nil)

	serverConn := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConn <- c
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	u.Scheme = "ws"
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	client, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer client.Close()
	conn := <-serverConn
	defer conn.Close()

	// Drain writes so the server side never blocks.
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	base := time.Now().UTC().Truncate(time.Second)
	since := base
	sent := make(map[string]time.Time)

	logs.resp = []models.AutomationEvent{
		{EventID: "e1", OccurredAt: base, Type: "LOGIN", Description: "portal session established"},
		{EventID: "e2", OccurredAt: base.Add(time.Second), Type: "MODE_CHANGE", Device: "home", Description: "mode set to heat"},
	}
	if err := h.sendNewEvents(context.Background(), conn, &since, sent); err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if !since.Equal(base.Add(time.Second)) {
		t.Fatalf("watermark not advanced: %v", since)
	}
	// Timestamps have second resolution, so the entry at the watermark must
	// survive for dedup on the next inclusive poll; anything older cannot
	// come back from List and gets pruned.
	if _, ok := sent["e1"]; ok {
		t.Fatalf("entry below watermark not pruned: %v", sent)
	}
	if _, ok := sent["e2"]; !ok {
		t.Fatalf("watermark entry must be kept for dedup: %v", sent)
	}

	logs.resp = []models.AutomationEvent{
		{EventID: "e2", OccurredAt: base.Add(time.Second), Type: "MODE_CHANGE", Device: "home", Description: "mode set to heat"},
		{EventID: "e3", OccurredAt: base.Add(2 * time.Second), Type: "STATUS_READ", Device: "home", Description: "status read"},
	}
	if err := h.sendNewEvents(context.Background(), conn, &since, sent); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if _, ok := sent["e2"]; ok {
		t.Fatalf("stale entry kept after watermark advanced: %v", sent)
	}
	if len(sent) != 1 {
		t.Fatalf("dedup set not bounded to the watermark: %v", sent)
	}
}

func TestWebSocket_RejectsInvalidToken(t *testing.T) {
	auth := &mockAuth{parseErr: errors.New("expired")}
	s := &service.Service{Authorization: auth, EventLog: &mockEventLog{}}

	r := gin.New()
	h := NewHandler(s, nil)
	r.GET("/ws", h.wsConnect)

	srv := httptest.NewServer(r)
	defer srv.Close()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	_, resp, err := dialer.Dial(wsURL(t, srv.URL, "bad").String(), nil)
	if err == nil {
		t.Fatalf("expected handshake rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", resp)
	}
}

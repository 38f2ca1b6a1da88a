package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantera/tradesim/internal/book"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubFeed is an in-process feed endpoint for wire-level tests. It records
// every op the client sends and hands each frame to a per-test script.
type stubFeed struct {
	srv *httptest.Server

	mu  sync.Mutex
	ops []string
}

func newStubFeed(t *testing.T, script func(conn *websocket.Conn, op string)) *stubFeed {
	t.Helper()
	s := &stubFeed{}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var frame struct {
				Op string `json:"op"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			s.mu.Lock()
			s.ops = append(s.ops, frame.Op)
			s.mu.Unlock()
			if script != nil {
				script(conn, frame.Op)
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *stubFeed) url() string { return "ws" + strings.TrimPrefix(s.srv.URL, "http") }

func (s *stubFeed) sawOp(op string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.ops {
		if o == op {
			return true
		}
	}
	return false
}

func snapshotFrame(bid, ask string) []byte {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return []byte(`{"arg":{"channel":"books5","instId":"BTC-USDT"},"data":[{"ts":"` +
		ts + `","bids":[["` + bid + `","2"]],"asks":[["` + ask + `","2"]]}]}`)
}

func newWireManager(url string, store *book.Store) *Manager {
	return NewManager(Config{
		URL:         url,
		Symbol:      "BTC-USDT",
		OpenTimeout: 2 * time.Second,
		AckTimeout:  500 * time.Millisecond,
		ReadTimeout: time.Second,
	}, store, nil, testLogger())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSubscribeNackStillStreams(t *testing.T) {
	stub := newStubFeed(t, func(conn *websocket.Conn, op string) {
		if op == "subscribe" {
			conn.WriteJSON(map[string]string{"event": "error", "code": "60012", "msg": "Invalid request"})
			conn.WriteMessage(websocket.TextMessage, snapshotFrame("100", "101"))
		}
	})

	store := book.NewStore("OKX", "BTC-USDT")
	m := newWireManager(stub.url(), store)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer m.Disconnect()

	waitFor(t, 2*time.Second, func() bool {
		return m.State() == StateStreaming && store.Valid()
	}, "rejected subscription must still reach streaming and apply snapshots")

	if mid, ok := store.MidPrice(); !ok || mid != 100.5 {
		t.Errorf("mid price after NACKed subscribe: got %v ok=%v, want 100.5", mid, ok)
	}
}

func TestFeedPingAnsweredNotForwarded(t *testing.T) {
	stub := newStubFeed(t, func(conn *websocket.Conn, op string) {
		if op == "subscribe" {
			conn.WriteJSON(map[string]string{"event": "subscribe"})
			conn.WriteJSON(map[string]string{"op": "ping"})
		}
	})

	store := book.NewStore("OKX", "BTC-USDT")
	m := newWireManager(stub.url(), store)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer m.Disconnect()

	waitFor(t, 2*time.Second, func() bool {
		return stub.sawOp("pong")
	}, "feed ping must be answered with a pong")

	if store.Valid() {
		t.Error("control frames must never reach the book store")
	}
}

func TestDisconnectSendsUnsubscribe(t *testing.T) {
	stub := newStubFeed(t, func(conn *websocket.Conn, op string) {
		if op == "subscribe" {
			conn.WriteJSON(map[string]string{"event": "subscribe"})
			conn.WriteMessage(websocket.TextMessage, snapshotFrame("100", "101"))
		}
	})

	store := book.NewStore("OKX", "BTC-USDT")
	m := newWireManager(stub.url(), store)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	waitFor(t, 2*time.Second, store.Valid, "snapshot must reach the book before the stop")

	if err := m.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return stub.sawOp("unsubscribe")
	}, "explicit stop must send an unsubscribe frame on the live connection")
}

func TestNoBookWritesAfterDisconnect(t *testing.T) {
	stub := newStubFeed(t, func(conn *websocket.Conn, op string) {
		if op == "subscribe" {
			conn.WriteJSON(map[string]string{"event": "subscribe"})
			go func() {
				for {
					if err := conn.WriteMessage(websocket.TextMessage, snapshotFrame("100", "101")); err != nil {
						return
					}
					time.Sleep(5 * time.Millisecond)
				}
			}()
		}
	})

	store := book.NewStore("OKX", "BTC-USDT")
	m := newWireManager(stub.url(), store)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	waitFor(t, 2*time.Second, store.Valid, "snapshots must flow before the stop")

	if err := m.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	count := m.Stats().MessageCount
	ts := store.Snapshot().Timestamp
	time.Sleep(60 * time.Millisecond)

	if got := m.Stats().MessageCount; got != count {
		t.Errorf("message count moved after stop: %d -> %d", count, got)
	}
	if got := store.Snapshot().Timestamp; !got.Equal(ts) {
		t.Errorf("book updated after stop: %v -> %v", ts, got)
	}
}

func TestRetryBudgetExhaustionStopsCleanly(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close() // every dial now fails outright

	store := book.NewStore("OKX", "BTC-USDT")
	m := NewManager(Config{
		URL:           url,
		Symbol:        "BTC-USDT",
		OpenTimeout:   200 * time.Millisecond,
		BackoffBase:   time.Millisecond,
		MaxBackoffExp: 1,
		MaxRetries:    2,
	}, store, nil, testLogger())

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return m.State() == StateDisconnected &&
			strings.Contains(m.Stats().LastError, "retry budget")
	}, "manager must go terminal once the retry budget is spent")

	// The terminal path released the run context, so a later Connect starts a
	// fresh attempt cycle instead of short-circuiting.
	before := m.Stats().Reconnects
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect after exhaustion: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return m.Stats().Reconnects > before
	}, "a fresh Connect after exhaustion must dial again")
}

func TestStaleSeededFromSessionStart(t *testing.T) {
	m := NewManager(Config{
		URL:             "wss://example.test/ws",
		Symbol:          "BTC-USDT",
		StalenessWindow: time.Minute,
	}, book.NewStore("OKX", "BTC-USDT"), nil, testLogger())

	if m.stale() {
		t.Error("never-connected manager must not report stale")
	}

	// A session that opened long ago and never delivered a single message is
	// stale even though lastMessageAt was never set.
	m.sessionStartAt.Store(time.Now().Add(-2 * time.Minute).UnixNano())
	if !m.stale() {
		t.Error("silent session past the staleness window must report stale")
	}

	m.lastMessageAt.Store(time.Now().UnixNano())
	if m.stale() {
		t.Error("a fresh message must clear staleness")
	}
}

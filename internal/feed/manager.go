// Package feed owns the streaming connection to the exchange: dialing,
// subscription handshake, keepalive, reconnection with backoff, and the read
// loop that is the book store's only writer.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantera/tradesim/internal/book"
	"github.com/quantera/tradesim/internal/domain"
	"github.com/quantera/tradesim/internal/metrics"
	"github.com/quantera/tradesim/internal/platform/okx"
)

// State is the connection manager's lifecycle position. One mutable field,
// owned exclusively by the manager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribing
	StateStreaming
	StateDegraded
	StateReconnecting
	StateClosing
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateDegraded:
		return "degraded"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Config holds the manager's connection parameters. Zero values select the
// defaults noted per field.
type Config struct {
	URL     string
	Symbol  string
	Channel string // defaults to "books5"

	OpenTimeout       time.Duration // dial + handshake, default 15s
	AckTimeout        time.Duration // subscription ack wait, default 5s
	ReadTimeout       time.Duration // per-receive bound, default 30s
	KeepaliveInterval time.Duration // default 30s
	StalenessWindow   time.Duration // probe if quiet this long, default 60s
	BackoffBase       time.Duration // default 2s
	MaxBackoffExp     int           // backoff doubling clamp, default 6 (64s)
	MaxRetries        int           // consecutive failures before giving up, default 5
}

func (c Config) withDefaults() Config {
	if c.Channel == "" {
		c.Channel = "books5"
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 15 * time.Second
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 30 * time.Second
	}
	if c.StalenessWindow <= 0 {
		c.StalenessWindow = 60 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.MaxBackoffExp <= 0 {
		c.MaxBackoffExp = 6
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	return c
}

// Backoff returns the reconnect delay before the given attempt (1-based):
// base doubling per attempt, exponent clamped so the delay plateaus.
func Backoff(base time.Duration, attempt, maxExp int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := attempt - 1
	if exp > maxExp-1 {
		exp = maxExp - 1
	}
	return base << exp
}

// Publisher receives every applied snapshot together with the book's derived
// stats. Used for the peripheral fan-out (cache, hub); the book store itself
// is always written directly.
type Publisher interface {
	PublishTick(ctx context.Context, snap domain.BookSnapshot, stats domain.BookStats)
}

// Manager owns the transport connection. It is the sole writer to the book
// store; every send, receive and close funnels through it.
type Manager struct {
	cfg    Config
	store  *book.Store
	pub    Publisher // may be nil
	logger *slog.Logger

	mu      sync.Mutex // guards conn, cancel, running, lastError
	conn    *websocket.Conn
	writeMu sync.Mutex // serializes frames from read loop + keepalive
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup

	state          atomic.Int32
	messageCount   atomic.Int64
	reconnects     atomic.Int64
	lastMessageAt  atomic.Int64 // unix nanos, 0 until first message
	startedAt      atomic.Int64 // unix nanos of current Connect
	sessionStartAt atomic.Int64 // unix nanos of the current transport session
	lastError      string
}

// NewManager creates a Manager writing into the given store.
func NewManager(cfg Config, store *book.Store, pub Publisher, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg.withDefaults(),
		store:  store,
		pub:    pub,
		logger: logger.With(slog.String("component", "feed")),
	}
}

// Connect starts the ingestion loop. Idempotent: a second call while running
// is a no-op returning nil. It does not block on the connection coming up;
// progress is observable through State and Stats.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.running = true
	m.startedAt.Store(time.Now().UnixNano())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(runCtx)
	}()
	return nil
}

// Disconnect stops the manager: cancels every in-flight wait, sends a
// best-effort unsubscribe and close, and returns only after the loops have
// exited — no book store write happens after Disconnect returns. Idempotent.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.setState(StateClosing)
	m.running = false
	cancel := m.cancel
	conn := m.conn
	m.mu.Unlock()

	// The goodbye has to go out while the connection is still live; once the
	// context is cancelled the read loop's teardown closes the socket.
	if conn != nil {
		m.sendGoodbye(conn)
	}

	cancel()
	m.wg.Wait()

	m.closeConn()
	m.setState(StateDisconnected)
	m.logger.Info("feed stopped")
	return nil
}

// IsConnected reports whether the manager is currently streaming.
func (m *Manager) IsConnected() bool {
	s := m.State()
	return s == StateStreaming || s == StateSubscribing
}

// State returns the current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

// Stats returns the connectivity view for the presentation layer.
func (m *Manager) Stats() domain.ConnectionStats {
	m.mu.Lock()
	lastErr := m.lastError
	m.mu.Unlock()

	var ageSec, perSec float64
	if last := m.lastMessageAt.Load(); last > 0 {
		ageSec = time.Since(time.Unix(0, last)).Seconds()
	}
	count := m.messageCount.Load()
	if started := m.startedAt.Load(); started > 0 && count > 0 {
		if elapsed := time.Since(time.Unix(0, started)).Seconds(); elapsed > 0 {
			perSec = float64(count) / elapsed
		}
	}
	return domain.ConnectionStats{
		Connected:         m.IsConnected(),
		State:             m.State().String(),
		MessageCount:      count,
		LastMessageAgeSec: ageSec,
		MessagesPerSec:    perSec,
		Reconnects:        m.reconnects.Load(),
		LastError:         lastErr,
	}
}

func (m *Manager) setState(s State) { m.state.Store(int32(s)) }

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastError = err.Error()
	m.mu.Unlock()
}

// run is the connection lifecycle loop: connect, subscribe, stream; on
// transport failure back off and retry until the budget is spent.
func (m *Manager) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if err := m.connectOnce(ctx); err != nil {
			attempt++
			m.setLastError(err)
			if attempt >= m.cfg.MaxRetries {
				m.setLastError(fmt.Errorf("%w after %d attempts: %v", domain.ErrRetryBudgetExhausted, attempt, err))
				m.setState(StateDisconnected)
				m.mu.Lock()
				m.running = false
				cancel := m.cancel
				m.mu.Unlock()
				cancel() // release the run context; a later Connect installs a fresh one
				m.logger.Error("feed giving up", slog.Int("attempts", attempt), slog.String("error", err.Error()))
				return
			}

			delay := Backoff(m.cfg.BackoffBase, attempt, m.cfg.MaxBackoffExp)
			m.setState(StateReconnecting)
			m.reconnects.Add(1)
			metrics.FeedReconnects.Inc()
			m.logger.Warn("feed reconnecting",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		// streamLoop returned: either we were stopped or the connection died.
		if ctx.Err() != nil {
			return
		}
		attempt = 0 // the session was established, restart the budget
		m.setState(StateReconnecting)
		m.reconnects.Add(1)
		metrics.FeedReconnects.Inc()
	}
}

// connectOnce dials, subscribes, and streams until the connection fails or
// ctx is cancelled. A nil return means a session actually ran.
func (m *Manager) connectOnce(ctx context.Context) error {
	m.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.OpenTimeout)
	defer cancel()
	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.OpenTimeout}
	conn, _, err := dialer.DialContext(dialCtx, m.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", m.cfg.URL, err)
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	m.sessionStartAt.Store(time.Now().UnixNano())
	defer m.closeConn()

	m.logger.Info("feed connected", slog.String("url", m.cfg.URL))

	if err := m.subscribe(conn); err != nil {
		return err
	}

	keepaliveCtx, stopKeepalive := context.WithCancel(ctx)
	defer stopKeepalive()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.keepalive(keepaliveCtx, conn)
	}()

	m.setState(StateStreaming)
	m.streamLoop(ctx, conn)
	return nil
}

// subscribe sends the subscription request and waits (bounded) for an
// acknowledgment. A NACK or ack timeout is logged but does not tear the
// connection down: some feeds deliver data regardless, and the staleness
// probe catches a truly dead subscription within one keepalive window.
func (m *Manager) subscribe(conn *websocket.Conn) error {
	m.setState(StateSubscribing)

	if err := m.writeJSON(conn, okx.SubscribeRequest(m.cfg.Channel, m.cfg.Symbol)); err != nil {
		return fmt.Errorf("feed: subscribe %s/%s: %w", m.cfg.Channel, m.cfg.Symbol, err)
	}

	deadline := time.Now().Add(m.cfg.AckTimeout)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				m.logger.Warn("subscription ack timed out, streaming anyway")
				return nil
			}
			return fmt.Errorf("feed: await subscribe ack: %w", err)
		}

		msg, perr := okx.Parse(raw)
		if perr != nil {
			m.logger.Debug("dropping unrecognized frame during handshake")
			continue
		}
		switch msg.Kind {
		case okx.KindEvent:
			if msg.Event.OK() {
				m.logger.Info("subscription confirmed",
					slog.String("channel", m.cfg.Channel),
					slog.String("symbol", m.cfg.Symbol),
				)
			} else {
				m.logger.Warn("subscription not acknowledged, streaming anyway",
					slog.String("event", msg.Event.Event),
					slog.String("code", msg.Event.Code),
					slog.String("msg", msg.Event.Msg),
				)
			}
			return nil
		case okx.KindSnapshot:
			// Data before the ack counts as an implicit acknowledgment.
			m.handleSnapshot(msg.Snapshot, time.Now())
			return nil
		case okx.KindPing:
			_ = m.writeJSON(conn, okx.Request{Op: "pong"})
		}
	}
	m.logger.Warn("subscription ack timed out, streaming anyway")
	return nil
}

// streamLoop is the steady state: block on the next frame with a bounded
// read timeout, apply snapshots synchronously, answer pings. A read timeout
// alone is not a failure; a transport error ends the session.
func (m *Manager) streamLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if isTimeout(err) && !m.stale() {
				continue
			}
			if isTimeout(err) {
				// Quiet past the staleness window: probe before declaring
				// the connection dead.
				if m.probe(conn) {
					continue
				}
				m.setState(StateDegraded)
				m.setLastError(fmt.Errorf("feed: liveness probe failed: %w", domain.ErrNotConnected))
				m.logger.Warn("liveness probe failed, reconnecting immediately")
				return
			}
			m.setLastError(fmt.Errorf("feed: read: %w", err))
			m.logger.Warn("feed read failed", slog.String("error", err.Error()))
			return
		}

		received := time.Now()
		m.messageCount.Add(1)
		m.lastMessageAt.Store(received.UnixNano())
		metrics.FeedMessages.Inc()

		msg, perr := okx.Parse(raw)
		if perr != nil {
			metrics.FeedParseFailures.Inc()
			m.logger.Debug("dropping unparseable frame", slog.Int("len", len(raw)))
			continue
		}

		switch msg.Kind {
		case okx.KindSnapshot:
			m.handleSnapshot(msg.Snapshot, received)
		case okx.KindPing:
			// Reply immediately; never forwarded to the book.
			if err := m.writeJSON(conn, okx.Request{Op: "pong"}); err != nil {
				m.logger.Warn("pong write failed", slog.String("error", err.Error()))
			}
		case okx.KindPong:
			// Probe answered; freshness already recorded above.
		case okx.KindEvent:
			if !msg.Event.OK() {
				m.logger.Warn("feed event",
					slog.String("event", msg.Event.Event),
					slog.String("code", msg.Event.Code),
					slog.String("msg", msg.Event.Msg),
				)
			}
		}
	}
}

// handleSnapshot applies one normalized snapshot to the book store
// synchronously, then fans out to the peripheral publisher.
func (m *Manager) handleSnapshot(snap domain.BookSnapshot, received time.Time) {
	m.store.Update(snap, time.Since(received))
	metrics.BookStaleness.Set(0)
	metrics.BookUpdateLatency.Observe(float64(time.Since(received).Microseconds()) / 1000)

	if m.pub != nil {
		if stats, ok := m.store.Stats(); ok {
			m.pub.PublishTick(context.Background(), snap, stats)
		}
	}
}

// keepalive runs on a fixed interval and probes the connection when no
// message has been observed within the staleness window.
func (m *Manager) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(m.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Unblock a read stuck inside its deadline so shutdown is prompt.
			conn.Close()
			return
		case <-ticker.C:
			if last := m.lastMessageAt.Load(); last > 0 {
				metrics.BookStaleness.Set(time.Since(time.Unix(0, last)).Seconds())
			}
			if !m.stale() {
				continue
			}
			if err := m.writeJSON(conn, okx.PingRequest()); err != nil {
				// The read loop will observe the dead connection; closing it
				// here unblocks a stuck read immediately.
				m.logger.Warn("keepalive ping failed", slog.String("error", err.Error()))
				conn.Close()
				return
			}
		}
	}
}

// stale reports whether the feed has been quiet past the staleness window.
// A session that has never delivered a message is measured from the session
// start, so a silently dead subscription still gets probed.
func (m *Manager) stale() bool {
	last := m.lastMessageAt.Load()
	if start := m.sessionStartAt.Load(); start > last {
		last = start
	}
	if last == 0 {
		return false
	}
	return time.Since(time.Unix(0, last)) > m.cfg.StalenessWindow
}

// probe sends both an exchange-level ping and a transport-level ping.
// Returns false when the connection is unwritable.
func (m *Manager) probe(conn *websocket.Conn) bool {
	if err := m.writeJSON(conn, okx.PingRequest()); err != nil {
		return false
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.cfg.OpenTimeout))
	return conn.WriteMessage(websocket.PingMessage, nil) == nil
}

// writeJSON serializes one frame write; the write mutex keeps the keepalive
// loop and the read loop's pong replies off each other.
func (m *Manager) writeJSON(conn *websocket.Conn, v any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.cfg.OpenTimeout))
	return conn.WriteJSON(v)
}

// sendGoodbye sends a best-effort unsubscribe and close frame on a still-live
// connection.
func (m *Manager) sendGoodbye(conn *websocket.Conn) {
	_ = m.writeJSON(conn, okx.UnsubscribeRequest(m.cfg.Channel, m.cfg.Symbol))
	m.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	m.writeMu.Unlock()
}

// closeConn tears down the current connection if one is still held.
func (m *Manager) closeConn() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

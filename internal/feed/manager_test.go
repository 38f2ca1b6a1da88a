package feed

import (
	"testing"
	"time"
)

func TestBackoffSequence(t *testing.T) {
	base := 2 * time.Second
	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		64 * time.Second,
		64 * time.Second, // clamped
		64 * time.Second,
	}
	for i, w := range want {
		attempt := i + 1
		if got := Backoff(base, attempt, 6); got != w {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, w)
		}
	}
}

func TestBackoffBadAttempt(t *testing.T) {
	if got := Backoff(time.Second, 0, 6); got != time.Second {
		t.Errorf("attempt 0: got %v, want %v", got, time.Second)
	}
	if got := Backoff(time.Second, -3, 6); got != time.Second {
		t.Errorf("negative attempt: got %v, want %v", got, time.Second)
	}
}

func TestStateString(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateSubscribing, "subscribing"},
		{StateStreaming, "streaming"},
		{StateDegraded, "degraded"},
		{StateReconnecting, "reconnecting"},
		{StateClosing, "closing"},
		{State(99), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String(): got %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{URL: "wss://example.test/ws", Symbol: "BTC-USDT"}.withDefaults()

	if cfg.Channel != "books5" {
		t.Errorf("channel: got %q, want books5", cfg.Channel)
	}
	if cfg.KeepaliveInterval != 30*time.Second {
		t.Errorf("keepalive: got %v, want 30s", cfg.KeepaliveInterval)
	}
	if cfg.StalenessWindow != 60*time.Second {
		t.Errorf("staleness: got %v, want 60s", cfg.StalenessWindow)
	}
	if cfg.BackoffBase != 2*time.Second || cfg.MaxBackoffExp != 6 {
		t.Errorf("backoff: got base=%v exp=%d, want 2s and 6", cfg.BackoffBase, cfg.MaxBackoffExp)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("max retries: got %d, want 5", cfg.MaxRetries)
	}
}

func TestConfigDefaultsPreserveExplicit(t *testing.T) {
	cfg := Config{
		URL:        "wss://example.test/ws",
		Symbol:     "ETH-USDT",
		Channel:    "books",
		MaxRetries: 9,
	}.withDefaults()

	if cfg.Channel != "books" {
		t.Errorf("explicit channel overwritten: got %q", cfg.Channel)
	}
	if cfg.MaxRetries != 9 {
		t.Errorf("explicit max retries overwritten: got %d", cfg.MaxRetries)
	}
}

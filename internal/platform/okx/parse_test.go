package okx

import (
	"errors"
	"testing"
	"time"

	"github.com/quantera/tradesim/internal/domain"
)

func TestParseChannelSnapshot(t *testing.T) {
	raw := []byte(`{
		"arg": {"channel": "books5", "instId": "BTC-USDT"},
		"data": [{
			"ts": "1700000000000",
			"bids": [["95000.1", "0.5"], ["95000.0", "1.2", "0", "3"]],
			"asks": [["95001.0", "0.3"]]
		}]
	}`)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Kind != KindSnapshot {
		t.Fatalf("kind: got %v, want KindSnapshot", msg.Kind)
	}
	snap := msg.Snapshot
	if snap.Venue != "OKX" || snap.Symbol != "BTC-USDT" {
		t.Errorf("identity: got %s/%s", snap.Venue, snap.Symbol)
	}
	if len(snap.Bids) != 2 || len(snap.Asks) != 1 {
		t.Fatalf("levels: got %d bids / %d asks", len(snap.Bids), len(snap.Asks))
	}
	if snap.Bids[0].Price != 95000.1 || snap.Bids[0].Quantity != 0.5 {
		t.Errorf("bid[0]: got %+v", snap.Bids[0])
	}
	if !snap.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("timestamp: got %v", snap.Timestamp)
	}
}

func TestParseFlatSnapshot(t *testing.T) {
	raw := []byte(`{
		"timestamp": "1700000000000",
		"exchange": "OKX",
		"symbol": "BTC-USDT-SWAP",
		"bids": [["95000.1", "0.5"]],
		"asks": [[95001.0, 0.3]]
	}`)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Kind != KindSnapshot {
		t.Fatalf("kind: got %v, want KindSnapshot", msg.Kind)
	}
	snap := msg.Snapshot
	if snap.Venue != "OKX" || snap.Symbol != "BTC-USDT-SWAP" {
		t.Errorf("identity: got %s/%s", snap.Venue, snap.Symbol)
	}
	if len(snap.Asks) != 1 || snap.Asks[0].Price != 95001.0 || snap.Asks[0].Quantity != 0.3 {
		t.Errorf("unquoted numeric tuple: got %+v", snap.Asks)
	}
}

func TestParseSkipsBadLevels(t *testing.T) {
	raw := []byte(`{
		"arg": {"channel": "books5", "instId": "BTC-USDT"},
		"data": [{
			"ts": "1700000000000",
			"bids": [["95000.1", "0.5"], ["oops", "1"], ["94999"], 42],
			"asks": [["95001.0", "0.3"]]
		}]
	}`)

	msg, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(msg.Snapshot.Bids) != 1 {
		t.Errorf("bad tuples must be skipped individually: got %+v", msg.Snapshot.Bids)
	}
	if len(msg.Snapshot.Asks) != 1 {
		t.Errorf("good side affected by bad tuples: got %+v", msg.Snapshot.Asks)
	}
}

func TestParseEvents(t *testing.T) {
	msg, err := Parse([]byte(`{"event": "subscribe", "arg": {"channel": "books5", "instId": "BTC-USDT"}}`))
	if err != nil {
		t.Fatalf("parse ack: %v", err)
	}
	if msg.Kind != KindEvent || !msg.Event.OK() {
		t.Errorf("ack: got kind=%v ok=%v", msg.Kind, msg.Event.OK())
	}

	msg, err = Parse([]byte(`{"event": "error", "code": "60012", "msg": "invalid request"}`))
	if err != nil {
		t.Fatalf("parse error event: %v", err)
	}
	if msg.Kind != KindEvent || msg.Event.OK() {
		t.Errorf("error event must not be OK: %+v", msg.Event)
	}
	if msg.Event.Code != "60012" {
		t.Errorf("code: got %q", msg.Event.Code)
	}
}

func TestParsePingPong(t *testing.T) {
	cases := []struct {
		raw  string
		want Kind
	}{
		{`{"op": "ping"}`, KindPing},
		{`{"op": "pong"}`, KindPong},
		{`{"event": "ping"}`, KindPing},
		{`{"event": "pong"}`, KindPong},
	}
	for _, tc := range cases {
		msg, err := Parse([]byte(tc.raw))
		if err != nil {
			t.Errorf("parse %s: %v", tc.raw, err)
			continue
		}
		if msg.Kind != tc.want {
			t.Errorf("parse %s: got kind %v, want %v", tc.raw, msg.Kind, tc.want)
		}
	}
}

func TestParseUnrecognized(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"foo": "bar"}`),
		[]byte(`{"arg": {"channel": "books5"}, "data": []}`),
	}
	for _, raw := range cases {
		if _, err := Parse(raw); !errors.Is(err, domain.ErrUnrecognizedMessage) {
			t.Errorf("parse %s: got %v, want ErrUnrecognizedMessage", raw, err)
		}
	}
}

func TestRequestBuilders(t *testing.T) {
	sub := SubscribeRequest("books5", "BTC-USDT")
	if sub.Op != "subscribe" || len(sub.Args) != 1 || sub.Args[0].InstID != "BTC-USDT" {
		t.Errorf("subscribe request: %+v", sub)
	}
	unsub := UnsubscribeRequest("books5", "BTC-USDT")
	if unsub.Op != "unsubscribe" {
		t.Errorf("unsubscribe request: %+v", unsub)
	}
	if PingRequest().Op != "ping" {
		t.Errorf("ping request: %+v", PingRequest())
	}
}

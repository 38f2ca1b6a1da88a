// Package okx contains the wire types and message classifier for the OKX v5
// public WebSocket feed.
package okx

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/quantera/tradesim/internal/domain"
)

// Request is the op/args envelope for subscribe, unsubscribe and ping frames.
type Request struct {
	Op   string       `json:"op"`
	Args []ChannelArg `json:"args,omitempty"`
}

// ChannelArg identifies one channel subscription.
type ChannelArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// SubscribeRequest builds a subscribe frame for the given channel and symbol.
func SubscribeRequest(channel, symbol string) Request {
	return Request{Op: "subscribe", Args: []ChannelArg{{Channel: channel, InstID: symbol}}}
}

// UnsubscribeRequest builds an unsubscribe frame for the given channel and symbol.
func UnsubscribeRequest(channel, symbol string) Request {
	return Request{Op: "unsubscribe", Args: []ChannelArg{{Channel: channel, InstID: symbol}}}
}

// PingRequest is the exchange-level keepalive probe.
func PingRequest() Request { return Request{Op: "ping"} }

// Kind classifies an inbound frame.
type Kind int

const (
	KindSnapshot Kind = iota // full L2 snapshot, apply to the book
	KindEvent                // subscribe ack / error, route to the connection manager
	KindPing                 // feed-initiated ping, answer with pong
	KindPong                 // reply to our ping
)

// Event is a control message (subscription ack or error) from the feed.
type Event struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
}

// OK reports whether the event is a successful subscription acknowledgment.
func (e Event) OK() bool { return e.Event == "subscribe" && (e.Code == "" || e.Code == "0") }

// Message is the classified form of one raw frame. Exactly one of Snapshot or
// Event is meaningful, selected by Kind.
type Message struct {
	Kind     Kind
	Snapshot domain.BookSnapshot
	Event    Event
}

// envelope is the superset of keys we sniff to pick a schema. Shapes are tried
// in a fixed order; anything that matches none is a classification failure.
type envelope struct {
	Op    string          `json:"op"`
	Event string          `json:"event"`
	Arg   *ChannelArg     `json:"arg"`
	Data  json.RawMessage `json:"data"`
	Bids  json.RawMessage `json:"bids"`
	Asks  json.RawMessage `json:"asks"`
}

// snapshotEntry is one book entry inside the variant-A data array.
type snapshotEntry struct {
	Ts   string            `json:"ts"`
	Bids []json.RawMessage `json:"bids"`
	Asks []json.RawMessage `json:"asks"`
}

// flatSnapshot is the variant-B shape: a single top-level book record.
// Timestamp is raw because some producers quote it and some do not.
type flatSnapshot struct {
	Timestamp json.RawMessage   `json:"timestamp"`
	Exchange  string            `json:"exchange"`
	Symbol    string            `json:"symbol"`
	Bids      []json.RawMessage `json:"bids"`
	Asks      []json.RawMessage `json:"asks"`
}

// parseMillis converts an epoch-milliseconds value (OKX sends it as a quoted
// string) into a time.Time. Returns the zero time when absent or malformed.
func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

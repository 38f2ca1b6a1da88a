package okx

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/quantera/tradesim/internal/domain"
)

// Parse classifies one raw frame from the feed. Schemas are attempted in a
// fixed order: op ping/pong, control event, snapshot variant A (channel
// envelope with a data array), snapshot variant B (flat record). A frame that
// matches none of them returns domain.ErrUnrecognizedMessage.
func Parse(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("okx: decode frame: %w", domain.ErrUnrecognizedMessage)
	}

	switch env.Op {
	case "ping":
		return Message{Kind: KindPing}, nil
	case "pong":
		return Message{Kind: KindPong}, nil
	}
	// Some feeds send pong as a bare event rather than an op.
	switch env.Event {
	case "ping":
		return Message{Kind: KindPing}, nil
	case "pong":
		return Message{Kind: KindPong}, nil
	}

	if env.Event != "" {
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return Message{}, fmt.Errorf("okx: decode event: %w", domain.ErrUnrecognizedMessage)
		}
		return Message{Kind: KindEvent, Event: ev}, nil
	}

	if env.Arg != nil && len(env.Data) > 0 {
		return parseChannelSnapshot(env)
	}

	if len(env.Bids) > 0 || len(env.Asks) > 0 {
		return parseFlatSnapshot(raw)
	}

	return Message{}, fmt.Errorf("okx: %w", domain.ErrUnrecognizedMessage)
}

// parseChannelSnapshot handles variant A:
//
//	{"arg":{"channel":"books5","instId":"BTC-USDT"},
//	 "data":[{"ts":"...","bids":[["p","q",...],...],"asks":[...]}]}
func parseChannelSnapshot(env envelope) (Message, error) {
	var entries []snapshotEntry
	if err := json.Unmarshal(env.Data, &entries); err != nil || len(entries) == 0 {
		return Message{}, fmt.Errorf("okx: empty snapshot data: %w", domain.ErrUnrecognizedMessage)
	}
	entry := entries[0]

	snap := domain.BookSnapshot{
		Venue:     "OKX",
		Symbol:    env.Arg.InstID,
		Bids:      parseLevels(entry.Bids),
		Asks:      parseLevels(entry.Asks),
		Timestamp: parseMillis(entry.Ts),
	}
	return Message{Kind: KindSnapshot, Snapshot: snap}, nil
}

// parseFlatSnapshot handles variant B:
//
//	{"timestamp":...,"exchange":"OKX","symbol":"BTC-USDT","bids":[...],"asks":[...]}
func parseFlatSnapshot(raw []byte) (Message, error) {
	var flat flatSnapshot
	if err := json.Unmarshal(raw, &flat); err != nil {
		return Message{}, fmt.Errorf("okx: decode flat snapshot: %w", domain.ErrUnrecognizedMessage)
	}
	snap := domain.BookSnapshot{
		Venue:     flat.Exchange,
		Symbol:    flat.Symbol,
		Bids:      parseLevels(flat.Bids),
		Asks:      parseLevels(flat.Asks),
		Timestamp: parseMillis(strings.Trim(string(flat.Timestamp), `"`)),
	}
	return Message{Kind: KindSnapshot, Snapshot: snap}, nil
}

// parseLevels decodes an array of [price, quantity, ...] tuples. OKX quotes
// the numbers, the flat shape may not; both are accepted. A tuple with fewer
// than two fields, or fields that do not parse as numbers, is skipped
// individually; the rest of the message is unaffected.
func parseLevels(tuples []json.RawMessage) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(tuples))
	for _, t := range tuples {
		var fields []any
		if err := json.Unmarshal(t, &fields); err != nil || len(fields) < 2 {
			continue
		}
		price, okP := toFloat(fields[0])
		qty, okQ := toFloat(fields[1])
		if !okP || !okQ {
			continue
		}
		levels = append(levels, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return levels
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

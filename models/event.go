// Package models defines the decoded event model shared by the readers,
// the segment ops and the replay boundary, plus the human-readable
// recording metadata sidecar.
package models

import (
	"github.com/FLOX-Foundation/floxlog/format"
)

// BookRecord is a decoded order-book payload: header plus its bid and
// ask level arrays.
type BookRecord struct {
	Hdr  format.BookRecordHeader
	Bids []format.BookLevel
	Asks []format.BookLevel
}

// Event is one decoded log event. Exactly one of Trade/Book is
// meaningful, selected by Type.
type Event struct {
	Type  format.EventType
	Trade format.TradeRecord
	Book  BookRecord
}

// Timestamp returns the exchange timestamp of the event in nanoseconds.
func (e *Event) Timestamp() int64 {
	if e.Type == format.EventTrade {
		return e.Trade.ExchangeTsNs
	}
	return e.Book.Hdr.ExchangeTsNs
}

// SymbolID returns the symbol id of the event.
func (e *Event) SymbolID() uint32 {
	if e.Type == format.EventTrade {
		return e.Trade.SymbolID
	}
	return e.Book.Hdr.SymbolID
}

// PayloadSize returns the encoded payload byte size of the event.
func (e *Event) PayloadSize() int {
	if e.Type == format.EventTrade {
		return format.TradeRecordSize
	}
	return format.BookPayloadSize(len(e.Book.Bids), len(e.Book.Asks))
}

// Clone returns a deep copy; readers reuse level slices between calls,
// so an event that outlives its callback must be cloned.
func (e *Event) Clone() Event {
	out := *e
	out.Book.Bids = nil
	out.Book.Asks = nil
	if len(e.Book.Bids) > 0 {
		out.Book.Bids = append([]format.BookLevel(nil), e.Book.Bids...)
	}
	if len(e.Book.Asks) > 0 {
		out.Book.Asks = append([]format.BookLevel(nil), e.Book.Asks...)
	}
	return out
}

// EventHandler receives events from a reader. Returning false stops
// delivery; early exit is a normal control path, not an error.
type EventHandler func(*Event) bool

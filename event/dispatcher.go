/*
NAME
  dispatcher.go

DESCRIPTION
  An in-process, synchronous, multi-listener publish/subscribe
  dispatcher keyed by event name, used to carry RTMP status
  notifications from the connection layer to the stream state machine
  without a back-reference cycle between them (spec.md §4.6, §9 "Event
  dispatch with back-references").

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package event implements a small in-process event dispatcher. A
// sync.Mutex is sufficient here: registration and dispatch are simple
// map/slice operations with no blocking work, so there is nothing a
// third-party pub/sub library would add (see DESIGN.md).
package event

import "sync"

// Name identifies an event kind. The publisher defines its own status
// names (spec.md §6 "Status events consumed"); this package is agnostic
// to their meaning.
type Name string

// Status events the connection layer raises for the stream state machine
// (spec.md §4.5, §6).
const (
	ConnectSuccess       Name = "NetConnection.Connect.Success"
	PublishStart         Name = "NetStream.Publish.Start"
	VideoDimensionChange Name = "NetStream.Video.DimensionChange"
)

// Handler is a registered callback. It receives whatever payload the
// dispatcher call to Dispatch carries for this event.
type Handler func(payload interface{})

// Token identifies one registration, returned by Subscribe and required
// by Unsubscribe (spec.md §9 "Removal identity is a token returned at
// registration").
type Token struct {
	event Name
	id    uint64
}

// Dispatcher is a synchronous, registration-ordered, multi-listener event
// bus. The zero value is ready to use. A Dispatcher is safe for
// concurrent use; Dispatch itself runs handlers synchronously on the
// calling goroutine, in registration order (spec.md §4.6).
type Dispatcher struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[Name][]entry
}

type entry struct {
	id uint64
	fn Handler
}

// Subscribe registers fn to be called on every future Dispatch for event,
// and returns a Token that Unsubscribe can later use to remove it.
func (d *Dispatcher) Subscribe(event Name, fn Handler) Token {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = make(map[Name][]entry)
	}
	d.nextID++
	id := d.nextID
	d.handlers[event] = append(d.handlers[event], entry{id: id, fn: fn})
	return Token{event: event, id: id}
}

// Unsubscribe removes the handler identified by tok. It is a no-op if the
// handler has already been removed.
func (d *Dispatcher) Unsubscribe(tok Token) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.handlers[tok.event]
	for i, e := range entries {
		if e.id == tok.id {
			d.handlers[tok.event] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Dispatch invokes every handler registered for event, in registration
// order, synchronously on the calling goroutine. A handler that
// subscribes or unsubscribes during dispatch takes effect on the next
// Dispatch call, not the one in progress (spec.md §4.6).
func (d *Dispatcher) Dispatch(event Name, payload interface{}) {
	d.mu.Lock()
	entries := make([]entry, len(d.handlers[event]))
	copy(entries, d.handlers[event])
	d.mu.Unlock()

	for _, e := range entries {
		e.fn(payload)
	}
}

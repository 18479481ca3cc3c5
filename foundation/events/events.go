// Package events allows explorer clients to register for and receive a
// stream of node events such as accepted transactions and blocks.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Set of event kinds pushed to clients.
const (
	KindLog   = "log"
	KindTx    = "tx"
	KindBlock = "block"
)

// Event is what is delivered to every registered client.
type Event struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// String renders the event as a JSON document for transports that
// carry text frames.
func (e Event) String() string {
	d, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"kind":%q,"message":"event marshal failure"}`, e.Kind)
	}
	return string(d)
}

// =============================================================================

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events.
type Events struct {
	m  map[string]chan Event
	mu sync.RWMutex
}

// New constructs an events value for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]chan Event),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire takes a unique id and returns a channel that can be used
// to receive events.
func (evt *Events) Acquire(id string) chan Event {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if exists {
		return ch
	}

	// A message is dropped if the websocket receiver is not ready to
	// receive. This arbitrary buffer gives the receiver enough room to
	// not lose a message while a send is in flight.
	const messageBuffer = 100

	evt.m[id] = make(chan Event, messageBuffer)
	return evt.m[id]
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Send signals an event to every registered channel. Send will not block
// waiting for a receiver on any given channel.
func (evt *Events) Send(kind string, message string, data any) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	event := Event{
		Kind:    kind,
		Message: message,
		Data:    data,
	}

	for _, ch := range evt.m {
		select {
		case ch <- event:
		default:
		}
	}
}

package ai

import (
	"sync"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/model"
)

// SessionState is the lifecycle of one streamed request.
type SessionState int

const (
	StateIdle SessionState = iota
	StateRequested
	StateStreaming
	StateCompleted
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// ErrBusy is returned when a destination already has a request in
// flight.
var ErrBusy = apperr.New(apperr.ValidationFailed, "assistant is already working on a request")

type updateSub struct {
	id int
	fn func(string)
}

type completeSub struct {
	id int
	fn func(model.AIResult)
}

// Destination is one surface that receives streamed assistant output.
// Update and completion listeners are registered independently and are
// called synchronously, in registration order.
type Destination struct {
	mu        sync.Mutex
	state     SessionState
	nextID    int
	updates   []updateSub
	completes []completeSub
}

// NewDestination returns an idle destination with no listeners.
func NewDestination() *Destination {
	return &Destination{}
}

// State returns the current session state.
func (d *Destination) State() SessionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SubscribeUpdates registers fn for incremental text. The returned
// function removes it.
func (d *Destination) SubscribeUpdates(fn func(chunk string)) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.updates = append(d.updates, updateSub{id: id, fn: fn})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, s := range d.updates {
			if s.id == id {
				d.updates = append(d.updates[:i:i], d.updates[i+1:]...)
				return
			}
		}
	}
}

// SubscribeComplete registers fn for the terminal result. The returned
// function removes it.
func (d *Destination) SubscribeComplete(fn func(model.AIResult)) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.completes = append(d.completes, completeSub{id: id, fn: fn})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, s := range d.completes {
			if s.id == id {
				d.completes = append(d.completes[:i:i], d.completes[i+1:]...)
				return
			}
		}
	}
}

// begin claims the destination for a new request.
func (d *Destination) begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateRequested || d.state == StateStreaming {
		return ErrBusy
	}
	d.state = StateRequested
	return nil
}

func (d *Destination) emitUpdate(chunk string) {
	d.mu.Lock()
	d.state = StateStreaming
	subs := make([]updateSub, len(d.updates))
	copy(subs, d.updates)
	d.mu.Unlock()

	for _, s := range subs {
		s.fn(chunk)
	}
}

func (d *Destination) emitComplete(result model.AIResult) {
	d.mu.Lock()
	d.state = StateCompleted
	subs := make([]completeSub, len(d.completes))
	copy(subs, d.completes)
	d.mu.Unlock()

	for _, s := range subs {
		s.fn(result)
	}
}

func (d *Destination) fail() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateFailed
}

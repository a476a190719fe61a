package radiosession

import (
	"sync"

	"github.com/cwsl/radiosession/store"
)

// EventKind identifies the category of an emitted Event.
type EventKind string

const (
	EventChange       EventKind = "change"
	EventStatus       EventKind = "status"
	EventReply        EventKind = "reply"
	EventNotice       EventKind = "notice"
	EventMessage      EventKind = "message"
	EventProgress     EventKind = "progress"
	EventReady        EventKind = "ready"
	EventDisconnected EventKind = "disconnected"
)

// Event is the envelope delivered to subscribers. Only the field matching
// Kind is populated.
type Event struct {
	Kind EventKind

	Change      *store.Change
	StatusFrame *StatusFrame
	ReplyFrame  *ReplyFrame
	NoticeFrame *NoticeFrame
	Message     string
	Progress    Stage
	Err         error
}

// Handler receives events. Per §5, handlers must not suspend/block; if they
// need to do real work they must hand off to their own goroutine.
type Handler func(Event)

// Subscription is returned by On/Once. Cancel is idempotent.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Cancel removes the handler. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

type subscriber struct {
	id      uint64
	kind    EventKind
	handler Handler
	once    bool
}

// emitter is a synchronous, ordered, typed pub/sub bus. Emit delivers to
// subscribers of the event's kind in subscription order. A handler that
// itself calls Emit does not recurse: the nested event is queued and
// drained after the current handler returns, preserving the synchronous,
// in-order delivery contract of §4.6.
type emitter struct {
	mu        sync.Mutex
	subs      []*subscriber
	nextID    uint64
	draining  bool
	queue     []Event
}

func newEmitter() *emitter {
	return &emitter{}
}

func (e *emitter) on(kind EventKind, h Handler) *Subscription {
	return e.add(kind, h, false)
}

func (e *emitter) once(kind EventKind, h Handler) *Subscription {
	return e.add(kind, h, true)
}

func (e *emitter) add(kind EventKind, h Handler, once bool) *Subscription {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	sub := &subscriber{id: id, kind: kind, handler: h, once: once}
	e.subs = append(e.subs, sub)
	e.mu.Unlock()

	return &Subscription{cancel: func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				break
			}
		}
	}}
}

// emit delivers ev to all current subscribers of its kind, in order. If
// called re-entrantly from within a handler it is queued instead, and
// drained by the outermost call once its own delivery completes.
func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	if e.draining {
		e.queue = append(e.queue, ev)
		e.mu.Unlock()
		return
	}
	e.draining = true
	e.mu.Unlock()

	e.deliver(ev)

	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.draining = false
			e.mu.Unlock()
			return
		}
		next := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()
		e.deliver(next)
	}
}

func (e *emitter) deliver(ev Event) {
	e.mu.Lock()
	matched := make([]*subscriber, 0, len(e.subs))
	remaining := e.subs[:0:0]
	for _, s := range e.subs {
		if s.kind == ev.Kind {
			matched = append(matched, s)
			if s.once {
				continue
			}
		}
		remaining = append(remaining, s)
	}
	e.subs = remaining
	e.mu.Unlock()

	for _, s := range matched {
		s.handler(ev)
	}
}

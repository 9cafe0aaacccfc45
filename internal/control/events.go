package control

import (
	"errors"
	"log"
	"sync"

	"github.com/sweeney/ph-doser/internal/logic"
)

// ErrEventQueueFull is returned when a pump event is dropped because the
// publisher has fallen behind.
var ErrEventQueueFull = errors.New("pump event queue full")

// EventQueue decouples pump transitions from a publisher that may block,
// such as an MQTT broker waiting on an acknowledgement. PublishPump never
// waits; Run forwards events in order.
type EventQueue struct {
	out  PumpPublisher
	ch   chan logic.PumpEvent
	done chan struct{}
	once sync.Once
}

// NewEventQueue creates a queue holding up to size pending events.
func NewEventQueue(out PumpPublisher, size int) *EventQueue {
	if size < 1 {
		size = 1
	}
	return &EventQueue{
		out:  out,
		ch:   make(chan logic.PumpEvent, size),
		done: make(chan struct{}),
	}
}

// PublishPump queues e, or drops it if the queue is full.
// It must not be called after Close.
func (q *EventQueue) PublishPump(e logic.PumpEvent) error {
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrEventQueueFull
	}
}

// Run forwards queued events until Close is called and the queue is empty.
func (q *EventQueue) Run() {
	defer close(q.done)
	for e := range q.ch {
		if err := q.out.PublishPump(e); err != nil {
			log.Printf("events: publish pump %s: %v", e.State, err)
		}
	}
}

// Close stops accepting events and waits for Run to flush the rest.
func (q *EventQueue) Close() {
	q.once.Do(func() { close(q.ch) })
	<-q.done
}

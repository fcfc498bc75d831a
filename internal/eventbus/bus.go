package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrQueueFull is returned by Publish when the work queue has no room.
	ErrQueueFull = errors.New("eventbus: queue full")

	// ErrClosed is returned by Publish after Close was called.
	ErrClosed = errors.New("eventbus: closed")

	// ErrNoHandler is returned by Publish when nothing subscribed to the event type.
	ErrNoHandler = errors.New("eventbus: no handler")
)

// EventType represents the type of event
type EventType string

const (
	EventTypeCommand EventType = "command"
)

// Default configuration
const (
	DefaultWorkerCount = 4
	DefaultQueueSize   = 100
	DefaultCancelGrace = 30 * time.Second
)

// Event represents an event in the system
type Event struct {
	Type    EventType
	ID      string
	Payload any
}

// Handler is a function that handles events.
// ctx is cancelled when the bus gives up waiting for in-flight work on Close.
type Handler func(ctx context.Context, event Event)

// work represents a unit of work for the worker pool
type work struct {
	event   Event
	handler Handler
}

// Bus provides event routing with a bounded worker pool
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler

	// Worker pool
	workQueue chan work
	wg        sync.WaitGroup

	// sendMu guards workQueue against sends after close
	sendMu sync.RWMutex
	closed bool

	// cancelGrace bounds the wait for cancelled handlers on Close
	cancelGrace time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new event bus with default settings
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a new event bus with custom worker count and queue size
func NewWithConfig(workerCount, queueSize int) *Bus {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		handlers:  make(map[EventType][]Handler),
		workQueue:   make(chan work, queueSize),
		cancelGrace: DefaultCancelGrace,
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start worker pool
	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

// worker processes events from the work queue
func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for w := range b.workQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event_type", string(w.event.Type)).
						Str("event_id", w.event.ID).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(b.ctx, w.event)
		}()
	}
}

// SetCancelGrace sets how long Close waits for handlers to return after it
// cancelled them. Handlers may still be clearing device state at that point.
func (b *Bus) SetCancelGrace(d time.Duration) {
	b.cancelGrace = d
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish queues the event for every subscribed handler.
// It never blocks: a full queue or a closed bus is reported as an error
// and the event is dropped.
func (b *Bus) Publish(event Event) error {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return ErrNoHandler
	}

	b.sendMu.RLock()
	defer b.sendMu.RUnlock()

	if b.closed {
		log.Warn().Str("event_type", string(event.Type)).Str("event_id", event.ID).Msg("Event bus closing, dropping event")
		return ErrClosed
	}

	for _, handler := range handlers {
		select {
		case b.workQueue <- work{event: event, handler: handler}:
			// Successfully queued
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Str("event_id", event.ID).
				Msg("Event bus queue full, dropping event")
			return ErrQueueFull
		}
	}
	return nil
}

// Close stops intake and waits for queued work to finish.
// If ctx expires first, the handlers' context is cancelled so in-flight work
// can abort, and ctx.Err() is returned once the handlers have returned or the
// cancel grace has passed.
func (b *Bus) Close(ctx context.Context) error {
	b.sendMu.Lock()
	if !b.closed {
		b.closed = true
		close(b.workQueue)
	}
	b.sendMu.Unlock()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		log.Debug().Msg("Event bus workers stopped gracefully")
		return nil
	case <-ctx.Done():
		b.cancel()
		log.Warn().Msg("Event bus shutdown timed out, cancelling in-flight work")
	}

	grace := time.NewTimer(b.cancelGrace)
	defer grace.Stop()
	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped after cancel")
	case <-grace.C:
		log.Error().Dur("grace", b.cancelGrace).Msg("Event bus workers still running after cancel, giving up")
	}
	return ctx.Err()
}

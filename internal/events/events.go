package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// ===============================
// EVENT INTERFACE
// ===============================

// Event represents a domain event published on the bus.
type Event interface {
	GetEventID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetUserID() *int64
	GetMetadata() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    *int64                 `json:"user_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func (e *BaseEvent) GetEventID() string                  { return e.EventID }
func (e *BaseEvent) GetEventType() string                { return e.EventType }
func (e *BaseEvent) GetTimestamp() time.Time             { return e.Timestamp }
func (e *BaseEvent) GetUserID() *int64                   { return e.UserID }
func (e *BaseEvent) GetMetadata() map[string]interface{} { return e.Metadata }

// GenerateEventID returns a unique event identifier.
func GenerateEventID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("evt-%d", time.Now().UnixNano())
	}
	return id.String()
}

// ===============================
// EVENT BUS INTERFACE
// ===============================

// EventBus is the explicit publish/subscribe seam injected into each engine
// component. Delivery is at-least-once and fire-and-forget: publishers never
// wait on subscribers, and handler failures are logged, not propagated.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	PublishAsync(ctx context.Context, event Event) error

	Subscribe(eventType string, handler EventHandler) error
	SubscribePattern(pattern string, handler EventHandler) error

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Stats() *EventBusStats
}

// EventHandler processes published events.
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
	GetHandlerID() string
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc struct {
	ID   string
	Func func(ctx context.Context, event Event) error
}

func (f EventHandlerFunc) Handle(ctx context.Context, event Event) error { return f.Func(ctx, event) }
func (f EventHandlerFunc) GetHandlerID() string                          { return f.ID }

// EventBusStats reports bus counters for monitoring.
type EventBusStats struct {
	EventsPublished int64         `json:"events_published"`
	EventsProcessed int64         `json:"events_processed"`
	EventsFailed    int64         `json:"events_failed"`
	HandlersCount   int           `json:"handlers_count"`
	QueueDepth      int           `json:"queue_depth"`
	Uptime          time.Duration `json:"uptime"`
}

// ===============================
// IN-MEMORY EVENT BUS
// ===============================

// EventBusConfig holds configuration for the in-memory bus.
type EventBusConfig struct {
	BufferSize     int           `json:"buffer_size"`
	WorkerCount    int           `json:"worker_count"`
	HandlerTimeout time.Duration `json:"handler_timeout"`
}

// DefaultEventBusConfig returns default configuration.
func DefaultEventBusConfig() *EventBusConfig {
	return &EventBusConfig{
		BufferSize:     1000,
		WorkerCount:    4,
		HandlerTimeout: 30 * time.Second,
	}
}

// inMemoryEventBus implements EventBus with a buffered queue and workers.
type inMemoryEventBus struct {
	mu              sync.RWMutex
	handlers        map[string][]EventHandler
	patternHandlers map[string][]EventHandler
	eventQueue      chan eventMessage
	logger          *zap.Logger
	handlerTimeout  time.Duration
	bufferSize      int
	workerCount     int
	startTime       time.Time
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup

	statsMu sync.Mutex
	stats   EventBusStats
}

type eventMessage struct {
	event     Event
	timestamp time.Time
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config *EventBusConfig, logger *zap.Logger) EventBus {
	if config == nil {
		config = DefaultEventBusConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &inMemoryEventBus{
		handlers:        make(map[string][]EventHandler),
		patternHandlers: make(map[string][]EventHandler),
		eventQueue:      make(chan eventMessage, config.BufferSize),
		logger:          logger,
		handlerTimeout:  config.HandlerTimeout,
		bufferSize:      config.BufferSize,
		workerCount:     config.WorkerCount,
		startTime:       time.Now(),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Publish delivers an event to all matching handlers before returning.
func (b *inMemoryEventBus) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	b.countPublished()
	if err := b.processEvent(ctx, event); err != nil {
		b.countFailed()
		return err
	}
	b.countProcessed()
	return nil
}

// PublishAsync enqueues an event for background delivery. A full queue drops
// the event with a logged error rather than blocking the publisher.
func (b *inMemoryEventBus) PublishAsync(ctx context.Context, event Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	select {
	case b.eventQueue <- eventMessage{event: event, timestamp: time.Now()}:
		b.countPublished()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		b.logger.Error("Event queue full, dropping event",
			zap.String("event_type", event.GetEventType()),
			zap.String("event_id", event.GetEventID()),
		)
		return fmt.Errorf("event queue is full")
	}
}

// Subscribe registers a handler for an exact event type.
func (b *inMemoryEventBus) Subscribe(eventType string, handler EventHandler) error {
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	b.logger.Info("Handler subscribed",
		zap.String("event_type", eventType),
		zap.String("handler_id", handler.GetHandlerID()),
	)
	return nil
}

// SubscribePattern registers a handler for a "prefix:*" pattern.
func (b *inMemoryEventBus) SubscribePattern(pattern string, handler EventHandler) error {
	if pattern == "" {
		return fmt.Errorf("pattern cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.patternHandlers[pattern] = append(b.patternHandlers[pattern], handler)

	b.logger.Info("Pattern handler subscribed",
		zap.String("pattern", pattern),
		zap.String("handler_id", handler.GetHandlerID()),
	)
	return nil
}

// Start launches the background delivery workers.
func (b *inMemoryEventBus) Start(ctx context.Context) error {
	b.logger.Info("Starting event bus", zap.Int("worker_count", b.workerCount))

	for i := 0; i < b.workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
	return nil
}

// Stop drains the workers, bounded by ctx.
func (b *inMemoryEventBus) Stop(ctx context.Context) error {
	b.logger.Info("Stopping event bus")
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus stop timeout")
		return ctx.Err()
	}
}

// Stats returns a snapshot of the bus counters.
func (b *inMemoryEventBus) Stats() *EventBusStats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	stats := b.stats
	stats.QueueDepth = len(b.eventQueue)
	stats.Uptime = time.Since(b.startTime)

	b.mu.RLock()
	for _, hs := range b.handlers {
		stats.HandlersCount += len(hs)
	}
	for _, hs := range b.patternHandlers {
		stats.HandlersCount += len(hs)
	}
	b.mu.RUnlock()

	return &stats
}

func (b *inMemoryEventBus) worker(workerID int) {
	defer b.wg.Done()

	for {
		select {
		case msg := <-b.eventQueue:
			if err := b.processEvent(b.ctx, msg.event); err != nil {
				b.logger.Error("Failed to process event",
					zap.Int("worker_id", workerID),
					zap.String("event_id", msg.event.GetEventID()),
					zap.String("event_type", msg.event.GetEventType()),
					zap.Error(err),
				)
				b.countFailed()
			} else {
				b.countProcessed()
			}
		case <-b.ctx.Done():
			return
		}
	}
}

// processEvent fans an event out to direct and pattern handlers. Handler
// errors are collected but delivery continues to the remaining handlers.
func (b *inMemoryEventBus) processEvent(ctx context.Context, event Event) error {
	b.mu.RLock()
	eventType := event.GetEventType()
	var allHandlers []EventHandler
	allHandlers = append(allHandlers, b.handlers[eventType]...)
	for pattern, handlers := range b.patternHandlers {
		if matchesPattern(eventType, pattern) {
			allHandlers = append(allHandlers, handlers...)
		}
	}
	b.mu.RUnlock()

	if len(allHandlers) == 0 {
		return nil
	}

	var failed int
	for _, handler := range allHandlers {
		hctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
		if err := handler.Handle(hctx, event); err != nil {
			b.logger.Warn("Event handler failed",
				zap.String("event_type", eventType),
				zap.String("handler_id", handler.GetHandlerID()),
				zap.Error(err),
			)
			failed++
		}
		cancel()
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d handlers failed", failed, len(allHandlers))
	}
	return nil
}

// matchesPattern supports trailing-wildcard patterns like "badge:*".
func matchesPattern(eventType, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*"))
	}
	return eventType == pattern
}

func (b *inMemoryEventBus) countPublished() {
	b.statsMu.Lock()
	b.stats.EventsPublished++
	b.statsMu.Unlock()
}

func (b *inMemoryEventBus) countProcessed() {
	b.statsMu.Lock()
	b.stats.EventsProcessed++
	b.statsMu.Unlock()
}

func (b *inMemoryEventBus) countFailed() {
	b.statsMu.Lock()
	b.stats.EventsFailed++
	b.statsMu.Unlock()
}

package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
	"github.com/readstack-hub/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// Routes bus events to named handlers with retry and a dead letter queue.
// Projections must eventually converge, so transient handler failures are
// retried with backoff before an event is parked for inspection.
// ══════════════════════════════════════════════════════════════════════════════

// Registration binds a named handler to an event type.
type Registration struct {
	// Name identifies the handler in logs and the dead letter queue.
	Name string

	// Handler processes the event.
	Handler shared.EventHandler

	// MaxAttempts overrides the dispatcher default when > 0.
	MaxAttempts int
}

// Dispatcher subscribes handlers to an event bus and supervises their
// execution.
type Dispatcher struct {
	bus         shared.EventBus
	maxAttempts int
	timeout     time.Duration
	deadLetters *DeadLetterQueue
	log         *logger.Logger
	mu          sync.RWMutex
	registered  map[shared.EventType][]string
}

// DispatcherConfig contains configuration for the Dispatcher.
type DispatcherConfig struct {
	// Bus is the underlying event bus.
	Bus shared.EventBus

	// MaxAttempts is the default attempt budget per handler (default 3).
	MaxAttempts int

	// HandlerTimeout bounds one handler run including retries (default 30s).
	HandlerTimeout time.Duration

	// DeadLetterSize caps the parked-event queue (default 1000).
	DeadLetterSize int

	// Logger for structured logging.
	Logger *logger.Logger
}

// NewDispatcher creates a new event dispatcher.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 30 * time.Second
	}
	if config.DeadLetterSize <= 0 {
		config.DeadLetterSize = 1000
	}

	return &Dispatcher{
		bus:         config.Bus,
		maxAttempts: config.MaxAttempts,
		timeout:     config.HandlerTimeout,
		deadLetters: NewDeadLetterQueue(config.DeadLetterSize),
		log:         config.Logger.With(logger.Component("dispatcher")),
		registered:  make(map[shared.EventType][]string),
	}
}

// Register subscribes a handler to one event type.
func (d *Dispatcher) Register(eventType shared.EventType, reg Registration) error {
	if reg.Handler == nil {
		return errors.New("handler cannot be nil")
	}
	if reg.Name == "" {
		return errors.New("handler name is required")
	}

	wrapped := d.supervise(eventType, reg)
	if err := d.bus.Subscribe(eventType, wrapped); err != nil {
		return fmt.Errorf("subscribe %s to %s: %w", reg.Name, eventType, err)
	}

	d.mu.Lock()
	d.registered[eventType] = append(d.registered[eventType], reg.Name)
	d.mu.Unlock()

	d.log.Debug("handler registered",
		logger.String("event_type", string(eventType)),
		logger.String("handler", reg.Name),
	)
	return nil
}

// RegisterEach subscribes the same handler to several event types.
func (d *Dispatcher) RegisterEach(eventTypes []shared.EventType, reg Registration) error {
	for _, eventType := range eventTypes {
		if err := d.Register(eventType, reg); err != nil {
			return err
		}
	}
	return nil
}

// Registered returns the handler names for an event type.
func (d *Dispatcher) Registered(eventType shared.EventType) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.registered[eventType]))
	copy(names, d.registered[eventType])
	return names
}

// DeadLetters returns the queue of events that exhausted their retries.
func (d *Dispatcher) DeadLetters() *DeadLetterQueue {
	return d.deadLetters
}

// supervise wraps a handler with retry and dead letter capture.
func (d *Dispatcher) supervise(eventType shared.EventType, reg Registration) shared.EventHandler {
	attempts := d.maxAttempts
	if reg.MaxAttempts > 0 {
		attempts = reg.MaxAttempts
	}
	retrier := retry.New(
		retry.WithMaxAttempts(attempts),
		// Projections tolerate replay, so every handler error is worth
		// another attempt within the budget.
		retry.WithRetryIf(func(error) bool { return true }),
	)

	return func(event shared.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		start := time.Now()
		err := retrier.Do(ctx, func(context.Context) error {
			return reg.Handler(event)
		})
		if err == nil {
			d.log.Debug("handler completed",
				logger.String("event_type", string(eventType)),
				logger.String("handler", reg.Name),
				logger.Latency(time.Since(start)),
			)
			return nil
		}

		d.deadLetters.Add(DeadLetter{
			Event:    event,
			Handler:  reg.Name,
			Err:      err,
			Attempts: attempts,
			FailedAt: time.Now().UTC(),
		})
		d.log.Error("handler exhausted retries",
			logger.String("event_type", string(eventType)),
			logger.String("handler", reg.Name),
			logger.Int("attempts", attempts),
			logger.Err(err),
		)
		return fmt.Errorf("handler %s: %w", reg.Name, err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetter is an event a handler could not process.
type DeadLetter struct {
	Event    shared.Event
	Handler  string
	Err      error
	Attempts int
	FailedAt time.Time
}

// DeadLetterQueue keeps the most recent failed events in memory. Oldest
// entries are dropped at capacity.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetter
	maxSize int
}

// NewDeadLetterQueue creates a bounded dead letter queue.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DeadLetterQueue{maxSize: maxSize}
}

// Add parks a failed event.
func (q *DeadLetterQueue) Add(entry DeadLetter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Drain removes and returns all parked events.
func (q *DeadLetterQueue) Drain() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.entries
	q.entries = nil
	return entries
}

// Size returns the number of parked events.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

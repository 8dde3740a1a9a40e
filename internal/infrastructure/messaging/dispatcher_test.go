package messaging

import (
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readstack-hub/progression-engine/internal/domain/shared"
	"github.com/readstack-hub/progression-engine/pkg/logger"
)

const busTestUserID = "5b3c1a9e-0b2f-4f7e-9d7a-2c3e4f5a6b7c"

func busTestConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		WorkerPoolSize: 4,
		Logger:         logger.New(logger.Options{Output: io.Discard}),
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler")
	}
}

func TestInMemoryEventBus_DeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus(busTestConfig())
	defer bus.Close()

	delivered := make(chan struct{})
	err := bus.Subscribe(shared.EventPointsAdded, func(event shared.Event) error {
		assert.Equal(t, busTestUserID, event.AggregateID())
		close(delivered)
		return nil
	})
	require.NoError(t, err)

	// A handler for a different type must not fire.
	err = bus.Subscribe(shared.EventStreakReset, func(shared.Event) error {
		t.Error("unexpected delivery")
		return nil
	})
	require.NoError(t, err)

	event := shared.NewPointsAddedEvent(busTestUserID, 10, 10, "item_read", "")
	require.NoError(t, bus.Publish(event))
	waitFor(t, delivered)
}

func TestInMemoryEventBus_SubscribeAll(t *testing.T) {
	bus := NewInMemoryEventBus(busTestConfig())
	defer bus.Close()

	var count atomic.Int32
	delivered := make(chan struct{}, 2)
	err := bus.SubscribeAll(func(shared.Event) error {
		count.Add(1)
		delivered <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(shared.NewPointsAddedEvent(busTestUserID, 5, 5, "item_read", "")))
	require.NoError(t, bus.Publish(shared.NewAggregateReconciledEvent(busTestUserID, 5, 7, 7)))

	waitFor(t, delivered)
	waitFor(t, delivered)
	assert.Equal(t, int32(2), count.Load())
}

func TestInMemoryEventBus_ClosedBusRejectsPublish(t *testing.T) {
	bus := NewInMemoryEventBus(busTestConfig())
	require.NoError(t, bus.Close())

	err := bus.Publish(shared.NewPointsAddedEvent(busTestUserID, 1, 1, "item_read", ""))
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventPointsAdded, func(shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrEventBusClosed)
}

func TestInMemoryEventBus_HandlerPanicIsContained(t *testing.T) {
	bus := NewInMemoryEventBus(busTestConfig())

	require.NoError(t, bus.Subscribe(shared.EventPointsAdded, func(shared.Event) error {
		panic("boom")
	}))

	require.NoError(t, bus.Publish(shared.NewPointsAddedEvent(busTestUserID, 1, 1, "item_read", "")))

	// Close waits for in-flight handlers; a leaked panic would fail the test.
	require.NoError(t, bus.Close())
}

func TestInMemoryEventBus_CloseDrainsAcceptedDeliveries(t *testing.T) {
	config := busTestConfig()
	config.WorkerPoolSize = 1
	bus := NewInMemoryEventBus(config)

	var handled atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventPointsAdded, func(shared.Event) error {
		time.Sleep(10 * time.Millisecond)
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewPointsAddedEvent(busTestUserID, 1, i+1, "item_read", "")))
	}

	// Close must wait for all five deliveries, including the ones still
	// queued behind the single worker slot.
	require.NoError(t, bus.Close())
	assert.Equal(t, int32(5), handled.Load())
}

func TestDispatcher_RetriesUntilSuccess(t *testing.T) {
	bus := NewInMemoryEventBus(busTestConfig())
	defer bus.Close()

	dispatcher := NewDispatcher(DispatcherConfig{
		Bus:    bus,
		Logger: logger.New(logger.Options{Output: io.Discard}),
	})

	var attempts atomic.Int32
	done := make(chan struct{})
	err := dispatcher.Register(shared.EventPointsAdded, Registration{
		Name: "flaky_projection",
		Handler: func(shared.Event) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			close(done)
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(shared.NewPointsAddedEvent(busTestUserID, 10, 10, "item_read", "")))
	waitFor(t, done)

	assert.Equal(t, int32(3), attempts.Load())
	assert.Zero(t, dispatcher.DeadLetters().Size())
}

func TestDispatcher_ExhaustedRetriesGoToDeadLetters(t *testing.T) {
	bus := NewInMemoryEventBus(busTestConfig())

	dispatcher := NewDispatcher(DispatcherConfig{
		Bus:    bus,
		Logger: logger.New(logger.Options{Output: io.Discard}),
	})

	var attempts atomic.Int32
	err := dispatcher.Register(shared.EventPointsAdded, Registration{
		Name:        "broken_projection",
		MaxAttempts: 2,
		Handler: func(shared.Event) error {
			attempts.Add(1)
			return errors.New("permanent")
		},
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(shared.NewPointsAddedEvent(busTestUserID, 10, 10, "item_read", "")))
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(2), attempts.Load())
	require.Equal(t, 1, dispatcher.DeadLetters().Size())

	letters := dispatcher.DeadLetters().Drain()
	require.Len(t, letters, 1)
	assert.Equal(t, "broken_projection", letters[0].Handler)
	assert.Equal(t, shared.EventPointsAdded, letters[0].Event.EventType())
	assert.Zero(t, dispatcher.DeadLetters().Size())
}

func TestDispatcher_RegisterEach(t *testing.T) {
	bus := NewInMemoryEventBus(busTestConfig())
	defer bus.Close()

	dispatcher := NewDispatcher(DispatcherConfig{
		Bus:    bus,
		Logger: logger.New(logger.Options{Output: io.Discard}),
	})

	types := []shared.EventType{shared.EventStreakAdvanced, shared.EventStreakReset}
	err := dispatcher.RegisterEach(types, Registration{
		Name:    "snapshot_invalidation",
		Handler: func(shared.Event) error { return nil },
	})
	require.NoError(t, err)

	for _, eventType := range types {
		assert.Equal(t, []string{"snapshot_invalidation"}, dispatcher.Registered(eventType))
	}
}

package eventbus

import (
	evbus "github.com/asaskevich/EventBus"
)

// Bus is a thin wrapper over the process event bus. It is constructed at
// startup and handed to publishers and subscribers explicitly.
type Bus struct {
	bus evbus.Bus
}

func New() *Bus {
	return &Bus{bus: evbus.New()}
}

// Publish delivers the event synchronously to all subscribers.
func (b *Bus) Publish(topic string, args ...interface{}) {
	b.bus.Publish(topic, args...)
}

// Subscribe registers a synchronous handler.
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

// SubscribeAsync registers a handler running in its own goroutine per
// event. Handlers must be safe for concurrent invocation.
func (b *Bus) SubscribeAsync(topic string, fn interface{}) error {
	return b.bus.SubscribeAsync(topic, fn, false)
}

// Unsubscribe removes a previously registered handler.
func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}

// WaitAsync blocks until all async handlers have finished. Used on
// shutdown and in tests.
func (b *Bus) WaitAsync() {
	b.bus.WaitAsync()
}

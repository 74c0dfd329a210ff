package events

import (
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// EventType names a record lifecycle transition.
type EventType string

const (
	EventRecordIndexed   EventType = "record.indexed"
	EventRecordPublished EventType = "record.published"
	EventRecordDeleted   EventType = "record.deleted"
	EventRecordSkipped   EventType = "record.skipped"
	EventTemplateIndexed EventType = "template.indexed"
	EventCreatorSeen     EventType = "creator.seen"
	EventSyncAdvanced    EventType = "sync.advanced"
	EventJobCompleted    EventType = "job.completed"
	EventJobFailed       EventType = "job.failed"
)

// Event is one lifecycle notification.
type Event struct {
	Type      EventType
	DID       types.DID
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans lifecycle events out to subscribers. Publishing never
// blocks the sync or publish paths: slow subscribers drop events.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// RecordIndexed reports a record upserted into the index by a sync
// loop or a publish pre-index.
func (b *Broker) RecordIndexed(did types.DID, source string) {
	b.Publish(&Event{
		Type:     EventRecordIndexed,
		DID:      did,
		Metadata: map[string]string{"source": source},
	})
}

// RecordPublished reports a successful publish to a destination.
func (b *Broker) RecordPublished(did types.DID, destination string) {
	b.Publish(&Event{
		Type:     EventRecordPublished,
		DID:      did,
		Metadata: map[string]string{"destination": destination},
	})
}

// RecordDeleted reports a record removed from the index, either by an
// applied deleteMessage or a tombstoned soul.
func (b *Broker) RecordDeleted(did types.DID, reason string) {
	b.Publish(&Event{
		Type:    EventRecordDeleted,
		DID:     did,
		Message: reason,
	})
}

// RecordSkipped reports a record a sync loop refused to index.
func (b *Broker) RecordSkipped(did types.DID, reason string) {
	b.Publish(&Event{
		Type:    EventRecordSkipped,
		DID:     did,
		Message: reason,
	})
}

// SyncAdvanced reports a block-walk pass that moved the chain cursor.
func (b *Broker) SyncAdvanced(block int64, indexed, skipped int) {
	b.Publish(&Event{
		Type: EventSyncAdvanced,
		Metadata: map[string]string{
			"block":   strconv.FormatInt(block, 10),
			"indexed": strconv.Itoa(indexed),
			"skipped": strconv.Itoa(skipped),
		},
	})
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

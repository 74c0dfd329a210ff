/*
Package events provides an in-memory broker for record lifecycle events.

The events package implements a lightweight event bus that broadcasts
record state transitions to interested subscribers. The sync loops and
the publisher emit an event whenever a record moves through its
lifecycle; observers subscribe to the broker instead of being called
back directly, which keeps the ingest and publish hot paths free of
subscriber-specific code.

# Architecture

	┌──────────────────── EVENT BROKER ─────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐            │
	│  │              Event Broker                  │            │
	│  │  - In-memory message bus                   │            │
	│  │  - Topic-agnostic (all events broadcast)   │            │
	│  │  - Non-blocking publish                    │            │
	│  └──────────────────┬─────────────────────────┘            │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐            │
	│  │          Event Distribution                │            │
	│  │                                            │            │
	│  │  Publisher → Event Channel (buffer: 100)   │            │
	│  │       ↓                                    │            │
	│  │  Broadcast Loop                            │            │
	│  │       ↓                                    │            │
	│  │  Subscriber Channels (buffer: 50 each)     │            │
	│  └──────────────────┬─────────────────────────┘            │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐            │
	│  │           Event Types                      │            │
	│  │                                            │            │
	│  │  Record Events:                            │            │
	│  │    - record.indexed                        │            │
	│  │    - record.published                      │            │
	│  │    - record.deleted                        │            │
	│  │    - record.skipped                        │            │
	│  │                                            │            │
	│  │  Schema Events:                            │            │
	│  │    - template.indexed                      │            │
	│  │    - creator.seen                          │            │
	│  │                                            │            │
	│  │  Sync Events:                              │            │
	│  │    - sync.advanced                         │            │
	│  │                                            │            │
	│  │  Job Events:                               │            │
	│  │    - job.completed                         │            │
	│  │    - job.failed                            │            │
	│  └────────────────────────────────────────────┘            │
	│                                                            │
	│  ┌────────────────────────────────────────────┐            │
	│  │            Subscribers                     │            │
	│  │                                            │            │
	│  │  Daemon: debug-log the record flow         │            │
	│  │  Tests: await lifecycle transitions        │            │
	│  │  Webhooks: send notifications (future)     │            │
	│  └────────────────────────────────────────────┘            │
	└────────────────────────────────────────────────────────────┘

# Core Components

Event Broker:
  - Central message bus for event distribution
  - Manages subscriber lifecycle
  - Non-blocking publish (buffered channel)
  - Graceful shutdown via stop channel

Event:
  - Type: Lifecycle transition (record.indexed, job.failed, ...)
  - DID: The record the event is about
  - Timestamp: When the transition happened
  - Message: Human-readable description
  - Metadata: Key-value pairs for additional context

Subscriber:
  - Channel that receives Event pointers
  - Buffered (50 events) to handle bursts
  - Created via broker.Subscribe()
  - Closed via broker.Unsubscribe()

# Event Flow

Publish Flow:
 1. A sync loop or the publisher calls broker.Publish(event)
 2. Event added to main event channel (non-blocking)
 3. Broadcast loop receives event
 4. Event sent to all subscriber channels
 5. Full subscriber buffers skip (no blocking)

The convenience emitters (RecordIndexed, RecordPublished,
RecordDeleted, RecordSkipped) build the Event and publish it in one
call; the hot paths use those.

# Delivery Semantics

Delivery is asynchronous and lossy by construction. A subscriber that
falls behind loses events rather than slowing the sync loops down.
Lifecycle events are advisory signals, not a replicated log: the
index itself is the source of truth, and anything that must not miss
state reads the index, not the broker.

# Usage

Creating and Starting Broker:

	import "github.com/cuemby/burrow/pkg/events"

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Subscribing to Events:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("Event: %s - %s\n", event.Type, event.DID)
		}
	}()

Publishing Events:

	broker.RecordIndexed(rec.Meta.DID, "arweave")
	broker.RecordDeleted(target, "deleteMessage applied")

	// Or with the full shape:
	broker.Publish(&events.Event{
		Type:    events.EventTemplateIndexed,
		DID:     tpl.DID,
		Message: "template 'recipe' cached from chain",
	})

Filtering Events by Type:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			switch event.Type {
			case events.EventRecordDeleted:
				handleDeletion(event)
			case events.EventJobFailed:
				alertOnFailure(event)
			default:
				// Ignore other events
			}
		}
	}()

# Integration Points

pkg/sync:
  - BlockWalker emits record.indexed / record.skipped / record.deleted
    and sync.advanced when a pass moves the cursor
  - PeerSyncer emits record.indexed / record.skipped

pkg/publish:
  - Publisher emits record.published per destination
  - Async jobs emit job.completed / job.failed

pkg/daemon:
  - Subscribes at startup and debug-logs the record flow

# Design Patterns

Non-Blocking Publish:
  - Publish enqueues onto a buffered channel
  - Broadcast happens on the broker's own goroutine

Drop-On-Full:
  - Per-subscriber buffers absorb bursts
  - A full buffer drops the event for that subscriber only

Close-On-Unsubscribe:
  - Unsubscribe closes the channel
  - Range loops over subscribers exit cleanly

# Performance Characteristics

Publish: O(1), one buffered channel send
Broadcast: O(subscribers) per event
Memory: 100-event main buffer + 50 events per subscriber

# Limitations

  - No persistence: events are lost on restart
  - No replay: a new subscriber sees only future events
  - No ordering guarantee across subscribers under drops
  - Delivery is at-most-once

# See Also

  - pkg/sync: emits events during ingest
  - pkg/publish: emits events during publish
  - pkg/daemon: the standing subscriber
*/
package events

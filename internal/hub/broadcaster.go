// ABOUTME: In-memory fan-out of conversation updates to per-thread subscribers
// ABOUTME: Publish never blocks; slow subscribers lose updates, ingest never stalls

package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/chorus/internal/schema"
	"github.com/2389/chorus/internal/session"
)

// subscriberBufferSize is the channel buffer for each subscriber. Deltas
// arrive in bursts while an agent streams; 64 absorbs a burst without
// letting an abandoned subscriber pin memory forever.
const subscriberBufferSize = 64

// UpdateKind says which hub operation produced an update.
type UpdateKind string

const (
	// UpdateState follows every ingested event that survived mapping.
	UpdateState UpdateKind = "state"
	// UpdateHeartbeat follows a raw liveness pulse.
	UpdateHeartbeat UpdateKind = "heartbeat"
	// UpdatePlan follows a plan replacement.
	UpdatePlan UpdateKind = "plan"
	// UpdateUserInput follows a queued or resolved user-input request.
	UpdateUserInput UpdateKind = "userInput"
	// UpdateHistory follows a history restore installing a snapshot.
	UpdateHistory UpdateKind = "history"
)

// Update is one hub notification: the thread it concerns, why it fired,
// and the full reconciled state after the change.
type Update struct {
	Kind   UpdateKind     `json:"kind"`
	Thread session.Thread `json:"thread"`
	State  schema.State   `json:"state"`
}

// Broadcaster provides in-memory pub/sub for conversation updates.
// Subscribers register for a thread id and receive every update the hub
// publishes for it. This is how SSE streams and the replay tooling observe
// state without polling.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Update // thread id -> sub id -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan Update),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for updates on the given thread.
// Returns a channel that receives updates and a subscription id for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, threadID string) (<-chan Update, string) {
	subID := uuid.New().String()
	ch := make(chan Update, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[threadID]; !ok {
		b.subscribers[threadID] = make(map[string]chan Update)
	}
	b.subscribers[threadID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"thread_id", threadID,
		"sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(threadID, subID)
	}()

	return ch, subID
}

// Publish sends an update to all subscribers of its thread. Non-blocking:
// updates are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(update Update) {
	threadID := update.Thread.ID

	b.mu.RLock()
	subs, ok := b.subscribers[threadID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy channels under the read lock so sends happen without it.
	targets := make([]chan Update, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- update:
		default:
			b.logger.Debug("dropped update for slow subscriber",
				"thread_id", threadID,
				"kind", update.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(threadID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[threadID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, threadID)
	}

	b.logger.Debug("subscriber removed",
		"thread_id", threadID,
		"sub_id", subID)
}

// SubscriberCount reports the number of active subscriptions across all
// threads.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for threadID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, threadID)
	}

	b.logger.Debug("broadcaster closed")
}

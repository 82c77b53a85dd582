package notify

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"sloppy/internal/config"
	"sloppy/internal/logging"
)

// OverflowPolicy decides what happens when a subscriber's buffer is full.
type OverflowPolicy string

const (
	// DropOldest discards the oldest queued message to make room.
	DropOldest OverflowPolicy = config.OverflowDropOldest
	// DisconnectSlow removes the subscriber from every channel and closes it.
	DisconnectSlow OverflowPolicy = config.OverflowDisconnect
)

// Subscriber is one observer connection. Messages are read from Messages();
// the channel is closed once the hub disconnects the subscriber.
type Subscriber struct {
	id       string
	out      chan Message
	channels map[string]struct{}
	closed   bool
}

// ID returns the connection identifier sent in connection_ack.
func (s *Subscriber) ID() string { return s.id }

// Messages returns the subscriber's outbound queue.
func (s *Subscriber) Messages() <-chan Message { return s.out }

// HubOptions configures a Hub.
type HubOptions struct {
	BufferSize int
	Policy     OverflowPolicy
	Logger     *slog.Logger
}

// HubStats is a point-in-time view of hub usage.
type HubStats struct {
	Subscribers int    `json:"subscribers"`
	Channels    int    `json:"channels"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Evicted     uint64 `json:"evicted"`
}

type disconnection struct {
	sub    *Subscriber
	reason string
}

// Hub fans messages out to subscribers grouped by channel id.
//
// Enqueueing never blocks: each subscriber has a bounded buffer and the
// overflow policy handles slow readers. A single lock covers membership and
// enqueue, so every subscriber sees a channel's messages in publish order.
type Hub struct {
	mu           sync.Mutex
	channels     map[string]map[*Subscriber]struct{}
	subscribers  map[string]*Subscriber
	bufferSize   int
	policy       OverflowPolicy
	logger       *slog.Logger
	onDisconnect []func(sub *Subscriber, reason string)
	pending      []disconnection

	delivered atomic.Uint64
	dropped   atomic.Uint64
	evicted   atomic.Uint64
}

// NewHub constructs a hub.
func NewHub(opts HubOptions) *Hub {
	size := opts.BufferSize
	if size <= 0 {
		size = 32
	}
	policy := opts.Policy
	if policy != DropOldest {
		policy = DisconnectSlow
	}
	return &Hub{
		channels:    make(map[string]map[*Subscriber]struct{}),
		subscribers: make(map[string]*Subscriber),
		bufferSize:  size,
		policy:      policy,
		logger:      logging.NewComponentLogger(opts.Logger, "notify"),
	}
}

// NewHubFromConfig builds a hub from the [channel] config section.
func NewHubFromConfig(cfg *config.Config, logger *slog.Logger) *Hub {
	return NewHub(HubOptions{
		BufferSize: cfg.Channel.BufferSize,
		Policy:     OverflowPolicy(cfg.Channel.OverflowPolicy),
		Logger:     logger,
	})
}

// OnDisconnect registers a callback run after a subscriber is removed.
func (h *Hub) OnDisconnect(fn func(sub *Subscriber, reason string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconnect = append(h.onDisconnect, fn)
}

// Connect registers a new subscriber and queues its connection_ack.
func (h *Hub) Connect() *Subscriber {
	sub := &Subscriber{
		id:       uuid.NewString(),
		out:      make(chan Message, h.bufferSize),
		channels: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.subscribers[sub.id] = sub
	h.enqueueLocked(sub, ConnectionAck(sub.id))
	h.mu.Unlock()
	h.flushDisconnected()
	h.logger.Debug("subscriber connected", logging.String(logging.FieldSubscriberID, sub.id))
	return sub
}

// Join adds the subscriber to a channel. Joining twice is a no-op apart from
// the repeated acknowledgement.
func (h *Hub) Join(sub *Subscriber, channelID string) {
	if sub == nil || channelID == "" {
		return
	}
	h.mu.Lock()
	defer h.flushDisconnected()
	defer h.mu.Unlock()
	if sub.closed {
		return
	}
	members, ok := h.channels[channelID]
	if !ok {
		members = make(map[*Subscriber]struct{})
		h.channels[channelID] = members
	}
	members[sub] = struct{}{}
	sub.channels[channelID] = struct{}{}
	h.enqueueLocked(sub, Joined(channelID))
}

// Leave removes the subscriber from a channel and acknowledges it. Leaving a
// channel the subscriber is not on is a no-op.
func (h *Hub) Leave(sub *Subscriber, channelID string) {
	if sub == nil || channelID == "" {
		return
	}
	h.mu.Lock()
	defer h.flushDisconnected()
	defer h.mu.Unlock()
	if sub.closed {
		return
	}
	if _, joined := sub.channels[channelID]; !joined {
		return
	}
	h.removeLocked(sub, channelID)
	h.enqueueLocked(sub, Left(channelID))
}

// Publish delivers msg to every current member of channelID and returns the
// number of subscribers it was queued for. Publishing to an empty or unknown
// channel does nothing.
func (h *Hub) Publish(channelID string, msg Message) int {
	h.mu.Lock()
	delivered := 0
	for sub := range h.channels[channelID] {
		if h.enqueueLocked(sub, msg) {
			delivered++
		}
	}
	h.mu.Unlock()
	h.flushDisconnected()
	return delivered
}

// Evict removes every subscriber from channelID, sending each a left message.
func (h *Hub) Evict(channelID string) int {
	h.mu.Lock()
	defer h.flushDisconnected()
	defer h.mu.Unlock()
	members := h.channels[channelID]
	count := 0
	for sub := range members {
		h.removeLocked(sub, channelID)
		h.enqueueLocked(sub, Left(channelID))
		count++
	}
	if count > 0 {
		h.evicted.Add(uint64(count))
		h.logger.Debug("channel evicted",
			logging.String(logging.FieldChannelID, channelID),
			logging.Int("subscribers", count),
		)
	}
	return count
}

// Disconnect removes the subscriber from every channel and closes its queue.
func (h *Hub) Disconnect(sub *Subscriber, reason string) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	h.disconnectLocked(sub, reason)
	h.mu.Unlock()
	h.flushDisconnected()
}

// Members returns the number of subscribers on a channel.
func (h *Hub) Members(channelID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[channelID])
}

// ChannelsOf lists the channels a subscriber belongs to, sorted.
func (h *Hub) ChannelsOf(sub *Subscriber) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(sub.channels))
	for ch := range sub.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Stats reports current hub usage.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	stats := HubStats{Subscribers: len(h.subscribers), Channels: len(h.channels)}
	h.mu.Unlock()
	stats.Delivered = h.delivered.Load()
	stats.Dropped = h.dropped.Load()
	stats.Evicted = h.evicted.Load()
	return stats
}

// enqueueLocked queues msg without blocking. It returns false when the
// subscriber was disconnected because of overflow.
func (h *Hub) enqueueLocked(sub *Subscriber, msg Message) bool {
	if sub.closed {
		return false
	}
	select {
	case sub.out <- msg:
		h.delivered.Add(1)
		return true
	default:
	}

	h.dropped.Add(1)
	if h.policy == DropOldest {
		select {
		case <-sub.out:
		default:
		}
		select {
		case sub.out <- msg:
			h.delivered.Add(1)
		default:
		}
		logging.WarnWithContext(h.logger, "subscriber buffer full; dropped oldest message", "channel_delivery_failure",
			logging.String(logging.FieldSubscriberID, sub.id),
			logging.String("message_type", string(msg.Type)),
			logging.String(logging.FieldImpact, "observer missed one notification and should refresh"),
			logging.String(logging.FieldErrorHint, "raise channel.buffer_size if this repeats"),
		)
		return true
	}

	logging.WarnWithContext(h.logger, "subscriber buffer full; disconnecting", "channel_delivery_failure",
		logging.String(logging.FieldSubscriberID, sub.id),
		logging.String("message_type", string(msg.Type)),
		logging.String(logging.FieldImpact, "observer must reconnect and reconcile"),
		logging.String(logging.FieldErrorHint, "raise channel.buffer_size or switch overflow_policy to drop_oldest"),
	)
	h.disconnectLocked(sub, "buffer overflow")
	return false
}

func (h *Hub) removeLocked(sub *Subscriber, channelID string) {
	delete(sub.channels, channelID)
	if members, ok := h.channels[channelID]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(h.channels, channelID)
		}
	}
}

func (h *Hub) disconnectLocked(sub *Subscriber, reason string) {
	if sub.closed {
		return
	}
	for ch := range sub.channels {
		h.removeLocked(sub, ch)
	}
	delete(h.subscribers, sub.id)
	sub.closed = true
	close(sub.out)
	h.pending = append(h.pending, disconnection{sub: sub, reason: reason})
}

// flushDisconnected runs OnDisconnect callbacks outside the lock.
func (h *Hub) flushDisconnected() {
	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	callbacks := append([]func(*Subscriber, string){}, h.onDisconnect...)
	h.mu.Unlock()
	for _, d := range pending {
		h.logger.Debug("subscriber disconnected",
			logging.String(logging.FieldSubscriberID, d.sub.id),
			logging.String("reason", d.reason),
		)
		for _, fn := range callbacks {
			fn(d.sub, d.reason)
		}
	}
}

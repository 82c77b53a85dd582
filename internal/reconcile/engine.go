package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"sloppy/internal/content"
	"sloppy/internal/logging"
	"sloppy/internal/notify"
)

// Source is the authoritative item view, normally the daemon's REST API.
type Source interface {
	List(ctx context.Context) ([]*content.Item, error)
	// Get returns nil, nil when the item does not exist.
	Get(ctx context.Context, id string) (*content.Item, error)
}

// Membership joins and leaves channels on the observer's live connection.
type Membership interface {
	Join(channelID string) error
	Leave(channelID string) error
}

// Notice is a failure reported to the observer that is still relevant.
type Notice struct {
	ItemID string
	JobID  string
	Error  string
}

// Report lists the channel changes made by one pass.
type Report struct {
	Joined []string
	Left   []string
}

// Changed reports whether the pass touched any subscription.
func (r Report) Changed() bool {
	return len(r.Joined) > 0 || len(r.Left) > 0
}

// Options configures an Engine.
type Options struct {
	// WatchAll also keeps the aggregate channel joined.
	WatchAll bool
	Logger   *slog.Logger
}

// Engine is the observer-side reconciliation state.
type Engine struct {
	source  Source
	members Membership
	logger  *slog.Logger
	watch   bool

	mu          sync.Mutex
	joined      map[string]string // channel id -> item id
	aggregateOn bool
	items       map[string]*content.Item
	notices     map[string]Notice
}

// NewEngine constructs an engine with empty local state.
func NewEngine(source Source, members Membership, opts Options) *Engine {
	return &Engine{
		source:  source,
		members: members,
		logger:  logging.NewComponentLogger(opts.Logger, "reconcile"),
		watch:   opts.WatchAll,
		joined:  make(map[string]string),
		items:   make(map[string]*content.Item),
		notices: make(map[string]Notice),
	}
}

// Reconcile runs a full pass against the authoritative list.
func (e *Engine) Reconcile(ctx context.Context) (Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	items, err := e.source.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("fetch items: %w", err)
	}

	want := make(map[string]string)
	fresh := make(map[string]*content.Item, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		fresh[item.ID] = item
		if channel := wantedChannel(item); channel != "" {
			want[channel] = item.ID
		}
	}

	var report Report
	if err := e.applyLocked(want, func(string) bool { return true }, &report); err != nil {
		return report, err
	}
	if e.watch && !e.aggregateOn {
		if err := e.members.Join(notify.AggregateChannel); err != nil {
			return report, fmt.Errorf("join %s: %w", notify.AggregateChannel, err)
		}
		e.aggregateOn = true
		report.Joined = append(report.Joined, notify.AggregateChannel)
	}

	e.items = fresh
	e.pruneNoticesLocked()

	if report.Changed() {
		e.logger.Debug("reconciled subscriptions",
			logging.Int("items", len(fresh)),
			logging.Int("joined", len(report.Joined)),
			logging.Int("left", len(report.Left)),
		)
	}
	return report, nil
}

// ReconcileItem refreshes a single item and its subscription.
func (e *Engine) ReconcileItem(ctx context.Context, itemID string) (Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	item, err := e.source.Get(ctx, itemID)
	if err != nil {
		return Report{}, fmt.Errorf("fetch item %s: %w", itemID, err)
	}

	want := make(map[string]string)
	if item != nil {
		if channel := wantedChannel(item); channel != "" {
			want[channel] = item.ID
		}
	}
	var report Report
	owned := func(owner string) bool { return owner == itemID }
	if err := e.applyLocked(want, owned, &report); err != nil {
		return report, err
	}

	if item == nil {
		delete(e.items, itemID)
	} else {
		e.items[itemID] = item
	}
	e.pruneNoticesLocked()
	return report, nil
}

// HandleEvent applies a message received on the live connection. Outcomes
// for items missing from the cache mean the cache is stale and trigger a
// full pass.
func (e *Engine) HandleEvent(ctx context.Context, msg notify.Message) (Report, error) {
	if msg.Type != notify.TypeJobOutcome {
		return Report{}, nil
	}
	e.mu.Lock()
	if msg.Status == notify.StatusFailed && msg.ItemID != "" {
		e.notices[msg.ItemID] = Notice{ItemID: msg.ItemID, JobID: msg.JobID, Error: msg.Error}
	}
	_, known := e.items[msg.ItemID]
	e.mu.Unlock()

	if !known || msg.ItemID == "" {
		return e.Reconcile(ctx)
	}
	return e.ReconcileItem(ctx, msg.ItemID)
}

// Rebind forgets local membership after the transport was re-established;
// the server side starts the new connection with no channels.
func (e *Engine) Rebind() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.joined = make(map[string]string)
	e.aggregateOn = false
}

// Subscriptions returns the joined job channels, sorted.
func (e *Engine) Subscriptions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.joined))
	for channel := range e.joined {
		out = append(out, channel)
	}
	sort.Strings(out)
	return out
}

// Items returns the cached items, oldest first.
func (e *Engine) Items() []*content.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*content.Item, 0, len(e.items))
	for _, item := range e.items {
		out = append(out, item.Clone())
	}
	slices.SortFunc(out, func(a, b *content.Item) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Item returns one cached item.
func (e *Engine) Item(id string) (*content.Item, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	item, ok := e.items[id]
	return item.Clone(), ok
}

// Notices returns the failures still reflected by the authoritative items.
func (e *Engine) Notices() []Notice {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Notice, 0, len(e.notices))
	for _, n := range e.notices {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// applyLocked moves the subscriptions selected by inScope to want. Channels
// owned by items outside the scope are left untouched.
func (e *Engine) applyLocked(want map[string]string, inScope func(owner string) bool, report *Report) error {
	stale := make([]string, 0)
	for channel, owner := range e.joined {
		if !inScope(owner) {
			continue
		}
		if _, ok := want[channel]; !ok {
			stale = append(stale, channel)
		}
	}
	sort.Strings(stale)
	for _, channel := range stale {
		if err := e.members.Leave(channel); err != nil {
			return fmt.Errorf("leave %s: %w", channel, err)
		}
		delete(e.joined, channel)
		report.Left = append(report.Left, channel)
	}

	missing := make([]string, 0, len(want))
	for channel := range want {
		if _, ok := e.joined[channel]; !ok {
			missing = append(missing, channel)
		}
	}
	sort.Strings(missing)
	for _, channel := range missing {
		if err := e.members.Join(channel); err != nil {
			return fmt.Errorf("join %s: %w", channel, err)
		}
		e.joined[channel] = want[channel]
		report.Joined = append(report.Joined, channel)
	}
	return nil
}

func (e *Engine) pruneNoticesLocked() {
	for id, n := range e.notices {
		item, ok := e.items[id]
		if !ok || item.Error == "" || item.Error != n.Error {
			delete(e.notices, id)
		}
	}
}

// wantedChannel returns the channel an observer should hold for item, or ""
// for stable items.
func wantedChannel(item *content.Item) string {
	if item.State.IsTransient() && item.ActiveJobID != "" {
		return item.ActiveJobID
	}
	return ""
}

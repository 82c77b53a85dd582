package observer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sloppy/internal/config"
	"sloppy/internal/logging"
	"sloppy/internal/notify"
	"sloppy/internal/reconcile"
)

// ErrNotConnected is returned by Join and Leave while no session is open.
var ErrNotConnected = errors.New("observer is not connected")

// EventKind classifies what a Watcher reports to its caller.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventOutcome      EventKind = "outcome"
	EventDisconnected EventKind = "disconnected"
)

// Event is delivered to Options.OnEvent from the watcher goroutine.
type Event struct {
	Kind    EventKind
	Message notify.Message
	Report  reconcile.Report
	Err     error
}

// Options configures a Watcher.
type Options struct {
	URL          string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	WriteTimeout time.Duration
	// ReadTimeout bounds silence on the socket. Server pings extend it.
	ReadTimeout time.Duration
	WatchAll    bool
	Logger      *slog.Logger
	OnEvent     func(Event)
}

// Watcher keeps one observer connection alive and reconciles after every
// (re)connect.
type Watcher struct {
	opts   Options
	engine *reconcile.Engine
	dialer *websocket.Dialer
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// New constructs a watcher reading authoritative state from source.
func New(source reconcile.Source, opts Options) *Watcher {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = opts.ReconnectMin
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	w := &Watcher{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.WriteTimeout},
		logger: logging.NewComponentLogger(opts.Logger, "observer"),
	}
	w.engine = reconcile.NewEngine(source, w, reconcile.Options{WatchAll: opts.WatchAll, Logger: opts.Logger})
	return w
}

// OptionsFromConfig fills the connection settings from the [observer] and
// [channel] sections. Callers add WatchAll, Logger and OnEvent.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		URL:          cfg.WebSocketURL(),
		ReconnectMin: time.Duration(cfg.Observer.ReconnectMinSeconds) * time.Second,
		ReconnectMax: time.Duration(cfg.Observer.ReconnectMaxSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Channel.WriteTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.Channel.PongTimeoutSeconds) * time.Second,
	}
}

// Engine exposes the reconciliation state for display.
func (w *Watcher) Engine() *reconcile.Engine {
	return w.engine
}

// Join sends a join_channel frame on the current connection.
func (w *Watcher) Join(channelID string) error {
	return w.send(notify.JoinChannel(channelID))
}

// Leave sends a leave_channel frame on the current connection.
func (w *Watcher) Leave(channelID string) error {
	return w.send(notify.LeaveChannel(channelID))
}

func (w *Watcher) send(msg notify.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return ErrNotConnected
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout)); err != nil {
		return err
	}
	return w.conn.WriteJSON(msg)
}

func (w *Watcher) setConn(conn *websocket.Conn) {
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
}

// Run connects, reconciles and follows outcomes until ctx is cancelled,
// reconnecting with exponential backoff between sessions.
func (w *Watcher) Run(ctx context.Context) error {
	backoff := w.opts.ReconnectMin
	for {
		connected, err := w.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = w.opts.ReconnectMin
		}
		logging.WarnWithContext(w.logger, "observer connection lost", "observer_disconnected",
			logging.Error(err),
			logging.Duration("retry_in", backoff),
			logging.String(logging.FieldErrorHint, "check that sloppyd is running at "+w.opts.URL),
		)
		w.emit(Event{Kind: EventDisconnected, Err: err})

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, w.opts.ReconnectMax)
	}
}

// session runs one connection. The boolean reports whether the handshake
// completed, which resets the backoff.
func (w *Watcher) session(ctx context.Context) (bool, error) {
	conn, _, err := w.dialer.DialContext(ctx, w.opts.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", w.opts.URL, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer func() {
		w.setConn(nil)
		conn.Close()
	}()

	if err := w.awaitAck(conn); err != nil {
		return false, err
	}
	w.extendRead(conn)
	conn.SetPingHandler(func(data string) error {
		w.extendRead(conn)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(w.opts.WriteTimeout))
	})

	w.setConn(conn)
	w.engine.Rebind()
	report, err := w.engine.Reconcile(ctx)
	if err != nil {
		return true, fmt.Errorf("reconcile after connect: %w", err)
	}
	w.emit(Event{Kind: EventConnected, Report: report})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		w.extendRead(conn)
		msg, err := notify.Decode(data)
		if err != nil {
			w.logger.Debug("ignoring malformed frame", logging.Error(err))
			continue
		}
		switch msg.Type {
		case notify.TypeJobOutcome:
			report, err := w.engine.HandleEvent(ctx, msg)
			if err != nil {
				logging.WarnWithContext(w.logger, "reconcile after outcome failed", "observer_reconcile_failed",
					logging.Error(err),
					logging.String(logging.FieldJobID, msg.JobID),
					logging.String(logging.FieldErrorHint, "the next outcome or reconnect retries the refresh"),
				)
			}
			w.emit(Event{Kind: EventOutcome, Message: msg, Report: report, Err: err})
		case notify.TypeJoined, notify.TypeLeft:
			w.logger.Debug("membership acknowledged",
				logging.String("type", string(msg.Type)),
				logging.String(logging.FieldChannelID, msg.ChannelID),
			)
		}
	}
}

func (w *Watcher) awaitAck(conn *websocket.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(w.opts.WriteTimeout)); err != nil {
		return err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("await connection_ack: %w", err)
	}
	msg, err := notify.Decode(data)
	if err != nil {
		return fmt.Errorf("await connection_ack: %w", err)
	}
	if msg.Type != notify.TypeConnectionAck {
		return fmt.Errorf("expected connection_ack, got %s", msg.Type)
	}
	w.logger.Debug("observer connected", logging.String(logging.FieldSubscriberID, msg.ConnectionID))
	return nil
}

func (w *Watcher) extendRead(conn *websocket.Conn) {
	if w.opts.ReadTimeout <= 0 {
		_ = conn.SetReadDeadline(time.Time{})
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(w.opts.ReadTimeout))
}

func (w *Watcher) emit(event Event) {
	if w.opts.OnEvent != nil {
		w.opts.OnEvent(event)
	}
}

package notify

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"sloppy/internal/config"
	"sloppy/internal/logging"
)

const maxInboundFrame = 4096

// ServerOptions configures the websocket endpoint.
type ServerOptions struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration
	Logger       *slog.Logger
}

// Server upgrades HTTP requests into hub subscribers.
type Server struct {
	hub      *Hub
	opts     ServerOptions
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer wires a websocket endpoint to hub.
func NewServer(hub *Hub, opts ServerOptions) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	if opts.PingInterval <= 0 || opts.PingInterval >= opts.PongTimeout {
		opts.PingInterval = opts.PongTimeout * 9 / 10
	}
	return &Server{
		hub:  hub,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Observers run on operator machines; there is no browser origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logging.NewComponentLogger(opts.Logger, "notify-ws"),
	}
}

// NewServerFromConfig builds a websocket endpoint from the [channel] config section.
func NewServerFromConfig(hub *Hub, cfg *config.Config, logger *slog.Logger) *Server {
	return NewServer(hub, ServerOptions{
		WriteTimeout: time.Duration(cfg.Channel.WriteTimeoutSeconds) * time.Second,
		PingInterval: time.Duration(cfg.Channel.PingIntervalSeconds) * time.Second,
		PongTimeout:  time.Duration(cfg.Channel.PongTimeoutSeconds) * time.Second,
		Logger:       logger,
	})
}

// ServeHTTP upgrades the connection and pumps messages until either side closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		s.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	sub := s.hub.Connect()
	logger := s.logger.With(logging.String(logging.FieldSubscriberID, sub.ID()))
	logger.Info("observer connected", logging.String("remote_addr", r.RemoteAddr))

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(conn, sub, logger)
	}()
	s.readPump(conn, sub, logger)
	s.hub.Disconnect(sub, "connection closed")
	<-done
	_ = conn.Close()
	logger.Info("observer disconnected")
}

func (s *Server) readPump(conn *websocket.Conn, sub *Subscriber, logger *slog.Logger) {
	conn.SetReadLimit(maxInboundFrame)
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("observer read failed", logging.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		msg, err := Decode(data)
		if err == nil && !msg.Inbound() {
			err = errors.New("message type not accepted from observers: " + string(msg.Type))
		}
		if err != nil {
			logging.WarnWithContext(logger, "ignoring observer frame", "observer_frame_invalid",
				logging.Error(err),
				logging.String(logging.FieldImpact, "frame ignored; connection stays open"),
				logging.String(logging.FieldErrorHint, "observer must send join_channel or leave_channel with channel_id"),
			)
			continue
		}
		switch msg.Type {
		case TypeJoinChannel:
			s.hub.Join(sub, msg.ChannelID)
		case TypeLeaveChannel:
			s.hub.Leave(sub, msg.ChannelID)
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, sub *Subscriber, logger *slog.Logger) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-sub.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				// Unblock readPump when the hub dropped us.
				_ = conn.SetReadDeadline(time.Now())
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				logger.Error("encode outbound message", logging.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("observer write failed", logging.Error(err))
				s.hub.Disconnect(sub, "write failed")
				_ = conn.SetReadDeadline(time.Now())
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout)); err != nil {
				s.hub.Disconnect(sub, "ping failed")
				_ = conn.SetReadDeadline(time.Now())
				return
			}
		}
	}
}

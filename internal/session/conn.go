package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"colabx-sync/pkg/wire"
)

const (
	// Time allowed to write a message to the relay
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the relay
	pongWait = 60 * time.Second

	// Send pings to the relay with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from the relay
	maxMessageSize = 512 * 1024 // 512KB

	// Outbound buffer; messages are dropped when the relay cannot keep up
	sendBuffer = 256

	// Delay before retrying after an abnormal close
	defaultReconnectDelay = 3 * time.Second
)

// ErrNotConnected is returned by Send when no transport is open.
var ErrNotConnected = errors.New("session: not connected to relay")

// ConnState is the connection lifecycle. It is owned exclusively by Conn;
// no other component mutates it.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// ConnConfig configures the relay connection.
type ConnConfig struct {
	// URL of the relay websocket endpoint.
	URL string

	// ReconnectDelay between an abnormal close and the next attempt.
	// Defaults to 3 seconds. Retries are unbounded; see DESIGN.md.
	ReconnectDelay time.Duration

	// HandshakeTimeout for the websocket dial.
	HandshakeTimeout time.Duration
}

// Conn owns the lifecycle of the single persistent relay connection:
// connect, join the room, receive, reconnect with backoff, clean teardown.
type Conn struct {
	cfg    ConnConfig
	dialer *websocket.Dialer
	logger *slog.Logger

	// onMessage receives every raw inbound frame. onStatus observes state
	// transitions; detail carries the user-visible error text, if any.
	onMessage func([]byte)
	onStatus  func(state ConnState, detail string)

	mu     sync.Mutex
	state  ConnState
	ws     *websocket.Conn
	send   chan []byte
	quit   chan struct{}
	user   wire.User
	roomID string
	retry  backoff.BackOff
	timer  *time.Timer
	closed bool
}

// NewConn builds a connection manager for the given identity and room. The
// transport is not dialed until Connect.
func NewConn(cfg ConnConfig, user wire.User, roomID string, onMessage func([]byte), onStatus func(ConnState, string), logger *slog.Logger) *Conn {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Conn{
		cfg:       cfg,
		dialer:    &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger:    logger.With("component", "conn"),
		onMessage: onMessage,
		onStatus:  onStatus,
		user:      user,
		roomID:    roomID,
		retry:     backoff.NewConstantBackOff(cfg.ReconnectDelay),
	}
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts a connection attempt. An attempt while connecting or
// connected is a no-op, so at most one is ever in flight.
func (c *Conn) Connect() {
	c.mu.Lock()
	if c.closed || c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateConnecting, "")
	c.mu.Unlock()

	go c.dial()
}

func (c *Conn) dial() {
	ws, _, err := c.dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		c.logger.Warn("relay dial failed", "url", c.cfg.URL, "err", err)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		c.setStateLocked(StateDisconnected, fmt.Sprintf("connection failed: %v", err))
		c.scheduleReconnectLocked()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.ws = ws
	c.send = make(chan []byte, sendBuffer)
	c.quit = make(chan struct{})
	c.retry.Reset()
	c.setStateLocked(StateConnected, "")
	user, room := c.user, c.roomID
	send, quit := c.send, c.quit
	c.mu.Unlock()

	go c.writePump(ws, send, quit)
	go c.readPump(ws)

	// Authenticate into the room as soon as the transport is open.
	if err := c.Send(wire.Join(user, room)); err != nil {
		c.logger.Error("failed to send join", "err", err)
	}
	c.logger.Info("connected to relay", "room", room)
}

// readPump pumps frames from the relay to the message handler.
func (c *Conn) readPump(ws *websocket.Conn) {
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleClose(ws, err)
			return
		}
		if c.onMessage != nil {
			c.onMessage(data)
		}
	}
}

// writePump pumps queued messages to the relay and keeps the connection
// alive with pings. On quit it flushes the buffer, then sends a normal
// close frame.
func (c *Conn) writePump(ws *websocket.Conn, send chan []byte, quit chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case data := <-send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-quit:
			for {
				select {
				case data := <-send:
					ws.SetWriteDeadline(time.Now().Add(writeWait))
					ws.WriteMessage(websocket.TextMessage, data)
				default:
					ws.SetWriteDeadline(time.Now().Add(writeWait))
					ws.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// handleClose runs once per connection when its read pump exits. Deliberate
// teardown goes quietly to Disconnected; anything else schedules exactly
// one reconnect.
func (c *Conn) handleClose(ws *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != ws {
		// A stale pump from a connection already replaced.
		return
	}
	c.ws = nil
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
	c.send = nil

	if c.closed || c.state == StateClosing {
		c.setStateLocked(StateDisconnected, "")
		return
	}

	c.logger.Warn("relay connection lost", "err", err)
	c.setStateLocked(StateDisconnected, fmt.Sprintf("connection lost: %v", err))
	c.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the retry timer unless one is already
// pending. Callers hold c.mu.
func (c *Conn) scheduleReconnectLocked() {
	if c.timer != nil || c.closed {
		return
	}
	delay := c.retry.NextBackOff()
	c.logger.Info("scheduling reconnect", "delay", delay)
	c.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.timer = nil
		skip := c.closed || c.state != StateDisconnected
		c.mu.Unlock()
		if skip {
			return
		}
		c.Connect()
	})
}

// Send queues a message for transmission. The buffer is dropped-on-full so
// a stalled relay cannot block the caller.
func (c *Conn) Send(msg wire.Message) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	send := c.send
	state := c.state
	c.mu.Unlock()

	if send == nil || (state != StateConnected && state != StateClosing) {
		return ErrNotConnected
	}
	select {
	case send <- data:
		return nil
	default:
		return fmt.Errorf("send %s: outbound buffer full", msg.Type)
	}
}

// SetIdentity updates the local user and room. While connected it re-emits
// join with the new identity without dropping the transport.
func (c *Conn) SetIdentity(user wire.User, roomID string) {
	c.mu.Lock()
	c.user = user
	c.roomID = roomID
	connected := c.state == StateConnected
	c.mu.Unlock()

	if connected {
		if err := c.Send(wire.Join(user, roomID)); err != nil {
			c.logger.Error("failed to re-join with new identity", "err", err)
		}
	}
}

// Close tears the connection down deliberately: leave is emitted first if
// the channel is open, the transport closes with a normal status code, and
// any pending reconnect is cancelled so it cannot fire afterward.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	connected := c.state == StateConnected
	if connected {
		c.setStateLocked(StateClosing, "")
	} else {
		c.setStateLocked(StateDisconnected, "")
	}
	userID, roomID := c.user.ID, c.roomID
	quit := c.quit
	c.quit = nil
	c.mu.Unlock()

	if connected {
		if err := c.Send(wire.Leave(userID, roomID)); err != nil {
			c.logger.Warn("failed to send leave", "err", err)
		}
		if quit != nil {
			close(quit)
		}
	}
	c.logger.Info("connection closed")
}

// setStateLocked transitions the state and notifies the observer in
// transition order. The callback runs with the connection lock held, so it
// must not call back into Conn.
func (c *Conn) setStateLocked(next ConnState, detail string) {
	if c.state == next && detail == "" {
		return
	}
	c.state = next
	if c.onStatus != nil {
		c.onStatus(next, detail)
	}
}

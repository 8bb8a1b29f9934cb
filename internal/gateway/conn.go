package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/translation-gateway/internal/observability"
	"github.com/lexiqai/translation-gateway/internal/quality"
	"github.com/lexiqai/translation-gateway/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Send buffer size per connection.
	sendBufferSize = 256

	// Deadline for one client request, including any wait on the session actor.
	requestTimeout = 10 * time.Second
)

var errConnClosed = errors.New("connection closed")

// subscription is one joinSession held by a connection
type subscription struct {
	session *session.Session
	cancel  context.CancelFunc
}

// Conn is one WebSocket client. It may broadcast sessions and subscribe to others
// at the same time.
type Conn struct {
	id     string
	ws     *websocket.Conn
	server *Server
	send   chan []byte
	closed chan struct{}
	once   sync.Once
	logger zerolog.Logger

	mu            sync.Mutex
	broadcasts    map[string]*session.Session
	lastBroadcast *session.Session
	subscriptions map[string]*subscription
	probes        map[string]chan struct{}
}

func newConn(ws *websocket.Conn, server *Server) *Conn {
	id := observability.NewCorrelationID()
	return &Conn{
		id:            id,
		ws:            ws,
		server:        server,
		send:          make(chan []byte, sendBufferSize),
		closed:        make(chan struct{}),
		logger:        observability.WithCorrelationID(id).With().Str("component", "gateway").Str("conn_id", id).Logger(),
		broadcasts:    make(map[string]*session.Session),
		subscriptions: make(map[string]*subscription),
		probes:        make(map[string]chan struct{}),
	}
}

// ID implements session.Sink
func (c *Conn) ID() string {
	return c.id
}

// Send implements session.Sink. It never blocks; a full send buffer fails the event.
func (c *Conn) Send(ev session.Event) bool {
	data, err := encodeEvent(ev)
	if err != nil {
		c.logger.Error().Err(err).Str("event", ev.Type).Msg("Failed to encode event")
		return false
	}
	return c.enqueue(data)
}

func (c *Conn) enqueue(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn().Int("buffered", len(c.send)).Msg("Send buffer full, dropping message")
		return false
	}
}

// Probe implements quality.Prober with a WebSocket ping carrying a nonce
func (c *Conn) Probe(ctx context.Context) (time.Duration, error) {
	nonce := uuid.New().String()
	pong := make(chan struct{})

	c.mu.Lock()
	c.probes[nonce] = pong
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.probes, nonce)
		c.mu.Unlock()
	}()

	start := time.Now()
	if err := c.ws.WriteControl(websocket.PingMessage, []byte(nonce), time.Now().Add(writeWait)); err != nil {
		return 0, err
	}

	select {
	case <-pong:
		return time.Since(start), nil
	case <-c.closed:
		return 0, errConnClosed
	case <-ctx.Done():
		return time.Since(start), ctx.Err()
	}
}

func (c *Conn) handlePong(data string) error {
	c.ws.SetReadDeadline(time.Now().Add(pongWait))

	c.mu.Lock()
	if ch, ok := c.probes[data]; ok {
		close(ch)
		delete(c.probes, data)
	}
	c.mu.Unlock()
	return nil
}

// readPump reads frames until the peer goes away
func (c *Conn) readPump() {
	defer c.close()

	c.ws.SetReadLimit(int64(c.server.maxMessageBytes))
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(c.handlePong)

	for {
		kind, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			c.handleBinary(message)
		case websocket.TextMessage:
			c.handleText(message)
		}
	}
}

// writePump drains the send buffer and keeps the connection alive with pings
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug().Err(err).Msg("WebSocket write error")
				c.close()
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}

		case <-c.closed:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// close detaches every role the connection holds. Safe to call more than once.
func (c *Conn) close() {
	c.once.Do(func() {
		close(c.closed)

		c.mu.Lock()
		touched := make(map[string]*session.Session)
		for id, s := range c.broadcasts {
			touched[id] = s
		}
		for _, sub := range c.subscriptions {
			sub.cancel()
			touched[sub.session.ID()] = sub.session
		}
		c.broadcasts = make(map[string]*session.Session)
		c.subscriptions = make(map[string]*subscription)
		c.lastBroadcast = nil
		c.mu.Unlock()

		for _, s := range touched {
			s.ConnectionClosed(c.id)
		}
		observability.RecordConnectionClosed()
		c.logger.Info().Int("sessions", len(touched)).Msg("Connection closed")
	})
}

func (c *Conn) addBroadcast(s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcasts[s.ID()] = s
	c.lastBroadcast = s
}

func (c *Conn) removeBroadcast(s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.broadcasts, s.ID())
	if c.lastBroadcast == s {
		c.lastBroadcast = nil
	}
}

// currentBroadcast is the session binary frames are routed to
func (c *Conn) currentBroadcast() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBroadcast
}

// addSubscription starts a quality monitor for the new subscriber
func (c *Conn) addSubscription(s *session.Session, subscriberID string) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.subscriptions[subscriberID] = &subscription{session: s, cancel: cancel}
	c.mu.Unlock()

	monitor := quality.NewMonitor(c, c.server.probeInterval, func(sample quality.Sample) {
		s.ReportQuality(subscriberID, sample)
	})
	go func() {
		select {
		case <-s.Done():
		case <-c.closed:
		case <-ctx.Done():
		}
		cancel()
	}()
	go monitor.Run(ctx)
}

func (c *Conn) removeSubscription(subscriberID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subscriptions[subscriberID]; ok {
		sub.cancel()
		delete(c.subscriptions, subscriberID)
	}
}

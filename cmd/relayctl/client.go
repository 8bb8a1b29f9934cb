package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/translation-gateway/internal/gateway"
	"github.com/lexiqai/translation-gateway/internal/resilience"
)

const writeWait = 10 * time.Second

var errDisconnected = errors.New("disconnected from gateway")

// message is a server frame with its data left undecoded
type message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Code      string          `json:"code"`
	Message   string          `json:"message"`
}

// requestError is an error reply from the gateway
type requestError struct {
	Code    string
	Message string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type client struct {
	conn   *websocket.Conn
	logger zerolog.Logger
	nextID atomic.Int64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan message

	events chan message
	done   chan struct{}
}

// dial connects with exponential backoff
func dial(ctx context.Context, url string, logger zerolog.Logger) (*client, error) {
	var conn *websocket.Conn
	err := resilience.Reconnect(ctx, func(ctx context.Context) error {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, resilience.DefaultReconnectConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	c := &client{
		conn:    conn,
		logger:  logger,
		pending: make(map[string]chan message),
		events:  make(chan message, 64),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *client) readLoop() {
	defer close(c.done)
	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("Read failed")
			}
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.RequestID]
		if ok {
			delete(c.pending, msg.RequestID)
		}
		c.mu.Unlock()

		if ok {
			ch <- msg
			continue
		}
		select {
		case c.events <- msg:
		default:
			c.logger.Warn().Str("type", msg.Type).Msg("Event buffer full, dropping event")
		}
	}
}

// request sends msg and waits for its ack, decoding the ack data into out when non-nil
func (c *client) request(ctx context.Context, msg gateway.ClientMessage, out interface{}) error {
	msg.RequestID = strconv.FormatInt(c.nextID.Add(1), 10)
	reply := make(chan message, 1)

	c.mu.Lock()
	c.pending[msg.RequestID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}

	select {
	case r := <-reply:
		if r.Type == gateway.TypeError {
			return &requestError{Code: r.Code, Message: r.Message}
		}
		if out != nil && len(r.Data) > 0 {
			return json.Unmarshal(r.Data, out)
		}
		return nil
	case <-c.done:
		return errDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *client) close() {
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	c.conn.Close()
}

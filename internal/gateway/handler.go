// Package gateway exposes sessions over WebSocket and a small HTTP surface.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/translation-gateway/internal/cache"
	"github.com/lexiqai/translation-gateway/internal/observability"
	"github.com/lexiqai/translation-gateway/internal/session"
)

// Outputs serves synthesized clips and cache counters. *pipeline.Processor satisfies it.
type Outputs interface {
	Audio(ref string) ([]byte, string, bool)
	CacheStats() cache.Stats
}

// Server routes client connections onto the session registry
type Server struct {
	registry        *session.Registry
	outputs         Outputs
	probeInterval   time.Duration
	maxMessageBytes int
	upgrader        websocket.Upgrader
	logger          zerolog.Logger
}

// NewServer creates a gateway. maxChunkBytes bounds a single audio chunk; JSON frames
// get room for base64 expansion.
func NewServer(registry *session.Registry, outputs Outputs, probeInterval time.Duration, maxChunkBytes int) *Server {
	return &Server{
		registry:        registry,
		outputs:         outputs,
		probeInterval:   probeInterval,
		maxMessageBytes: maxChunkBytes*4/3 + 4096,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary origins; sessions are protected by code and password
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: observability.Component("gateway"),
	}
}

// Routes registers the WebSocket endpoint and the HTTP lookups on mux
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.ServeWS)
	mux.HandleFunc("GET /audio/{ref}", s.ServeAudio)
	mux.HandleFunc("GET /sessions", s.ServeSessions)
	mux.HandleFunc("GET /sessions/{id}", s.ServeSession)
}

// ServeWS upgrades the request and runs the connection pumps
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := newConn(ws, s)
	observability.RecordConnectionOpened()
	c.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Connection opened")

	go c.writePump()
	go c.readPump()
}

// ServeAudio returns a recently synthesized clip by content reference
func (s *Server) ServeAudio(w http.ResponseWriter, r *http.Request) {
	data, mimeType, ok := s.outputs.Audio(r.PathValue("ref"))
	if !ok {
		http.Error(w, "audio not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
	w.Write(data)
}

// ServeSession returns diagnostics for one session
func (s *Server) ServeSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessionInfo(r.Context(), r.PathValue("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if session.Code(err) == session.CodeSessionNotFound {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"code": session.Code(err), "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ServeSessions lists every registered session
func (s *Server) ServeSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": s.registry.List(r.Context()),
		"cache":    s.outputs.CacheStats(),
	})
}

func (s *Server) sessionInfo(ctx context.Context, id string) (*SessionInfoData, error) {
	sess, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	info, err := sess.Info(ctx)
	if err != nil {
		return nil, err
	}
	return &SessionInfoData{Info: info, Cache: s.outputs.CacheStats()}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleBinary treats a binary frame as an audioChunk for the connection's broadcast
func (c *Conn) handleBinary(payload []byte) {
	sess := c.currentBroadcast()
	if sess == nil {
		c.enqueue(errorMessage("", "", fmt.Errorf("%w: binary audio requires an active broadcast", session.ErrNotBroadcaster)))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	seq, err := sess.SubmitAudio(ctx, c.id, payload)
	if err != nil {
		c.enqueue(errorMessage("", sess.ID(), err))
		return
	}
	c.enqueue(ackMessage("", sess.ID(), ChunkAcceptedData{Sequence: seq}))
}

// handleText routes one JSON request and replies with ack or error
func (c *Conn) handleText(data []byte) {
	msg, err := parseClientMessage(data)
	if err != nil {
		c.enqueue(errorMessage("", "", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	logger := c.logger.With().Str("type", msg.Type).Str("request_id", msg.RequestID).Logger()
	reply, sessionID, err := c.route(ctx, msg)
	if err != nil {
		logger.Debug().Err(err).Str("code", session.Code(err)).Msg("Request failed")
		c.enqueue(errorMessage(msg.RequestID, sessionID, err))
		return
	}
	if reply != nil {
		c.enqueue(reply)
	}
}

func (c *Conn) route(ctx context.Context, msg *ClientMessage) ([]byte, string, error) {
	switch msg.Type {
	case TypePing:
		return pongMessage(msg.RequestID), "", nil

	case TypeCreateSession:
		sess, err := c.server.registry.Create(session.CreateRequest{
			Title:          msg.Title,
			SourceLanguage: msg.SourceLanguage,
			Password:       msg.Password,
		}, c)
		if err != nil {
			return nil, "", err
		}
		c.addBroadcast(sess)
		c.logger.Info().Str("session_id", sess.ID()).Msg("Broadcast created")
		return ackMessage(msg.RequestID, sess.ID(), CreatedData{SessionID: sess.ID(), BroadcasterKey: sess.BroadcasterKey()}), sess.ID(), nil
	}

	switch msg.Type {
	case TypeStartBroadcast, TypePauseBroadcast, TypeEndSession, TypeAudioChunk,
		TypeJoinSession, TypeLeaveSession, TypeReclaimSession, TypeGetSessionInfo:
	default:
		return nil, msg.SessionID, fmt.Errorf("%w: unknown message type %q", session.ErrInvalidRequest, msg.Type)
	}

	sess, err := c.resolveSession(msg)
	if err != nil {
		return nil, msg.SessionID, err
	}
	ack := func(data interface{}) ([]byte, string, error) {
		return ackMessage(msg.RequestID, sess.ID(), data), sess.ID(), nil
	}
	fail := func(err error) ([]byte, string, error) {
		return nil, sess.ID(), err
	}

	switch msg.Type {
	case TypeStartBroadcast:
		if err := sess.Start(ctx, c.id); err != nil {
			return fail(err)
		}
		return ack(nil)

	case TypePauseBroadcast:
		if err := sess.Pause(ctx, c.id); err != nil {
			return fail(err)
		}
		return ack(nil)

	case TypeEndSession:
		if err := sess.End(ctx, c.id); err != nil {
			return fail(err)
		}
		c.removeBroadcast(sess)
		return ack(nil)

	case TypeAudioChunk:
		seq, err := sess.SubmitAudio(ctx, c.id, msg.Payload)
		if err != nil {
			return fail(err)
		}
		return ack(ChunkAcceptedData{Sequence: seq})

	case TypeJoinSession:
		subscriberID, err := sess.Join(ctx, c, msg.TargetLanguage, msg.DisplayName, msg.Password)
		if err != nil {
			return fail(err)
		}
		c.addSubscription(sess, subscriberID)
		return ack(JoinedData{SessionID: sess.ID(), SubscriberID: subscriberID})

	case TypeLeaveSession:
		if err := sess.Leave(ctx, c.id, msg.SubscriberID); err != nil {
			return fail(err)
		}
		c.removeSubscription(msg.SubscriberID)
		return ack(nil)

	case TypeReclaimSession:
		if err := sess.Reclaim(ctx, msg.BroadcasterKey, c); err != nil {
			return fail(err)
		}
		c.addBroadcast(sess)
		return ack(nil)

	case TypeGetSessionInfo:
		info, err := sess.Info(ctx)
		if err != nil {
			return fail(err)
		}
		return ack(SessionInfoData{Info: info, Cache: c.server.outputs.CacheStats()})
	}
	return nil, sess.ID(), fmt.Errorf("%w: unhandled message type %q", session.ErrInvalidRequest, msg.Type)
}

// resolveSession finds the target session; broadcasters may omit the id
func (c *Conn) resolveSession(msg *ClientMessage) (*session.Session, error) {
	if msg.SessionID == "" {
		if sess := c.currentBroadcast(); sess != nil {
			return sess, nil
		}
		return nil, fmt.Errorf("%w: sessionId is required", session.ErrInvalidRequest)
	}
	return c.server.registry.Get(msg.SessionID)
}

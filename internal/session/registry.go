package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/lexiqai/translation-gateway/internal/observability"
)

// Session codes avoid characters that are easy to misread (0/O, 1/I/L)
const (
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

// CreateRequest describes a new broadcast
type CreateRequest struct {
	Title          string
	SourceLanguage string
	Password       string
}

// Registry owns every session in the process
type Registry struct {
	processor Processor
	opts      Options
	logger    zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates an empty registry
func NewRegistry(processor Processor, opts Options) *Registry {
	return &Registry{
		processor: processor,
		opts:      opts,
		logger:    observability.Component("registry"),
		sessions:  make(map[string]*Session),
	}
}

// Create starts a session in setup state with broadcaster attached as its broadcaster
func (r *Registry) Create(req CreateRequest, broadcaster Sink) (*Session, error) {
	req.SourceLanguage = strings.TrimSpace(req.SourceLanguage)
	if req.SourceLanguage == "" {
		return nil, fmt.Errorf("%w: sourceLanguage is required", ErrInvalidRequest)
	}
	if broadcaster == nil {
		return nil, fmt.Errorf("%w: a broadcaster connection is required", ErrInvalidRequest)
	}

	var hash []byte
	if req.Password != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(req.Password), r.opts.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash session password: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("%w: server is shutting down", ErrCapacityExceeded)
	}
	if r.liveLocked() >= r.opts.MaxSessions {
		return nil, ErrCapacityExceeded
	}

	id, err := r.newCodeLocked()
	if err != nil {
		return nil, err
	}

	s := newSession(sessionParams{
		id:             id,
		title:          strings.TrimSpace(req.Title),
		sourceLanguage: req.SourceLanguage,
		passwordHash:   hash,
		broadcasterKey: uuid.New().String(),
	}, broadcaster, r.processor, r.opts)
	r.sessions[id] = s

	observability.RecordSessionStart()
	r.logger.Info().
		Str("session_id", id).
		Str("source_language", req.SourceLanguage).
		Bool("password_protected", hash != nil).
		Int("sessions", len(r.sessions)).
		Msg("Session registered")

	return s, nil
}

func (r *Registry) newCodeLocked() (string, error) {
	for attempt := 0; attempt < 16; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		if _, taken := r.sessions[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to allocate a unique session code")
}

func randomCode() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate session code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// Get looks a session up by code, ignoring case. Ended sessions are returned until reaped.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Counts returns live and total registered sessions
func (r *Registry) Counts() (live, total int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.liveLocked(), len(r.sessions)
}

func (r *Registry) liveLocked() int {
	live := 0
	for _, s := range r.sessions {
		if !s.ended() {
			live++
		}
	}
	return live
}

// Accepting reports whether new sessions can be created
func (r *Registry) Accepting() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.closed
}

// List returns a snapshot of every registered session ordered by creation time
func (r *Registry) List(ctx context.Context) []*Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]*Info, 0, len(sessions))
	for _, s := range sessions {
		info, err := s.Info(ctx)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Reap removes sessions that ended more than the retention period before now
func (r *Registry) Reap(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	reaped := 0
	for id, s := range r.sessions {
		final := s.final.Load()
		if final == nil || final.EndedAt == nil {
			continue
		}
		if now.Sub(*final.EndedAt) >= r.opts.EndedRetention {
			delete(r.sessions, id)
			reaped++
		}
	}
	if reaped > 0 {
		r.logger.Debug().Int("reaped", reaped).Int("sessions", len(r.sessions)).Msg("Reaped ended sessions")
	}
	return reaped
}

// Run reaps ended sessions until ctx is cancelled
func (r *Registry) Run(ctx context.Context) {
	interval := r.opts.EndedRetention / 2
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Reap(now)
		}
	}
}

// Shutdown stops accepting sessions and ends every live one
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.terminate(ctx, ReasonShutdown); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.logger.Info().Int("sessions", len(sessions)).Msg("Registry shut down")
	return firstErr
}

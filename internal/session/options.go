package session

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lexiqai/translation-gateway/internal/config"
)

// Options tune session behaviour
type Options struct {
	PipelineDepth    int           // chunks processed concurrently per session
	PipelineQueue    int           // accepted chunks waiting for a free slot
	ReorderTimeout   time.Duration // max wait for a lower sequence before it is skipped
	BroadcasterGrace time.Duration
	IdleTimeout      time.Duration // 0 disables it
	EndedRetention   time.Duration
	MaxSessions      int
	MaxSubscribers   int
	MaxChunkBytes    int
	BcryptCost       int
}

// DefaultOptions returns the defaults used by the server configuration
func DefaultOptions() Options {
	return Options{
		PipelineDepth:    3,
		PipelineQueue:    2,
		ReorderTimeout:   4 * time.Second,
		BroadcasterGrace: 60 * time.Second,
		IdleTimeout:      30 * time.Minute,
		EndedRetention:   10 * time.Minute,
		MaxSessions:      100,
		MaxSubscribers:   500,
		MaxChunkBytes:    2 << 20,
		BcryptCost:       bcrypt.DefaultCost,
	}
}

// OptionsFromConfig maps service configuration onto session options
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.PipelineDepth = cfg.PipelineDepth
	opts.PipelineQueue = cfg.PipelineQueue
	opts.ReorderTimeout = cfg.ReorderTimeout()
	opts.BroadcasterGrace = cfg.BroadcasterGrace()
	opts.IdleTimeout = cfg.SessionIdle()
	opts.EndedRetention = cfg.EndedRetention()
	opts.MaxSessions = cfg.MaxSessions
	opts.MaxSubscribers = cfg.MaxSubscribers
	opts.MaxChunkBytes = cfg.MaxChunkBytes
	return opts
}

// tickInterval is how often the actor re-checks the reorder buffer and idle timeout
func (o Options) tickInterval() time.Duration {
	d := o.ReorderTimeout / 4
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	if d > 250*time.Millisecond {
		d = 250 * time.Millisecond
	}
	return d
}

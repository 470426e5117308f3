package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rg/reactor/internal/messaging"
)

// RateLimiter hands each chat a token bucket holding limit commands that
// refills completely over window.
type RateLimiter struct {
	limiters map[int64]*chatLimiter
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

type chatLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RateLimiter{
		limiters: make(map[int64]*chatLimiter),
		limit:    limit,
		window:   window,
	}
}

func (rl *RateLimiter) Allow(chatID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cl, exists := rl.limiters[chatID]
	if !exists {
		every := rl.window / time.Duration(rl.limit)
		cl = &chatLimiter{limiter: rate.NewLimiter(rate.Every(every), rl.limit)}
		rl.limiters[chatID] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// Cleanup forgets chats idle for more than two windows. Their buckets
// would be full again anyway.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window * 2)
	for chatID, cl := range rl.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.limiters, chatID)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

type Middleware struct {
	rateLimiter *RateLimiter
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMiddleware returns middleware limiting each chat to rateLimit commands
// per window. A non-positive rateLimit disables limiting.
func NewMiddleware(rateLimit int, window time.Duration) *Middleware {
	m := &Middleware{stop: make(chan struct{})}
	if rateLimit > 0 && window > 0 {
		m.rateLimiter = NewRateLimiter(rateLimit, window)
	}
	return m
}

// RateLimit drops user messages over the chat's budget. Channel posts are
// never limited so monitored channels always get their reactions.
func (m *Middleware) RateLimit(handler messaging.MessageHandler) messaging.MessageHandler {
	if m.rateLimiter == nil {
		return handler
	}
	return func(ctx context.Context, msg *messaging.IncomingMessage) error {
		if !msg.IsChannelPost && !m.rateLimiter.Allow(msg.ChatID) {
			slog.Warn("Rate limit exceeded", "chat_id", msg.ChatID, "user_id", msg.From.ID)
			return nil
		}
		return handler(ctx, msg)
	}
}

func (m *Middleware) Logger(handler messaging.MessageHandler) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.IncomingMessage) error {
		start := time.Now()
		err := handler(ctx, msg)
		duration := time.Since(start)

		if err != nil {
			slog.Error("Message handling failed", "chat_id", msg.ChatID, "message_id", msg.MessageID, "duration", duration, "error", err)
		} else {
			slog.Debug("Message handled", "chat_id", msg.ChatID, "message_id", msg.MessageID, "duration", duration)
		}

		return err
	}
}

func (m *Middleware) StartCleanupWorker(interval time.Duration) {
	if m.rateLimiter == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.rateLimiter.Cleanup()
			}
		}
	}()
}

func (m *Middleware) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
}

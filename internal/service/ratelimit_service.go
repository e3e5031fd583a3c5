package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"signalhub/invitehub/internal/repository"
)

const rateLimitKeyPrefix = "ratelimit:invite:"

// RateLimitStatus is a read-only view of one counter.
type RateLimitStatus struct {
	Key       string     `json:"key"`
	Count     int64      `json:"count"`
	Limit     int        `json:"limit"`
	Remaining int64      `json:"remaining"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
}

type RateLimitRule struct {
	Max    int
	Window time.Duration
}

type RateLimiter interface {
	// CheckRateLimit counts one action for subjectKey and reports whether it
	// is still within maxCount for the current window.
	CheckRateLimit(ctx context.Context, subjectKey string, maxCount int, window time.Duration) bool
	GetRateLimitStatus(ctx context.Context, subjectKey string) (*RateLimitStatus, error)
}

type rateLimiter struct {
	store    repository.StateStore
	limits   map[string]int
	failOpen bool
	logger   *zap.Logger
	now      func() time.Time
}

// NewRateLimiter builds a sliding-window counter limiter over store. limits
// maps a subject kind ("user", "channel") to its max, used by status reads.
func NewRateLimiter(store repository.StateStore, limits map[string]int, failOpen bool, logger *zap.Logger) RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &rateLimiter{
		store:    store,
		limits:   limits,
		failOpen: failOpen,
		logger:   logger,
		now:      time.Now,
	}
}

// UserKey and ChannelKey build the two subject keys checked per invitation.
func UserKey(userID string) string       { return SubjectUser + ":" + userID }
func ChannelKey(channelID string) string { return SubjectChannel + ":" + channelID }

func (l *rateLimiter) CheckRateLimit(ctx context.Context, subjectKey string, maxCount int, window time.Duration) bool {
	if maxCount <= 0 || window <= 0 {
		return true
	}

	n, err := l.store.IncrWithExpiry(ctx, rateLimitKeyPrefix+subjectKey, window)
	if err != nil {
		if l.failOpen {
			l.logger.Warn("rate limiter store unavailable, allowing action",
				zap.String("subject", subjectKey),
				zap.Error(err),
			)
			return true
		}
		l.logger.Error("rate limiter store unavailable, denying action",
			zap.String("subject", subjectKey),
			zap.Error(err),
		)
		return false
	}
	return n <= int64(maxCount)
}

func (l *rateLimiter) GetRateLimitStatus(ctx context.Context, subjectKey string) (*RateLimitStatus, error) {
	key := rateLimitKeyPrefix + subjectKey
	status := &RateLimitStatus{Key: subjectKey, Limit: l.limitFor(subjectKey)}

	raw, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read rate limit counter: %w", err)
	}
	if raw != nil {
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse rate limit counter %q: %w", raw, err)
		}
		status.Count = n
	}

	if status.Count > 0 {
		ttl, err := l.store.TTL(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read rate limit ttl: %w", err)
		}
		if ttl > 0 {
			reset := l.now().Add(ttl)
			status.ResetAt = &reset
		}
	}

	status.Remaining = max(int64(status.Limit)-status.Count, 0)
	return status, nil
}

func (l *rateLimiter) limitFor(subjectKey string) int {
	kind, _, _ := strings.Cut(subjectKey, ":")
	return l.limits[kind]
}

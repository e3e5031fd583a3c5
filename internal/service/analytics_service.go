package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signalhub/invitehub/internal/model"
	"signalhub/invitehub/internal/repository"
)

const (
	historyKeyPrefix = "invite:history:"
	counterKeyPrefix = "analytics:" + model.EventInvitation + ":"
	counterTTL       = 31 * 24 * time.Hour
)

// EventTracker records invitation events without blocking the caller.
type EventTracker interface {
	TrackEvent(name string, event model.InvitationEvent)
}

type AnalyticsService interface {
	EventTracker
	// RecentHistory returns up to limit events for channelID, newest first.
	RecentHistory(ctx context.Context, channelID string, limit int) []model.InvitationEvent
	// DailyCounts returns outcome totals for the UTC day containing day.
	DailyCounts(ctx context.Context, day time.Time) map[model.InvitationStatus]int64
	// Run processes queued events until ctx is cancelled or Close is called,
	// then drains what is left.
	Run(ctx context.Context) error
	// Close stops accepting new events.
	Close()
	Dropped() int64
}

type AnalyticsConfig struct {
	QueueSize    int
	HistorySize  int
	HistoryTTL   time.Duration
	StoreTimeout time.Duration
}

func (c AnalyticsConfig) normalized() AnalyticsConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 3 * time.Second
	}
	return c
}

type analyticsService struct {
	cfg     AnalyticsConfig
	store   repository.StateStore
	archive repository.InvitationEventRepository
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.RWMutex
	closed  bool
	queue   chan model.InvitationEvent
	dropped atomic.Int64
}

// NewAnalyticsService builds the audit sink. archive may be nil.
func NewAnalyticsService(
	cfg AnalyticsConfig,
	store repository.StateStore,
	archive repository.InvitationEventRepository,
	logger *zap.Logger,
) AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.normalized()
	return &analyticsService{
		cfg:     cfg,
		store:   store,
		archive: archive,
		logger:  logger,
		now:     time.Now,
		queue:   make(chan model.InvitationEvent, cfg.QueueSize),
	}
}

func (s *analyticsService) TrackEvent(name string, event model.InvitationEvent) {
	event.Name = name
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(event, "sink closed")
		return
	}
	select {
	case s.queue <- event:
	default:
		s.drop(event, "queue full")
	}
}

func (s *analyticsService) drop(event model.InvitationEvent, reason string) {
	s.dropped.Add(1)
	s.logger.Warn("analytics event dropped",
		zap.String("reason", reason),
		zap.String("event", event.Name),
		zap.String("channel_id", event.ChannelID),
		zap.String("user_id", event.UserID),
	)
}

func (s *analyticsService) Dropped() int64 { return s.dropped.Load() }

func (s *analyticsService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}

func (s *analyticsService) Run(ctx context.Context) error {
	for {
		select {
		case event, ok := <-s.queue:
			if !ok {
				return nil
			}
			s.process(event)
		case <-ctx.Done():
			s.Close()
			for event := range s.queue {
				s.process(event)
			}
			return nil
		}
	}
}

func (s *analyticsService) process(event model.InvitationEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("analytics event processing panicked",
				zap.Any("panic", r),
				zap.String("event", event.Name),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()

	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("analytics event encode failed", zap.Error(err))
		return
	}
	if err := s.store.PushCapped(ctx, historyKey(event.ChannelID), data, s.cfg.HistorySize, s.cfg.HistoryTTL); err != nil {
		s.logger.Warn("analytics history write failed",
			zap.String("event", event.Name),
			zap.String("channel_id", event.ChannelID),
			zap.Error(err),
		)
	}

	if event.Name != model.EventInvitation {
		return
	}

	if _, err := s.store.IncrWithExpiry(ctx, counterKey(event.Status, event.OccurredAt), counterTTL); err != nil {
		s.logger.Warn("analytics counter write failed",
			zap.String("status", string(event.Status)),
			zap.Error(err),
		)
	}
	if s.archive != nil {
		if err := s.archive.Create(ctx, &event); err != nil {
			s.logger.Warn("analytics archive write failed",
				zap.String("attempt_id", event.AttemptID.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *analyticsService) RecentHistory(ctx context.Context, channelID string, limit int) []model.InvitationEvent {
	if limit <= 0 || limit > s.cfg.HistorySize {
		limit = s.cfg.HistorySize
	}
	raw, err := s.store.Range(ctx, historyKey(channelID), limit)
	if err != nil {
		s.logger.Warn("analytics history read failed",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
		return []model.InvitationEvent{}
	}

	events := make([]model.InvitationEvent, 0, len(raw))
	for _, item := range raw {
		var event model.InvitationEvent
		if err := json.Unmarshal(item, &event); err != nil {
			s.logger.Warn("analytics history entry undecodable", zap.Error(err))
			continue
		}
		events = append(events, event)
	}
	return events
}

func (s *analyticsService) DailyCounts(ctx context.Context, day time.Time) map[model.InvitationStatus]int64 {
	counts := map[model.InvitationStatus]int64{
		model.InvitationStatusSuccess: 0,
		model.InvitationStatusError:   0,
	}
	for status := range counts {
		raw, err := s.store.Get(ctx, counterKey(status, day))
		if err != nil {
			s.logger.Warn("analytics counter read failed", zap.Error(err))
			continue
		}
		if raw == nil {
			continue
		}
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			s.logger.Warn("analytics counter undecodable", zap.ByteString("value", raw))
			continue
		}
		counts[status] = n
	}
	return counts
}

// historyKey buckets events with malformed channel ids together so caller
// input never shapes store keys.
func historyKey(channelID string) string {
	if !IsValidChannelID(channelID) {
		return historyKeyPrefix + "_invalid"
	}
	return historyKeyPrefix + channelID
}

func counterKey(status model.InvitationStatus, at time.Time) string {
	return fmt.Sprintf("%s%s:%s", counterKeyPrefix, status, at.UTC().Format("2006-01-02"))
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"signalhub/invitehub/internal/model"
	"signalhub/invitehub/internal/repository"
)

type recordingArchive struct {
	mu     sync.Mutex
	events []model.InvitationEvent
	err    error
}

func (a *recordingArchive) Create(_ context.Context, event *model.InvitationEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, *event)
	return nil
}

func (a *recordingArchive) ListByChannel(context.Context, string, int) ([]model.InvitationEvent, error) {
	return nil, nil
}

func (a *recordingArchive) CountByStatus(context.Context, string) (map[model.InvitationStatus]int64, error) {
	return nil, nil
}

// runSink starts the worker and returns a function that stops it and waits for the drain.
func runSink(t *testing.T, sink AnalyticsService) func() {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- sink.Run(context.Background()) }()
	return func() {
		sink.Close()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("sink did not drain")
		}
	}
}

func TestAnalyticsService_HistoryIsBoundedNewestFirst(t *testing.T) {
	store := repository.NewMemoryStateStore()
	sink := NewAnalyticsService(AnalyticsConfig{QueueSize: 16, HistorySize: 3}, store, nil, nil)
	stop := runSink(t, sink)

	for i := 0; i < 5; i++ {
		sink.TrackEvent(model.EventInvitationAttempt, model.InvitationEvent{
			ChannelID: "-1001",
			UserID:    "42",
			Attempts:  i,
			Status:    model.InvitationStatusPending,
		})
	}
	stop()

	history := sink.RecentHistory(context.Background(), "-1001", 10)
	if len(history) != 3 {
		t.Fatalf("history len = %d, want 3", len(history))
	}
	for i, want := range []int{4, 3, 2} {
		if history[i].Attempts != want {
			t.Fatalf("history[%d].Attempts = %d, want %d", i, history[i].Attempts, want)
		}
		if history[i].Name != model.EventInvitationAttempt {
			t.Fatalf("history[%d].Name = %q", i, history[i].Name)
		}
		if history[i].ID == uuid.Nil || history[i].OccurredAt.IsZero() {
			t.Fatalf("history[%d] missing id or timestamp: %+v", i, history[i])
		}
	}

	if other := sink.RecentHistory(context.Background(), "-1002", 10); len(other) != 0 {
		t.Fatalf("unrelated channel history len = %d, want 0", len(other))
	}
}

func TestAnalyticsService_OutcomeEventsCountedAndArchived(t *testing.T) {
	store := repository.NewMemoryStateStore()
	archive := &recordingArchive{}
	sink := NewAnalyticsService(AnalyticsConfig{QueueSize: 16}, store, archive, nil)
	stop := runSink(t, sink)

	day := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	attemptID := uuid.New()
	sink.TrackEvent(model.EventInvitationAttempt, model.InvitationEvent{AttemptID: attemptID, ChannelID: "-1001", UserID: "1", OccurredAt: day})
	sink.TrackEvent(model.EventInvitation, model.InvitationEvent{AttemptID: attemptID, ChannelID: "-1001", UserID: "1", Status: model.InvitationStatusSuccess, OccurredAt: day})
	sink.TrackEvent(model.EventInvitation, model.InvitationEvent{ChannelID: "-1001", UserID: "2", Status: model.InvitationStatusError, OccurredAt: day})
	sink.TrackEvent(model.EventInvitation, model.InvitationEvent{ChannelID: "-1001", UserID: "3", Status: model.InvitationStatusSuccess, OccurredAt: day})
	stop()

	counts := sink.DailyCounts(context.Background(), day)
	if counts[model.InvitationStatusSuccess] != 2 || counts[model.InvitationStatusError] != 1 {
		t.Fatalf("daily counts = %v", counts)
	}
	if len(archive.events) != 3 {
		t.Fatalf("archived = %d, want 3 outcome events", len(archive.events))
	}
	if archive.events[0].AttemptID != attemptID {
		t.Fatalf("archived attempt id = %s, want %s", archive.events[0].AttemptID, attemptID)
	}
}

func TestAnalyticsService_ToleratesStoreOutage(t *testing.T) {
	archive := &recordingArchive{err: errors.New("archive down")}
	sink := NewAnalyticsService(AnalyticsConfig{QueueSize: 4}, brokenStore{}, archive, nil)
	stop := runSink(t, sink)

	sink.TrackEvent(model.EventInvitationAttempt, model.InvitationEvent{ChannelID: "-1001"})
	sink.TrackEvent(model.EventInvitation, model.InvitationEvent{ChannelID: "-1001", Status: model.InvitationStatusError})
	stop()

	if history := sink.RecentHistory(context.Background(), "-1001", 10); len(history) != 0 {
		t.Fatalf("history = %v, want empty during outage", history)
	}
	counts := sink.DailyCounts(context.Background(), time.Now())
	if counts[model.InvitationStatusSuccess] != 0 || counts[model.InvitationStatusError] != 0 {
		t.Fatalf("counts = %v, want zeros during outage", counts)
	}
}

func TestAnalyticsService_TrackNeverBlocks(t *testing.T) {
	sink := NewAnalyticsService(AnalyticsConfig{QueueSize: 2}, repository.NewMemoryStateStore(), nil, nil)

	// No worker running: the third event overflows the queue.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			sink.TrackEvent(model.EventInvitationAttempt, model.InvitationEvent{ChannelID: "-1001"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TrackEvent blocked on a full queue")
	}
	if got := sink.Dropped(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}

	sink.Close()
	sink.TrackEvent(model.EventInvitationAttempt, model.InvitationEvent{ChannelID: "-1001"})
	if got := sink.Dropped(); got != 2 {
		t.Fatalf("dropped after close = %d, want 2", got)
	}
}

func TestAnalyticsService_RunDrainsOnCancel(t *testing.T) {
	store := repository.NewMemoryStateStore()
	sink := NewAnalyticsService(AnalyticsConfig{QueueSize: 8}, store, nil, nil)
	for i := 0; i < 3; i++ {
		sink.TrackEvent(model.EventInvitationAttempt, model.InvitationEvent{ChannelID: "-1001"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := len(sink.RecentHistory(context.Background(), "-1001", 10)); got != 3 {
		t.Fatalf("history len = %d, want 3 drained events", got)
	}
}

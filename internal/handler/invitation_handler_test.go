package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"signalhub/invitehub/internal/config"
	"signalhub/invitehub/internal/model"
	"signalhub/invitehub/internal/repository"
	"signalhub/invitehub/internal/service"
	"signalhub/invitehub/internal/telegram"
	jwtpkg "signalhub/invitehub/pkg/jwt"
	"signalhub/invitehub/pkg/response"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubInviter struct {
	result *service.InviteResult
	err    error
	calls  int
	last   service.InviteOptions
}

func (s *stubInviter) InviteUserToChannel(_ context.Context, _, _ string, opts service.InviteOptions) (*service.InviteResult, error) {
	s.calls++
	s.last = opts
	return s.result, s.err
}

type stubAnalytics struct {
	history []model.InvitationEvent
	counts  map[model.InvitationStatus]int64
	day     time.Time
}

func (s *stubAnalytics) TrackEvent(string, model.InvitationEvent) {}
func (s *stubAnalytics) RecentHistory(_ context.Context, _ string, limit int) []model.InvitationEvent {
	if limit < len(s.history) {
		return s.history[:limit]
	}
	return s.history
}
func (s *stubAnalytics) DailyCounts(_ context.Context, day time.Time) map[model.InvitationStatus]int64 {
	s.day = day
	return s.counts
}
func (s *stubAnalytics) Run(context.Context) error { return nil }
func (s *stubAnalytics) Close()                    {}
func (s *stubAnalytics) Dropped() int64            { return 0 }

type stubLimiter struct {
	status *service.RateLimitStatus
	err    error
	key    string
}

func (s *stubLimiter) CheckRateLimit(context.Context, string, int, time.Duration) bool { return true }
func (s *stubLimiter) GetRateLimitStatus(_ context.Context, key string) (*service.RateLimitStatus, error) {
	s.key = key
	return s.status, s.err
}

type stubArchive struct {
	events []model.InvitationEvent
	err    error
}

func (s *stubArchive) Create(context.Context, *model.InvitationEvent) error { return nil }
func (s *stubArchive) ListByChannel(context.Context, string, int) ([]model.InvitationEvent, error) {
	return s.events, s.err
}
func (s *stubArchive) CountByStatus(context.Context, string) (map[model.InvitationStatus]int64, error) {
	return map[model.InvitationStatus]int64{model.InvitationStatusSuccess: int64(len(s.events))}, s.err
}

type testServer struct {
	router    *gin.Engine
	token     string
	inviter   *stubInviter
	analytics *stubAnalytics
	limiter   *stubLimiter
}

func newTestServer(t *testing.T, archive *stubArchive) *testServer {
	t.Helper()
	adminUUID := uuid.New()
	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "test"},
		Admin:  config.AdminConfig{UserIDs: []string{adminUUID.String()}},
	}
	jwtManager, err := jwtpkg.NewManager("test-key", "invitehub", time.Hour)
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	token, err := jwtManager.GenerateAdminToken(adminUUID)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	ts := &testServer{
		token:     token,
		inviter:   &stubInviter{result: &service.InviteResult{Success: true, InviteLink: "https://t.me/+abc", Attempts: 1}},
		analytics: &stubAnalytics{},
		limiter:   &stubLimiter{},
	}
	var repo repository.InvitationEventRepository
	if archive != nil {
		repo = archive
	}
	h := NewInvitationHandler(ts.inviter, ts.analytics, ts.limiter, repo, nil)
	ts.router = SetupRouter(cfg, zap.NewNop(), jwtManager, h)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, response.APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var resp response.APIResponse
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, resp
}

func TestInvite_Success(t *testing.T) {
	ts := newTestServer(t, nil)

	w, resp := ts.do(t, http.MethodPost, "/api/v1/admin/invitations", InviteRequest{
		ChannelID:   "-1001",
		UserID:      "42",
		ChannelType: "vip",
		ExpireHours: 6,
	})
	if w.Code != http.StatusOK || resp.Code != 0 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ts.inviter.last.ChannelType != "vip" || ts.inviter.last.ExpireHours != 6 {
		t.Fatalf("options = %+v", ts.inviter.last)
	}
	data, _ := json.Marshal(resp.Data)
	var result service.InviteResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.InviteLink != "https://t.me/+abc" {
		t.Fatalf("invite link = %q", result.InviteLink)
	}
}

func TestInvite_ErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		reason service.ErrorCategory
	}{
		{"invalid channel", service.ErrInvalidChannelID, http.StatusBadRequest, service.CategoryInvalidChannelID},
		{"invalid user", service.ErrInvalidUserID, http.StatusBadRequest, service.CategoryInvalidUserID},
		{"rate limited", &service.InviteError{Category: service.CategoryRateLimitExceeded, Subject: service.SubjectUser}, http.StatusTooManyRequests, service.CategoryRateLimitExceeded},
		{"user not found", service.ErrUserNotFound, http.StatusNotFound, service.CategoryUserNotFound},
		{"permission", service.ErrPermissionDenied, http.StatusBadGateway, service.CategoryPermissionDenied},
		{"channel not found", service.ErrChannelNotFound, http.StatusBadGateway, service.CategoryChannelNotFound},
		{"exhausted", &telegram.APIError{Code: 429, Description: "Too Many Requests"}, http.StatusBadGateway, service.CategoryTransientAPIFailure},
		{"generic", errors.New("connection reset"), http.StatusBadGateway, service.CategoryTransientAPIFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.inviter.result = nil
			ts.inviter.err = tc.err

			w, resp := ts.do(t, http.MethodPost, "/api/v1/admin/invitations", InviteRequest{ChannelID: "-1001", UserID: "42"})
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			if resp.Reason != string(tc.reason) {
				t.Fatalf("reason = %q, want %q", resp.Reason, tc.reason)
			}
		})
	}
}

func TestInvite_MalformedBody(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/invitations", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+ts.token)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if ts.inviter.calls != 0 {
		t.Fatal("orchestrator called for malformed body")
	}
}

func TestAdminRoutes_RequireAdminToken(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.token = ""
	if w, _ := ts.do(t, http.MethodGet, "/api/v1/admin/invitations/stats", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", w.Code)
	}

	ts.token = "garbage"
	if w, _ := ts.do(t, http.MethodGet, "/api/v1/admin/invitations/stats", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", w.Code)
	}

	manager, _ := jwtpkg.NewManager("test-key", "invitehub", time.Hour)
	stranger, _ := manager.GenerateAdminToken(uuid.New())
	ts.token = stranger
	if w, _ := ts.do(t, http.MethodGet, "/api/v1/admin/invitations/stats", nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin: status = %d, want 403", w.Code)
	}
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.analytics.history = []model.InvitationEvent{
		{Name: model.EventInvitation, ChannelID: "-1001", Status: model.InvitationStatusSuccess},
		{Name: model.EventInvitationAttempt, ChannelID: "-1001", Status: model.InvitationStatusPending},
	}

	w, resp := ts.do(t, http.MethodGet, "/api/v1/admin/invitations/history?channel_id=-1001&limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	items, ok := resp.Data.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("data = %#v, want one event", resp.Data)
	}

	for _, path := range []string{
		"/api/v1/admin/invitations/history",
		"/api/v1/admin/invitations/history?channel_id=nope",
		"/api/v1/admin/invitations/history?channel_id=-1001&limit=zero",
	} {
		if w, _ := ts.do(t, http.MethodGet, path, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", path, w.Code)
		}
	}
}

func TestArchive(t *testing.T) {
	disabled := newTestServer(t, nil)
	if w, _ := disabled.do(t, http.MethodGet, "/api/v1/admin/invitations/archive?channel_id=-1001", nil); w.Code != http.StatusNotFound {
		t.Fatalf("disabled archive: status = %d, want 404", w.Code)
	}

	ts := newTestServer(t, &stubArchive{events: []model.InvitationEvent{{ChannelID: "-1001", Status: model.InvitationStatusSuccess}}})
	w, resp := ts.do(t, http.MethodGet, "/api/v1/admin/invitations/archive?channel_id=-1001", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	data, _ := json.Marshal(resp.Data)
	var got archiveResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Events) != 1 || got.Totals[model.InvitationStatusSuccess] != 1 {
		t.Fatalf("archive = %+v", got)
	}

	failing := newTestServer(t, &stubArchive{err: errors.New("db down")})
	if w, _ := failing.do(t, http.MethodGet, "/api/v1/admin/invitations/archive?channel_id=-1001", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("failing archive: status = %d, want 500", w.Code)
	}
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.analytics.counts = map[model.InvitationStatus]int64{model.InvitationStatusSuccess: 3, model.InvitationStatusError: 1}

	w, _ := ts.do(t, http.MethodGet, "/api/v1/admin/invitations/stats?date=2026-03-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := ts.analytics.day.Format(time.DateOnly); got != "2026-03-01" {
		t.Fatalf("day = %s", got)
	}

	if w, _ := ts.do(t, http.MethodGet, "/api/v1/admin/invitations/stats?date=yesterday", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad date: status = %d, want 400", w.Code)
	}
}

func TestRateLimitStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.limiter.status = &service.RateLimitStatus{Key: "user:42", Count: 2, Limit: 5, Remaining: 3}

	w, _ := ts.do(t, http.MethodGet, "/api/v1/admin/ratelimits?subject=user:42", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ts.limiter.key != service.UserKey("42") {
		t.Fatalf("key = %q", ts.limiter.key)
	}

	if w, _ := ts.do(t, http.MethodGet, "/api/v1/admin/ratelimits?subject=channel:-1001", nil); w.Code != http.StatusOK {
		t.Fatalf("channel subject: status = %d", w.Code)
	}
	if ts.limiter.key != service.ChannelKey("-1001") {
		t.Fatalf("key = %q", ts.limiter.key)
	}

	for _, subject := range []string{"", "user", "group:1", "user:abc!", "channel:???"} {
		if w, _ := ts.do(t, http.MethodGet, "/api/v1/admin/ratelimits?subject="+subject, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("subject %q: status = %d, want 400", subject, w.Code)
		}
	}

	ts.limiter.err = errors.New("redis down")
	if w, _ := ts.do(t, http.MethodGet, "/api/v1/admin/ratelimits?subject=user:42", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("store down: status = %d, want 503", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.token = ""
	if w, _ := ts.do(t, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signalhub/invitehub/internal/model"
	"signalhub/invitehub/internal/repository"
	"signalhub/invitehub/internal/service"
	"signalhub/invitehub/pkg/response"
)

type InvitationHandler struct {
	inviter   service.ChannelInviter
	analytics service.AnalyticsService
	limiter   service.RateLimiter
	archive   repository.InvitationEventRepository
	logger    *zap.Logger
}

// NewInvitationHandler wires the admin invitation endpoints. archive may be nil
// when no durable backend is configured.
func NewInvitationHandler(
	inviter service.ChannelInviter,
	analytics service.AnalyticsService,
	limiter service.RateLimiter,
	archive repository.InvitationEventRepository,
	logger *zap.Logger,
) *InvitationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvitationHandler{
		inviter:   inviter,
		analytics: analytics,
		limiter:   limiter,
		archive:   archive,
		logger:    logger,
	}
}

type InviteRequest struct {
	ChannelID         string `json:"channel_id"`
	UserID            string `json:"user_id"`
	ChannelType       string `json:"channel_type"`
	ExpireHours       int    `json:"expire_hours"`
	MemberLimit       int    `json:"member_limit"`
	CreateJoinRequest bool   `json:"create_join_request"`
}

// Invite issues and delivers an invite link. Identifier validation is left to
// the orchestrator so rejected requests still reach the audit trail.
func (h *InvitationHandler) Invite(c *gin.Context) {
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.inviter.InviteUserToChannel(c.Request.Context(), req.ChannelID, req.UserID, service.InviteOptions{
		ChannelType:       req.ChannelType,
		ExpireHours:       req.ExpireHours,
		MemberLimit:       req.MemberLimit,
		CreateJoinRequest: req.CreateJoinRequest,
	})
	if err != nil {
		h.logger.Info("admin invitation rejected",
			zap.String("admin_id", adminID(c)),
			zap.String("channel_id", req.ChannelID),
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
		writeInviteError(c, err)
		return
	}

	response.Success(c, result)
}

// History returns the recent per-channel audit events, newest first.
func (h *InvitationHandler) History(c *gin.Context) {
	channelID := c.Query("channel_id")
	if !service.IsValidChannelID(channelID) {
		response.BadRequest(c, "invalid channel_id")
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		response.BadRequest(c, "invalid limit")
		return
	}

	response.Success(c, h.analytics.RecentHistory(c.Request.Context(), channelID, limit))
}

type archiveResponse struct {
	Events []model.InvitationEvent           `json:"events"`
	Totals map[model.InvitationStatus]int64 `json:"totals"`
}

// Archive reads outcome events from the durable archive.
func (h *InvitationHandler) Archive(c *gin.Context) {
	if h.archive == nil {
		response.NotFound(c, "audit archive is disabled")
		return
	}
	channelID := c.Query("channel_id")
	if !service.IsValidChannelID(channelID) {
		response.BadRequest(c, "invalid channel_id")
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		response.BadRequest(c, "invalid limit")
		return
	}

	events, err := h.archive.ListByChannel(c.Request.Context(), channelID, limit)
	if err != nil {
		h.logger.Error("archive read failed", zap.String("channel_id", channelID), zap.Error(err))
		response.InternalError(c, "failed to read archive")
		return
	}
	totals, err := h.archive.CountByStatus(c.Request.Context(), channelID)
	if err != nil {
		h.logger.Error("archive count failed", zap.String("channel_id", channelID), zap.Error(err))
		response.InternalError(c, "failed to read archive")
		return
	}

	response.Success(c, archiveResponse{Events: events, Totals: totals})
}

type statsResponse struct {
	Date    string                           `json:"date"`
	Counts  map[model.InvitationStatus]int64 `json:"counts"`
	Dropped int64                            `json:"dropped_events"`
}

// Stats returns the daily outcome counters, today (UTC) by default.
func (h *InvitationHandler) Stats(c *gin.Context) {
	day := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			response.BadRequest(c, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	response.Success(c, statsResponse{
		Date:    day.Format(time.DateOnly),
		Counts:  h.analytics.DailyCounts(c.Request.Context(), day),
		Dropped: h.analytics.Dropped(),
	})
}

// RateLimit reports a limiter counter, ?subject=user:<id> or channel:<id>.
func (h *InvitationHandler) RateLimit(c *gin.Context) {
	kind, id, ok := strings.Cut(c.Query("subject"), ":")
	if !ok {
		response.BadRequest(c, "subject must be user:<id> or channel:<id>")
		return
	}

	var key string
	switch kind {
	case service.SubjectUser:
		if !service.IsValidUserID(id) {
			response.BadRequest(c, "invalid user id")
			return
		}
		key = service.UserKey(id)
	case service.SubjectChannel:
		if !service.IsValidChannelID(id) {
			response.BadRequest(c, "invalid channel id")
			return
		}
		key = service.ChannelKey(id)
	default:
		response.BadRequest(c, "subject must be user:<id> or channel:<id>")
		return
	}

	status, err := h.limiter.GetRateLimitStatus(c.Request.Context(), key)
	if err != nil {
		h.logger.Warn("rate limit status unavailable", zap.String("subject", key), zap.Error(err))
		response.ServiceUnavailable(c, "rate limit state unavailable")
		return
	}
	response.Success(c, status)
}

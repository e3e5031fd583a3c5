package service

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"signalhub/invitehub/internal/config"
	"signalhub/invitehub/internal/model"
	"signalhub/invitehub/internal/telegram"
)

const defaultTemplateKey = "default"

var defaultTemplates = map[string]string{
	defaultTemplateKey: "You have been invited to join our signals channel.\n\n" +
		"Tap the link below to join:\n{{.InviteLink}}" +
		"{{if .ExpiresAt}}\n\nThis link expires on {{.ExpiresAt}}.{{end}}",
	"premium": "Welcome to Premium signals!\n\n" +
		"Your personal invite link:\n{{.InviteLink}}" +
		"{{if .ExpiresAt}}\n\nPlease join before {{.ExpiresAt}}.{{end}}",
	"vip": "Welcome to the VIP room!\n\n" +
		"Your private invite link:\n{{.InviteLink}}" +
		"{{if .ExpiresAt}}\n\nThe link is valid until {{.ExpiresAt}}.{{end}}\n\n" +
		"Do not share this link.",
}

// InviteOptions are per-call overrides for link creation and delivery.
type InviteOptions struct {
	ChannelType       string `json:"channel_type,omitempty"`
	ExpireHours       int    `json:"expire_hours,omitempty"`
	MemberLimit       int    `json:"member_limit,omitempty"`
	CreateJoinRequest bool   `json:"create_join_request,omitempty"`
}

type InviteResult struct {
	Success        bool          `json:"success"`
	InviteLink     string        `json:"invite_link"`
	Attempts       int           `json:"attempts"`
	ResponseTime   time.Duration `json:"-"`
	ResponseTimeMs int64         `json:"response_time_ms"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
	UsedFallback   bool          `json:"used_fallback"`
}

// ChannelInviter ensures a user receives a working invite link to a channel.
type ChannelInviter interface {
	InviteUserToChannel(ctx context.Context, channelID, userID string, opts InviteOptions) (*InviteResult, error)
}

// InviteConfig holds the orchestrator settings. MaxRetries bounds the total
// number of attempts per call.
type InviteConfig struct {
	MaxRetries         int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	DefaultExpireHours int
	UserLimit          RateLimitRule
	ChannelLimit       RateLimitRule
	Templates          map[string]string
}

func InviteConfigFrom(c config.InviteConfig) InviteConfig {
	return InviteConfig{
		MaxRetries:         c.MaxRetries,
		BaseDelay:          c.BaseDelay,
		MaxDelay:           c.MaxDelay,
		DefaultExpireHours: c.DefaultExpireHours,
		UserLimit:          RateLimitRule{Max: c.RateLimit.User.Max, Window: c.RateLimit.User.Window},
		ChannelLimit:       RateLimitRule{Max: c.RateLimit.Channel.Max, Window: c.RateLimit.Channel.Window},
		Templates:          c.Templates,
	}
}

type inviteService struct {
	cfg       InviteConfig
	client    telegram.Client
	limiter   RateLimiter
	tracker   EventTracker
	templates map[string]*template.Template
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewInviteService(
	cfg InviteConfig,
	client telegram.Client,
	limiter RateLimiter,
	tracker EventTracker,
	logger *zap.Logger,
) (ChannelInviter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	templates, err := parseTemplates(cfg.Templates)
	if err != nil {
		return nil, err
	}

	return &inviteService{
		cfg:       cfg,
		client:    client,
		limiter:   limiter,
		tracker:   tracker,
		templates: templates,
		logger:    logger,
		tracer:    otel.Tracer("signalhub/invitehub/service"),
		now:       time.Now,
		sleep:     sleepContext,
	}, nil
}

func parseTemplates(overrides map[string]string) (map[string]*template.Template, error) {
	sources := make(map[string]string, len(defaultTemplates)+len(overrides))
	for k, v := range defaultTemplates {
		sources[k] = v
	}
	for k, v := range overrides {
		sources[k] = v
	}

	parsed := make(map[string]*template.Template, len(sources))
	for name, src := range sources {
		tmpl, err := template.New(name).Option("missingkey=zero").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse invite template %q: %w", name, err)
		}
		parsed[name] = tmpl
	}
	return parsed, nil
}

// invitation is the transient record of one top-level call.
type invitation struct {
	id           uuid.UUID
	channelID    string
	userID       string
	channelType  string
	startedAt    time.Time
	attempts     int
	usedFallback bool
}

func (inv *invitation) event(status model.InvitationStatus, elapsed time.Duration, err error) model.InvitationEvent {
	event := model.InvitationEvent{
		AttemptID:      inv.id,
		ChannelID:      clip(inv.channelID, 64),
		UserID:         clip(inv.userID, 64),
		ChannelType:    clip(inv.channelType, 32),
		Status:         status,
		Attempts:       inv.attempts,
		ResponseTimeMs: elapsed.Milliseconds(),
		UsedFallback:   inv.usedFallback,
	}
	if err != nil {
		event.ErrorCode = string(Classify(err))
		event.ErrorMessage = err.Error()
	}
	return event
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func (s *inviteService) InviteUserToChannel(ctx context.Context, channelID, userID string, opts InviteOptions) (*InviteResult, error) {
	ctx, span := s.tracer.Start(ctx, "InviteUserToChannel", trace.WithAttributes(
		attribute.String("invite.channel_id", channelID),
		attribute.String("invite.user_id", userID),
		attribute.String("invite.channel_type", opts.ChannelType),
	))
	defer span.End()

	inv := &invitation{
		id:          uuid.New(),
		channelID:   channelID,
		userID:      userID,
		channelType: opts.ChannelType,
		startedAt:   s.now(),
	}
	s.tracker.TrackEvent(model.EventInvitationAttempt, inv.event(model.InvitationStatusPending, 0, nil))

	result, err := s.invite(ctx, inv, opts)
	elapsed := s.now().Sub(inv.startedAt)

	if err != nil {
		s.tracker.TrackEvent(model.EventInvitation, inv.event(model.InvitationStatusError, elapsed, err))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(Classify(err)))
		s.logger.Warn("channel invitation failed",
			zap.String("attempt_id", inv.id.String()),
			zap.String("channel_id", channelID),
			zap.String("user_id", userID),
			zap.Int("attempts", inv.attempts),
			zap.String("category", string(Classify(err))),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	result.ResponseTime = elapsed
	result.ResponseTimeMs = elapsed.Milliseconds()
	s.tracker.TrackEvent(model.EventInvitation, inv.event(model.InvitationStatusSuccess, elapsed, nil))
	span.SetAttributes(attribute.Int("invite.attempts", result.Attempts))
	s.logger.Info("channel invitation delivered",
		zap.String("attempt_id", inv.id.String()),
		zap.String("channel_id", channelID),
		zap.String("user_id", userID),
		zap.Int("attempts", result.Attempts),
		zap.Bool("used_fallback", result.UsedFallback),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

func (s *inviteService) invite(ctx context.Context, inv *invitation, opts InviteOptions) (*InviteResult, error) {
	if !IsValidChannelID(inv.channelID) {
		return nil, ErrInvalidChannelID
	}
	if !IsValidUserID(inv.userID) {
		return nil, ErrInvalidUserID
	}

	// Both counters are charged on every call.
	userOK := s.limiter.CheckRateLimit(ctx, UserKey(inv.userID), s.cfg.UserLimit.Max, s.cfg.UserLimit.Window)
	channelOK := s.limiter.CheckRateLimit(ctx, ChannelKey(inv.channelID), s.cfg.ChannelLimit.Max, s.cfg.ChannelLimit.Window)
	if !channelOK {
		return nil, newRateLimitError(SubjectChannel)
	}
	if !userOK {
		return nil, newRateLimitError(SubjectUser)
	}

	linkOpts := s.linkOptions(inv, opts)

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		inv.attempts = attempt
		trace.SpanFromContext(ctx).AddEvent("attempt", trace.WithAttributes(attribute.Int("invite.attempt", attempt)))

		link, category, err := s.attempt(ctx, inv, linkOpts)
		if err == nil {
			return &InviteResult{
				Success:      true,
				InviteLink:   link.URL,
				Attempts:     attempt,
				ExpiresAt:    link.ExpiresAt,
				UsedFallback: inv.usedFallback,
			}, nil
		}

		lastErr = err
		if !IsRetryable(category) {
			return nil, newInviteError(category, err)
		}
		if attempt == s.cfg.MaxRetries {
			break
		}

		delay := s.backoff(attempt)
		s.logger.Info("retrying channel invitation",
			zap.String("attempt_id", inv.id.String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("category", string(category)),
			zap.Error(err),
		)
		if err := s.sleep(ctx, delay); err != nil {
			break
		}
	}
	return nil, lastErr
}

// attempt creates a link and delivers it, returning the failure category on error.
func (s *inviteService) attempt(ctx context.Context, inv *invitation, opts telegram.LinkOptions) (*telegram.InviteLink, ErrorCategory, error) {
	link, err := s.client.CreateScopedInviteLink(ctx, inv.channelID, opts)
	if err != nil {
		category := Classify(err)
		if category != CategoryPermissionDenied {
			return nil, category, err
		}

		s.logger.Info("scoped invite link denied, falling back to basic link",
			zap.String("attempt_id", inv.id.String()),
			zap.String("channel_id", inv.channelID),
			zap.Error(err),
		)
		link, err = s.client.CreateBasicInviteLink(ctx, inv.channelID)
		if err != nil {
			return nil, Classify(err), err
		}
		inv.usedFallback = true
	}

	text, err := s.render(inv.channelType, link)
	if err != nil {
		return nil, CategoryPermanentAPIFailure, err
	}
	if _, err := s.client.SendDirectMessage(ctx, inv.userID, text); err != nil {
		return nil, classifyDelivery(err), err
	}
	return link, "", nil
}

func (s *inviteService) linkOptions(inv *invitation, opts InviteOptions) telegram.LinkOptions {
	hours := opts.ExpireHours
	if hours <= 0 {
		hours = s.cfg.DefaultExpireHours
	}

	name := inv.channelType
	if name == "" {
		name = "invite"
	}
	if len(name) > 16 {
		name = name[:16]
	}

	out := telegram.LinkOptions{
		Name:               name + "-" + inv.id.String()[:8],
		MemberLimit:        telegram.NormalizeMemberLimit(opts.MemberLimit),
		CreatesJoinRequest: opts.CreateJoinRequest,
	}
	if hours > 0 {
		out.ExpireAt = s.now().Add(time.Duration(hours) * time.Hour)
	}
	return out
}

type templateData struct {
	InviteLink  string
	ChannelType string
	ExpiresAt   string
	JoinRequest bool
}

func (s *inviteService) render(channelType string, link *telegram.InviteLink) (string, error) {
	tmpl, ok := s.templates[channelType]
	if !ok {
		tmpl = s.templates[defaultTemplateKey]
	}

	data := templateData{
		InviteLink:  link.URL,
		ChannelType: channelType,
		JoinRequest: link.IsJoinRequest,
	}
	if link.ExpiresAt != nil {
		data.ExpiresAt = link.ExpiresAt.UTC().Format("2006-01-02 15:04 MST")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render invite message: %w", err)
	}
	return buf.String(), nil
}

// backoff returns BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (s *inviteService) backoff(attempt int) time.Duration {
	delay := s.cfg.BaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if s.cfg.MaxDelay > 0 && delay >= s.cfg.MaxDelay {
			return s.cfg.MaxDelay
		}
	}
	if s.cfg.MaxDelay > 0 && delay > s.cfg.MaxDelay {
		return s.cfg.MaxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

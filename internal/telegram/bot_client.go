package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the part of *tgbotapi.BotAPI used by botClient.
type BotAPI interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetInviteLink(config tgbotapi.ChatInviteLinkConfig) (string, error)
}

var _ BotAPI = (*tgbotapi.BotAPI)(nil)

type botClient struct {
	api BotAPI
}

// NewBotAPI authenticates token against the Bot API endpoint.
// Every request is bounded by timeout.
func NewBotAPI(token, endpoint string, timeout time.Duration, debug bool) (*tgbotapi.BotAPI, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, convertError(err)
	}
	bot.Debug = debug
	return bot, nil
}

func NewClient(api BotAPI) Client {
	return &botClient{api: api}
}

func (c *botClient) CreateScopedInviteLink(ctx context.Context, channelID string, opts LinkOptions) (*InviteLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chat, err := chatConfig(channelID)
	if err != nil {
		return nil, err
	}

	req := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:         chat,
		Name:               opts.Name,
		CreatesJoinRequest: opts.CreatesJoinRequest,
	}
	if !opts.ExpireAt.IsZero() {
		req.ExpireDate = int(opts.ExpireAt.Unix())
	}
	// The Bot API rejects member_limit on join-request links.
	if !opts.CreatesJoinRequest {
		req.MemberLimit = NormalizeMemberLimit(opts.MemberLimit)
	}

	resp, err := c.api.Request(req)
	if err != nil {
		return nil, convertError(err)
	}

	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return nil, fmt.Errorf("decode chat invite link: %w", err)
	}
	if link.InviteLink == "" {
		return nil, &APIError{Code: http.StatusBadGateway, Description: "empty invite link in response"}
	}

	out := &InviteLink{
		URL:           link.InviteLink,
		MemberLimit:   link.MemberLimit,
		IsJoinRequest: link.CreatesJoinRequest,
	}
	if link.ExpireDate > 0 {
		exp := time.Unix(int64(link.ExpireDate), 0).UTC()
		out.ExpiresAt = &exp
	}
	return out, nil
}

func (c *botClient) CreateBasicInviteLink(ctx context.Context, channelID string) (*InviteLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chat, err := chatConfig(channelID)
	if err != nil {
		return nil, err
	}

	url, err := c.api.GetInviteLink(tgbotapi.ChatInviteLinkConfig{ChatConfig: chat})
	if err != nil {
		return nil, convertError(err)
	}
	if url == "" {
		return nil, &APIError{Code: http.StatusBadGateway, Description: "empty invite link in response"}
	}
	return &InviteLink{URL: url}, nil
}

func (c *botClient) SendDirectMessage(ctx context.Context, userID string, text string) (*MessageHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var msg tgbotapi.MessageConfig
	if strings.HasPrefix(userID, "@") {
		msg = tgbotapi.NewMessageToChannel(userID, text)
	} else {
		id, err := strconv.ParseInt(userID, 10, 64)
		if err != nil {
			return nil, &APIError{Code: http.StatusBadRequest, Description: "Bad Request: invalid user id " + strconv.Quote(userID)}
		}
		msg = tgbotapi.NewMessage(id, text)
	}
	msg.DisableWebPagePreview = true

	sent, err := c.api.Send(msg)
	if err != nil {
		return nil, convertError(err)
	}

	handle := &MessageHandle{MessageID: sent.MessageID}
	if sent.Chat != nil {
		handle.ChatID = sent.Chat.ID
	}
	return handle, nil
}

func chatConfig(channelID string) (tgbotapi.ChatConfig, error) {
	if strings.HasPrefix(channelID, "@") {
		return tgbotapi.ChatConfig{SuperGroupUsername: channelID}, nil
	}
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return tgbotapi.ChatConfig{}, &APIError{Code: http.StatusBadRequest, Description: "Bad Request: invalid chat id " + strconv.Quote(channelID)}
	}
	return tgbotapi.ChatConfig{ChatID: id}, nil
}

// convertError turns Bot API failures into *APIError and leaves transport errors untouched.
func convertError(err error) error {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) {
		return fromTGError(*ptr)
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return fromTGError(val)
	}
	return err
}

func fromTGError(e tgbotapi.Error) *APIError {
	return &APIError{
		Code:        e.Code,
		Description: e.Message,
		RetryAfter:  time.Duration(e.RetryAfter) * time.Second,
	}
}

package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeBotAPI struct {
	requests   []tgbotapi.Chattable
	sent       []tgbotapi.Chattable
	exported   []tgbotapi.ChatInviteLinkConfig
	requestErr error
	sendErr    error
	result     tgbotapi.ChatInviteLink
	exportURL  string
}

func (f *fakeBotAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	raw, _ := json.Marshal(f.result)
	return &tgbotapi.APIResponse{Ok: true, Result: raw}, nil
}

func (f *fakeBotAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	return tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: 987654321}}, nil
}

func (f *fakeBotAPI) GetInviteLink(config tgbotapi.ChatInviteLinkConfig) (string, error) {
	f.exported = append(f.exported, config)
	return f.exportURL, nil
}

func TestCreateScopedInviteLink_BuildsRequest(t *testing.T) {
	expire := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeBotAPI{result: tgbotapi.ChatInviteLink{
		InviteLink:  "https://t.me/+abc",
		ExpireDate:  int(expire.Unix()),
		MemberLimit: 1,
	}}
	client := NewClient(api)

	link, err := client.CreateScopedInviteLink(context.Background(), "-100123456789", LinkOptions{
		Name:        "inv-1",
		ExpireAt:    expire,
		MemberLimit: 1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if link.URL != "https://t.me/+abc" {
		t.Fatalf("url = %q", link.URL)
	}
	if link.ExpiresAt == nil || !link.ExpiresAt.Equal(expire) {
		t.Fatalf("expires at = %v, want %v", link.ExpiresAt, expire)
	}

	if len(api.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(api.requests))
	}
	req, ok := api.requests[0].(tgbotapi.CreateChatInviteLinkConfig)
	if !ok {
		t.Fatalf("request type = %T", api.requests[0])
	}
	if req.ChatID != -100123456789 {
		t.Fatalf("chat id = %d", req.ChatID)
	}
	if req.ExpireDate != int(expire.Unix()) || req.MemberLimit != 1 || req.Name != "inv-1" {
		t.Fatalf("request = %+v", req)
	}
}

func TestCreateScopedInviteLink_JoinRequestDropsMemberLimit(t *testing.T) {
	api := &fakeBotAPI{result: tgbotapi.ChatInviteLink{InviteLink: "https://t.me/+req", CreatesJoinRequest: true}}
	client := NewClient(api)

	link, err := client.CreateScopedInviteLink(context.Background(), "@signals_vip", LinkOptions{
		MemberLimit:        5,
		CreatesJoinRequest: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !link.IsJoinRequest {
		t.Fatal("link should be a join-request link")
	}
	req := api.requests[0].(tgbotapi.CreateChatInviteLinkConfig)
	if req.MemberLimit != 0 {
		t.Fatalf("member limit = %d, want 0", req.MemberLimit)
	}
	if req.SuperGroupUsername != "@signals_vip" {
		t.Fatalf("username = %q", req.SuperGroupUsername)
	}
}

func TestCreateScopedInviteLink_ConvertsAPIError(t *testing.T) {
	api := &fakeBotAPI{requestErr: &tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests: retry after 5",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 5},
	}}
	client := NewClient(api)

	_, err := client.CreateScopedInviteLink(context.Background(), "-1001", LinkOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T %v, want *APIError", err, err)
	}
	if apiErr.Code != 429 || apiErr.RetryAfter != 5*time.Second {
		t.Fatalf("api err = %+v", apiErr)
	}
}

func TestCreateScopedInviteLink_TransportErrorPassesThrough(t *testing.T) {
	transport := errors.New("dial tcp: i/o timeout")
	client := NewClient(&fakeBotAPI{requestErr: transport})

	_, err := client.CreateScopedInviteLink(context.Background(), "-1001", LinkOptions{})
	if !errors.Is(err, transport) {
		t.Fatalf("err = %v, want transport error", err)
	}
}

func TestCreateBasicInviteLink(t *testing.T) {
	api := &fakeBotAPI{exportURL: "https://t.me/joinchat/basic"}
	client := NewClient(api)

	link, err := client.CreateBasicInviteLink(context.Background(), "-1001")
	if err != nil {
		t.Fatalf("basic: %v", err)
	}
	if link.URL != "https://t.me/joinchat/basic" || link.ExpiresAt != nil {
		t.Fatalf("link = %+v", link)
	}
	if len(api.exported) != 1 || api.exported[0].ChatID != -1001 {
		t.Fatalf("exported = %+v", api.exported)
	}
}

func TestSendDirectMessage(t *testing.T) {
	api := &fakeBotAPI{}
	client := NewClient(api)

	handle, err := client.SendDirectMessage(context.Background(), "987654321", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if handle.MessageID != 77 || handle.ChatID != 987654321 {
		t.Fatalf("handle = %+v", handle)
	}
	msg := api.sent[0].(tgbotapi.MessageConfig)
	if msg.ChatID != 987654321 || msg.Text != "hello" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestSendDirectMessage_RejectsMalformedID(t *testing.T) {
	api := &fakeBotAPI{}
	_, err := NewClient(api).SendDirectMessage(context.Background(), "not-a-user", "hello")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 400 {
		t.Fatalf("err = %v, want 400 APIError", err)
	}
	if len(api.sent) != 0 {
		t.Fatal("nothing should be sent for a malformed id")
	}
}

func TestCalls_RespectCancelledContext(t *testing.T) {
	api := &fakeBotAPI{}
	client := NewClient(api)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.SendDirectMessage(ctx, "1", "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(api.sent) != 0 {
		t.Fatal("no request should be made with a cancelled context")
	}
}

func TestNormalizeMemberLimit(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{-3, 0},
		{0, 0},
		{1, 1},
		{500, 500},
		{MaxMemberLimit + 1, MaxMemberLimit},
	}
	for _, tc := range cases {
		if got := NormalizeMemberLimit(tc.in); got != tc.want {
			t.Errorf("NormalizeMemberLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

package telegram_api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"energybot/internal/constants"
)

// Requester performs raw Bot API calls.
type Requester interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// ChannelMembership checks channel subscription through getChatMember.
type ChannelMembership struct {
	api       Requester
	channelID int64
}

func NewChannelMembership(api Requester, channelID int64) *ChannelMembership {
	return &ChannelMembership{api: api, channelID: channelID}
}

func (m *ChannelMembership) IsMember(ctx context.Context, telegramID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	resp, err := m.api.MakeRequest("getChatMember", tgbotapi.Params{
		"chat_id": strconv.FormatInt(m.channelID, 10),
		"user_id": strconv.FormatInt(telegramID, 10),
	})
	if err != nil {
		return false, fmt.Errorf("getChatMember %d: %w", telegramID, err)
	}
	var member struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Result, &member); err != nil {
		return false, fmt.Errorf("decode chat member: %w", err)
	}
	return constants.ChannelMemberStatuses[member.Status], nil
}

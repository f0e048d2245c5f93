package bot

import (
	api "github.com/OvyFlash/telegram-bot-api"
)

// API is the subset of *api.BotAPI the handlers touch. Kept narrow so tests
// can run against a fake transport.
type API interface {
	Request(c api.Chattable) (*api.APIResponse, error)
	Send(c api.Chattable) (api.Message, error)
	GetChatMember(config api.GetChatMemberConfig) (api.ChatMember, error)
	GetChatAdministrators(config api.ChatAdministratorsConfig) ([]api.ChatMember, error)
}

// ServiceBot defines bot-specific operations
type ServiceBot interface {
	GetBot() API
}

// ServiceChat exposes the single moderated chat this process owns.
type ServiceChat interface {
	GetChatID() int64
}

// Service defines the core bot service interface
type Service interface {
	ServiceBot
	ServiceChat
}

type service struct {
	bot    API
	chatID int64
}

func NewService(bot API, chatID int64) *service {
	return &service{
		bot:    bot,
		chatID: chatID,
	}
}

func (s *service) GetBot() API {
	return s.bot
}

func (s *service) GetChatID() int64 {
	return s.chatID
}

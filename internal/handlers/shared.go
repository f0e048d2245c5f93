package handlers

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/topmerg/rude-qa-bot/internal/bot"
	"github.com/topmerg/rude-qa-bot/internal/handlers/moderation"
)

// punishUnauthorized applies the fixed read-only penalty to the author of an
// administrator-only command and posts the rebuke as a reply to it.
func punishUnauthorized(ctx context.Context, s bot.Service, restrictor *moderation.Restrictor, msg *api.Message) {
	entry := log.WithFields(log.Fields{
		"context": "punish",
		"user":    bot.GetUN(msg.From),
	})

	notice, err := restrictor.SetPunishment(ctx, msg.From, int64(msg.Date))
	if err != nil {
		entry.WithError(err).Error("cant punish unauthorized user")
		return
	}
	reply := api.NewMessage(s.GetChatID(), notice)
	reply.ParseMode = api.ModeMarkdown
	reply.ReplyParameters.MessageID = msg.MessageID
	if _, err := s.GetBot().Send(reply); err != nil {
		entry.WithError(err).Error("cant send punishment notice")
	}
	entry.Warn("unauthorized command punished")
}

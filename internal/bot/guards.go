package bot

import (
	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"
)

// Guard is a composable predicate over an inbound update. A failing guard
// silently drops the update for the handler that carries it.
type Guard func(u *api.Update, chat *api.Chat, user *api.User) bool

// Allowed short-circuits on the first failing guard.
func Allowed(guards []Guard, u *api.Update, chat *api.Chat, user *api.User) bool {
	for _, guard := range guards {
		if !guard(u, chat, user) {
			return false
		}
	}
	return true
}

// ChatAllowed passes updates from the single moderated chat only.
func ChatAllowed(chatID int64) Guard {
	return func(_ *api.Update, chat *api.Chat, _ *api.User) bool {
		if chat == nil || chat.ID != chatID {
			log.WithField("context", "guard").Trace("update from foreign chat dropped")
			return false
		}
		return true
	}
}

// SupergroupOnly passes updates originating in a supergroup.
func SupergroupOnly() Guard {
	return func(_ *api.Update, chat *api.Chat, _ *api.User) bool {
		return chat != nil && chat.IsSuperGroup()
	}
}

package handlers

import (
	"context"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/topmerg/rude-qa-bot/internal/bot"
	"github.com/topmerg/rude-qa-bot/internal/handlers/moderation"
	"github.com/topmerg/rude-qa-bot/internal/infra"
	"github.com/topmerg/rude-qa-bot/internal/notification"
	"github.com/topmerg/rude-qa-bot/internal/observability"
	"github.com/topmerg/rude-qa-bot/internal/storage"
	"github.com/topmerg/rude-qa-bot/resources"
)

const (
	passCommand = "!pass"

	sweepInterval = 1 * time.Minute

	fallbackAnswerTemplate = `*{{ .first_name }} ответил "{{ .call_data }}".*`
)

// Gatekeeper runs the newbie admission gate: every joiner gets provisionally
// restricted and has to answer an inline-keyboard challenge before the
// timeout, or they are soft-kicked.
type Gatekeeper struct {
	s          bot.Service
	newbies    *storage.NewbieStorage
	notify     *notification.Provider
	restrictor *moderation.Restrictor
	question   storage.Question
	guards     []bot.Guard
	schedule   moderation.Scheduler

	softKickCooldown int64
}

func NewGatekeeper(
	s bot.Service,
	newbies *storage.NewbieStorage,
	notify *notification.Provider,
	restrictor *moderation.Restrictor,
	softKickCooldown int64,
) (*Gatekeeper, error) {
	data, err := resources.FS.ReadFile("greeting.yml")
	if err != nil {
		return nil, errors.WithMessage(err, "cant read greeting question")
	}
	var question storage.Question
	if err := yaml.Unmarshal(data, &question); err != nil {
		return nil, errors.WithMessage(err, "cant unmarshal greeting question")
	}
	if question.Timeout <= 0 || len(question.Options) == 0 {
		return nil, errors.New("greeting question is incomplete")
	}

	return &Gatekeeper{
		s:          s,
		newbies:    newbies,
		notify:     notify,
		restrictor: restrictor,
		question:   question,
		guards: []bot.Guard{
			bot.ChatAllowed(s.GetChatID()),
			bot.SupergroupOnly(),
		},
		schedule:         infra.After,
		softKickCooldown: softKickCooldown,
	}, nil
}

func (g *Gatekeeper) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	switch {
	case u.CallbackQuery != nil:
		return false, g.handleAnswer(ctx, u.CallbackQuery)

	case u.Message != nil && len(u.Message.NewChatMembers) > 0:
		if !bot.Allowed(g.guards, u, chat, user) {
			return true, nil
		}
		return false, g.handleJoin(ctx, u.Message)

	case u.Message != nil && strings.TrimSpace(u.Message.Text) == passCommand:
		if !bot.Allowed(g.guards, u, chat, user) {
			return true, nil
		}
		return false, g.handlePass(ctx, u.Message)
	}
	return true, nil
}

func (g *Gatekeeper) handleJoin(ctx context.Context, msg *api.Message) error {
	entry := g.getLogEntry().WithField("method", "handleJoin")
	b := g.s.GetBot()
	chatID := g.s.GetChatID()

	for i := range msg.NewChatMembers {
		ju := msg.NewChatMembers[i]
		if ju.IsBot {
			continue
		}
		entry.WithField("user", bot.GetUN(&ju)).Info("new member joined the group")

		question := g.question
		deadline := int64(msg.Date) + question.Timeout
		if err := g.newbies.Add(&ju, deadline, question); err != nil {
			// A join while a challenge is already pending resolves the
			// existing entry through the timeout-kick path, the new join
			// is not registered.
			if existing, getErr := g.newbies.Get(ju.ID); getErr == nil {
				g.timeoutKick(ctx, existing)
			}
			observability.RecordChallenge("rejoin_kick")
			continue
		}

		// Twice the challenge timeout, in case the kick itself fires late
		// or fails.
		if err := bot.RestrictChatMember(ctx, b, ju.ID, chatID, int64(msg.Date)+2*question.Timeout, bot.NonePermissions()); err != nil {
			entry.WithError(err).WithField("user", bot.GetUN(&ju)).Error("cant restrict new chat member")
			g.newbies.Remove(&ju)
			continue
		}

		greeting := api.NewMessage(chatID, tool.ExecTemplate(question.Text, map[string]any{
			"mention": bot.Mention(&ju),
		}))
		greeting.ParseMode = api.ModeMarkdown
		greeting.ReplyParameters.MessageID = msg.MessageID
		buttons := make([]api.InlineKeyboardButton, 0, len(question.Options))
		for _, option := range question.Options {
			buttons = append(buttons, api.NewInlineKeyboardButtonData(option.Label, option.Data))
		}
		greeting.ReplyMarkup = api.NewInlineKeyboardMarkup(api.NewInlineKeyboardRow(buttons...))

		sent, err := b.Send(greeting)
		if err != nil {
			entry.WithError(err).Error("cant send challenge message")
			g.newbies.Remove(&ju)
			continue
		}

		if err := g.newbies.Update(&ju, sent.MessageID); err != nil {
			// The entry vanished while the challenge was in flight, take
			// the orphaned prompt down.
			_ = bot.DeleteChatMessage(ctx, b, chatID, sent.MessageID)
			continue
		}
		stored, err := g.newbies.Get(ju.ID)
		if err != nil {
			_ = bot.DeleteChatMessage(ctx, b, chatID, sent.MessageID)
			continue
		}
		observability.RecordChallenge("issued")

		g.schedule(time.Duration(question.Timeout)*time.Second, "timeout_kick", func() {
			g.timeoutKick(context.Background(), stored)
		})
	}
	return nil
}

// timeoutKick resolves an expired challenge. It no-ops when the entry is
// already gone, so a timeout racing an answer loses cleanly.
func (g *Gatekeeper) timeoutKick(ctx context.Context, newbie storage.Newbie) {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method": "timeoutKick",
		"user":   bot.GetUN(newbie.User),
	})
	b := g.s.GetBot()
	chatID := g.s.GetChatID()

	current, err := g.newbies.Get(newbie.User.ID)
	if err != nil {
		entry.Debug("challenge already resolved, skipping")
		return
	}
	g.newbies.Remove(current.User)

	if current.GreetingMessageID != 0 {
		if err := bot.StripInlineKeyboard(ctx, b, chatID, current.GreetingMessageID); err != nil {
			entry.WithError(err).Warn("cant strip challenge keyboard")
		}
	}

	notice := api.NewMessage(chatID, "*"+g.notify.TimeoutKick(current.User.FirstName)+"*")
	notice.ParseMode = api.ModeMarkdown
	sent, sendErr := b.Send(notice)
	if sendErr != nil {
		entry.WithError(sendErr).Error("cant send timeout notice")
	}

	until := time.Now().Unix() + g.softKickCooldown
	if err := bot.KickChatMember(ctx, b, current.User.ID, chatID, until); err != nil {
		entry.WithError(err).Error("cant kick chat member")
		if sendErr == nil {
			_ = bot.DeleteChatMessage(ctx, b, chatID, sent.MessageID)
		}
		return
	}
	entry.Info("timed out newbie kicked")
	observability.RecordChallenge("timeout")
}

// Sweep periodically resolves entries whose deadline passed but whose
// scheduled kick never fired. Runs until the context is canceled.
func (g *Gatekeeper) Sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, newbie := range g.newbies.Expired(time.Now().Unix()) {
				g.timeoutKick(ctx, newbie)
			}
		}
	}
}

func (g *Gatekeeper) handleAnswer(ctx context.Context, cq *api.CallbackQuery) error {
	if cq.From == nil || cq.Message == nil {
		return nil
	}
	entry := g.getLogEntry().WithFields(log.Fields{
		"method": "handleAnswer",
		"user":   bot.GetUN(cq.From),
		"data":   cq.Data,
	})
	b := g.s.GetBot()
	chatID := g.s.GetChatID()

	newbie, err := g.newbies.Get(cq.From.ID)
	if err != nil {
		return nil
	}
	if newbie.GreetingMessageID == 0 || newbie.GreetingMessageID != cq.Message.MessageID {
		entry.Debug("answer to a stale challenge message, ignoring")
		return nil
	}

	if err := bot.StripInlineKeyboard(ctx, b, chatID, newbie.GreetingMessageID); err != nil {
		entry.WithError(err).Warn("cant strip challenge keyboard")
	}

	replyTemplate, ok := newbie.Question.Reply(cq.Data)
	if !ok {
		replyTemplate = fallbackAnswerTemplate
	}
	reply := api.NewMessage(chatID, tool.ExecTemplate(replyTemplate, map[string]any{
		"first_name": api.EscapeText(api.ModeMarkdown, cq.From.FirstName),
		"call_data":  cq.Data,
	}))
	reply.ParseMode = api.ModeMarkdown
	reply.ReplyParameters.MessageID = cq.Message.MessageID
	if _, err := b.Send(reply); err != nil {
		entry.WithError(err).Error("cant send challenge reply")
	}

	// Removal precedes the permission change so a concurrently firing
	// timeout observes "not pending" and no-ops.
	g.newbies.Remove(newbie.User)
	if err := bot.RestrictChatMember(ctx, b, cq.From.ID, chatID, 0, bot.FullPermissions()); err != nil {
		entry.WithError(err).Error("cant lift provisional restriction")
	}
	entry.Info("challenge answered")
	observability.RecordChallenge("answered")
	return nil
}

// handlePass lets an administrator wave a pending newbie through by replying
// to the challenge message.
func (g *Gatekeeper) handlePass(ctx context.Context, msg *api.Message) error {
	entry := g.getLogEntry().WithField("method", "handlePass")
	b := g.s.GetBot()
	chatID := g.s.GetChatID()

	if msg.ForwardOrigin != nil {
		return nil
	}
	isAdmin, err := bot.IsChatAdmin(ctx, b, chatID, msg.From.ID)
	if err != nil {
		entry.WithError(err).Error("cant check admin status")
		return nil
	}
	if !isAdmin {
		punishUnauthorized(ctx, g.s, g.restrictor, msg)
		return nil
	}
	if msg.ReplyToMessage == nil {
		return nil
	}
	newbie, ok := g.newbies.ByGreetingMessage(msg.ReplyToMessage.MessageID)
	if !ok {
		return nil
	}

	if err := bot.DeleteChatMessage(ctx, b, chatID, msg.MessageID); err != nil {
		entry.WithError(err).Warn("cant delete pass command")
	}
	if err := bot.DeleteChatMessage(ctx, b, chatID, newbie.GreetingMessageID); err != nil {
		entry.WithError(err).Warn("cant delete challenge message")
	}
	if err := bot.RestrictChatMember(ctx, b, newbie.User.ID, chatID, 0, bot.FullPermissions()); err != nil {
		entry.WithError(err).Error("cant lift provisional restriction")
	}
	g.newbies.Remove(newbie.User)
	entry.WithField("user", bot.GetUN(newbie.User)).Info("newbie passed through by admin")
	observability.RecordChallenge("passed")
	return nil
}

func (g *Gatekeeper) getLogEntry() *log.Entry {
	return log.WithField("context", "gatekeeper")
}

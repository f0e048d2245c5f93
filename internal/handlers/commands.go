package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/topmerg/rude-qa-bot/internal/bot"
	"github.com/topmerg/rude-qa-bot/internal/duration"
	apperrors "github.com/topmerg/rude-qa-bot/internal/errors"
	"github.com/topmerg/rude-qa-bot/internal/handlers/moderation"
	"github.com/topmerg/rude-qa-bot/internal/infra"
	"github.com/topmerg/rude-qa-bot/internal/observability"
)

const (
	cmdReadOnly  = "!ro"
	cmdTextOnly  = "!to"
	cmdReadWrite = "!rw"
	cmdBan       = "!ban"
)

// Commander routes the bang-prefixed moderation commands and a few service
// slash commands. Moderation commands are administrator-only and must reply
// to a message of the member they target, anyone else invoking one earns the
// unauthorized punishment.
type Commander struct {
	s           bot.Service
	restrictor  *moderation.Restrictor
	restrictCfg duration.Config
	banCfg      duration.Config
	guards      []bot.Guard
	schedule    moderation.Scheduler

	selfDestruct int64
	version      string
}

func NewCommander(
	s bot.Service,
	restrictor *moderation.Restrictor,
	minRestrictSeconds int64,
	selfDestructSeconds int64,
	version string,
) *Commander {
	restrictCfg := duration.RestrictConfig()
	if minRestrictSeconds > 0 {
		restrictCfg.Min = duration.OfSeconds(minRestrictSeconds)
	}
	return &Commander{
		s:           s,
		restrictor:  restrictor,
		restrictCfg: restrictCfg,
		banCfg:      duration.BanConfig(),
		guards: []bot.Guard{
			bot.ChatAllowed(s.GetChatID()),
			bot.SupergroupOnly(),
		},
		schedule:     infra.After,
		selfDestruct: selfDestructSeconds,
		version:      version,
	}
}

func (c *Commander) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	msg := u.Message
	if msg == nil || len(msg.Text) == 0 || msg.From == nil {
		return true, nil
	}
	if !bot.Allowed(c.guards, u, chat, user) {
		return true, nil
	}
	if msg.ForwardOrigin != nil {
		return true, nil
	}

	parts := strings.Fields(msg.Text)
	if len(parts) == 0 {
		return true, nil
	}
	command := strings.SplitN(parts[0], "@", 2)[0]

	switch command {
	case cmdReadOnly, cmdTextOnly, cmdReadWrite, cmdBan:
		return false, c.handleModeration(ctx, msg, command, parts[1:])
	case "/ping", "/id", "/ver":
		return false, c.handleService(ctx, msg, command)
	case "/me":
		return false, c.handleMe(ctx, msg, parts[1:])
	}
	return true, nil
}

func (c *Commander) handleModeration(ctx context.Context, msg *api.Message, command string, args []string) error {
	entry := c.getLogEntry().WithFields(log.Fields{
		"method":  "handleModeration",
		"command": command,
		"user":    bot.GetUN(msg.From),
	})
	b := c.s.GetBot()
	chatID := c.s.GetChatID()

	isAdmin, err := bot.IsChatAdmin(ctx, b, chatID, msg.From.ID)
	if err != nil {
		entry.WithError(err).Error("cant check admin status")
		return nil
	}
	if !isAdmin {
		punishUnauthorized(ctx, c.s, c.restrictor, msg)
		return nil
	}
	observability.RecordCommand(command)

	if msg.ReplyToMessage == nil || msg.ReplyToMessage.From == nil {
		entry.Debug("moderation command without a reply target, ignoring")
		return nil
	}
	target := msg.ReplyToMessage.From
	if target.IsBot {
		entry.Debug("moderation command targets a bot, ignoring")
		return nil
	}
	if targetIsAdmin, err := bot.IsChatAdmin(ctx, b, chatID, target.ID); err == nil && targetIsAdmin {
		entry.WithField("target", bot.GetUN(target)).Info("moderation command targets an administrator, ignoring")
		return nil
	}

	eventTime := int64(msg.Date)
	var notice string
	switch command {
	case cmdReadOnly, cmdTextOnly, cmdBan:
		cfg := c.restrictCfg
		if command == cmdBan {
			cfg = c.banCfg
		}
		dur, err := duration.Resolve(strings.Join(args, " "), cfg)
		if err != nil {
			if errors.Is(err, apperrors.ErrDurationParse) {
				entry.WithError(err).Warn("unparseable duration query")
				if err := bot.DeleteChatMessage(ctx, b, chatID, msg.MessageID); err != nil {
					entry.WithError(err).Warn("cant delete malformed command")
				}
				return nil
			}
			entry.WithError(err).Error("cant resolve duration")
			return nil
		}
		switch command {
		case cmdReadOnly:
			notice, err = c.restrictor.SetReadOnly(ctx, target, eventTime, dur)
		case cmdTextOnly:
			notice, err = c.restrictor.SetTextOnly(ctx, target, eventTime, dur)
		case cmdBan:
			notice, err = c.restrictor.BanKick(ctx, target, eventTime, dur, msg.From)
		}
		if err != nil {
			entry.WithError(err).WithField("target", bot.GetUN(target)).Error("cant apply restriction")
			return nil
		}
	case cmdReadWrite:
		notice, err = c.restrictor.SetReadWrite(ctx, target)
		if err != nil {
			entry.WithError(err).WithField("target", bot.GetUN(target)).Error("cant lift restrictions")
			return nil
		}
	}

	if err := bot.DeleteChatMessage(ctx, b, chatID, msg.MessageID); err != nil {
		entry.WithError(err).Warn("cant delete command message")
	}

	reply := api.NewMessage(chatID, "*"+notice+"*")
	reply.ParseMode = api.ModeMarkdown
	reply.ReplyParameters.MessageID = msg.ReplyToMessage.MessageID
	if _, err := b.Send(reply); err != nil {
		entry.WithError(err).Error("cant send moderation notice")
	}
	return nil
}

// handleService answers the administrator diagnostics commands. Both the
// command and the answer self-destruct shortly after.
func (c *Commander) handleService(ctx context.Context, msg *api.Message, command string) error {
	entry := c.getLogEntry().WithFields(log.Fields{
		"method":  "handleService",
		"command": command,
	})
	b := c.s.GetBot()
	chatID := c.s.GetChatID()

	isAdmin, err := bot.IsChatAdmin(ctx, b, chatID, msg.From.ID)
	if err != nil {
		entry.WithError(err).Error("cant check admin status")
		return nil
	}
	if !isAdmin {
		if err := bot.DeleteChatMessage(ctx, b, chatID, msg.MessageID); err != nil {
			entry.WithError(err).Warn("cant delete command message")
		}
		return nil
	}
	observability.RecordCommand(command)

	var text string
	switch command {
	case "/ping":
		text = "pong"
	case "/id":
		text = fmt.Sprintf("chat id: `%d`", chatID)
	case "/ver":
		text = fmt.Sprintf("version: `%s`", c.version)
	}
	reply := api.NewMessage(chatID, text)
	reply.ParseMode = api.ModeMarkdown
	sent, err := b.Send(reply)
	if err != nil {
		entry.WithError(err).Error("cant send service reply")
		return nil
	}

	commandMessageID := msg.MessageID
	c.schedule(time.Duration(c.selfDestruct)*time.Second, "self_destruct", func() {
		background := context.Background()
		_ = bot.DeleteChatMessage(background, b, chatID, commandMessageID)
		_ = bot.DeleteChatMessage(background, b, chatID, sent.MessageID)
	})
	return nil
}

// handleMe replaces the command with a third-person action line.
func (c *Commander) handleMe(ctx context.Context, msg *api.Message, args []string) error {
	entry := c.getLogEntry().WithField("method", "handleMe")
	b := c.s.GetBot()
	chatID := c.s.GetChatID()

	if len(args) == 0 {
		if err := bot.DeleteChatMessage(ctx, b, chatID, msg.MessageID); err != nil {
			entry.WithError(err).Warn("cant delete command message")
		}
		return nil
	}
	observability.RecordCommand("/me")

	action := fmt.Sprintf("*%s %s*",
		api.EscapeText(api.ModeMarkdown, bot.GetFullName(msg.From)),
		api.EscapeText(api.ModeMarkdown, strings.Join(args, " ")),
	)
	reply := api.NewMessage(chatID, action)
	reply.ParseMode = api.ModeMarkdown
	if msg.ReplyToMessage != nil {
		reply.ReplyParameters.MessageID = msg.ReplyToMessage.MessageID
	}
	if _, err := b.Send(reply); err != nil {
		entry.WithError(err).Error("cant send action line")
		return nil
	}
	if err := bot.DeleteChatMessage(ctx, b, chatID, msg.MessageID); err != nil {
		entry.WithError(err).Warn("cant delete command message")
	}
	return nil
}

func (c *Commander) getLogEntry() *log.Entry {
	return log.WithField("context", "commander")
}

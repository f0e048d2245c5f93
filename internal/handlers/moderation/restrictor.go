package moderation

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/topmerg/rude-qa-bot/internal/bot"
	"github.com/topmerg/rude-qa-bot/internal/duration"
	"github.com/topmerg/rude-qa-bot/internal/infra"
	"github.com/topmerg/rude-qa-bot/internal/notification"
	"github.com/topmerg/rude-qa-bot/internal/observability"
	"github.com/topmerg/rude-qa-bot/internal/storage"
)

// Restriction kinds, also used as metric labels.
const (
	KindReadOnly = "read_only"
	KindTextOnly = "text_only"
)

const (
	memberStatusRestricted = "restricted"

	// Restored partial restrictions get their expiry floored this many
	// seconds into the future, the transport rejects expiries in the past
	// and treats near-now values as permanent.
	restoreSafetyMargin = 60
)

// Scheduler plants a one-shot deferred task. Swapped out in tests.
type Scheduler func(delay time.Duration, id string, fn func())

// Restrictor is the restriction lifecycle engine: it applies read-only /
// text-only / read-write / ban transitions, captures the prior permission
// snapshot and schedules its restoration. There is no locking around the
// schedule: a deferred restore proves it is still wanted by comparing its
// captured RestoreAt against the stored entry before acting.
type Restrictor struct {
	s            bot.Service
	restrictions *storage.RestrictionStorage
	newbies      *storage.NewbieStorage
	notify       *notification.Provider
	punishment   duration.Duration
	schedule     Scheduler
}

func NewRestrictor(
	s bot.Service,
	restrictions *storage.RestrictionStorage,
	newbies *storage.NewbieStorage,
	notify *notification.Provider,
	punishment duration.Duration,
) *Restrictor {
	return &Restrictor{
		s:            s,
		restrictions: restrictions,
		newbies:      newbies,
		notify:       notify,
		punishment:   punishment,
		schedule:     infra.After,
	}
}

// SetReadOnly revokes message sending for the duration and returns the chat
// notice. The prior permission state is captured first so it can be restored.
func (r *Restrictor) SetReadOnly(ctx context.Context, user *api.User, eventTime int64, dur duration.Duration) (string, error) {
	if err := r.captureCurrentRestrictions(ctx, user, eventTime, dur, KindReadOnly); err != nil {
		return "", err
	}
	if err := bot.RestrictChatMember(ctx, r.s.GetBot(), user.ID, r.s.GetChatID(), eventTime+dur.Seconds, bot.NonePermissions()); err != nil {
		return "", err
	}
	observability.RecordRestriction(KindReadOnly)
	return r.notify.ReadOnly(user.FirstName, dur.Text), nil
}

// SetTextOnly keeps message sending but revokes media for the duration.
func (r *Restrictor) SetTextOnly(ctx context.Context, user *api.User, eventTime int64, dur duration.Duration) (string, error) {
	if err := r.captureCurrentRestrictions(ctx, user, eventTime, dur, KindTextOnly); err != nil {
		return "", err
	}
	permissions := bot.NonePermissions()
	permissions.CanSendMessages = true
	if err := bot.RestrictChatMember(ctx, r.s.GetBot(), user.ID, r.s.GetChatID(), eventTime+dur.Seconds, permissions); err != nil {
		return "", err
	}
	observability.RecordRestriction(KindTextOnly)
	return r.notify.TextOnly(user.FirstName, dur.Text), nil
}

// captureCurrentRestrictions reads the member's live permission flags, stores
// the pre-command snapshot (last writer wins) and schedules its restoration
// unless a pre-existing restriction already outlives the new one.
func (r *Restrictor) captureCurrentRestrictions(ctx context.Context, user *api.User, eventTime int64, dur duration.Duration, kind string) error {
	member, err := r.s.GetBot().GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{
				ChatID: r.s.GetChatID(),
			},
			UserID: user.ID,
		},
	})
	if err != nil {
		return errors.WithMessage(err, "cant get chat member")
	}

	// Unknown flags of an unrestricted member default to permissive.
	snapshot := storage.Snapshot{Messages: true, Media: true, Other: true, WebPreview: true}
	if member.Status == memberStatusRestricted {
		snapshot = storage.Snapshot{
			Messages:   member.CanSendMessages,
			Media:      member.CanSendAudios || member.CanSendDocuments || member.CanSendPhotos || member.CanSendVideos,
			Other:      member.CanSendOtherMessages,
			WebPreview: member.CanAddWebPagePreviews,
		}
	}
	if kind == KindTextOnly {
		// Media is being revoked right now, the snapshot keeps it revoked.
		snapshot.Media = false
	}

	restricted := storage.RestrictedUser{
		UserID:      user.ID,
		ChatID:      r.s.GetChatID(),
		UntilDate:   member.UntilDate,
		Restriction: snapshot,
		RestoreAt:   eventTime + dur.Seconds,
	}
	r.restrictions.Add(restricted)

	if member.UntilDate == 0 || member.UntilDate > restricted.RestoreAt {
		r.schedule(time.Duration(dur.Seconds)*time.Second, "restore_restriction", func() {
			r.RestoreRestriction(context.Background(), restricted)
		})
	} else {
		r.getLogEntry().WithFields(log.Fields{
			"user_id":    user.ID,
			"until_date": member.UntilDate,
		}).Debug("existing restriction outlives the new one, not scheduling restore")
	}
	return nil
}

// RestoreRestriction reapplies the captured snapshot once its schedule fires.
// A restore superseded by a newer restriction finds a different RestoreAt in
// storage and drops itself.
func (r *Restrictor) RestoreRestriction(ctx context.Context, scheduled storage.RestrictedUser) {
	entry := r.getLogEntry().WithFields(log.Fields{
		"user_id":    scheduled.UserID,
		"restore_at": scheduled.RestoreAt,
	})

	current, err := r.restrictions.Get(scheduled.UserID)
	if err != nil || current.RestoreAt != scheduled.RestoreAt {
		entry.Debug("scheduled restore is stale, skipping")
		observability.RecordRestore("stale")
		return
	}
	r.restrictions.Remove(scheduled.UserID)

	if scheduled.Restriction.AllPermissive() {
		if err := bot.PromoteChatMember(ctx, r.s.GetBot(), scheduled.UserID, scheduled.ChatID); err != nil {
			entry.WithError(err).Error("cant restore chat member to full rights")
			observability.RecordRestore("failed")
			return
		}
		entry.Info("chat member fully unrestricted")
		observability.RecordRestore("applied")
		return
	}

	until := time.Now().Unix() + restoreSafetyMargin
	if scheduled.UntilDate > until {
		until = scheduled.UntilDate
	}
	if err := bot.RestrictChatMember(ctx, r.s.GetBot(), scheduled.UserID, scheduled.ChatID, until, permissionsFromSnapshot(scheduled.Restriction)); err != nil {
		entry.WithError(err).Error("cant reapply prior restriction")
		observability.RecordRestore("failed")
		return
	}
	entry.Info("prior restriction snapshot reapplied")
	observability.RecordRestore("applied")
}

// SetReadWrite unconditionally grants full permissions. It is an explicit
// administrative override and does not consult the restriction storage.
func (r *Restrictor) SetReadWrite(ctx context.Context, user *api.User) (string, error) {
	if err := bot.PromoteChatMember(ctx, r.s.GetBot(), user.ID, r.s.GetChatID()); err != nil {
		return "", err
	}
	observability.RecordRestriction("read_write")
	return r.notify.ReadWrite(user.FirstName), nil
}

// BanKick removes the member until eventTime+duration, permanently for a
// non-positive duration. A banned user cannot stay mid-admission, so any
// pending challenge entry goes first.
func (r *Restrictor) BanKick(ctx context.Context, user *api.User, eventTime int64, dur duration.Duration, actor *api.User) (string, error) {
	r.newbies.Remove(user)

	var until int64
	if dur.Seconds > 0 {
		until = eventTime + dur.Seconds
	}
	if err := bot.KickChatMember(ctx, r.s.GetBot(), user.ID, r.s.GetChatID(), until); err != nil {
		return "", err
	}
	r.getLogEntry().WithFields(log.Fields{
		"admin":    bot.GetUN(actor),
		"user":     bot.GetUN(user),
		"duration": dur.Text,
	}).Info("chat member banned")
	observability.RecordRestriction("ban")
	return r.notify.BanKick(user.FirstName, dur.Text), nil
}

// SetPunishment applies the fixed short read-only penalty for invoking an
// administrator-only command without being one.
func (r *Restrictor) SetPunishment(ctx context.Context, user *api.User, eventTime int64) (string, error) {
	if err := r.captureCurrentRestrictions(ctx, user, eventTime, r.punishment, KindReadOnly); err != nil {
		return "", err
	}
	if err := bot.RestrictChatMember(ctx, r.s.GetBot(), user.ID, r.s.GetChatID(), eventTime+r.punishment.Seconds, bot.NonePermissions()); err != nil {
		return "", err
	}
	observability.RecordRestriction("punishment")
	return r.notify.UnauthorizedPunishment(user.FirstName, r.punishment.Text), nil
}

func permissionsFromSnapshot(s storage.Snapshot) *api.ChatPermissions {
	return &api.ChatPermissions{
		CanSendMessages:       s.Messages,
		CanSendAudios:         s.Media,
		CanSendDocuments:      s.Media,
		CanSendPhotos:         s.Media,
		CanSendVideos:         s.Media,
		CanSendVideoNotes:     s.Media,
		CanSendVoiceNotes:     s.Media,
		CanSendPolls:          s.Other,
		CanSendOtherMessages:  s.Other,
		CanAddWebPagePreviews: s.WebPreview,
	}
}

func (r *Restrictor) getLogEntry() *log.Entry {
	return log.WithField("context", "restrictor")
}

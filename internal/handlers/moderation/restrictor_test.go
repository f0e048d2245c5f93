package moderation

import (
	"context"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/topmerg/rude-qa-bot/internal/bot"
	"github.com/topmerg/rude-qa-bot/internal/duration"
	"github.com/topmerg/rude-qa-bot/internal/notification"
	"github.com/topmerg/rude-qa-bot/internal/storage"
)

const testChatID int64 = -100500

type fakeAPI struct {
	mu       sync.Mutex
	requests []api.Chattable
	member   api.ChatMember
}

func (f *fakeAPI) Request(c api.Chattable) (*api.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &api.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) Send(c api.Chattable) (api.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return api.Message{MessageID: len(f.requests)}, nil
}

func (f *fakeAPI) GetChatMember(api.GetChatMemberConfig) (api.ChatMember, error) {
	return f.member, nil
}

func (f *fakeAPI) GetChatAdministrators(api.ChatAdministratorsConfig) ([]api.ChatMember, error) {
	return nil, nil
}

func (f *fakeAPI) restricts() []api.RestrictChatMemberConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []api.RestrictChatMemberConfig
	for _, c := range f.requests {
		if r, ok := c.(api.RestrictChatMemberConfig); ok {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeAPI) promotes() []api.PromoteChatMemberConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []api.PromoteChatMemberConfig
	for _, c := range f.requests {
		if r, ok := c.(api.PromoteChatMemberConfig); ok {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeAPI) bans() []api.BanChatMemberConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []api.BanChatMemberConfig
	for _, c := range f.requests {
		if r, ok := c.(api.BanChatMemberConfig); ok {
			out = append(out, r)
		}
	}
	return out
}

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []func()
}

func (s *fakeScheduler) schedule(_ time.Duration, _ string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, fn)
}

func (s *fakeScheduler) fire(t *testing.T, i int) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.tasks) {
		t.Fatalf("no scheduled task %d, have %d", i, len(s.tasks))
	}
	s.tasks[i]()
}

func newTestRestrictor(t *testing.T, f *fakeAPI) (*Restrictor, *storage.RestrictionStorage, *storage.NewbieStorage, *fakeScheduler) {
	t.Helper()
	notify, err := notification.NewProvider()
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	restrictions := storage.NewRestrictionStorage()
	newbies := storage.NewNewbieStorage()
	r := NewRestrictor(bot.NewService(f, testChatID), restrictions, newbies, notify, duration.OfSeconds(300))
	sched := &fakeScheduler{}
	r.schedule = sched.schedule
	return r, restrictions, newbies, sched
}

func TestSetReadOnlyPermissiveSnapshot(t *testing.T) {
	t.Parallel()

	f := &fakeAPI{member: api.ChatMember{Status: "member"}}
	r, restrictions, _, sched := newTestRestrictor(t, f)
	user := &api.User{ID: 42, FirstName: "Вася"}
	eventTime := int64(1000)
	dur := duration.Duration{Seconds: 600, Text: "10 минут"}

	notice, err := r.SetReadOnly(context.Background(), user, eventTime, dur)
	if err != nil {
		t.Fatalf("SetReadOnly: %v", err)
	}
	if notice == "" {
		t.Fatal("expected a non-empty notice")
	}

	stored, err := restrictions.Get(user.ID)
	if err != nil {
		t.Fatalf("snapshot not stored: %v", err)
	}
	if !stored.Restriction.AllPermissive() {
		t.Fatalf("unrestricted member must snapshot as all-permissive, got %+v", stored.Restriction)
	}
	if stored.RestoreAt != eventTime+dur.Seconds {
		t.Fatalf("RestoreAt = %d, want %d", stored.RestoreAt, eventTime+dur.Seconds)
	}

	restricts := f.restricts()
	if len(restricts) != 1 {
		t.Fatalf("expected 1 restrict call, got %d", len(restricts))
	}
	if restricts[0].UntilDate != eventTime+dur.Seconds {
		t.Fatalf("restrict UntilDate = %d, want %d", restricts[0].UntilDate, eventTime+dur.Seconds)
	}
	if restricts[0].Permissions.CanSendMessages {
		t.Fatal("read-only must revoke message sending")
	}

	sched.fire(t, 0)
	if len(f.promotes()) != 1 {
		t.Fatal("restoring an all-permissive snapshot must promote the member")
	}
	if _, err := restrictions.Get(user.ID); err == nil {
		t.Fatal("snapshot must be removed after restore")
	}
}

func TestSecondRestrictionSupersedesFirst(t *testing.T) {
	t.Parallel()

	f := &fakeAPI{member: api.ChatMember{Status: "member"}}
	r, restrictions, _, sched := newTestRestrictor(t, f)
	user := &api.User{ID: 42, FirstName: "Вася"}

	if _, err := r.SetReadOnly(context.Background(), user, 1000, duration.Duration{Seconds: 60, Text: "1 минуту"}); err != nil {
		t.Fatalf("first SetReadOnly: %v", err)
	}
	if _, err := r.SetReadOnly(context.Background(), user, 1010, duration.Duration{Seconds: 600, Text: "10 минут"}); err != nil {
		t.Fatalf("second SetReadOnly: %v", err)
	}

	// The first schedule fires against a replaced snapshot and must no-op.
	sched.fire(t, 0)
	if len(f.promotes()) != 0 {
		t.Fatal("stale restore must not touch the member")
	}
	if _, err := restrictions.Get(user.ID); err != nil {
		t.Fatalf("second snapshot must survive the stale restore: %v", err)
	}

	sched.fire(t, 1)
	if len(f.promotes()) != 1 {
		t.Fatal("current restore must promote the member")
	}
}

func TestPartialSnapshotReapplied(t *testing.T) {
	t.Parallel()

	priorUntil := time.Now().Unix() + 100000
	f := &fakeAPI{member: api.ChatMember{
		Status:          "restricted",
		UntilDate:       priorUntil,
		CanSendMessages: true,
	}}
	r, _, _, sched := newTestRestrictor(t, f)
	user := &api.User{ID: 42, FirstName: "Вася"}

	if _, err := r.SetTextOnly(context.Background(), user, time.Now().Unix(), duration.Duration{Seconds: 600, Text: "10 минут"}); err != nil {
		t.Fatalf("SetTextOnly: %v", err)
	}

	sched.fire(t, 0)
	restricts := f.restricts()
	if len(restricts) != 2 {
		t.Fatalf("expected apply + reapply, got %d restrict calls", len(restricts))
	}
	reapplied := restricts[1]
	if reapplied.UntilDate != priorUntil {
		t.Fatalf("reapplied UntilDate = %d, want prior %d", reapplied.UntilDate, priorUntil)
	}
	if !reapplied.Permissions.CanSendMessages {
		t.Fatal("prior snapshot allowed messages")
	}
	if reapplied.Permissions.CanSendPhotos {
		t.Fatal("prior snapshot revoked media")
	}
}

func TestNoScheduleWhenExistingRestrictionExpiresFirst(t *testing.T) {
	t.Parallel()

	eventTime := int64(1000)
	f := &fakeAPI{member: api.ChatMember{
		Status:    "restricted",
		UntilDate: eventTime + 10,
	}}
	r, restrictions, _, sched := newTestRestrictor(t, f)
	user := &api.User{ID: 42, FirstName: "Вася"}

	if _, err := r.SetReadOnly(context.Background(), user, eventTime, duration.Duration{Seconds: 600, Text: "10 минут"}); err != nil {
		t.Fatalf("SetReadOnly: %v", err)
	}
	if len(sched.tasks) != 0 {
		t.Fatal("restriction expiring before the restore point must not schedule a restore")
	}
	if _, err := restrictions.Get(user.ID); err != nil {
		t.Fatalf("snapshot still gets stored: %v", err)
	}
}

func TestBanKickPermanentAndNewbieCleanup(t *testing.T) {
	t.Parallel()

	f := &fakeAPI{member: api.ChatMember{Status: "member"}}
	r, _, newbies, _ := newTestRestrictor(t, f)
	user := &api.User{ID: 42, FirstName: "Вася"}
	if err := newbies.Add(user, 2000, storage.Question{}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	notice, err := r.BanKick(context.Background(), user, 1000, duration.Duration{Seconds: -1, Text: "навсегда"}, &api.User{ID: 1, FirstName: "Admin"})
	if err != nil {
		t.Fatalf("BanKick: %v", err)
	}
	if notice == "" {
		t.Fatal("expected a non-empty notice")
	}

	bans := f.bans()
	if len(bans) != 1 {
		t.Fatalf("expected 1 ban call, got %d", len(bans))
	}
	if bans[0].UntilDate != 0 {
		t.Fatalf("permanent ban UntilDate = %d, want 0", bans[0].UntilDate)
	}
	if _, err := newbies.Get(user.ID); err == nil {
		t.Fatal("banned user must not stay mid-admission")
	}
}

func TestSetPunishmentAppliesFixedPenalty(t *testing.T) {
	t.Parallel()

	f := &fakeAPI{member: api.ChatMember{Status: "member"}}
	r, _, _, sched := newTestRestrictor(t, f)
	user := &api.User{ID: 42, FirstName: "Вася"}
	eventTime := int64(1000)

	notice, err := r.SetPunishment(context.Background(), user, eventTime)
	if err != nil {
		t.Fatalf("SetPunishment: %v", err)
	}
	if notice == "" {
		t.Fatal("expected a non-empty notice")
	}

	restricts := f.restricts()
	if len(restricts) != 1 {
		t.Fatalf("expected 1 restrict call, got %d", len(restricts))
	}
	if restricts[0].UntilDate != eventTime+300 {
		t.Fatalf("punishment UntilDate = %d, want %d", restricts[0].UntilDate, eventTime+300)
	}
	if len(sched.tasks) != 1 {
		t.Fatal("punishment must schedule its own restore")
	}
}

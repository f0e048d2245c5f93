package storage

import (
	"sync"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	apperrors "github.com/topmerg/rude-qa-bot/internal/errors"
)

func testQuestion() Question {
	return Question{
		Text:    "{{ .mention }}, UI это API?",
		Timeout: 120,
		Options: []QuestionOption{
			{Label: "Да", Data: "да", Reply: "считает, что да"},
			{Label: "Нет", Data: "нет", Reply: "считает, что нет"},
		},
	}
}

func TestNewbieStorageRejectsDuplicateJoin(t *testing.T) {
	t.Parallel()

	s := NewNewbieStorage()
	user := &api.User{ID: 1, FirstName: "Вася"}

	if err := s.Add(user, 100, testQuestion()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Add(user, 200, testQuestion()); !errors.Is(err, apperrors.ErrAlreadyInStorage) {
		t.Fatalf("duplicate add should fail with ErrAlreadyInStorage, got %v", err)
	}

	// The original entry must survive untouched.
	newbie, err := s.Get(user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newbie.Deadline != 100 {
		t.Fatalf("duplicate add overwrote original deadline: %d", newbie.Deadline)
	}
}

func TestNewbieStorageUpdateAttachesGreetingOnce(t *testing.T) {
	t.Parallel()

	s := NewNewbieStorage()
	user := &api.User{ID: 2}

	if err := s.Update(user, 42); !errors.Is(err, apperrors.ErrStorageUpdate) {
		t.Fatalf("update of missing user should fail with ErrStorageUpdate, got %v", err)
	}

	if err := s.Add(user, 100, testQuestion()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Update(user, 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	newbie, err := s.Get(user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newbie.GreetingMessageID != 42 {
		t.Fatalf("greeting message not attached: %d", newbie.GreetingMessageID)
	}
}

func TestNewbieStorageByGreetingMessage(t *testing.T) {
	t.Parallel()

	s := NewNewbieStorage()
	user := &api.User{ID: 3}
	if err := s.Add(user, 100, testQuestion()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Unattached entries must never match message id zero.
	if _, ok := s.ByGreetingMessage(0); ok {
		t.Fatalf("unattached newbie matched zero message id")
	}

	if err := s.Update(user, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	newbie, ok := s.ByGreetingMessage(7)
	if !ok {
		t.Fatalf("attached newbie not found by greeting message")
	}
	if newbie.User.ID != user.ID {
		t.Fatalf("wrong newbie found: %d", newbie.User.ID)
	}
}

func TestNewbieStorageExpiredReturnsCopy(t *testing.T) {
	t.Parallel()

	s := NewNewbieStorage()
	expired := &api.User{ID: 4}
	pending := &api.User{ID: 5}
	if err := s.Add(expired, 50, testQuestion()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Add(pending, 500, testQuestion()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := s.Expired(100)
	if len(got) != 1 || got[0].User.ID != expired.ID {
		t.Fatalf("unexpected expired set: %#v", got)
	}

	// Mutating the storage mid-iteration must not affect the returned slice.
	s.Remove(expired)
	if got[0].User.ID != expired.ID {
		t.Fatalf("expired snapshot aliased live storage")
	}
}

func TestRestrictionStorageLastWriteWins(t *testing.T) {
	t.Parallel()

	s := NewRestrictionStorage()
	if _, err := s.Get(1); !errors.Is(err, apperrors.ErrNotFoundInStorage) {
		t.Fatalf("missing user should fail with ErrNotFoundInStorage, got %v", err)
	}

	s.Add(RestrictedUser{UserID: 1, RestoreAt: 100})
	s.Add(RestrictedUser{UserID: 1, RestoreAt: 200})

	restricted, err := s.Get(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restricted.RestoreAt != 200 {
		t.Fatalf("expected last write to win, got restore_at %d", restricted.RestoreAt)
	}
}

func TestStoragesAreSafeForConcurrentUse(t *testing.T) {
	t.Parallel()

	newbies := NewNewbieStorage()
	restrictions := NewRestrictionStorage()

	const workers = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(offset int64) {
			defer wg.Done()
			for i := int64(0); i < 500; i++ {
				id := offset*500 + i
				user := &api.User{ID: id}
				_ = newbies.Add(user, i, testQuestion())
				_ = newbies.Update(user, int(i))
				_, _ = newbies.Get(id)
				_ = newbies.Expired(i)
				newbies.Remove(user)

				restrictions.Add(RestrictedUser{UserID: id, RestoreAt: i})
				_, _ = restrictions.Get(id)
				restrictions.Remove(id)
			}
		}(int64(w))
	}
	wg.Wait()
}

func TestQuestionReplyLookup(t *testing.T) {
	t.Parallel()

	q := testQuestion()
	if reply, ok := q.Reply("да"); !ok || reply != "считает, что да" {
		t.Fatalf("unexpected reply lookup: %q %v", reply, ok)
	}
	if _, ok := q.Reply("может быть"); ok {
		t.Fatalf("unmapped answer should not resolve")
	}
}

package storage

import (
	"sync"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	apperrors "github.com/topmerg/rude-qa-bot/internal/errors"
)

// QuestionOption is one selectable answer of an admission challenge.
type QuestionOption struct {
	Label string `yaml:"label"`
	Data  string `yaml:"data"`
	Reply string `yaml:"reply"`
}

// Question is the admission challenge content. Immutable once loaded.
type Question struct {
	Text    string           `yaml:"text"`
	Timeout int64            `yaml:"timeout"`
	Options []QuestionOption `yaml:"options"`
}

// Reply returns the reply template mapped to an answer payload.
func (q Question) Reply(data string) (string, bool) {
	for _, option := range q.Options {
		if option.Data == data {
			return option.Reply, true
		}
	}
	return "", false
}

// Newbie is a joiner with an unresolved admission challenge. The greeting
// message id is zero until the challenge message is posted and attached.
type Newbie struct {
	User              *api.User
	Deadline          int64
	Question          Question
	GreetingMessageID int
}

// NewbieStorage tracks at most one pending admission challenge per user.
type NewbieStorage struct {
	mu      sync.RWMutex
	storage map[int64]Newbie
}

func NewNewbieStorage() *NewbieStorage {
	return &NewbieStorage{storage: map[int64]Newbie{}}
}

// Add registers a pending challenge. A second registration for the same user
// is an error, the caller decides what happens to the existing entry.
func (s *NewbieStorage) Add(user *api.User, deadline int64, question Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.getLogEntry().WithField("user_id", user.ID)
	entry.Debug("adding user to newbie list")
	if _, ok := s.storage[user.ID]; ok {
		entry.Warn("user already in newbie list")
		return apperrors.ErrAlreadyInStorage
	}
	s.storage[user.ID] = Newbie{
		User:     user,
		Deadline: deadline,
		Question: question,
	}
	return nil
}

// Update attaches the posted challenge message to an existing entry.
func (s *NewbieStorage) Update(user *api.User, greetingMessageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.getLogEntry().WithFields(log.Fields{
		"user_id":    user.ID,
		"message_id": greetingMessageID,
	})
	entry.Debug("attaching greeting message to newbie")
	newbie, ok := s.storage[user.ID]
	if !ok {
		entry.Warn("cant attach greeting, user not in newbie list")
		return apperrors.ErrStorageUpdate
	}
	newbie.GreetingMessageID = greetingMessageID
	s.storage[user.ID] = newbie
	return nil
}

// Remove drops an entry. Removing a missing user is not an error.
func (s *NewbieStorage) Remove(user *api.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.getLogEntry().WithField("user_id", user.ID)
	entry.Debug("removing user from newbie list")
	if _, ok := s.storage[user.ID]; !ok {
		entry.Warn("user not found in newbie list")
		return
	}
	delete(s.storage, user.ID)
}

func (s *NewbieStorage) Get(userID int64) (Newbie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	newbie, ok := s.storage[userID]
	if !ok {
		s.getLogEntry().WithField("user_id", userID).Debug("user not found in newbie list")
		return Newbie{}, apperrors.ErrNotFoundInStorage
	}
	return newbie, nil
}

// ByGreetingMessage finds the pending newbie whose challenge message matches.
func (s *NewbieStorage) ByGreetingMessage(messageID int) (Newbie, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, newbie := range s.storage {
		if newbie.GreetingMessageID != 0 && newbie.GreetingMessageID == messageID {
			return newbie, true
		}
	}
	return Newbie{}, false
}

// Expired returns a point-in-time copy of the entries past their deadline,
// safe to iterate while handlers keep mutating the storage.
func (s *NewbieStorage) Expired(now int64) []Newbie {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []Newbie
	for _, newbie := range s.storage {
		if newbie.Deadline < now {
			expired = append(expired, newbie)
		}
	}
	return expired
}

func (s *NewbieStorage) getLogEntry() *log.Entry {
	return log.WithField("context", "newbie_storage")
}

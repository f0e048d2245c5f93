package storage

import (
	"sync"

	log "github.com/sirupsen/logrus"

	apperrors "github.com/topmerg/rude-qa-bot/internal/errors"
)

// Snapshot is the four-flag permission state of a member captured right
// before a new restriction is layered on top of it.
type Snapshot struct {
	Messages   bool
	Media      bool
	Other      bool
	WebPreview bool
}

// AllPermissive reports whether restoring this snapshot means a full grant.
func (s Snapshot) AllPermissive() bool {
	return s.Messages && s.Media && s.Other && s.WebPreview
}

// RestrictedUser records one active custom restriction. RestoreAt doubles as
// the identity of the scheduled restore: a deferred restore only applies if
// the stored value still matches the one it captured at scheduling time.
type RestrictedUser struct {
	UserID      int64
	ChatID      int64
	UntilDate   int64
	Restriction Snapshot
	RestoreAt   int64
}

// RestrictionStorage tracks the single active custom restriction per user,
// last writer wins.
type RestrictionStorage struct {
	mu      sync.RWMutex
	storage map[int64]RestrictedUser
}

func NewRestrictionStorage() *RestrictionStorage {
	return &RestrictionStorage{storage: map[int64]RestrictedUser{}}
}

func (s *RestrictionStorage) Add(restricted RestrictedUser) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.getLogEntry().WithFields(log.Fields{
		"user_id":    restricted.UserID,
		"restore_at": restricted.RestoreAt,
	}).Debug("adding user to restricted list")
	s.storage[restricted.UserID] = restricted
}

func (s *RestrictionStorage) Get(userID int64) (RestrictedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	restricted, ok := s.storage[userID]
	if !ok {
		s.getLogEntry().WithField("user_id", userID).Debug("user not found in restricted list")
		return RestrictedUser{}, apperrors.ErrNotFoundInStorage
	}
	return restricted, nil
}

// Remove drops the record of an active restriction, if any.
func (s *RestrictionStorage) Remove(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.storage, userID)
}

func (s *RestrictionStorage) getLogEntry() *log.Entry {
	return log.WithField("context", "restriction_storage")
}

package infra

import (
	"time"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"
)

// After runs fn once after delay on a detached goroutine. Tasks are
// fire-and-forget: no handle is returned and there is no cancellation, a
// superseded task has to detect staleness and no-op when it fires.
func After(delay time.Duration, id string, fn func()) {
	taskID := id + "/" + uuid.New()[:8]
	entry := log.WithFields(log.Fields{
		"task":  taskID,
		"delay": delay.String(),
	})
	entry.Debug("scheduling deferred task")

	time.AfterFunc(delay, func() {
		defer func() {
			if err := recover(); err != nil {
				entry.Errorf("deferred task panics with message: %s, %s", err, identifyPanic())
			}
		}()
		entry.Debug("firing deferred task")
		fn()
	})
}

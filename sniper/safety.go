package sniper

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SafetyManager is a breaker that stops the whole attack on ban signals
// (HTTP 403 or 429). Once tripped it stays tripped.
type SafetyManager struct {
	mu            sync.RWMutex
	triggered     bool
	triggerReason string
	triggeredAt   time.Time

	onTrip func(reason string)
	log    zerolog.Logger
}

// NewSafetyManager creates a breaker. onTrip, if non-nil, runs once when the
// breaker trips.
func NewSafetyManager(log zerolog.Logger, onTrip func(reason string)) *SafetyManager {
	return &SafetyManager{
		onTrip: onTrip,
		log:    log.With().Str("component", "safety").Logger(),
	}
}

// IsBanSignal reports whether status means the server is refusing this client.
func IsBanSignal(status int) bool {
	return status == http.StatusForbidden || status == http.StatusTooManyRequests
}

// Check inspects a response status. It returns true if it is safe to go on.
func (sm *SafetyManager) Check(status int) bool {
	sm.mu.Lock()
	if sm.triggered {
		sm.mu.Unlock()
		return false
	}
	if !IsBanSignal(status) {
		sm.mu.Unlock()
		return true
	}

	reason := fmt.Sprintf("HTTP %d detected", status)
	sm.triggered = true
	sm.triggerReason = reason
	sm.triggeredAt = time.Now()
	onTrip := sm.onTrip
	sm.mu.Unlock()

	sm.log.Error().Str("reason", reason).Msg("SAFETY TRIGGER ACTIVATED")
	if onTrip != nil {
		onTrip(reason)
	}
	return false
}

// IsTriggered reports whether the breaker has tripped.
func (sm *SafetyManager) IsTriggered() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.triggered
}

// Reason returns why the breaker tripped, or "".
func (sm *SafetyManager) Reason() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.triggerReason
}

// TriggeredAt returns when the breaker tripped, zero if it has not.
func (sm *SafetyManager) TriggeredAt() time.Time {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.triggeredAt
}

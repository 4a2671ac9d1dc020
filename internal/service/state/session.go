package state

import (
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
)

// Phase is the position of a Session in the upload flow.
type Phase int

const (
	Idle Phase = iota
	ConfirmingNotice
	SelectingCategory
	AwaitingContent
	AwaitingCode
	Committed
	Cancelled
)

var phaseNames = [...]string{
	Idle:              "idle",
	ConfirmingNotice:  "confirming_notice",
	SelectingCategory: "selecting_category",
	AwaitingContent:   "awaiting_content",
	AwaitingCode:      "awaiting_code",
	Committed:         "committed",
	Cancelled:         "cancelled",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Active reports whether the phase is part of an unfinished flow.
func (p Phase) Active() bool {
	return p == ConfirmingNotice || p == SelectingCategory || p == AwaitingContent || p == AwaitingCode
}

// Session is the scratch state of one identity's upload flow.
type Session struct {
	IdentityID   int64
	Phase        Phase
	Category     core.Category
	Payload      core.Payload
	FileName     string
	Data         []byte
	CodeAttempts int
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// Reset returns the session to Idle and drops the scratch payload.
func (s *Session) Reset() {
	*s = Session{IdentityID: s.IdentityID, Phase: Idle}
}

// Expired reports whether an active session has been idle longer than ttl.
func (s Session) Expired(now time.Time, ttl time.Duration) bool {
	return s.Phase.Active() && ttl > 0 && now.Sub(s.UpdatedAt) >= ttl
}

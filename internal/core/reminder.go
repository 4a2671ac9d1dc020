package core

import (
	"fmt"
	"time"
)

type ReminderStatus string

const (
	ReminderPending      ReminderStatus = "pending"
	ReminderSent         ReminderStatus = "sent"
	ReminderAcknowledged ReminderStatus = "acknowledged"
	ReminderExpired      ReminderStatus = "expired"
)

type Reminder struct {
	ID         int64
	EntryID    int64
	IdentityID int64
	FireAt     time.Time
	Status     ReminderStatus
	Attempts   int
	Subject    string
	TimeSlot   string
	CreatedAt  time.Time
}

// CoverageAssignment is one validated element of a relief list.
// IdentityID is zero when the covering name did not resolve.
type CoverageAssignment struct {
	EntryID      int64  `json:"-"`
	Subject      string `json:"subject"`
	CoveringName string `json:"coveringIdentityName"`
	TimeSlot     string `json:"timeSlot"`
	IdentityID   int64  `json:"-"`
}

func (a CoverageAssignment) Resolved() bool {
	return a.IdentityID != 0
}

// SyncItem is one listing entry of an external source.
type SyncItem struct {
	ID       string
	Name     string
	Folder   string
	Modified time.Time
	Category string
}

// Marker orders items by modification time, then id. Cursors store the
// marker of the last processed item.
func (i SyncItem) Marker() string {
	return fmt.Sprintf("%020d/%s", i.Modified.UnixNano(), i.ID)
}

type SyncCursor struct {
	Source    string
	Marker    string
	UpdatedAt time.Time
}

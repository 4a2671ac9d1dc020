package core

import (
	"context"
	"time"
)

type IdentityRepository interface {
	GetIdentity(ctx context.Context, id int64) (Identity, error)
	ListIdentities(ctx context.Context) ([]Identity, error)
	UpsertIdentity(ctx context.Context, identity Identity) error
	SetRole(ctx context.Context, id int64, role Role) error
	DeleteIdentity(ctx context.Context, id int64) error
	// ReplaceRoster drops every identity below superadmin and registers the
	// given ones in their place. It returns how many were dropped.
	ReplaceRoster(ctx context.Context, identities []Identity) (int64, error)

	GetOverride(ctx context.Context, id int64) (*RoleOverride, error)
	SetOverride(ctx context.Context, o RoleOverride) error
	ClearOverride(ctx context.Context, id int64) error
}

type EntryRepository interface {
	CreateEntry(ctx context.Context, e Entry) (int64, error)
	GetEntry(ctx context.Context, id int64) (Entry, error)
	ListEntriesBetween(ctx context.Context, from, to time.Time) ([]Entry, error)
	ListEntriesByUploader(ctx context.Context, uploader int64, limit int) ([]Entry, error)
	// DeleteOwnEntryToday removes one of uploader's entries created at or
	// after dayStart, returning ErrNotFound otherwise.
	DeleteOwnEntryToday(ctx context.Context, uploader, id int64, dayStart time.Time) error
	DeleteOwnEntriesToday(ctx context.Context, uploader int64, dayStart time.Time) (int64, error)
}

type CodeRepository interface {
	// CurrentCode returns the day's code, storing candidate if none exists.
	CurrentCode(ctx context.Context, day, candidate string) (DailyCode, error)
	// Code returns ErrNotFound when the day has no code yet.
	Code(ctx context.Context, day string) (DailyCode, error)
	ReplaceCode(ctx context.Context, day, code string) (DailyCode, error)
}

type ReminderRepository interface {
	SaveAssignment(ctx context.Context, a CoverageAssignment) error
	// CreateReminder reports false when an identical reminder already exists.
	CreateReminder(ctx context.Context, r Reminder) (bool, error)
	DueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error)
	MarkReminderSent(ctx context.Context, id int64) error
	MarkReminderExpired(ctx context.Context, id int64) error
	RecordReminderFailure(ctx context.Context, id int64, maxAttempts int) (int, error)
	AcknowledgeReminder(ctx context.Context, id, identityID int64) error
	ListRemindersForEntry(ctx context.Context, entryID int64) ([]Reminder, error)
}

type SyncRepository interface {
	GetCursor(ctx context.Context, source string) (SyncCursor, error)
	AdvanceCursor(ctx context.Context, source, marker string) error
	ResetCursor(ctx context.Context, source string) error
	HasOrigin(ctx context.Context, originID string) (bool, error)
	// MergeEntry inserts the origin and the entry atomically and returns
	// ErrDuplicate when the origin already exists.
	MergeEntry(ctx context.Context, e Entry) (int64, error)
}

type MaintenanceRepository interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (PurgeResult, error)
	Stats(ctx context.Context, dayStart time.Time) (Stats, error)
}

package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	AppName          = "ReliefDesk"
	AppUserAgent     = "ReliefDesk/0.1"
	AppRepositoryURL = "https://github.com/sandevgo/reliefdesk"
	AppVersion       = "0.1.0"
)

// Role is an ordered permission level. Higher values include lower ones.
type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleUploader
	RoleUploadAdmin
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleViewer:      "viewer",
	RoleUploader:    "uploader",
	RoleUploadAdmin: "uploadadmin",
	RoleSuperAdmin:  "superadmin",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "none"
}

func (r Role) AtLeast(min Role) bool {
	return r >= min
}

func (r Role) Valid() bool {
	return r >= RoleViewer && r <= RoleSuperAdmin
}

func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for role, name := range roleNames {
		if name == s {
			return role, nil
		}
	}
	return RoleNone, fmt.Errorf("unknown role %q", s)
}

// Identity is a registered participant.
type Identity struct {
	ID          int64
	DisplayName string
	Role        Role
	AddedBy     int64
	AddedAt     time.Time
}

// RoleOverride temporarily replaces an identity's base role.
type RoleOverride struct {
	IdentityID int64
	Role       Role
	ExpiresAt  time.Time
}

func (o RoleOverride) ActiveAt(t time.Time) bool {
	return t.Before(o.ExpiresAt)
}

// Category is one of the configured entry tags.
type Category struct {
	Name     string
	Label    string
	Coverage bool
}

// DailyCode gates interactive submissions for one calendar day.
type DailyCode struct {
	Day         string
	Code        string
	GeneratedAt time.Time
}

// DayKey formats t as the calendar day used for codes and artifact folders.
func DayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// StartOfDay truncates t to local midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type Stats struct {
	Identities       map[Role]int
	EntriesToday     int
	EntriesTotal     int
	CategoryCounts   map[string]int
	PendingReminders int
	SentReminders    int
	ExpiredReminders int
}

type PurgeResult struct {
	Cutoff      time.Time
	Entries     int64
	Reminders   int64
	Assignments int64
	Codes       int64
	Directories int
}

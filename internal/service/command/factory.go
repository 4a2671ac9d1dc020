package command

import (
	"context"
	"time"

	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/internal/service/conversation"
	"github.com/sandevgo/reliefdesk/internal/service/syncer"
)

type Authority interface {
	SetOverride(ctx context.Context, actor int64, role core.Role, ttl time.Duration) (core.RoleOverride, error)
	ClearOverride(ctx context.Context, actor int64) error
}

type Conversation interface {
	Handle(ctx context.Context, id int64, in conversation.Input) (conversation.Reply, error)
}

type Codes interface {
	Current(ctx context.Context) (core.DailyCode, error)
	Rotate(ctx context.Context) (core.DailyCode, error)
}

type Query interface {
	Ask(ctx context.Context, question string) (string, error)
	Summary(ctx context.Context, category string) (string, error)
	Overview(ctx context.Context) (string, error)
}

type Purger interface {
	RunPurge(ctx context.Context) (core.PurgeResult, error)
}

type Syncer interface {
	Sync(ctx context.Context, name string) (syncer.MergeResult, error)
	SyncAll(ctx context.Context) ([]syncer.MergeResult, error)
	Reset(ctx context.Context, name string) error
}

// Deps are the services commands call into. Syncer may be nil when no
// external source is configured.
type Deps struct {
	Config       *config.AppConfig
	Location     *time.Location
	Authority    Authority
	Identities   core.IdentityRepository
	Entries      core.EntryRepository
	Maintenance  core.MaintenanceRepository
	Conversation Conversation
	Codes        Codes
	Query        Query
	Purger       Purger
	Syncer       Syncer
	Roster       Roster
	Now          func() time.Time
}

func NewCommands(d Deps) []core.Command {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	f := NewResponseFormatter()

	return []core.Command{
		NewStartCommand(d.Config, d.Identities, d.Now, f),
		NewAskCommand(d.Query, f),
		NewTodayCommand(d.Query, d.Config.CategoryList(), f),
		NewUploadCommand(d.Conversation),
		NewCancelCommand(d.Conversation),
		NewCodeCommand(d.Codes, f),
		NewMyUploadsCommand(d.Entries, d.Location, d.Now, f),
		NewAddCommand(d.Identities, d.Now, f),
		NewRemoveCommand(d.Config, d.Identities, f),
		NewListCommand(d.Identities, f),
		NewPromoteCommand(d.Config, d.Identities, f),
		NewMassUploadCommand(d.Roster, f),
		NewAddSuperAdminCommand(d.Config, d.Identities, d.Now, f),
		NewRemoveSuperAdminCommand(d.Config, d.Identities, f),
		NewListSuperAdminsCommand(d.Config, d.Identities, f),
		NewStatsCommand(d.Maintenance, d.Location, d.Now, f),
		NewRotateCodeCommand(d.Codes, f),
		NewPurgeCommand(d.Purger, f),
		NewAssumeCommand(d.Authority, d.Config.RoleOverrideTTL, d.Location, f),
		NewSyncCommand(d.Syncer, f),
	}
}

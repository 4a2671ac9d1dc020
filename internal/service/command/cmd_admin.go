package command

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/internal/service/scheduler"
	"github.com/sandevgo/reliefdesk/pkg/conv"
)

type StatsCommand struct {
	maint     core.MaintenanceRepository
	loc       *time.Location
	now       func() time.Time
	formatter *ResponseFormatter
}

func NewStatsCommand(maint core.MaintenanceRepository, loc *time.Location, now func() time.Time, f *ResponseFormatter) *StatsCommand {
	return &StatsCommand{maint: maint, loc: loc, now: now, formatter: f}
}

func (c *StatsCommand) Name() string        { return "stats" }
func (c *StatsCommand) Description() string { return "Usage statistics" }
func (c *StatsCommand) MinRole() core.Role  { return core.RoleSuperAdmin }

func (c *StatsCommand) Execute(ctx context.Context, _ core.Caller, _ []string) (string, error) {
	stats, err := c.maint.Stats(ctx, core.StartOfDay(c.now().In(c.loc)))
	if err != nil {
		return "", fmt.Errorf("load stats: %w", err)
	}

	var total int
	var users []string
	for role := core.RoleSuperAdmin; role >= core.RoleViewer; role-- {
		total += stats.Identities[role]
		users = append(users, fmt.Sprintf("%s: %d", role, stats.Identities[role]))
	}

	cats := make([]string, 0, len(stats.CategoryCounts))
	for _, name := range slices.Sorted(maps.Keys(stats.CategoryCounts)) {
		cats = append(cats, fmt.Sprintf("%s: %d", conv.EscapeMarkdown(name), stats.CategoryCounts[name]))
	}

	sections := []string{
		c.formatter.Info("Statistics"),
		c.formatter.Section("👥", fmt.Sprintf("Users (%d)", total), c.formatter.List(users)),
		c.formatter.Section("📝", "Entries", c.formatter.List([]string{
			fmt.Sprintf("today: %d", stats.EntriesToday),
			fmt.Sprintf("stored: %d", stats.EntriesTotal),
		})),
	}
	if len(cats) > 0 {
		sections = append(sections, c.formatter.Section("🏷", "Today by category", c.formatter.List(cats)))
	}
	sections = append(sections, c.formatter.Section("⏰", "Reminders", c.formatter.List([]string{
		fmt.Sprintf("pending: %d", stats.PendingReminders),
		fmt.Sprintf("sent: %d", stats.SentReminders),
		fmt.Sprintf("expired: %d", stats.ExpiredReminders),
	})))
	return c.formatter.Combine(sections...), nil
}

type RotateCodeCommand struct {
	codes     Codes
	formatter *ResponseFormatter
}

func NewRotateCodeCommand(codes Codes, f *ResponseFormatter) *RotateCodeCommand {
	return &RotateCodeCommand{codes: codes, formatter: f}
}

func (c *RotateCodeCommand) Name() string        { return "newcode" }
func (c *RotateCodeCommand) Description() string { return "Replace today's upload code" }
func (c *RotateCodeCommand) MinRole() core.Role  { return core.RoleSuperAdmin }

func (c *RotateCodeCommand) Execute(ctx context.Context, _ core.Caller, _ []string) (string, error) {
	code, err := c.codes.Rotate(ctx)
	if err != nil {
		return "", fmt.Errorf("rotate daily code: %w", err)
	}
	return c.formatter.Combine(
		c.formatter.Success("New upload code generated"),
		c.formatter.Label(code.Day, code.Code),
		c.formatter.Tip("the previous code no longer works"),
	), nil
}

type PurgeCommand struct {
	purger    Purger
	formatter *ResponseFormatter
}

func NewPurgeCommand(purger Purger, f *ResponseFormatter) *PurgeCommand {
	return &PurgeCommand{purger: purger, formatter: f}
}

func (c *PurgeCommand) Name() string        { return "purge" }
func (c *PurgeCommand) Description() string { return "Run the retention purge now" }
func (c *PurgeCommand) MinRole() core.Role  { return core.RoleSuperAdmin }

func (c *PurgeCommand) Execute(ctx context.Context, _ core.Caller, _ []string) (string, error) {
	res, err := c.purger.RunPurge(ctx)
	if err != nil {
		return "", err
	}
	return c.formatter.Success(scheduler.FormatPurge(res)), nil
}

// AssumeCommand lets a super admin act with a lower role for a while,
// e.g. to check what uploaders see. The override lowers the effective role,
// so the authority checks the base role rather than the router.
type AssumeCommand struct {
	authority Authority
	ttl       time.Duration
	loc       *time.Location
	formatter *ResponseFormatter
}

func NewAssumeCommand(authority Authority, ttl time.Duration, loc *time.Location, f *ResponseFormatter) *AssumeCommand {
	return &AssumeCommand{authority: authority, ttl: ttl, loc: loc, formatter: f}
}

func (c *AssumeCommand) Name() string        { return "assume" }
func (c *AssumeCommand) Description() string { return "Act as another role: /assume <role> [duration] | off" }
func (c *AssumeCommand) MinRole() core.Role  { return core.RoleNone }

func (c *AssumeCommand) Execute(ctx context.Context, caller core.Caller, args []string) (string, error) {
	if len(args) == 0 || len(args) > 2 {
		return c.formatter.Combine(
			c.formatter.Usage("/assume <viewer|uploader|uploadadmin> [duration]\n/assume off"),
			c.formatter.Examples([]string{"/assume uploader", "/assume viewer 30m", "/assume off"}),
		), nil
	}

	if strings.EqualFold(args[0], "off") {
		if err := c.authority.ClearOverride(ctx, caller.ID); err != nil {
			return "", err
		}
		return c.formatter.Success("Back to your own role"), nil
	}

	role, err := core.ParseRole(args[0])
	if err != nil {
		return "", &core.ValidationError{Field: "role", Message: err.Error()}
	}
	ttl := c.ttl
	if len(args) == 2 {
		ttl, err = time.ParseDuration(args[1])
		if err != nil || ttl <= 0 {
			return "", &core.ValidationError{Field: "duration", Message: fmt.Sprintf("%q is not a duration like 30m or 2h", args[1])}
		}
	}

	o, err := c.authority.SetOverride(ctx, caller.ID, role, ttl)
	if err != nil {
		return "", err
	}
	return c.formatter.Combine(
		c.formatter.Success("Role assumed"),
		c.formatter.Label("Role", o.Role.String()),
		c.formatter.Label("Until", o.ExpiresAt.In(c.loc).Format("15:04")),
		c.formatter.Tip("send /assume off to return early"),
	), nil
}

type SyncCommand struct {
	syncer    Syncer
	formatter *ResponseFormatter
}

func NewSyncCommand(s Syncer, f *ResponseFormatter) *SyncCommand {
	return &SyncCommand{syncer: s, formatter: f}
}

func (c *SyncCommand) Name() string        { return "sync" }
func (c *SyncCommand) Description() string { return "Pull external sources: /sync [source] [--reset]" }
func (c *SyncCommand) MinRole() core.Role  { return core.RoleSuperAdmin }

func (c *SyncCommand) Execute(ctx context.Context, _ core.Caller, args []string) (string, error) {
	if c.syncer == nil {
		return "No external sources are configured.", nil
	}

	var name string
	var reset bool
	for _, arg := range args {
		switch {
		case arg == "--reset":
			reset = true
		case name == "":
			name = arg
		default:
			return c.formatter.Usage("/sync [source] [--reset]"), nil
		}
	}
	if reset && name == "" {
		return "", &core.ValidationError{Field: "source", Message: "--reset needs a source name"}
	}

	if reset {
		if err := c.syncer.Reset(ctx, name); err != nil {
			return "", err
		}
	}

	var results []string
	if name != "" {
		res, err := c.syncer.Sync(ctx, name)
		if errors.Is(err, core.ErrNotFound) {
			return "", &core.ValidationError{Field: "source", Message: fmt.Sprintf("unknown source %q", name)}
		}
		results = append(results, conv.EscapeMarkdown(res.String()))
		if err != nil {
			return c.formatter.Combine(c.formatter.List(results), c.formatter.Error(c.Name(), err)), nil
		}
	} else {
		all, err := c.syncer.SyncAll(ctx)
		for _, res := range all {
			results = append(results, conv.EscapeMarkdown(res.String()))
		}
		if err != nil {
			return c.formatter.Combine(c.formatter.List(results), c.formatter.Error(c.Name(), err)), nil
		}
	}
	return c.formatter.Combine(c.formatter.Info("Sync complete"), c.formatter.List(results)), nil
}

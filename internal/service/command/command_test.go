package command

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/internal/service/authority"
	"github.com/sandevgo/reliefdesk/internal/service/conversation"
	"github.com/sandevgo/reliefdesk/internal/service/roster"
	"github.com/sandevgo/reliefdesk/internal/service/syncer"
	store "github.com/sandevgo/reliefdesk/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	superID    int64 = 1
	adminID    int64 = 2
	uploaderID int64 = 3
	viewerID   int64 = 4
	strangerID int64 = 99
)

type fakeConversation struct {
	inputs []conversation.InputKind
	err    error
}

func (f *fakeConversation) Handle(_ context.Context, _ int64, in conversation.Input) (conversation.Reply, error) {
	f.inputs = append(f.inputs, in.Kind)
	if f.err != nil {
		return conversation.Reply{}, f.err
	}
	return conversation.Reply{Text: "reply to " + in.Kind.String()}, nil
}

type fakeCodes struct{ code string }

func (f *fakeCodes) Current(context.Context) (core.DailyCode, error) {
	return core.DailyCode{Day: "2026-03-02", Code: f.code}, nil
}

func (f *fakeCodes) Rotate(context.Context) (core.DailyCode, error) {
	f.code = "OTTER-4321"
	return core.DailyCode{Day: "2026-03-02", Code: f.code}, nil
}

type fakeQuery struct{ summaries []string }

func (f *fakeQuery) Ask(_ context.Context, q string) (string, error) { return "answer: " + q, nil }
func (f *fakeQuery) Overview(context.Context) (string, error)        { return "overview", nil }

func (f *fakeQuery) Summary(_ context.Context, category string) (string, error) {
	f.summaries = append(f.summaries, category)
	return "summary " + category, nil
}

type fakePurger struct{ runs int }

func (f *fakePurger) RunPurge(context.Context) (core.PurgeResult, error) {
	f.runs++
	return core.PurgeResult{Entries: 4}, nil
}

type fakeSyncer struct {
	resets []string
	synced []string
}

func (f *fakeSyncer) Sync(_ context.Context, name string) (syncer.MergeResult, error) {
	if name != "drive" {
		return syncer.MergeResult{Source: name}, core.ErrNotFound
	}
	f.synced = append(f.synced, name)
	return syncer.MergeResult{Source: name, Listed: 2, Committed: 2}, nil
}

func (f *fakeSyncer) SyncAll(ctx context.Context) ([]syncer.MergeResult, error) {
	res, err := f.Sync(ctx, "drive")
	return []syncer.MergeResult{res}, err
}

func (f *fakeSyncer) Reset(_ context.Context, name string) error {
	f.resets = append(f.resets, name)
	return nil
}

type fixture struct {
	router     *Router
	identities *store.IdentityRepo
	entries    *store.EntryRepo
	conv       *fakeConversation
	query      *fakeQuery
	purger     *fakePurger
	syncer     *fakeSyncer
}

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := store.NewDB(ctx, filepath.Join(t.TempDir(), "desk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	identities := store.NewIdentityRepo(db)
	for _, ident := range []core.Identity{
		{ID: superID, DisplayName: "Principal", Role: core.RoleSuperAdmin},
		{ID: adminID, DisplayName: "Office Admin", Role: core.RoleUploadAdmin},
		{ID: uploaderID, DisplayName: "Mr Lim", Role: core.RoleUploader},
		{ID: viewerID, DisplayName: "Ms Wong", Role: core.RoleViewer},
	} {
		require.NoError(t, identities.UpsertIdentity(ctx, ident))
	}

	cfg := &config.AppConfig{
		SuperAdminIDs:      []int64{superID, 50},
		Categories:         []string{"relief", "venue_change", "general"},
		CoverageCategories: []string{"relief"},
		RoleOverrideTTL:    time.Hour,
	}
	auth := authority.New(identities).WithClock(func() time.Time { return fixedNow })

	f := fixture{
		identities: identities,
		entries:    store.NewEntryRepo(db),
		conv:       &fakeConversation{},
		query:      &fakeQuery{},
		purger:     &fakePurger{},
		syncer:     &fakeSyncer{},
	}
	f.router = New(auth, NewCommands(Deps{
		Config:       cfg,
		Location:     time.UTC,
		Authority:    auth,
		Identities:   identities,
		Entries:      f.entries,
		Maintenance:  store.NewMaintenanceRepo(db),
		Conversation: f.conv,
		Codes:        &fakeCodes{code: "PANDA-1234"},
		Query:        f.query,
		Purger:       f.purger,
		Syncer:       f.syncer,
		Roster:       roster.NewImporter(identities, cfg.SuperAdminIDs).WithClock(func() time.Time { return fixedNow }),
		Now:          func() time.Time { return fixedNow },
	}))
	return f
}

func (f fixture) run(t *testing.T, id int64, input string) string {
	t.Helper()
	out, handled := f.router.Execute(context.Background(), core.Caller{ID: id, Name: "Tester"}, input)
	require.True(t, handled, input)
	return out
}

func TestRouter_IgnoresPlainText(t *testing.T) {
	f := newFixture(t)
	_, handled := f.router.Execute(context.Background(), core.Caller{ID: viewerID}, "hello")
	assert.False(t, handled)
}

func TestRouter_UnknownCommand(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.run(t, viewerID, "/nope"), "Unknown command: /nope")
}

func TestRouter_StripsBotSuffix(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "answer: hi", f.run(t, viewerID, "/ask@ReliefDeskBot hi"))
}

func TestRouter_RoleGate(t *testing.T) {
	f := newFixture(t)

	out := f.run(t, viewerID, "/upload")
	assert.Contains(t, out, "requires uploader role, have viewer")
	assert.Empty(t, f.conv.inputs)

	out = f.run(t, strangerID, "/ask anything")
	assert.Contains(t, out, "not registered")
	assert.Contains(t, out, "99")

	assert.Equal(t, "reply to start", f.run(t, uploaderID, "/upload"))
	assert.Equal(t, []conversation.InputKind{conversation.InputStart}, f.conv.inputs)
}

func TestRouter_ListCommandsByRole(t *testing.T) {
	f := newFixture(t)

	names := func(role core.Role) []string {
		var out []string
		for _, c := range f.router.ListCommands(role) {
			out = append(out, c.Name())
		}
		return out
	}

	viewer := names(core.RoleViewer)
	assert.Contains(t, viewer, "ask")
	assert.Contains(t, viewer, "help")
	assert.NotContains(t, viewer, "upload")
	assert.NotContains(t, viewer, "purge")

	super := names(core.RoleSuperAdmin)
	assert.Contains(t, super, "purge")
	assert.Contains(t, super, "upload")
	assert.Equal(t, len(f.router.commands), len(super))
}

func TestHelp_ShowsOnlyReachableCommands(t *testing.T) {
	f := newFixture(t)
	out := f.run(t, viewerID, "/help")
	assert.Contains(t, out, "/today")
	assert.NotContains(t, out, "/promote")

	out = f.run(t, strangerID, "/help")
	assert.Contains(t, out, "/start")
	assert.Contains(t, out, "not registered")
}

func TestStart_RegistersConfiguredSuperAdmin(t *testing.T) {
	f := newFixture(t)
	out, _ := f.router.Execute(context.Background(), core.Caller{ID: 50, Name: "Vice Principal"}, "/start")
	assert.Contains(t, out, "superadmin")

	ident, err := f.identities.GetIdentity(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, core.RoleSuperAdmin, ident.Role)
	assert.Equal(t, "Vice Principal", ident.DisplayName)
}

func TestStart_UnregisteredGetsID(t *testing.T) {
	f := newFixture(t)
	out := f.run(t, strangerID, "/start")
	assert.Contains(t, out, "/add 99")

	_, err := f.identities.GetIdentity(context.Background(), strangerID)
	assert.ErrorIs(t, err, core.ErrNotRegistered)
}

func TestAdd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := f.run(t, adminID, "/add 77 Mdm Tan Mei Ling")
	assert.Contains(t, out, "Added Mdm Tan Mei Ling (77) as viewer")

	ident, err := f.identities.GetIdentity(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, core.RoleViewer, ident.Role)
	assert.Equal(t, adminID, ident.AddedBy)

	assert.Contains(t, f.run(t, adminID, "/add 77 Someone Else"), "already registered")
	assert.Contains(t, f.run(t, adminID, "/add abc Name"), "not a valid user id")
	assert.Contains(t, f.run(t, adminID, "/add 78"), "Usage")
	assert.Contains(t, f.run(t, uploaderID, "/add 79 Name"), "requires uploadadmin role")
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Contains(t, f.run(t, adminID, "/remove 4"), "Removed Ms Wong (4)")
	_, err := f.identities.GetIdentity(ctx, viewerID)
	assert.ErrorIs(t, err, core.ErrNotRegistered)

	assert.Contains(t, f.run(t, adminID, "/remove 1"), "super admins cannot be removed")
	assert.Contains(t, f.run(t, adminID, "/remove 2"), "cannot remove yourself")
	assert.Contains(t, f.run(t, adminID, "/remove 404"), "not found")

	require.NoError(t, f.identities.UpsertIdentity(ctx, core.Identity{ID: 5, DisplayName: "Peer", Role: core.RoleUploadAdmin}))
	assert.Contains(t, f.run(t, adminID, "/remove 5"), "requires superadmin role")
	assert.Contains(t, f.run(t, superID, "/remove 5"), "Removed Peer")
}

func TestList_GroupsByRole(t *testing.T) {
	f := newFixture(t)
	out := f.run(t, adminID, "/list")
	assert.Contains(t, out, "Registered users (4)")
	assert.Contains(t, out, "SUPERADMIN")
	assert.Contains(t, out, "Ms Wong (4)")
	assert.Less(t, strings.Index(out, "SUPERADMIN"), strings.Index(out, "VIEWER"))
}

func TestPromote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Contains(t, f.run(t, superID, "/promote 4 uploader"), "viewer → uploader")
	ident, err := f.identities.GetIdentity(ctx, viewerID)
	require.NoError(t, err)
	assert.Equal(t, core.RoleUploader, ident.Role)

	assert.Contains(t, f.run(t, superID, "/promote 4 superadmin"), "use viewer, uploader or uploadadmin")
	assert.Contains(t, f.run(t, superID, "/promote 404 viewer"), "not registered")
	assert.Contains(t, f.run(t, superID, "/promote 1 viewer"), "configured super admins")
	assert.Contains(t, f.run(t, adminID, "/promote 4 viewer"), "requires superadmin role")
}

func TestAssume_LowersEffectiveRoleUntilOff(t *testing.T) {
	f := newFixture(t)

	out := f.run(t, superID, "/assume viewer 30m")
	assert.Contains(t, out, "viewer")
	assert.Contains(t, out, "10:00")

	assert.Contains(t, f.run(t, superID, "/purge"), "requires superadmin role, have viewer")
	assert.Equal(t, 0, f.purger.runs)

	assert.Contains(t, f.run(t, superID, "/assume off"), "Back to your own role")
	assert.Contains(t, f.run(t, superID, "/purge"), "4 entries")
	assert.Equal(t, 1, f.purger.runs)

	assert.Contains(t, f.run(t, adminID, "/assume viewer"), "requires superadmin role")
	assert.Contains(t, f.run(t, superID, "/assume viewer soon"), "not a duration")
}

func TestToday_Modes(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "overview", f.run(t, viewerID, "/today"))
	assert.Equal(t, "summary ", f.run(t, viewerID, "/today full"))
	assert.Equal(t, "summary venue_change", f.run(t, viewerID, "/today Venue Change"))
	assert.Contains(t, f.run(t, viewerID, "/today canteen"), "unknown category")
	assert.Equal(t, []string{"", "venue_change"}, f.query.summaries)
}

func TestCodes(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.run(t, adminID, "/code"), "PANDA-1234")
	assert.Contains(t, f.run(t, uploaderID, "/code"), "requires uploadadmin role")
	assert.Contains(t, f.run(t, superID, "/newcode"), "OTTER-4321")
	assert.Contains(t, f.run(t, adminID, "/code"), "OTTER-4321")
}

func TestCancel_ForwardsToConversation(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "reply to cancel", f.run(t, viewerID, "/cancel"))

	f.conv.err = core.ErrBusy
	assert.Contains(t, f.run(t, uploaderID, "/upload"), "still working")
}

func TestMyUploads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Contains(t, f.run(t, uploaderID, "/myuploads"), "no uploads")

	for i, cat := range []string{"relief", "general"} {
		_, err := f.entries.CreateEntry(ctx, core.Entry{
			Category:   cat,
			Payload:    core.TextPayload{Body: "entry"},
			Origin:     core.Origin{Kind: core.OriginInteractive},
			UploadedBy: uploaderID,
			CreatedAt:  fixedNow.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	out := f.run(t, uploaderID, "/myuploads")
	assert.Contains(t, out, "[general] text at 02 Mar 09:31")
	assert.Less(t, strings.Index(out, "general"), strings.Index(out, "relief"))
}

func TestMyUploads_RemoveToday(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	create := func(by int64, at time.Time) int64 {
		id, err := f.entries.CreateEntry(ctx, core.Entry{
			Category:   "general",
			Payload:    core.TextPayload{Body: "entry"},
			Origin:     core.Origin{Kind: core.OriginInteractive},
			UploadedBy: by,
			CreatedAt:  at,
		})
		require.NoError(t, err)
		return id
	}
	yesterday := create(uploaderID, fixedNow.Add(-24*time.Hour))
	first := create(uploaderID, fixedNow)
	create(uploaderID, fixedNow.Add(time.Minute))
	foreign := create(adminID, fixedNow)

	assert.Contains(t, f.run(t, uploaderID, "/myuploads remove"), "Usage")
	assert.Contains(t, f.run(t, uploaderID, "/myuploads remove x1"), "not an upload number")
	assert.Contains(t, f.run(t, uploaderID, fmt.Sprintf("/myuploads remove %d", foreign)), "not one of your uploads from today")
	assert.Contains(t, f.run(t, uploaderID, fmt.Sprintf("/myuploads remove %d", yesterday)), "not one of your uploads from today")

	assert.Contains(t, f.run(t, uploaderID, fmt.Sprintf("/myuploads remove #%d", first)), fmt.Sprintf("Removed upload #%d", first))
	_, err := f.entries.GetEntry(ctx, first)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Contains(t, f.run(t, uploaderID, "/myuploads remove all"), "Removed 1 upload(s)")
	assert.Contains(t, f.run(t, uploaderID, "/myuploads remove ALL"), "no uploads from today")

	_, err = f.entries.GetEntry(ctx, yesterday)
	assert.NoError(t, err)
	_, err = f.entries.GetEntry(ctx, foreign)
	assert.NoError(t, err)
}

func TestMassUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Contains(t, f.run(t, adminID, "/massupload"), "requires superadmin role")
	assert.Contains(t, f.run(t, superID, "/massupload"), "telegram_id,name,role")

	out := f.run(t, superID, "/massupload telegram_id,name,role\n10,Mr Tan Ah Kow,uploader\n11,Ms Lee,viewer\n50,Vice Principal,viewer")
	assert.Contains(t, out, "added: 2")
	assert.Contains(t, out, "removed: 3")
	assert.Contains(t, out, "cannot modify super admin 50")

	tan, err := f.identities.GetIdentity(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "Mr Tan Ah Kow", tan.DisplayName)
	assert.Equal(t, core.RoleUploader, tan.Role)
	assert.Equal(t, superID, tan.AddedBy)

	_, err = f.identities.GetIdentity(ctx, viewerID)
	assert.ErrorIs(t, err, core.ErrNotRegistered)
	_, err = f.identities.GetIdentity(ctx, superID)
	assert.NoError(t, err)

	out = f.run(t, superID, "/massupload\n12,Nobody,owner")
	assert.Contains(t, out, "no valid users found")
	_, err = f.identities.GetIdentity(ctx, 10)
	assert.NoError(t, err)
}

func TestSuperAdminManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Contains(t, f.run(t, superID, "/addsuperadmin 4"), "is now a super admin")
	wong, err := f.identities.GetIdentity(ctx, viewerID)
	require.NoError(t, err)
	assert.Equal(t, core.RoleSuperAdmin, wong.Role)

	assert.Contains(t, f.run(t, superID, "/addsuperadmin 4"), "already a super admin")
	assert.Contains(t, f.run(t, superID, "/addsuperadmin 77"), "SuperAdmin\\_77")

	out := f.run(t, superID, "/listsuperadmins")
	assert.Contains(t, out, "Super admins (3)")
	assert.Contains(t, out, "Principal (1) 🔒")
	assert.Contains(t, out, "Ms Wong (4)")

	assert.Contains(t, f.run(t, viewerID, "/listsuperadmins"), "only super admins listed in the configuration")
	assert.Contains(t, f.run(t, viewerID, "/removesuperadmin 77"), "only super admins listed in the configuration")
	assert.Contains(t, f.run(t, adminID, "/addsuperadmin 3"), "requires superadmin role")

	assert.Contains(t, f.run(t, superID, "/removesuperadmin 1"), "protected by the configuration")
	assert.Contains(t, f.run(t, superID, "/removesuperadmin 3"), "not a super admin")
	assert.Contains(t, f.run(t, superID, "/removesuperadmin 4"), "Removed super admin Ms Wong (4)")
	_, err = f.identities.GetIdentity(ctx, viewerID)
	assert.ErrorIs(t, err, core.ErrNotRegistered)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	out := f.run(t, superID, "/stats")
	assert.Contains(t, out, "Users (4)")
	assert.Contains(t, out, "uploadadmin: 1")
	assert.Contains(t, out, "pending: 0")
}

func TestSync(t *testing.T) {
	f := newFixture(t)

	out := f.run(t, superID, "/sync")
	assert.Contains(t, out, "drive: 2 listed, 2 committed")

	out = f.run(t, superID, "/sync drive --reset")
	assert.Contains(t, out, "Sync complete")
	assert.Equal(t, []string{"drive"}, f.syncer.resets)

	assert.Contains(t, f.run(t, superID, "/sync gdrive"), "unknown source")
	assert.Contains(t, f.run(t, superID, "/sync --reset"), "needs a source name")
}

func TestSync_NoSources(t *testing.T) {
	cmd := NewSyncCommand(nil, NewResponseFormatter())
	out, err := cmd.Execute(context.Background(), core.Caller{ID: superID, Role: core.RoleSuperAdmin}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "No external sources")
}

type failingRoles struct{}

func (failingRoles) Resolve(context.Context, int64) (core.Role, error) {
	return core.RoleNone, errors.New("database is locked")
}

func TestRouter_ResolveFailure(t *testing.T) {
	r := New(failingRoles{}, nil)
	out, handled := r.Execute(context.Background(), core.Caller{ID: viewerID}, "/help")
	assert.True(t, handled)
	assert.Contains(t, out, "could not check your access")
	assert.NotContains(t, out, "database is locked")
}

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/internal/service/relief"
	"github.com/sandevgo/reliefdesk/internal/service/state"
	"github.com/sandevgo/reliefdesk/pkg/conv"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

const (
	uploadRole     = core.RoleUploader
	previewLength  = 300
	genericFailure = "Something went wrong on our side and the upload was cancelled. Please try again later."

	agreeOption  = "I agree"
	cancelOption = "Cancel"
)

// DefaultNotice is shown before every upload when the notice step is on.
const DefaultNotice = `⚠️ *Before you upload*

Do not upload sensitive or confidential information such as NRIC numbers, home addresses, medical information, financial details or private phone numbers.

Everything uploaded is deleted automatically after one day.`

type RoleResolver interface {
	Resolve(ctx context.Context, id int64) (core.Role, error)
}

type CodeVerifier interface {
	Verify(ctx context.Context, input string) (bool, error)
}

type Extractor interface {
	Extract(ctx context.Context, a core.Artifact) (core.Payload, error)
}

type EntryCreator interface {
	CreateEntry(ctx context.Context, e core.Entry) (int64, error)
}

type ArtifactStore interface {
	Save(ctx context.Context, day time.Time, name string, data []byte) (string, error)
}

type CoverageProcessor interface {
	Process(ctx context.Context, entry core.Entry) (relief.Result, error)
}

// Input is one interaction routed to a session.
type Input struct {
	Kind     InputKind
	Text     string
	Artifact *core.Artifact
}

// Reply is what the transport shows after an input. Options, when present,
// are the only accepted answers and can be rendered as a keyboard.
type Reply struct {
	Text    string
	Options []string
	Phase   state.Phase
	EntryID int64
}

type Config struct {
	// Notice must be accepted before choosing a category. Empty skips the step.
	Notice          string
	Categories      []core.Category
	SessionTimeout  time.Duration
	CodeMaxAttempts int
	Location        *time.Location
}

type Engine struct {
	roles     RoleResolver
	codes     CodeVerifier
	extractor Extractor
	entries   EntryCreator
	files     ArtifactStore
	coverage  CoverageProcessor
	sessions  *state.Registry
	cfg       Config
	now       func() time.Time
}

func NewEngine(
	roles RoleResolver,
	codes CodeVerifier,
	extractor Extractor,
	entries EntryCreator,
	files ArtifactStore,
	coverage CoverageProcessor,
	cfg Config,
) *Engine {
	if cfg.CodeMaxAttempts < 1 {
		cfg.CodeMaxAttempts = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Engine{
		roles:     roles,
		codes:     codes,
		extractor: extractor,
		entries:   entries,
		files:     files,
		coverage:  coverage,
		sessions:  state.NewRegistry(),
		cfg:       cfg,
		now:       time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Handle applies one input to the identity's session. It returns core.ErrBusy
// while another input for the same identity is in flight.
func (e *Engine) Handle(ctx context.Context, id int64, in Input) (Reply, error) {
	lease, err := e.sessions.Acquire(id)
	if err != nil {
		return Reply{}, err
	}
	defer lease.Release()

	sess := lease.Session()
	logger := log.FromCtx(ctx).With().
		Int64("identity", id).
		Str("phase", sess.Phase.String()).
		Str("input", in.Kind.String()).
		Logger()
	ctx = logger.WithContext(ctx)

	now := e.now()
	var notice string
	if in.Kind != InputTimeout && sess.Expired(now, e.cfg.SessionTimeout) {
		logger.Info().Msg("session timed out")
		sess.Reset()
		notice = "Your previous upload timed out and was discarded.\n\n"
	}

	reply, err := e.step(ctx, sess, in, now)
	if sess.Phase.Active() {
		sess.UpdatedAt = now
	}
	reply.Text = notice + reply.Text
	return reply, err
}

func (e *Engine) step(ctx context.Context, sess *state.Session, in Input, now time.Time) (Reply, error) {
	ed := transition(sess.Phase, in.Kind)

	if !sess.Phase.Active() && ed.outcome == Reprompt {
		switch in.Kind {
		case InputCancel:
			return Reply{Text: "Nothing to cancel.", Phase: state.Idle}, nil
		case InputTimeout:
			return Reply{Phase: state.Idle}, nil
		default:
			return Reply{Text: "Nothing in progress. Send /upload to submit information.", Phase: state.Idle}, nil
		}
	}

	if ed.outcome == Cancel {
		return e.cancel(ctx, sess, in.Kind), nil
	}

	role, err := e.roles.Resolve(ctx, sess.IdentityID)
	if err != nil {
		if sess.Phase.Active() {
			sess.Reset()
		}
		return Reply{Phase: state.Idle}, err
	}
	if !role.AtLeast(uploadRole) {
		if sess.Phase.Active() {
			log.FromCtx(ctx).Warn().Str("role", role.String()).Msg("role downgraded mid-session, cancelling")
			sess.Reset()
			return Reply{Text: "Your role no longer allows uploads. The upload was cancelled.", Phase: state.Cancelled}, nil
		}
		return Reply{Phase: state.Idle}, &core.AuthorizationError{Have: role, Need: uploadRole}
	}

	if ed.outcome == Reprompt {
		prefix := ""
		if in.Kind == InputStart {
			prefix = "An upload is already in progress. Send /cancel to abort it.\n\n"
		}
		return e.prompt(sess, prefix), nil
	}

	switch sess.Phase {
	case state.ConfirmingNotice:
		return e.confirmNotice(ctx, sess, in.Text), nil
	case state.SelectingCategory:
		return e.selectCategory(sess, in.Text), nil
	case state.AwaitingContent:
		return e.acceptContent(ctx, sess, in), nil
	case state.AwaitingCode:
		return e.checkCode(ctx, sess, in.Text, now), nil
	default:
		*sess = state.Session{IdentityID: sess.IdentityID, Phase: ed.next, StartedAt: now}
		if sess.Phase == state.ConfirmingNotice && e.cfg.Notice == "" {
			sess.Phase = state.SelectingCategory
		}
		return e.prompt(sess, ""), nil
	}
}

func (e *Engine) prompt(sess *state.Session, prefix string) Reply {
	r := Reply{Phase: sess.Phase}
	switch sess.Phase {
	case state.ConfirmingNotice:
		r.Text = e.cfg.Notice + "\n\nDo you agree to continue?"
		r.Options = []string{agreeOption, cancelOption}
	case state.SelectingCategory:
		r.Text = "Choose a category for this upload:"
		r.Options = e.labels()
	case state.AwaitingContent:
		r.Text = fmt.Sprintf("Send the *%s* information as a message, photo or document.", sess.Category.Label)
	case state.AwaitingCode:
		r.Text = "Enter today's upload code to confirm."
	}
	r.Text = prefix + r.Text
	return r
}

func (e *Engine) confirmNotice(ctx context.Context, sess *state.Session, input string) Reply {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "i agree", "agree", "yes", "y":
		sess.Phase = state.SelectingCategory
		return e.prompt(sess, "")
	case "cancel", "no", "n":
		log.FromCtx(ctx).Info().Msg("upload notice declined")
		sess.Reset()
		return Reply{Text: "Upload cancelled. Nothing was uploaded.", Phase: state.Cancelled}
	default:
		return e.prompt(sess, "Please answer *I agree* or *Cancel*.\n\n")
	}
}

func (e *Engine) selectCategory(sess *state.Session, input string) Reply {
	c, ok := e.category(input)
	if !ok {
		return e.prompt(sess, "Unknown category. ")
	}
	sess.Category = c
	sess.Phase = state.AwaitingContent
	return e.prompt(sess, "")
}

func (e *Engine) acceptContent(ctx context.Context, sess *state.Session, in Input) Reply {
	logger := log.FromCtx(ctx)

	art := core.Artifact{Text: in.Text}
	if in.Artifact != nil {
		art = *in.Artifact
	}

	payload, err := e.extractor.Extract(ctx, art)
	if err != nil {
		var vErr *core.ValidationError
		var xErr *core.ExtractionFailure
		switch {
		case errors.As(err, &vErr):
			return e.prompt(sess, "That message was empty. ")
		case errors.As(err, &xErr):
			logger.Warn().Err(err).Str("reason", string(xErr.Reason)).Msg("extraction failed")
			if xErr.Retryable() {
				return e.prompt(sess, "I could not read that right now. Please send it again in a moment.\n\n")
			}
			return e.prompt(sess, "I cannot read that kind of file. Send text, a photo, a PDF, an HTML or a CSV file.\n\n")
		default:
			logger.Error().Err(err).Msg("extraction crashed")
			sess.Reset()
			return Reply{Text: genericFailure, Phase: state.Cancelled}
		}
	}

	sess.Payload = payload
	if !art.IsText() {
		sess.FileName = art.FileName
		sess.Data = art.Data
	}
	sess.Phase = state.AwaitingCode
	sess.CodeAttempts = 0

	prefix := ""
	if payload.Kind() != core.PayloadText {
		prefix = fmt.Sprintf("I read this from your %s:\n\n%s\n\n",
			payload.Kind(), conv.EscapeMarkdown(conv.Truncate(payload.Text(), previewLength)))
	}
	return e.prompt(sess, prefix)
}

func (e *Engine) checkCode(ctx context.Context, sess *state.Session, input string, now time.Time) Reply {
	logger := log.FromCtx(ctx)

	ok, err := e.codes.Verify(ctx, input)
	var vErr *core.ValidationError
	if err != nil && !errors.As(err, &vErr) {
		logger.Error().Err(err).Msg("code verification failed")
		sess.Reset()
		return Reply{Text: genericFailure, Phase: state.Cancelled}
	}

	if !ok {
		sess.CodeAttempts++
		left := e.cfg.CodeMaxAttempts - sess.CodeAttempts
		if left <= 0 {
			logger.Warn().Int("attempts", sess.CodeAttempts).Msg("code attempts exhausted")
			sess.Reset()
			return Reply{Text: "Too many incorrect codes. The upload was cancelled.", Phase: state.Cancelled}
		}
		return Reply{
			Text:  fmt.Sprintf("Incorrect code. %d attempt(s) left.", left),
			Phase: state.AwaitingCode,
		}
	}

	entry, err := e.commit(ctx, sess, now)
	if err != nil {
		logger.Error().Err(err).Msg("failed to commit entry")
		sess.Reset()
		return Reply{Text: genericFailure, Phase: state.Cancelled}
	}
	category := sess.Category
	sess.Reset()

	logger.Info().Int64("entry_id", entry.ID).Str("category", entry.Category).Msg("entry committed")

	text := fmt.Sprintf("Saved %s entry #%d.", category.Label, entry.ID)
	if category.Coverage && e.coverage != nil {
		res, err := e.coverage.Process(ctx, entry)
		if err != nil {
			logger.Error().Err(err).Int64("entry_id", entry.ID).Msg("relief matching failed")
			text += "\nThe relief list could not be matched, so no reminders were scheduled."
		} else {
			text += fmt.Sprintf("\n%d reminder(s) scheduled.", res.RemindersCreated)
			if len(res.Unresolved) > 0 {
				text += "\nUnrecognized names: " + conv.EscapeMarkdown(strings.Join(res.Unresolved, ", "))
			}
		}
	}
	return Reply{Text: text, Phase: state.Committed, EntryID: entry.ID}
}

func (e *Engine) commit(ctx context.Context, sess *state.Session, now time.Time) (core.Entry, error) {
	payload := sess.Payload
	if len(sess.Data) > 0 && e.files != nil {
		path, err := e.files.Save(ctx, now.In(e.cfg.Location), sess.FileName, sess.Data)
		if err != nil {
			return core.Entry{}, fmt.Errorf("store artifact: %w", err)
		}
		payload = core.WithStoredPath(payload, path)
	}

	entry := core.Entry{
		Category:   sess.Category.Name,
		Payload:    payload,
		Origin:     core.Origin{Kind: core.OriginInteractive},
		UploadedBy: sess.IdentityID,
		CreatedAt:  now,
	}
	id, err := e.entries.CreateEntry(ctx, entry)
	if err != nil {
		return core.Entry{}, err
	}
	entry.ID = id
	return entry, nil
}

func (e *Engine) cancel(ctx context.Context, sess *state.Session, kind InputKind) Reply {
	log.FromCtx(ctx).Info().Msg("session cancelled")
	sess.Reset()
	if kind == InputTimeout {
		return Reply{
			Text:  fmt.Sprintf("Your upload was cancelled after %s without activity.", e.cfg.SessionTimeout),
			Phase: state.Cancelled,
		}
	}
	return Reply{Text: "Upload cancelled.", Phase: state.Cancelled}
}

// Options returns the accepted answers for the identity's current step.
func (e *Engine) Options(id int64) []string {
	sess, ok := e.sessions.Peek(id)
	if !ok {
		return nil
	}
	switch sess.Phase {
	case state.ConfirmingNotice:
		return []string{agreeOption, cancelOption}
	case state.SelectingCategory:
		return e.labels()
	}
	return nil
}

// Phase returns the identity's current phase, or Idle while it is busy.
func (e *Engine) Phase(id int64) state.Phase {
	sess, ok := e.sessions.Peek(id)
	if !ok {
		return state.Idle
	}
	return sess.Phase
}

// Expire cancels every session idle for longer than the timeout and returns
// the replies to deliver. Sessions that are busy are left for the next run.
func (e *Engine) Expire(ctx context.Context) map[int64]Reply {
	now := e.now()
	out := make(map[int64]Reply)
	for _, id := range e.sessions.IDs() {
		lease, err := e.sessions.Acquire(id)
		if err != nil {
			continue
		}
		sess := lease.Session()
		if sess.Expired(now, e.cfg.SessionTimeout) {
			ctx := log.FromCtx(ctx).With().Int64("identity", id).Logger().WithContext(ctx)
			out[id] = e.cancel(ctx, sess, InputTimeout)
		}
		lease.Release()
	}
	return out
}

func (e *Engine) labels() []string {
	out := make([]string, 0, len(e.cfg.Categories))
	for _, c := range e.cfg.Categories {
		out = append(out, c.Label)
	}
	return out
}

// category accepts a 1-based index ("2", "2. Absent"), a label or a name.
func (e *Engine) category(input string) (core.Category, bool) {
	input = strings.TrimSpace(input)
	digits := strings.TrimLeftFunc(input, unicode.IsDigit)
	if lead := input[:len(input)-len(digits)]; lead != "" {
		if n, err := strconv.Atoi(lead); err == nil && n >= 1 && n <= len(e.cfg.Categories) {
			return e.cfg.Categories[n-1], true
		}
	}
	key := strings.ReplaceAll(input, " ", "_")
	for _, c := range e.cfg.Categories {
		if strings.EqualFold(c.Label, input) || strings.EqualFold(c.Name, key) {
			return c, true
		}
	}
	return core.Category{}, false
}

package syncer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/internal/service/relief"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

type Extractor interface {
	Extract(ctx context.Context, a core.Artifact) (core.Payload, error)
}

type CoverageProcessor interface {
	Process(ctx context.Context, entry core.Entry) (relief.Result, error)
}

// MergeResult counts what happened to a batch. StoppedAt is the id of the
// item that halted the batch, empty when every item was processed.
type MergeResult struct {
	Source    string
	Listed    int
	Committed int
	Skipped   int
	Failed    int
	StoppedAt string
}

func (r MergeResult) String() string {
	s := fmt.Sprintf("%s: %d listed, %d committed, %d skipped, %d failed",
		r.Source, r.Listed, r.Committed, r.Skipped, r.Failed)
	if r.StoppedAt != "" {
		s += ", stopped at " + r.StoppedAt
	}
	return s
}

type Syncer struct {
	repo       core.SyncRepository
	extractor  Extractor
	coverage   CoverageProcessor
	coverageOf []string
	sources    []core.Source
	locks      map[string]*sync.Mutex
	now        func() time.Time
}

func New(
	repo core.SyncRepository,
	extractor Extractor,
	coverage CoverageProcessor,
	coverageCategories []string,
	sources []core.Source,
) *Syncer {
	locks := make(map[string]*sync.Mutex, len(sources))
	for _, s := range sources {
		locks[s.Name()] = &sync.Mutex{}
	}
	return &Syncer{
		repo:       repo,
		extractor:  extractor,
		coverage:   coverage,
		coverageOf: coverageCategories,
		sources:    sources,
		locks:      locks,
		now:        time.Now,
	}
}

func (s *Syncer) WithClock(now func() time.Time) *Syncer {
	s.now = now
	return s
}

func (s *Syncer) Sources() []core.Source {
	return s.sources
}

func (s *Syncer) source(name string) (core.Source, error) {
	for _, src := range s.sources {
		if src.Name() == name {
			return src, nil
		}
	}
	return nil, fmt.Errorf("source %q: %w", name, core.ErrNotFound)
}

// Sync lists the source after its cursor and merges the result. Overlapping
// runs of the same source fail with core.ErrBusy.
func (s *Syncer) Sync(ctx context.Context, name string) (MergeResult, error) {
	src, err := s.source(name)
	if err != nil {
		return MergeResult{Source: name}, err
	}
	lock := s.locks[name]
	if !lock.TryLock() {
		return MergeResult{Source: name}, core.ErrBusy
	}
	defer lock.Unlock()

	cursor, err := s.repo.GetCursor(ctx, name)
	if err != nil {
		return MergeResult{Source: name}, err
	}
	items, err := src.List(ctx, cursor.Marker)
	if err != nil {
		return MergeResult{Source: name}, fmt.Errorf("list %s: %w", name, err)
	}
	return s.MergeBatch(ctx, src, items)
}

// SyncAll runs every source once and returns one result per source.
func (s *Syncer) SyncAll(ctx context.Context) ([]MergeResult, error) {
	var (
		out  []MergeResult
		errs []error
	)
	for _, src := range s.sources {
		res, err := s.Sync(ctx, src.Name())
		out = append(out, res)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		}
	}
	return out, errors.Join(errs...)
}

// Reset forgets the cursor of a source. Already merged items stay deduplicated
// by their origin id.
func (s *Syncer) Reset(ctx context.Context, name string) error {
	if _, err := s.source(name); err != nil {
		return err
	}
	return s.repo.ResetCursor(ctx, name)
}

// MergeBatch merges items in order. Each committed or skipped item advances
// the cursor; the first failure that a later run could fix stops the batch so
// the retry resumes from that item.
func (s *Syncer) MergeBatch(ctx context.Context, src core.Source, items []core.SyncItem) (MergeResult, error) {
	name := src.Name()
	logger := log.FromCtx(ctx).With().Str("source", name).Logger()
	res := MergeResult{Source: name, Listed: len(items)}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			res.StoppedAt = item.ID
			return res, err
		}

		outcome, err := s.mergeItem(ctx, name, src, item)
		if err != nil {
			res.Failed++
			res.StoppedAt = item.ID
			logger.Warn().Err(err).Str("item", item.ID).Msg("sync batch stopped")
			return res, err
		}
		switch outcome {
		case committed:
			res.Committed++
		case skipped:
			res.Skipped++
		case failed:
			res.Failed++
		}

		if err := s.repo.AdvanceCursor(ctx, name, item.Marker()); err != nil {
			res.StoppedAt = item.ID
			return res, err
		}
	}

	if res.Listed > 0 {
		logger.Info().
			Int("committed", res.Committed).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Msg("sync batch merged")
	}
	return res, nil
}

type outcome int

const (
	committed outcome = iota
	skipped
	failed
)

// mergeItem returns an error only when the batch must stop at this item.
func (s *Syncer) mergeItem(ctx context.Context, name string, src core.Source, item core.SyncItem) (outcome, error) {
	logger := log.FromCtx(ctx).With().Str("source", name).Str("item", item.ID).Logger()
	originID := OriginID(name, item)

	known, err := s.repo.HasOrigin(ctx, originID)
	if err != nil {
		return failed, err
	}
	if known {
		logger.Debug().Msg("item already merged")
		return skipped, nil
	}

	art, err := src.Fetch(ctx, item)
	if err != nil {
		if core.IsTransient(err) || ctx.Err() != nil {
			return failed, err
		}
		logger.Warn().Err(err).Msg("skipping item that cannot be fetched")
		return failed, nil
	}
	if art.FileName == "" {
		art.FileName = item.Name
	}

	payload, err := s.extractor.Extract(ctx, art)
	if err != nil {
		var xErr *core.ExtractionFailure
		if errors.As(err, &xErr) && xErr.Retryable() {
			return failed, err
		}
		logger.Warn().Err(err).Msg("skipping unsupported item")
		return skipped, nil
	}

	entry := core.Entry{
		Category: item.Category,
		Payload:  payload,
		Origin: core.Origin{
			Kind:   core.OriginExternal,
			ID:     originID,
			Source: name,
		},
		CreatedAt: s.now(),
	}
	id, err := s.repo.MergeEntry(ctx, entry)
	if errors.Is(err, core.ErrDuplicate) {
		return skipped, nil
	}
	if err != nil {
		return failed, err
	}
	entry.ID = id
	logger.Info().Int64("entry_id", id).Str("category", entry.Category).Msg("item merged")

	if s.coverage != nil && slices.Contains(s.coverageOf, entry.Category) {
		if _, err := s.coverage.Process(ctx, entry); err != nil {
			logger.Error().Err(err).Int64("entry_id", id).Msg("relief matching failed for synced entry")
		}
	}
	return committed, nil
}

package codes

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/log"
	"golang.org/x/text/cases"
)

var animals = []string{"LION", "TIGER", "BEAR", "EAGLE", "SHARK", "WOLF", "PANDA", "HAWK", "DRAGON", "PHOENIX"}

// Service issues the per-day submission code.
type Service struct {
	repo     core.CodeRepository
	loc      *time.Location
	now      func() time.Time
	generate func() (string, error)
}

func NewService(repo core.CodeRepository, loc *time.Location) *Service {
	return &Service{
		repo:     repo,
		loc:      loc,
		now:      time.Now,
		generate: Generate,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithGenerator(gen func() (string, error)) *Service {
	s.generate = gen
	return s
}

func (s *Service) day(offset int) string {
	return core.DayKey(s.now().In(s.loc).AddDate(0, 0, offset))
}

// Current returns today's code, creating one on first use. A new code never
// repeats yesterday's.
func (s *Service) Current(ctx context.Context) (core.DailyCode, error) {
	today := s.day(0)
	if c, err := s.repo.Code(ctx, today); err == nil {
		return c, nil
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.DailyCode{}, fmt.Errorf("current code: %w", err)
	}

	previous, err := s.stored(ctx, s.day(-1))
	if err != nil {
		return core.DailyCode{}, fmt.Errorf("previous code: %w", err)
	}
	candidate, err := s.fresh(previous)
	if err != nil {
		return core.DailyCode{}, err
	}
	c, err := s.repo.CurrentCode(ctx, today, candidate)
	if err != nil {
		return core.DailyCode{}, fmt.Errorf("current code: %w", err)
	}
	return c, nil
}

// Rotate replaces today's code. The previous code stops being accepted.
func (s *Service) Rotate(ctx context.Context) (core.DailyCode, error) {
	today := s.day(0)
	old, err := s.stored(ctx, today)
	if err != nil {
		return core.DailyCode{}, fmt.Errorf("rotate code: %w", err)
	}
	code, err := s.fresh(old)
	if err != nil {
		return core.DailyCode{}, err
	}
	c, err := s.repo.ReplaceCode(ctx, today, code)
	if err != nil {
		return core.DailyCode{}, fmt.Errorf("rotate code: %w", err)
	}
	log.FromCtx(ctx).Info().Str("day", c.Day).Msg("daily code rotated")
	return c, nil
}

// stored returns the day's code or "" when there is none.
func (s *Service) stored(ctx context.Context, day string) (string, error) {
	c, err := s.repo.Code(ctx, day)
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return c.Code, nil
}

func (s *Service) fresh(avoid string) (string, error) {
	for {
		code, err := s.generate()
		if err != nil {
			return "", err
		}
		if code != avoid {
			return code, nil
		}
	}
}

// Verify compares input with today's code ignoring case and surrounding
// space. Empty input is a validation error.
func (s *Service) Verify(ctx context.Context, input string) (bool, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return false, &core.ValidationError{Field: "code", Message: "code is empty"}
	}
	current, err := s.Current(ctx)
	if err != nil {
		return false, err
	}
	// Casers carry state, so each comparison gets its own.
	fold := cases.Fold()
	return fold.String(input) == fold.String(current.Code), nil
}

// Generate returns a fresh ANIMAL-NNNN code.
func Generate() (string, error) {
	a, err := rand.Int(rand.Reader, big.NewInt(int64(len(animals))))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%s-%04d", animals[a.Int64()], n.Int64()+1000), nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/exam-api/internal/config"
	"github.com/yourusername/exam-api/internal/domain/entity"
	"github.com/yourusername/exam-api/internal/domain/repository"
	apperrors "github.com/yourusername/exam-api/internal/pkg/errors"
	"github.com/yourusername/exam-api/internal/service/scoring"
)

const (
	rankingAttempts   = 3
	rankingRetryDelay = 5 * time.Second
	// startup looks this far ahead for tests that still have to end
	scheduleHorizon = 30 * 24 * time.Hour
)

// Ranker recomputes ranks of one test.
type Ranker interface {
	RecomputeRanks(ctx context.Context, testID uint) (*RankingSummary, error)
}

type scheduledRun struct {
	at     time.Time
	cancel context.CancelFunc
}

// RankingScheduler triggers rank recomputation once a test window has closed.
type RankingScheduler struct {
	tests  repository.TestRepository
	ranker Ranker
	cfg    config.RankingConfig

	runs sync.Map // map[uint]*scheduledRun
	wg   sync.WaitGroup

	now        func() time.Time
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewRankingScheduler creates a new ranking scheduler
func NewRankingScheduler(tests repository.TestRepository, ranker Ranker, cfg config.RankingConfig, logger *zap.Logger) *RankingScheduler {
	return &RankingScheduler{
		tests:      tests,
		ranker:     ranker,
		cfg:        cfg,
		now:        time.Now,
		retryDelay: rankingRetryDelay,
		logger:     logger.Named("RankingScheduler"),
	}
}

// ScheduleTest plans a recomputation at the test's end date plus the grace
// period. A test whose time has already come runs right away. Scheduling the
// same test again replaces the earlier plan.
func (s *RankingScheduler) ScheduleTest(ctx context.Context, test entity.Test) time.Time {
	at := test.EndDate.Add(s.cfg.EndGrace)
	runCtx, cancel := context.WithCancel(ctx)
	run := &scheduledRun{at: at, cancel: cancel}

	if prev, loaded := s.runs.Swap(test.ID, run); loaded {
		prev.(*scheduledRun).cancel()
	}

	s.wg.Add(1)
	go s.wait(runCtx, test.ID, run)

	s.logger.Info("ranking scheduled", zap.Uint("test_id", test.ID), zap.Time("at", at))
	return at
}

// ScheduleByID loads a test and schedules its recomputation. The run is
// detached from ctx so it outlives the request that planned it.
func (s *RankingScheduler) ScheduleByID(ctx context.Context, testID uint) (time.Time, error) {
	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return time.Time{}, fmt.Errorf("%w: test %d", scoring.ErrMissingTest, testID)
		}
		return time.Time{}, fmt.Errorf("load test %d: %w", testID, err)
	}
	return s.ScheduleTest(context.WithoutCancel(ctx), *test), nil
}

// Cancel drops the pending recomputation of a test. It reports whether one
// was pending.
func (s *RankingScheduler) Cancel(testID uint) bool {
	v, ok := s.runs.LoadAndDelete(testID)
	if !ok {
		return false
	}
	v.(*scheduledRun).cancel()
	s.logger.Info("ranking cancelled", zap.Uint("test_id", testID))
	return true
}

// Pending reports whether a recomputation is planned for the test.
func (s *RankingScheduler) Pending(testID uint) bool {
	_, ok := s.runs.Load(testID)
	return ok
}

// RescheduleOnStartup plans recomputation for tests that ended within the
// lookback period or will end soon. Recomputation is idempotent, so tests
// that were already ranked before a restart are simply ranked again.
func (s *RankingScheduler) RescheduleOnStartup(ctx context.Context) (int, error) {
	now := s.now()
	tests, err := s.tests.ListEndingBetween(ctx, now.Add(-s.cfg.Lookback), now.Add(scheduleHorizon))
	if err != nil {
		return 0, fmt.Errorf("list tests to rank: %w", err)
	}
	for _, t := range tests {
		s.ScheduleTest(ctx, t)
	}
	s.logger.Info("rankings rescheduled", zap.Int("tests", len(tests)))
	return len(tests), nil
}

// Stop cancels every pending run and waits for running ones to return.
func (s *RankingScheduler) Stop() {
	s.runs.Range(func(key, value interface{}) bool {
		value.(*scheduledRun).cancel()
		s.runs.Delete(key)
		return true
	})
	s.wg.Wait()
}

func (s *RankingScheduler) wait(ctx context.Context, testID uint, run *scheduledRun) {
	defer s.wg.Done()
	defer s.runs.CompareAndDelete(testID, run)

	if d := run.at.Sub(s.now()); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
	}
	s.recompute(ctx, testID)
}

// recompute retries ranking failures; other errors are final.
func (s *RankingScheduler) recompute(ctx context.Context, testID uint) {
	log := s.logger.With(zap.Uint("test_id", testID))
	for attempt := 1; attempt <= rankingAttempts; attempt++ {
		summary, err := s.ranker.RecomputeRanks(ctx, testID)
		if err == nil {
			log.Info("scheduled ranking done", zap.Int("ranked", summary.Ranked), zap.String("run_id", summary.RunID))
			return
		}
		if !errors.Is(err, scoring.ErrRankingFailed) || attempt == rankingAttempts {
			log.Error("scheduled ranking failed", zap.Int("attempt", attempt), zap.Error(err))
			return
		}
		log.Warn("scheduled ranking will be retried", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-time.After(time.Duration(attempt) * s.retryDelay):
		case <-ctx.Done():
			return
		}
	}
}

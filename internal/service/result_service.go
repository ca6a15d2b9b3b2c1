package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yourusername/exam-api/internal/config"
	"github.com/yourusername/exam-api/internal/domain/entity"
	"github.com/yourusername/exam-api/internal/domain/repository"
	apperrors "github.com/yourusername/exam-api/internal/pkg/errors"
	"github.com/yourusername/exam-api/internal/service/scoring"
	"github.com/yourusername/exam-api/pkg/monitoring"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100

	reportTimeout = 30 * time.Second
)

// ResultNotifier pushes result events to connected clients.
type ResultNotifier interface {
	ResultFinalized(studentID string, testID uint, status entity.ResultStatus)
	RankingsUpdated(testID uint, ranked int)
}

// RankingSummary describes one finished rank recomputation.
type RankingSummary struct {
	TestID   uint          `json:"test_id"`
	RunID    string        `json:"run_id"`
	Ranked   int           `json:"ranked"`
	Centers  int           `json:"centers"`
	TopScore float64       `json:"top_score"`
	Duration time.Duration `json:"duration"`
}

// BatchItem is the outcome of one attempt in an auto-submit batch.
type BatchItem struct {
	StudentID string
	Result    *entity.Result
	Err       error
}

// ExportRow is a leaderboard line with the student's center resolved.
type ExportRow struct {
	Result   entity.Result
	CenterID string
}

// testDefinition is what the finalizer needs from storage, cached as one unit.
type testDefinition struct {
	Test      *entity.Test              `json:"test"`
	Questions map[uint]*entity.Question `json:"questions"`
}

// ResultServiceDeps groups the collaborators of ResultService.
type ResultServiceDeps struct {
	TestRepo   repository.TestRepository
	ResultRepo repository.ResultRepository
	Centers    repository.CenterDirectory
	Cache      repository.CacheRepository // optional
	Locker     repository.Locker
	Notifier   ResultNotifier // optional
	Email      EmailService   // optional
	Ranking    config.RankingConfig
	// TestCacheTTL is how long a started test's definition stays cached
	TestCacheTTL time.Duration
	Logger       *zap.Logger
}

// ResultService finalizes attempts and maintains rankings.
type ResultService struct {
	testRepo   repository.TestRepository
	resultRepo repository.ResultRepository
	centers    repository.CenterDirectory
	cache      repository.CacheRepository
	locker     repository.Locker
	notifier   ResultNotifier
	email      EmailService
	ranking    config.RankingConfig
	testTTL    time.Duration
	now        func() time.Time
	rankGroup  singleflight.Group
	logger     *zap.Logger
}

// NewResultService creates a new result service
func NewResultService(deps ResultServiceDeps) *ResultService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultService{
		testRepo:   deps.TestRepo,
		resultRepo: deps.ResultRepo,
		centers:    deps.Centers,
		cache:      deps.Cache,
		locker:     deps.Locker,
		notifier:   deps.Notifier,
		email:      deps.Email,
		ranking:    deps.Ranking,
		testTTL:    deps.TestCacheTTL,
		now:        time.Now,
		logger:     logger.Named("ResultService"),
	}
}

// FinalizeAttempt scores the attempt and stores its Result. A student has at
// most one Result per test: a second call fails with scoring.ErrAlreadySubmitted,
// and losing a concurrent race fails with scoring.ErrDuplicateAttempt.
func (s *ResultService) FinalizeAttempt(ctx context.Context, attempt entity.Attempt, mode scoring.Mode) (*entity.Result, error) {
	log := s.logger.With(
		zap.String("student_id", attempt.StudentID),
		zap.Uint("test_id", attempt.TestID),
		zap.Stringer("mode", mode),
	)

	if attempt.StudentID == "" {
		return nil, fmt.Errorf("%w: student id is required", apperrors.ErrValidation)
	}

	def, err := s.loadTest(ctx, attempt.TestID)
	if err != nil {
		if errors.Is(err, scoring.ErrMissingTest) {
			monitoring.FinalizeRejected.WithLabelValues("missing_test").Inc()
		}
		return nil, err
	}

	if err := s.checkCenter(ctx, def.Test, attempt.StudentID); err != nil {
		monitoring.FinalizeRejected.WithLabelValues("center_not_allowed").Inc()
		return nil, err
	}

	exists, err := s.resultRepo.ExistsResult(ctx, attempt.StudentID, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("check existing result: %w", err)
	}
	if exists {
		monitoring.FinalizeRejected.WithLabelValues("already_submitted").Inc()
		return nil, scoring.ErrAlreadySubmitted
	}

	now := s.now()
	if mode == scoring.ModeStudentSubmit {
		// submit time is the server clock, whatever the client sent
		attempt.SubmitTime = &now
	}

	result, anomalies, err := scoring.Finalize(attempt, def.Test, def.Questions, mode, now)
	if err != nil {
		switch {
		case errors.Is(err, scoring.ErrNotExpired):
			monitoring.FinalizeRejected.WithLabelValues("not_expired").Inc()
			return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
		case errors.Is(err, scoring.ErrOutsideWindow):
			monitoring.FinalizeRejected.WithLabelValues("outside_window").Inc()
			return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
		case errors.Is(err, scoring.ErrMissingQuestion):
			monitoring.FinalizeRejected.WithLabelValues("missing_question").Inc()
			log.Error("test references a question that does not exist", zap.Error(err))
		}
		return nil, err
	}

	for _, a := range anomalies {
		monitoring.AnswerAnomalies.WithLabelValues(a.KindLabel()).Inc()
		log.Warn("answer anomaly", zap.Uint("question_id", a.QuestionID), zap.String("kind", a.KindLabel()), zap.String("detail", a.Detail))
	}

	if err := s.resultRepo.SaveResult(ctx, result); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			monitoring.FinalizeRejected.WithLabelValues("duplicate_attempt").Inc()
			return nil, fmt.Errorf("%w: %v", scoring.ErrDuplicateAttempt, err)
		}
		return nil, fmt.Errorf("save result: %w", err)
	}

	monitoring.ResultsFinalized.WithLabelValues(string(result.Status)).Inc()
	log.Info("attempt finalized",
		zap.String("status", string(result.Status)),
		zap.Float64("total", result.Score.Total),
		zap.Int("time_taken", result.TimeTaken))

	if s.notifier != nil {
		s.notifier.ResultFinalized(result.StudentID, result.TestID, result.Status)
	}
	return result, nil
}

// AutoSubmitBatch closes timed-out attempts of one test concurrently. Each
// attempt succeeds or fails on its own; the output keeps the input order.
func (s *ResultService) AutoSubmitBatch(ctx context.Context, testID uint, attempts []entity.Attempt) []BatchItem {
	out := make([]BatchItem, len(attempts))

	var g errgroup.Group
	limit := s.ranking.AutoSubmitConcurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, a := range attempts {
		a.TestID = testID
		a.SubmitTime = nil
		g.Go(func() error {
			res, err := s.FinalizeAttempt(ctx, a, scoring.ModeAutoSubmit)
			out[i] = BatchItem{StudentID: a.StudentID, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, item := range out {
		if item.Err != nil {
			failed++
		}
	}
	s.logger.Info("auto-submit batch done",
		zap.Uint("test_id", testID),
		zap.Int("attempts", len(attempts)),
		zap.Int("failed", failed))
	return out
}

// RecomputeRanks rewrites the overall and center-wise ranks of every result
// of a test. Concurrent calls for the same test in this process share one
// run; across replicas the distributed lock serializes them.
func (s *ResultService) RecomputeRanks(ctx context.Context, testID uint) (*RankingSummary, error) {
	// joined callers share the run, so one caller cancelling must not abort it
	runCtx := context.WithoutCancel(ctx)
	v, err, _ := s.rankGroup.Do(strconv.FormatUint(uint64(testID), 10), func() (interface{}, error) {
		return s.recomputeRanks(runCtx, testID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RankingSummary), nil
}

func (s *ResultService) recomputeRanks(ctx context.Context, testID uint) (*RankingSummary, error) {
	runID := uuid.NewString()
	started := time.Now()
	log := s.logger.With(zap.Uint("test_id", testID), zap.String("run_id", runID))

	def, err := s.loadTest(ctx, testID)
	if err != nil {
		if errors.Is(err, scoring.ErrMissingTest) {
			monitoring.RankingRuns.WithLabelValues("missing_test").Inc()
			return nil, err
		}
		return nil, s.rankingFailed(log, "load test", err)
	}

	summary, err := s.rankLocked(ctx, testID)
	monitoring.RankingDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, s.rankingFailed(log, "recompute", err)
	}
	summary.RunID = runID
	summary.Duration = time.Since(started)

	monitoring.RankingRuns.WithLabelValues("success").Inc()
	log.Info("rankings updated",
		zap.Int("ranked", summary.Ranked),
		zap.Int("centers", summary.Centers),
		zap.Duration("duration", summary.Duration))

	if s.notifier != nil {
		s.notifier.RankingsUpdated(testID, summary.Ranked)
	}
	s.sendReport(def.Test, summary, log)
	return summary, nil
}

// rankLocked holds the test's ranking lock for the read-rank-write cycle only.
func (s *ResultService) rankLocked(ctx context.Context, testID uint) (*RankingSummary, error) {
	release, err := s.locker.Acquire(ctx, rankingLockKey(testID), s.ranking.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer release()

	results, err := s.resultRepo.ListResults(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.StudentID)
	}
	centers, err := s.centers.CentersOf(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve centers: %w", err)
	}

	updates := scoring.Rank(results, func(studentID string) (string, bool) {
		c, ok := centers[studentID]
		return c, ok
	})
	if err := s.resultRepo.UpdateRanks(ctx, testID, updates); err != nil {
		return nil, fmt.Errorf("update ranks: %w", err)
	}

	summary := &RankingSummary{TestID: testID, Ranked: len(updates)}
	seen := make(map[string]struct{})
	for i := range results {
		if c, ok := centers[results[i].StudentID]; ok && c != "" {
			seen[c] = struct{}{}
		}
		if results[i].Rank.Overall == 1 {
			summary.TopScore = results[i].Score.Total
		}
	}
	summary.Centers = len(seen)
	return summary, nil
}

func (s *ResultService) rankingFailed(log *zap.Logger, step string, err error) error {
	monitoring.RankingRuns.WithLabelValues("failed").Inc()
	log.Error("ranking failed", zap.String("step", step), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", scoring.ErrRankingFailed, step, err)
}

func (s *ResultService) sendReport(test *entity.Test, summary *RankingSummary, log *zap.Logger) {
	if s.email == nil || test == nil || test.OwnerEmail == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	report := RankingReport{
		TestID:    test.ID,
		TestTitle: test.Title,
		Ranked:    summary.Ranked,
		TopScore:  summary.TopScore,
		Centers:   summary.Centers,
		RunID:     summary.RunID,
	}
	if err := s.email.SendRankingReport(ctx, test.OwnerEmail, report); err != nil {
		log.Warn("ranking report not sent", zap.Error(err))
	}
}

func rankingLockKey(testID uint) string {
	return fmt.Sprintf("ranking:test:%d", testID)
}

func testCacheKey(testID uint) string {
	return fmt.Sprintf("test:%d:definition", testID)
}

// loadTest reads the test and its questions, going through the cache when
// one is configured. Definitions are cached only once the test has started
// and every question resolved.
func (s *ResultService) loadTest(ctx context.Context, testID uint) (*testDefinition, error) {
	key := testCacheKey(testID)
	if s.cache != nil {
		var cached testDefinition
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil && cached.Test != nil {
			return &cached, nil
		}
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Warn("test cache read failed", zap.Uint("test_id", testID), zap.Error(err))
		}
	}

	test, err := s.testRepo.GetTest(ctx, testID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: id %d", scoring.ErrMissingTest, testID)
		}
		return nil, fmt.Errorf("load test %d: %w", testID, err)
	}
	questions, err := s.testRepo.GetQuestions(ctx, test.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("load questions of test %d: %w", testID, err)
	}
	def := &testDefinition{Test: test, Questions: questions}

	if s.cache != nil && s.testTTL > 0 && !s.now().Before(test.StartDate) && len(questions) == len(test.QuestionIDs) {
		if err := s.cache.SetJSON(ctx, key, def, s.testTTL); err != nil {
			s.logger.Warn("test cache write failed", zap.Uint("test_id", testID), zap.Error(err))
		}
	}
	return def, nil
}

// checkCenter rejects students whose known center is outside the test's
// allowed list. Students missing from the directory are let through.
func (s *ResultService) checkCenter(ctx context.Context, test *entity.Test, studentID string) error {
	if len(test.AllowedCenters) == 0 || s.centers == nil {
		return nil
	}
	center, err := s.centers.CenterOf(ctx, studentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("resolve center: %w", err)
	}
	if !test.IsCenterAllowed(center) {
		return fmt.Errorf("%w: center %s is not allowed for test %d", apperrors.ErrForbidden, center, test.ID)
	}
	return nil
}

// GetStudentResult returns the result of one student
func (s *ResultService) GetStudentResult(ctx context.Context, studentID string, testID uint) (*entity.Result, error) {
	return s.resultRepo.GetStudentResult(ctx, studentID, testID)
}

// NormalizePage clamps paging parameters to the accepted range
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// GetTestResults returns one leaderboard page, optionally filtered by center
func (s *ResultService) GetTestResults(ctx context.Context, testID uint, centerID string, page, pageSize int) ([]entity.Result, int64, error) {
	page, pageSize = NormalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	return s.resultRepo.GetTestResults(ctx, testID, repository.ResultFilter{CenterID: centerID}, pageSize, offset)
}

// ExportResults returns every result of a test in leaderboard order with
// centers resolved. Unranked results come last.
func (s *ResultService) ExportResults(ctx context.Context, testID uint) ([]ExportRow, error) {
	results, err := s.resultRepo.ListResults(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.StudentID)
	}
	centers, err := s.centers.CentersOf(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve centers: %w", err)
	}

	rows := make([]ExportRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, ExportRow{Result: r, CenterID: centers[r.StudentID]})
	}
	slices.SortFunc(rows, func(a, b ExportRow) int {
		ar, br := a.Result.Rank.Overall, b.Result.Rank.Overall
		if (ar == 0) != (br == 0) {
			if ar == 0 {
				return 1
			}
			return -1
		}
		if c := cmp.Compare(ar, br); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Result.Score.Total, a.Result.Score.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Result.StudentID, b.Result.StudentID)
	})
	return rows, nil
}

package handler

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/yourusername/exam-api/internal/domain/entity"
	"github.com/yourusername/exam-api/internal/handler/dto"
	"github.com/yourusername/exam-api/internal/middleware"
	apperrors "github.com/yourusername/exam-api/internal/pkg/errors"
	"github.com/yourusername/exam-api/internal/service"
	"github.com/yourusername/exam-api/internal/service/scoring"
)

// ResultUseCase is the part of ResultService used by the handler
type ResultUseCase interface {
	FinalizeAttempt(ctx context.Context, attempt entity.Attempt, mode scoring.Mode) (*entity.Result, error)
	AutoSubmitBatch(ctx context.Context, testID uint, attempts []entity.Attempt) []service.BatchItem
	RecomputeRanks(ctx context.Context, testID uint) (*service.RankingSummary, error)
	GetStudentResult(ctx context.Context, studentID string, testID uint) (*entity.Result, error)
	GetTestResults(ctx context.Context, testID uint, centerID string, page, pageSize int) ([]entity.Result, int64, error)
	ExportResults(ctx context.Context, testID uint) ([]service.ExportRow, error)
}

// RankingPlanner is the part of RankingScheduler used by the handler
type RankingPlanner interface {
	ScheduleByID(ctx context.Context, testID uint) (time.Time, error)
	Cancel(testID uint) bool
}

// ResultHandler serves submissions, leaderboards and rank recomputation
type ResultHandler struct {
	results   ResultUseCase
	scheduler RankingPlanner
	logger    *zap.Logger
}

// NewResultHandler creates a new result handler
func NewResultHandler(results ResultUseCase, scheduler RankingPlanner, logger *zap.Logger) *ResultHandler {
	return &ResultHandler{
		results:   results,
		scheduler: scheduler,
		logger:    logger.Named("ResultHandler"),
	}
}

// SubmitAttempt finalizes the caller's attempt
// POST /api/tests/:id/submit
func (h *ResultHandler) SubmitAttempt(c *gin.Context) {
	testID := c.MustGet("testID").(uint)
	studentID := c.GetString(middleware.ContextStudentID)
	if studentID == "" {
		h.handleResultError(c, apperrors.ErrUnauthorized)
		return
	}

	var req dto.SubmitAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.results.FinalizeAttempt(c.Request.Context(), req.ToAttempt(studentID, testID), scoring.ModeStudentSubmit)
	if err != nil {
		h.handleResultError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewResultResponse(result, true))
}

// AutoSubmit closes a batch of timed-out attempts
// POST /api/tests/:id/auto-submit
func (h *ResultHandler) AutoSubmit(c *gin.Context) {
	testID := c.MustGet("testID").(uint)

	var req dto.AutoSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := h.results.AutoSubmitBatch(c.Request.Context(), testID, req.ToAttempts(testID))
	c.JSON(http.StatusOK, dto.NewBatchResponse(items))
}

// RecomputeRanks ranks a test right away
// POST /api/tests/:id/rankings
func (h *ResultHandler) RecomputeRanks(c *gin.Context) {
	testID := c.MustGet("testID").(uint)

	summary, err := h.results.RecomputeRanks(c.Request.Context(), testID)
	if err != nil {
		h.handleResultError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewRankingResponse(summary))
}

// ScheduleRanking plans recomputation at the end of the test window
// POST /api/tests/:id/ranking-schedule
func (h *ResultHandler) ScheduleRanking(c *gin.Context) {
	testID := c.MustGet("testID").(uint)

	at, err := h.scheduler.ScheduleByID(c.Request.Context(), testID)
	if err != nil {
		h.handleResultError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"test_id": testID, "run_at": at})
}

// CancelRanking drops a planned recomputation
// DELETE /api/tests/:id/ranking-schedule
func (h *ResultHandler) CancelRanking(c *gin.Context) {
	testID := c.MustGet("testID").(uint)

	if !h.scheduler.Cancel(testID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no ranking scheduled for this test"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetTestResults returns one leaderboard page
// GET /api/tests/:id/results?page=1&page_size=10&center=C1
func (h *ResultHandler) GetTestResults(c *gin.Context) {
	testID := c.MustGet("testID").(uint)

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if err != nil {
		pageSize = 0
	}
	page, pageSize = service.NormalizePage(page, pageSize)

	results, total, err := h.results.GetTestResults(c.Request.Context(), testID, c.Query("center"), page, pageSize)
	if err != nil {
		h.handleResultError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPaginatedResultResponse(results, total, page, pageSize))
}

// GetMyResult returns the caller's result with per-answer detail
// GET /api/tests/:id/my-result
func (h *ResultHandler) GetMyResult(c *gin.Context) {
	testID := c.MustGet("testID").(uint)
	studentID := c.GetString(middleware.ContextStudentID)
	if studentID == "" {
		h.handleResultError(c, apperrors.ErrUnauthorized)
		return
	}

	result, err := h.results.GetStudentResult(c.Request.Context(), studentID, testID)
	if err != nil {
		h.handleResultError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewResultResponse(result, true))
}

// ExportResults streams every result of a test
// GET /api/tests/:id/results/export?format=csv|xlsx
func (h *ResultHandler) ExportResults(c *gin.Context) {
	testID := c.MustGet("testID").(uint)
	format := c.DefaultQuery("format", "csv")

	rows, err := h.results.ExportResults(c.Request.Context(), testID)
	if err != nil {
		h.handleResultError(c, err)
		return
	}

	filename := fmt.Sprintf("test_%d_results_%s", testID, time.Now().Format("2006-01-02"))

	switch format {
	case "xlsx":
		h.exportXLSX(c, rows, filename)
	default:
		h.exportCSV(c, rows, filename)
	}
}

var exportHeaders = []string{
	"Rank", "Center Rank", "Student", "Center", "Total", "Correct", "Incorrect", "Unattempted", "Percentage", "Time Taken (s)", "Status",
}

func exportRecord(r service.ExportRow) []interface{} {
	return []interface{}{
		r.Result.Rank.Overall,
		r.Result.Rank.CenterWise,
		sanitizeForExcel(r.Result.StudentID),
		sanitizeForExcel(r.CenterID),
		r.Result.Score.Total,
		r.Result.Score.Correct,
		r.Result.Score.Incorrect,
		r.Result.Score.Unattempted,
		scoring.RoundPercentage(r.Result.Score.Percentage),
		r.Result.TimeTaken,
		string(r.Result.Status),
	}
}

// exportCSV writes a UTF-8 CSV with a BOM so spreadsheet tools detect the encoding
func (h *ResultHandler) exportCSV(c *gin.Context, rows []service.ExportRow, filename string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))

	c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	writer.Write(exportHeaders)
	for _, r := range rows {
		record := exportRecord(r)
		line := make([]string, len(record))
		for i, v := range record {
			line[i] = fmt.Sprint(v)
		}
		if err := writer.Write(line); err != nil {
			h.logger.Error("csv export write failed", zap.Uint("test_id", r.Result.TestID), zap.Error(err))
			return
		}
	}
}

// exportXLSX writes the workbook through a StreamWriter to keep memory flat
func (h *ResultHandler) exportXLSX(c *gin.Context, rows []service.ExportRow, filename string) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Results"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		h.logger.Error("create stream writer", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}

	headers := make([]interface{}, len(exportHeaders))
	for i, v := range exportHeaders {
		headers[i] = v
	}
	if err := sw.SetRow("A1", headers); err != nil {
		h.logger.Error("write xlsx header", zap.Error(err))
	}

	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, exportRecord(r)); err != nil {
			h.logger.Error("write xlsx row", zap.Int("row", i+2), zap.Error(err))
		}
	}

	if err := sw.Flush(); err != nil {
		h.logger.Error("flush xlsx", zap.Error(err))
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))
	if err := f.Write(c.Writer); err != nil {
		h.logger.Error("write xlsx response", zap.Error(err))
	}
}

// sanitizeForExcel guards against formula injection in Excel/CSV
func sanitizeForExcel(s string) string {
	if len(s) == 0 {
		return s
	}
	if s[0] == '=' || s[0] == '+' || s[0] == '-' || s[0] == '@' || s[0] == '\t' || s[0] == '\r' {
		return "'" + s
	}
	return s
}

func (h *ResultHandler) handleResultError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scoring.ErrAlreadySubmitted),
		errors.Is(err, scoring.ErrDuplicateAttempt),
		errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, scoring.ErrMissingTest), errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, scoring.ErrRankingFailed), errors.Is(err, apperrors.ErrUnavailable):
		h.logger.Warn("service unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable, retry later"})
	default:
		h.logger.Error("internal server error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

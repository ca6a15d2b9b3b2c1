package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// RankingReport summarizes one completed rank recomputation.
type RankingReport struct {
	TestID    uint
	TestTitle string
	Ranked    int
	TopScore  float64
	Centers   int
	RunID     string
}

// EmailService sends ranking reports to test owners.
type EmailService interface {
	SendRankingReport(ctx context.Context, toEmail string, report RankingReport) error
}

// NoopEmailService is used when no email provider is configured.
type NoopEmailService struct {
	logger *zap.Logger
}

func NewNoopEmailService(logger *zap.Logger) *NoopEmailService {
	return &NoopEmailService{logger: logger.Named("EmailService")}
}

func (s *NoopEmailService) SendRankingReport(ctx context.Context, toEmail string, report RankingReport) error {
	s.logger.Debug("noop ranking report", zap.String("to", toEmail), zap.Uint("test_id", report.TestID))
	return nil
}

// ResendEmailService sends emails via Resend REST API.
type ResendEmailService struct {
	from   string
	client *resend.Client
}

func NewResendEmailService(apiKey, from string) (*ResendEmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &ResendEmailService{
		from:   from,
		client: resend.NewClient(apiKey),
	}, nil
}

// SendRankingReport is idempotent per ranking run.
func (s *ResendEmailService) SendRankingReport(ctx context.Context, toEmail string, report RankingReport) error {
	if toEmail == "" {
		return fmt.Errorf("toEmail is required")
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: fmt.Sprintf("Rankings ready: %s", report.TestTitle),
		Text:    rankingReportText(report),
		Html:    rankingReportHTML(report),
	}
	options := &resend.SendEmailOptions{}
	if report.RunID != "" {
		options.IdempotencyKey = fmt.Sprintf("ranking-%d-%s", report.TestID, report.RunID)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, err := s.client.Emails.SendWithOptions(ctx, params, options)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}
		return fmt.Errorf("resend send failed: %w", err)
	}
	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func rankingReportText(r RankingReport) string {
	return fmt.Sprintf("Rankings for %q (test #%d) have been computed.\nRanked results: %d\nTop score: %s\nCenters: %d\n",
		r.TestTitle, r.TestID, r.Ranked, strconv.FormatFloat(r.TopScore, 'f', -1, 64), r.Centers)
}

func rankingReportHTML(r RankingReport) string {
	return fmt.Sprintf("<p>Rankings for <strong>%s</strong> (test #%d) have been computed.</p>"+
		"<ul><li>Ranked results: %d</li><li>Top score: %s</li><li>Centers: %d</li></ul>",
		html.EscapeString(r.TestTitle), r.TestID, r.Ranked, strconv.FormatFloat(r.TopScore, 'f', -1, 64), r.Centers)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}
	return 0, false
}

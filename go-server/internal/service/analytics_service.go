package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/analytics"
	"github.com/fonsecaaso/shortlink/go-server/internal/metrics"
	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

// AnalyticsStore is the read side the analytics report needs
type AnalyticsStore interface {
	FindLinkByShortCode(ctx context.Context, code string) (*model.Link, error)
	FindLinksByOriginalURL(ctx context.Context, originalURL string) ([]model.Link, error)
	QueryClickEvents(ctx context.Context, linkIDs []int64, start, end time.Time) ([]model.ClickEvent, error)
}

// ReportRequest selects a link and a time window. Start and End are only
// read when Range is "custom".
type ReportRequest struct {
	ShortCode string
	Range     string
	Start     string
	End       string
}

type AnalyticsService struct {
	store  AnalyticsStore
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

func NewAnalyticsService(store AnalyticsStore, loc *time.Location) *AnalyticsService {
	if loc == nil {
		loc = time.UTC
	}
	return &AnalyticsService{
		store:  store,
		loc:    loc,
		now:    time.Now,
		logger: zap.L().With(zap.String("component", "AnalyticsService")),
	}
}

// Report builds the analytics report of one link. Unknown codes return
// repository.ErrLinkNotFound.
func (s *AnalyticsService) Report(ctx context.Context, req ReportRequest) (*model.AnalyticsReport, error) {
	ctx, span := tracer.Start(ctx, "AnalyticsService.Report")
	defer span.End()

	start := time.Now()
	window := analytics.ResolveWindow(req.Range, req.Start, req.End, s.now(), s.loc)
	span.SetAttributes(
		attribute.String("short_code", req.ShortCode),
		attribute.String("range", window.Range),
	)

	link, err := s.store.FindLinkByShortCode(ctx, req.ShortCode)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	siblings, err := s.store.FindLinksByOriginalURL(ctx, link.OriginalURL)
	if err != nil {
		span.SetStatus(codes.Error, "sibling lookup failed")
		s.logger.Error("Failed to load sibling links", zap.Error(err), zap.String("short_code", link.ShortCode))
		return nil, err
	}

	ids := []int64{link.ID}
	for _, sib := range siblings {
		if sib.ID != link.ID {
			ids = append(ids, sib.ID)
		}
	}

	events, err := s.store.QueryClickEvents(ctx, ids, window.Start, window.End)
	if err != nil {
		span.SetStatus(codes.Error, "click query failed")
		s.logger.Error("Failed to query clicks", zap.Error(err), zap.String("short_code", link.ShortCode))
		return nil, err
	}

	report := analytics.BuildReport(analytics.ReportInput{
		Link:     link,
		Siblings: siblings,
		Events:   events,
		Window:   window,
		Location: s.loc,
	})

	metrics.AnalyticsReportDuration.WithLabelValues(window.Range).Observe(time.Since(start).Seconds())
	s.logger.Debug("Analytics report built",
		zap.String("short_code", link.ShortCode),
		zap.String("range", window.Range),
		zap.Int("events", len(events)),
		zap.Int("siblings", len(siblings)),
	)
	return report, nil
}

package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/metrics"
	"github.com/fonsecaaso/shortlink/go-server/internal/model"
	"github.com/fonsecaaso/shortlink/go-server/internal/repository"
)

var tracer = otel.Tracer("github.com/fonsecaaso/shortlink/go-server/internal/service")

// OutcomeKind is the result of resolving a short code
type OutcomeKind int

const (
	OutcomeRedirect OutcomeKind = iota
	OutcomeNotFound
	OutcomeExpired
	OutcomePasswordRequired
	OutcomeInvalidPassword
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRedirect:
		return "redirect"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeExpired:
		return "expired"
	case OutcomePasswordRequired:
		return "password_required"
	case OutcomeInvalidPassword:
		return "invalid_password"
	default:
		return "unknown"
	}
}

// Outcome carries the resolved link for every kind except OutcomeNotFound.
type Outcome struct {
	Kind OutcomeKind
	Link *model.Link
}

// ResolveRequest is one resolution attempt. A nil Password means none was
// submitted; an empty one is a submitted empty password.
type ResolveRequest struct {
	ShortCode string
	Password  *string
	Meta      model.ClickMeta
}

// ResolveStore is the subset of the store the resolution path touches
type ResolveStore interface {
	FindLinkByShortCode(ctx context.Context, code string) (*model.Link, error)
	IncrementClickAndRecordEvent(ctx context.Context, link *model.Link, event *model.ClickEvent) error
}

// ResolveService turns a short code into a redirect, gated by expiry and
// password, recording a click for every successful resolution.
type ResolveService struct {
	store  ResolveStore
	now    func() time.Time
	logger *zap.Logger
}

func NewResolveService(store ResolveStore) *ResolveService {
	return &ResolveService{
		store:  store,
		now:    time.Now,
		logger: zap.L().With(zap.String("component", "ResolveService")),
	}
}

// Resolve never returns an error for business outcomes; err is set only when
// the store fails.
func (s *ResolveService) Resolve(ctx context.Context, req ResolveRequest) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "ResolveService.Resolve",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("short_code", req.ShortCode)),
	)
	defer span.End()

	outcome, err := s.resolve(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failure")
		metrics.RecordResolution(ctx, "error")
		return Outcome{}, err
	}

	span.SetAttributes(attribute.String("outcome", outcome.Kind.String()))
	metrics.RecordResolution(ctx, outcome.Kind.String())
	return outcome, nil
}

func (s *ResolveService) resolve(ctx context.Context, req ResolveRequest) (Outcome, error) {
	link, err := s.store.FindLinkByShortCode(ctx, req.ShortCode)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return Outcome{Kind: OutcomeNotFound}, nil
		}
		s.logger.Error("Failed to look up link", zap.Error(err), zap.String("short_code", req.ShortCode))
		return Outcome{}, err
	}

	now := s.now()
	if link.IsExpired(now) {
		return Outcome{Kind: OutcomeExpired, Link: link}, nil
	}

	if link.HasPassword() {
		if req.Password == nil {
			return Outcome{Kind: OutcomePasswordRequired, Link: link}, nil
		}
		if !passwordMatches(*req.Password, *link.Password) {
			s.logger.Info("Rejected password attempt", zap.String("short_code", link.ShortCode))
			return Outcome{Kind: OutcomeInvalidPassword, Link: link}, nil
		}
	}

	event := model.NewClickEvent(link.ID, now, req.Meta)
	if err := s.store.IncrementClickAndRecordEvent(ctx, link, event); err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			// deleted between lookup and write
			return Outcome{Kind: OutcomeNotFound}, nil
		}
		s.logger.Error("Failed to record click", zap.Error(err), zap.String("short_code", link.ShortCode))
		return Outcome{}, err
	}
	metrics.ClicksRecordedTotal.Inc()

	s.logger.Debug("Link resolved",
		zap.String("short_code", link.ShortCode),
		zap.Int64("click_count", link.ClickCount),
	)
	return Outcome{Kind: OutcomeRedirect, Link: link}, nil
}

// passwordMatches compares trimmed values byte for byte.
func passwordMatches(submitted, stored string) bool {
	a := []byte(strings.TrimSpace(submitted))
	b := []byte(strings.TrimSpace(stored))
	return subtle.ConstantTimeCompare(a, b) == 1
}

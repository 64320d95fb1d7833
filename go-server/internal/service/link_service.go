package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/analytics"
	"github.com/fonsecaaso/shortlink/go-server/internal/metrics"
	"github.com/fonsecaaso/shortlink/go-server/internal/model"
	"github.com/fonsecaaso/shortlink/go-server/internal/repository"
)

const (
	idLength                = 6
	idAlphabet              = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxIDGenerationAttempts = 10
	maxShortCodeLength      = 50

	PageSize        = 20
	MaxCodeOptions  = 20
	MaxBatchTitles  = 100
	codeLabelJoiner = " · "
)

var (
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrInvalidShortCode = errors.New("invalid short code format")
	ErrInvalidExpiry    = errors.New("invalid expires_at")
	ErrEmptyTitles      = errors.New("titles must not be empty")
	ErrTooManyTitles    = errors.New("too many titles")
	ErrIDGenerationMax  = errors.New("failed to generate unique ID after max attempts")
)

// reservedCodes collide with top-level routes
var reservedCodes = map[string]bool{"api": true, "healthz": true, "metrics": true}

// CreateLinkInput is a single link creation request. Empty optional fields
// are treated as unset.
type CreateLinkInput struct {
	OriginalURL string
	Title       string
	ShortCode   string
	Password    string
	ExpiresAt   string
}

// BatchCreateInput creates one link per title, all to the same URL
type BatchCreateInput struct {
	OriginalURL string
	Titles      []string
	Password    string
	ExpiresAt   string
}

type LinkPage struct {
	Links    []model.Link
	Total    int64
	Page     int
	PageSize int
}

// CodeOption is one autocomplete entry
type CodeOption struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Host        string `json:"host"`
	OriginalURL string `json:"original_url"`
	Title       string `json:"title"`
}

type LinkService struct {
	repo   repository.LinkRepository
	loc    *time.Location
	logger *zap.Logger
}

func NewLinkService(repo repository.LinkRepository, loc *time.Location) *LinkService {
	if loc == nil {
		loc = time.UTC
	}
	return &LinkService{
		repo:   repo,
		loc:    loc,
		logger: zap.L().With(zap.String("component", "LinkService")),
	}
}

// Shorten creates a link, generating a short code when none is given
func (s *LinkService) Shorten(ctx context.Context, in CreateLinkInput) (*model.Link, error) {
	originalURL := strings.TrimSpace(in.OriginalURL)
	if !s.isValidURL(originalURL) {
		s.logger.Warn("Invalid URL provided", zap.String("url", in.OriginalURL))
		metrics.LinksCreatedTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidURL
	}

	expiresAt, err := s.parseExpiry(in.ExpiresAt)
	if err != nil {
		return nil, err
	}

	link := &model.Link{
		OriginalURL: originalURL,
		Title:       optional(in.Title),
		Password:    optional(in.Password),
		ExpiresAt:   expiresAt,
	}

	code := strings.TrimSpace(in.ShortCode)
	if code == "" {
		err = s.createWithGeneratedCode(ctx, link)
	} else {
		if !s.isValidCustomCode(code) {
			return nil, ErrInvalidShortCode
		}
		link.ShortCode = code
		err = s.repo.CreateLink(ctx, link)
	}
	if err != nil {
		metrics.LinksCreatedTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.LinksCreatedTotal.WithLabelValues("success").Inc()
	s.logger.Info("Link created",
		zap.String("short_code", link.ShortCode),
		zap.Bool("has_password", link.HasPassword()),
	)
	return link, nil
}

// BatchCreate creates one generated-code link per non-blank title
func (s *LinkService) BatchCreate(ctx context.Context, in BatchCreateInput) ([]model.Link, error) {
	originalURL := strings.TrimSpace(in.OriginalURL)
	if !s.isValidURL(originalURL) {
		return nil, ErrInvalidURL
	}

	titles := make([]string, 0, len(in.Titles))
	for _, t := range in.Titles {
		if t = strings.TrimSpace(t); t != "" {
			titles = append(titles, t)
		}
	}
	if len(titles) == 0 {
		return nil, ErrEmptyTitles
	}
	if len(titles) > MaxBatchTitles {
		return nil, fmt.Errorf("%w: at most %d per batch", ErrTooManyTitles, MaxBatchTitles)
	}

	expiresAt, err := s.parseExpiry(in.ExpiresAt)
	if err != nil {
		return nil, err
	}

	links := make([]model.Link, 0, len(titles))
	for _, title := range titles {
		link := &model.Link{
			OriginalURL: originalURL,
			Title:       optional(title),
			Password:    optional(in.Password),
			ExpiresAt:   expiresAt,
		}
		if err := s.createWithGeneratedCode(ctx, link); err != nil {
			metrics.LinksCreatedTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.LinksCreatedTotal.WithLabelValues("success").Inc()
		links = append(links, *link)
	}

	s.logger.Info("Batch created", zap.String("original_url", originalURL), zap.Int("count", len(links)))
	return links, nil
}

// List returns one page of links, newest first. Pages start at 1.
func (s *LinkService) List(ctx context.Context, page int) (*LinkPage, error) {
	if page < 1 {
		page = 1
	}
	links, total, err := s.repo.ListLinks(ctx, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, err
	}
	return &LinkPage{Links: links, Total: total, Page: page, PageSize: PageSize}, nil
}

func (s *LinkService) Get(ctx context.Context, code string) (*model.Link, error) {
	return s.repo.GetLink(ctx, code)
}

// SearchOptions matches query against short codes and titles
func (s *LinkService) SearchOptions(ctx context.Context, query string) ([]CodeOption, error) {
	links, err := s.repo.SearchLinks(ctx, strings.TrimSpace(query), MaxCodeOptions)
	if err != nil {
		return nil, err
	}

	options := make([]CodeOption, 0, len(links))
	for _, l := range links {
		title := l.DisplayTitle()
		host := hostOf(l.OriginalURL)

		label := title + codeLabelJoiner + l.ShortCode
		if host != "" {
			label = title + codeLabelJoiner + host + codeLabelJoiner + l.ShortCode
		}
		options = append(options, CodeOption{
			Label:       label,
			Value:       l.ShortCode,
			Host:        host,
			OriginalURL: l.OriginalURL,
			Title:       title,
		})
	}
	return options, nil
}

func (s *LinkService) Delete(ctx context.Context, code string) error {
	if err := s.repo.DeleteLink(ctx, code); err != nil {
		return err
	}
	s.logger.Info("Link deleted", zap.String("short_code", code))
	return nil
}

// createWithGeneratedCode retries when a concurrent writer takes the code
// between the existence check and the insert.
func (s *LinkService) createWithGeneratedCode(ctx context.Context, link *model.Link) error {
	for attempt := 0; attempt < maxIDGenerationAttempts; attempt++ {
		code, err := s.generateUniqueID(ctx)
		if err != nil {
			return err
		}
		link.ShortCode = code
		err = s.repo.CreateLink(ctx, link)
		if !errors.Is(err, repository.ErrShortCodeTaken) {
			return err
		}
	}
	return ErrIDGenerationMax
}

func (s *LinkService) generateUniqueID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxIDGenerationAttempts; attempt++ {
		id := s.createID()
		exists, err := s.repo.ShortCodeExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	s.logger.Error("Short code space exhausted", zap.Int("attempts", maxIDGenerationAttempts))
	return "", ErrIDGenerationMax
}

func (s *LinkService) createID() string {
	id := make([]byte, idLength)
	for i := range id {
		randomIndex, err := rand.Int(rand.Reader, big.NewInt(int64(len(idAlphabet))))
		if err != nil {
			panic(fmt.Sprintf("failed to generate random number: %v", err))
		}
		id[i] = idAlphabet[randomIndex.Int64()]
	}
	return string(id)
}

func (s *LinkService) isValidURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// isValidCustomCode accepts [A-Za-z0-9_-]{1,50} outside the reserved words.
func (s *LinkService) isValidCustomCode(code string) bool {
	if len(code) > maxShortCodeLength || reservedCodes[strings.ToLower(code)] {
		return false
	}
	for _, char := range code {
		if !((char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') || char == '-' || char == '_') {
			return false
		}
	}
	return true
}

func (s *LinkService) parseExpiry(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := analytics.ParseTimestamp(raw, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpiry, err)
	}
	return &t, nil
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

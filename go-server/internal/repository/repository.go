package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

var (
	ErrLinkNotFound   = errors.New("link not found")
	ErrShortCodeTaken = errors.New("short code already exists")
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already exists")
	ErrDatabaseError  = errors.New("database error")
)

const dbTimeout = 5 * time.Second

// LinkRepository defines the link record operations
type LinkRepository interface {
	CreateLink(ctx context.Context, link *model.Link) error
	ShortCodeExists(ctx context.Context, code string) (bool, error)
	// FindLinkByShortCode may serve from cache; ClickCount can lag behind.
	FindLinkByShortCode(ctx context.Context, code string) (*model.Link, error)
	// GetLink always reads the store.
	GetLink(ctx context.Context, code string) (*model.Link, error)
	FindLinksByOriginalURL(ctx context.Context, originalURL string) ([]model.Link, error)
	ListLinks(ctx context.Context, limit, offset int) ([]model.Link, int64, error)
	SearchLinks(ctx context.Context, query string, limit int) ([]model.Link, error)
	DeleteLink(ctx context.Context, code string) error
}

// ClickRepository is the click event log
type ClickRepository interface {
	// IncrementClickAndRecordEvent inserts event and bumps link.ClickCount in
	// one transaction. On success event.ID and link.ClickCount are updated.
	IncrementClickAndRecordEvent(ctx context.Context, link *model.Link, event *model.ClickEvent) error
	// QueryClickEvents returns events of the given links with OccurredAt in
	// [start, end], ordered by time.
	QueryClickEvents(ctx context.Context, linkIDs []int64, start, end time.Time) ([]model.ClickEvent, error)
}

// UserRepository stores local accounts
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Store is a complete backend
type Store interface {
	LinkRepository
	ClickRepository
	UserRepository
	Ping(ctx context.Context) error
	Close()
}

// likePattern builds a LIKE pattern matching query anywhere, with '\' as escape.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}

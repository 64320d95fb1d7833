package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

const (
	pgUniqueViolation = "23505"

	linkColumns  = "id, short_code, original_url, title, password, click_count, created_at, updated_at, expires_at"
	clickColumns = "id, link_id, clicked_at, ip_address, user_agent, referer"
)

// PostgresStore implements Store using PostgreSQL, with an optional Redis
// cache in front of short code lookups
type PostgresStore struct {
	db     *pgxpool.Pool
	cache  *linkCache
	logger *zap.Logger
}

// NewPostgresStore creates a new PostgresStore. redisClient may be nil.
func NewPostgresStore(db *pgxpool.Pool, redisClient *redis.Client, cacheTTL time.Duration) *PostgresStore {
	return &PostgresStore{
		db:     db,
		cache:  newLinkCache(redisClient, cacheTTL),
		logger: zap.L().With(zap.String("component", "PostgresStore")),
	}
}

func (r *PostgresStore) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

func (r *PostgresStore) Close() {
	r.db.Close()
	r.cache.close()
}

// CreateLink inserts a link and fills in its generated fields
func (r *PostgresStore) CreateLink(ctx context.Context, link *model.Link) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := r.db.QueryRow(ctx,
		`INSERT INTO links (short_code, original_url, title, password, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, click_count, created_at, updated_at`,
		link.ShortCode, link.OriginalURL, link.Title, link.Password, link.ExpiresAt,
	).Scan(&link.ID, &link.ClickCount, &link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrShortCodeTaken
		}
		r.logger.Error("Failed to insert link", zap.Error(err), zap.String("short_code", link.ShortCode))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	link.CreatedAt = link.CreatedAt.UTC()
	link.UpdatedAt = link.UpdatedAt.UTC()
	return nil
}

// ShortCodeExists checks if a given short code is already allocated
func (r *PostgresStore) ShortCodeExists(ctx context.Context, code string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM links WHERE short_code = $1)", code).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check short code", zap.Error(err), zap.String("short_code", code))
		return false, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return exists, nil
}

// FindLinkByShortCode retrieves a link, checking the cache first
func (r *PostgresStore) FindLinkByShortCode(ctx context.Context, code string) (*model.Link, error) {
	if link, ok := r.cache.get(ctx, code); ok {
		r.logger.Debug("Link found in cache", zap.String("short_code", code))
		return link, nil
	}

	link, err := r.GetLink(ctx, code)
	if err != nil {
		return nil, err
	}

	r.cache.set(ctx, link)
	return link, nil
}

// GetLink retrieves a link from the database
func (r *PostgresStore) GetLink(ctx context.Context, code string) (*model.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	link, err := scanPgLink(r.db.QueryRow(ctx, "SELECT "+linkColumns+" FROM links WHERE short_code = $1", code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("Link not found", zap.String("short_code", code))
			return nil, ErrLinkNotFound
		}
		r.logger.Error("Database query error", zap.Error(err), zap.String("short_code", code))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return link, nil
}

// FindLinksByOriginalURL returns every link pointing at originalURL, oldest first
func (r *PostgresStore) FindLinksByOriginalURL(ctx context.Context, originalURL string) ([]model.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, "SELECT "+linkColumns+" FROM links WHERE original_url = $1 ORDER BY id", originalURL)
	if err != nil {
		r.logger.Error("Database query error", zap.Error(err), zap.String("original_url", originalURL))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return collectPgLinks(rows)
}

// ListLinks returns a page of links, newest first, and the total count
func (r *PostgresStore) ListLinks(ctx context.Context, limit, offset int) ([]model.Link, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM links").Scan(&total); err != nil {
		r.logger.Error("Failed to count links", zap.Error(err))
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	rows, err := r.db.Query(ctx,
		"SELECT "+linkColumns+" FROM links ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		r.logger.Error("Failed to list links", zap.Error(err))
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	links, err := collectPgLinks(rows)
	if err != nil {
		return nil, 0, err
	}
	return links, total, nil
}

// SearchLinks matches query against short codes and titles, case-insensitively
func (r *PostgresStore) SearchLinks(ctx context.Context, query string, limit int) ([]model.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if query == "" {
		rows, err = r.db.Query(ctx,
			"SELECT "+linkColumns+" FROM links ORDER BY created_at DESC, id DESC LIMIT $1", limit)
	} else {
		rows, err = r.db.Query(ctx,
			"SELECT "+linkColumns+` FROM links
			WHERE short_code ILIKE $1 ESCAPE '\' OR title ILIKE $1 ESCAPE '\'
			ORDER BY created_at DESC, id DESC LIMIT $2`,
			likePattern(query), limit)
	}
	if err != nil {
		r.logger.Error("Failed to search links", zap.Error(err), zap.String("query", query))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return collectPgLinks(rows)
}

// DeleteLink removes a link; its clicks cascade
func (r *PostgresStore) DeleteLink(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, "DELETE FROM links WHERE short_code = $1", code)
	if err != nil {
		r.logger.Error("Failed to delete link", zap.Error(err), zap.String("short_code", code))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	r.cache.evict(ctx, code)
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	r.logger.Info("Link deleted", zap.String("short_code", code))
	return nil
}

// IncrementClickAndRecordEvent records a click and bumps the counter atomically
func (r *PostgresStore) IncrementClickAndRecordEvent(ctx context.Context, link *model.Link, event *model.ClickEvent) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to start transaction", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback(ctx)

	var clickCount int64
	err = tx.QueryRow(ctx,
		"UPDATE links SET click_count = click_count + 1, updated_at = NOW() WHERE id = $1 RETURNING click_count",
		link.ID,
	).Scan(&clickCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLinkNotFound
		}
		r.logger.Error("Failed to increment click count", zap.Error(err), zap.Int64("link_id", link.ID))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	var eventID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO clicks (link_id, ip_address, user_agent, referer, clicked_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		link.ID, event.ClientAddress, event.UserAgent, event.Referer, event.OccurredAt,
	).Scan(&eventID)
	if err != nil {
		r.logger.Error("Failed to insert click", zap.Error(err), zap.Int64("link_id", link.ID))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	event.ID = eventID
	event.LinkID = link.ID
	link.ClickCount = clickCount
	return nil
}

// QueryClickEvents returns the clicks of linkIDs within [start, end]
func (r *PostgresStore) QueryClickEvents(ctx context.Context, linkIDs []int64, start, end time.Time) ([]model.ClickEvent, error) {
	if len(linkIDs) == 0 {
		return []model.ClickEvent{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx,
		"SELECT "+clickColumns+` FROM clicks
		WHERE link_id = ANY($1) AND clicked_at >= $2 AND clicked_at <= $3
		ORDER BY clicked_at, id`,
		linkIDs, start.UTC(), end.UTC())
	if err != nil {
		r.logger.Error("Failed to query clicks", zap.Error(err), zap.Int64s("link_ids", linkIDs))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	events := []model.ClickEvent{}
	for rows.Next() {
		var e model.ClickEvent
		if err := rows.Scan(&e.ID, &e.LinkID, &e.OccurredAt, &e.ClientAddress, &e.UserAgent, &e.Referer); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return events, nil
}

// CreateUser inserts an account
func (r *PostgresStore) CreateUser(ctx context.Context, user *model.User) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := r.db.QueryRow(ctx,
		`INSERT INTO users (id, username, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		user.ID, user.Username, user.Email, user.PasswordHash,
	).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrEmailTaken
		}
		r.logger.Error("Failed to insert user", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// GetUserByEmail retrieves an account by email
func (r *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	user := &model.User{}
	err := r.db.QueryRow(ctx,
		"SELECT id::text, username, email, password_hash, created_at FROM users WHERE email = $1", email,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		r.logger.Error("Database query error", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return user, nil
}

func scanPgLink(row pgx.Row) (*model.Link, error) {
	var l model.Link
	if err := row.Scan(&l.ID, &l.ShortCode, &l.OriginalURL, &l.Title, &l.Password,
		&l.ClickCount, &l.CreatedAt, &l.UpdatedAt, &l.ExpiresAt); err != nil {
		return nil, err
	}
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	if l.ExpiresAt != nil {
		utc := l.ExpiresAt.UTC()
		l.ExpiresAt = &utc
	}
	return &l, nil
}

func collectPgLinks(rows pgx.Rows) ([]model.Link, error) {
	defer rows.Close()

	links := []model.Link{}
	for rows.Next() {
		l, err := scanPgLink(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		links = append(links, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return links, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

// SQLiteStore implements Store on SQLite (modernc or libsql). Timestamps are
// stored as Unix nanoseconds in UTC.
type SQLiteStore struct {
	db     *sql.DB
	cache  *linkCache
	now    func() time.Time
	logger *zap.Logger
}

// NewSQLiteStore creates a new SQLiteStore. redisClient may be nil.
func NewSQLiteStore(db *sql.DB, redisClient *redis.Client, cacheTTL time.Duration) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		cache:  newLinkCache(redisClient, cacheTTL),
		now:    time.Now,
		logger: zap.L().With(zap.String("component", "SQLiteStore")),
	}
}

func (r *SQLiteStore) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

func (r *SQLiteStore) Close() {
	r.db.Close()
	r.cache.close()
}

func (r *SQLiteStore) CreateLink(ctx context.Context, link *model.Link) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO links (short_code, original_url, title, password, click_count, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		link.ShortCode, link.OriginalURL, link.Title, link.Password, now.UnixNano(), now.UnixNano(), toNanos(link.ExpiresAt),
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return ErrShortCodeTaken
		}
		r.logger.Error("Failed to insert link", zap.Error(err), zap.String("short_code", link.ShortCode))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	link.ID = id
	link.ClickCount = 0
	link.CreatedAt = now
	link.UpdatedAt = now
	return nil
}

func (r *SQLiteStore) ShortCodeExists(ctx context.Context, code string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM links WHERE short_code = ?)", code).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check short code", zap.Error(err), zap.String("short_code", code))
		return false, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return exists, nil
}

func (r *SQLiteStore) FindLinkByShortCode(ctx context.Context, code string) (*model.Link, error) {
	if link, ok := r.cache.get(ctx, code); ok {
		return link, nil
	}

	link, err := r.GetLink(ctx, code)
	if err != nil {
		return nil, err
	}

	r.cache.set(ctx, link)
	return link, nil
}

func (r *SQLiteStore) GetLink(ctx context.Context, code string) (*model.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	link, err := scanSQLiteLink(r.db.QueryRowContext(ctx, "SELECT "+linkColumns+" FROM links WHERE short_code = ?", code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		r.logger.Error("Database query error", zap.Error(err), zap.String("short_code", code))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return link, nil
}

func (r *SQLiteStore) FindLinksByOriginalURL(ctx context.Context, originalURL string) ([]model.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, "SELECT "+linkColumns+" FROM links WHERE original_url = ? ORDER BY id", originalURL)
	if err != nil {
		r.logger.Error("Database query error", zap.Error(err), zap.String("original_url", originalURL))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return collectSQLiteLinks(rows)
}

func (r *SQLiteStore) ListLinks(ctx context.Context, limit, offset int) ([]model.Link, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM links").Scan(&total); err != nil {
		r.logger.Error("Failed to count links", zap.Error(err))
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+linkColumns+" FROM links ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		r.logger.Error("Failed to list links", zap.Error(err))
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	links, err := collectSQLiteLinks(rows)
	if err != nil {
		return nil, 0, err
	}
	return links, total, nil
}

func (r *SQLiteStore) SearchLinks(ctx context.Context, query string, limit int) ([]model.Link, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		rows *sql.Rows
		err  error
	)
	if query == "" {
		rows, err = r.db.QueryContext(ctx,
			"SELECT "+linkColumns+" FROM links ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	} else {
		pattern := likePattern(query)
		rows, err = r.db.QueryContext(ctx,
			"SELECT "+linkColumns+` FROM links
			WHERE short_code LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\'
			ORDER BY created_at DESC, id DESC LIMIT ?`,
			pattern, pattern, limit)
	}
	if err != nil {
		r.logger.Error("Failed to search links", zap.Error(err), zap.String("query", query))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return collectSQLiteLinks(rows)
}

func (r *SQLiteStore) DeleteLink(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to start transaction", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	// Clicks go first: remote libsql connections may not enforce the
	// ON DELETE CASCADE foreign key.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM clicks WHERE link_id IN (SELECT id FROM links WHERE short_code = ?)", code,
	); err != nil {
		r.logger.Error("Failed to delete clicks", zap.Error(err), zap.String("short_code", code))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM links WHERE short_code = ?", code)
	if err != nil {
		r.logger.Error("Failed to delete link", zap.Error(err), zap.String("short_code", code))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrLinkNotFound
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit delete", zap.Error(err), zap.String("short_code", code))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	r.cache.evict(ctx, code)
	return nil
}

func (r *SQLiteStore) IncrementClickAndRecordEvent(ctx context.Context, link *model.Link, event *model.ClickEvent) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to start transaction", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer tx.Rollback()

	var clickCount int64
	err = tx.QueryRowContext(ctx,
		"UPDATE links SET click_count = click_count + 1, updated_at = ? WHERE id = ? RETURNING click_count",
		r.now().UTC().UnixNano(), link.ID,
	).Scan(&clickCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrLinkNotFound
		}
		r.logger.Error("Failed to increment click count", zap.Error(err), zap.Int64("link_id", link.ID))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO clicks (link_id, ip_address, user_agent, referer, clicked_at) VALUES (?, ?, ?, ?, ?)`,
		link.ID, event.ClientAddress, event.UserAgent, event.Referer, event.OccurredAt.UTC().UnixNano(),
	)
	if err != nil {
		r.logger.Error("Failed to insert click", zap.Error(err), zap.Int64("link_id", link.ID))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	eventID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	event.ID = eventID
	event.LinkID = link.ID
	link.ClickCount = clickCount
	return nil
}

func (r *SQLiteStore) QueryClickEvents(ctx context.Context, linkIDs []int64, start, end time.Time) ([]model.ClickEvent, error) {
	if len(linkIDs) == 0 {
		return []model.ClickEvent{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	args := make([]any, 0, len(linkIDs)+2)
	for _, id := range linkIDs {
		args = append(args, id)
	}
	args = append(args, start.UTC().UnixNano(), end.UTC().UnixNano())
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(linkIDs)), ",")

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+clickColumns+" FROM clicks WHERE link_id IN ("+placeholders+
			") AND clicked_at >= ? AND clicked_at <= ? ORDER BY clicked_at, id",
		args...)
	if err != nil {
		r.logger.Error("Failed to query clicks", zap.Error(err), zap.Int64s("link_ids", linkIDs))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	events := []model.ClickEvent{}
	for rows.Next() {
		var (
			e               model.ClickEvent
			at              int64
			ip, ua, referer sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.LinkID, &at, &ip, &ua, &referer); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		e.OccurredAt = time.Unix(0, at).UTC()
		e.ClientAddress = fromNullString(ip)
		e.UserAgent = fromNullString(ua)
		e.Referer = fromNullString(referer)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return events, nil
}

func (r *SQLiteStore) CreateUser(ctx context.Context, user *model.User) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	now := r.now().UTC()
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Username, user.Email, user.PasswordHash, now.UnixNano())
	if err != nil {
		if isSQLiteUnique(err) {
			return ErrEmailTaken
		}
		r.logger.Error("Failed to insert user", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	user.CreatedAt = now
	return nil
}

func (r *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		user    model.User
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?", email,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		r.logger.Error("Database query error", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	user.CreatedAt = time.Unix(0, created).UTC()
	return &user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLink(row rowScanner) (*model.Link, error) {
	var (
		l                model.Link
		title, password  sql.NullString
		created, updated int64
		expires          sql.NullInt64
	)
	if err := row.Scan(&l.ID, &l.ShortCode, &l.OriginalURL, &title, &password,
		&l.ClickCount, &created, &updated, &expires); err != nil {
		return nil, err
	}
	l.Title = fromNullString(title)
	l.Password = fromNullString(password)
	l.CreatedAt = time.Unix(0, created).UTC()
	l.UpdatedAt = time.Unix(0, updated).UTC()
	if expires.Valid {
		t := time.Unix(0, expires.Int64).UTC()
		l.ExpiresAt = &t
	}
	return &l, nil
}

func collectSQLiteLinks(rows *sql.Rows) ([]model.Link, error) {
	defer rows.Close()

	links := []model.Link{}
	for rows.Next() {
		l, err := scanSQLiteLink(rows)
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

func toNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixNano()
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func isSQLiteUnique(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

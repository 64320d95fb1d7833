package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fonsecaaso/shortlink/go-server/internal/database"
	"github.com/fonsecaaso/shortlink/go-server/internal/model"
)

func newSQLiteTestStore(t *testing.T) Store {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewSQLiteClient(ctx, "file::memory:")
	require.NoError(t, err)
	require.NoError(t, database.MigrateSQLite(ctx, db))

	store := NewSQLiteStore(db, nil, time.Minute)
	t.Cleanup(store.Close)
	return store
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, newSQLiteTestStore)
}

func strPtr(s string) *string { return &s }

func mustCreateLink(t *testing.T, s Store, code, url string) *model.Link {
	t.Helper()
	link := &model.Link{ShortCode: code, OriginalURL: url, Title: strPtr("title " + code)}
	require.NoError(t, s.CreateLink(context.Background(), link))
	return link
}

func click(t *testing.T, s Store, link *model.Link, at time.Time, meta model.ClickMeta) *model.ClickEvent {
	t.Helper()
	event := model.NewClickEvent(link.ID, at, meta)
	require.NoError(t, s.IncrementClickAndRecordEvent(context.Background(), link, event))
	return event
}

// runStoreContract exercises the behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("create and get link", func(t *testing.T) {
		s := newStore(t)
		expires := base.Add(24 * time.Hour)
		link := &model.Link{
			ShortCode:   "abc123",
			OriginalURL: "https://example.com",
			Password:    strPtr("secret"),
			ExpiresAt:   &expires,
		}
		require.NoError(t, s.CreateLink(ctx, link))
		assert.NotZero(t, link.ID)

		got, err := s.GetLink(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, link.ID, got.ID)
		assert.Equal(t, "https://example.com", got.OriginalURL)
		assert.Nil(t, got.Title)
		require.NotNil(t, got.Password)
		assert.Equal(t, "secret", *got.Password)
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, expires.Equal(*got.ExpiresAt))
		assert.Equal(t, int64(0), got.ClickCount)

		cached, err := s.FindLinkByShortCode(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, link.ID, cached.ID)
	})

	t.Run("duplicate short code", func(t *testing.T) {
		s := newStore(t)
		mustCreateLink(t, s, "dup", "https://a.example")

		err := s.CreateLink(ctx, &model.Link{ShortCode: "dup", OriginalURL: "https://b.example"})
		assert.ErrorIs(t, err, ErrShortCodeTaken)

		exists, err := s.ShortCodeExists(ctx, "dup")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = s.ShortCodeExists(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("unknown code", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetLink(ctx, "missing")
		assert.ErrorIs(t, err, ErrLinkNotFound)

		_, err = s.FindLinkByShortCode(ctx, "missing")
		assert.ErrorIs(t, err, ErrLinkNotFound)
	})

	t.Run("click increments count and records event", func(t *testing.T) {
		s := newStore(t)
		link := mustCreateLink(t, s, "clk", "https://example.com")

		first := click(t, s, link, base, model.ClickMeta{ClientAddress: "10.0.0.1", UserAgent: "curl/8", Referer: "https://ref.example"})
		assert.Equal(t, int64(1), link.ClickCount)
		second := click(t, s, link, base.Add(time.Minute), model.ClickMeta{})
		assert.Equal(t, int64(2), link.ClickCount)
		assert.NotEqual(t, first.ID, second.ID)

		got, err := s.GetLink(ctx, "clk")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.ClickCount)

		events, err := s.QueryClickEvents(ctx, []int64{link.ID}, base, base.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.True(t, base.Equal(events[0].OccurredAt))
		require.NotNil(t, events[0].ClientAddress)
		assert.Equal(t, "10.0.0.1", *events[0].ClientAddress)
		require.NotNil(t, events[0].Referer)
		assert.Equal(t, "https://ref.example", *events[0].Referer)
		assert.Nil(t, events[1].UserAgent)
		assert.Nil(t, events[1].Referer)
	})

	t.Run("concurrent clicks are all counted", func(t *testing.T) {
		s := newStore(t)
		link := mustCreateLink(t, s, "busy", "https://example.com")
		const workers = 25

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				// each caller resolves its own copy of the link
				own := *link
				event := model.NewClickEvent(own.ID, base.Add(time.Duration(i)*time.Second), model.ClickMeta{})
				errs <- s.IncrementClickAndRecordEvent(ctx, &own, event)
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.GetLink(ctx, "busy")
		require.NoError(t, err)
		events, err := s.QueryClickEvents(ctx, []int64{link.ID}, base, base.Add(time.Hour))
		require.NoError(t, err)

		assert.Equal(t, int64(workers), got.ClickCount)
		assert.Len(t, events, workers)
	})

	t.Run("click on deleted link", func(t *testing.T) {
		s := newStore(t)
		link := mustCreateLink(t, s, "gone", "https://example.com")
		require.NoError(t, s.DeleteLink(ctx, "gone"))

		err := s.IncrementClickAndRecordEvent(ctx, link, model.NewClickEvent(link.ID, base, model.ClickMeta{}))
		assert.ErrorIs(t, err, ErrLinkNotFound)
	})

	t.Run("query window is inclusive and spans links", func(t *testing.T) {
		s := newStore(t)
		a := mustCreateLink(t, s, "a", "https://same.example")
		b := mustCreateLink(t, s, "b", "https://same.example")
		other := mustCreateLink(t, s, "c", "https://other.example")

		click(t, s, a, base.Add(-time.Second), model.ClickMeta{})
		click(t, s, a, base, model.ClickMeta{})
		click(t, s, b, base.Add(30*time.Minute), model.ClickMeta{})
		click(t, s, a, base.Add(time.Hour), model.ClickMeta{})
		click(t, s, other, base.Add(10*time.Minute), model.ClickMeta{})

		events, err := s.QueryClickEvents(ctx, []int64{a.ID, b.ID}, base, base.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, a.ID, events[0].LinkID)
		assert.Equal(t, b.ID, events[1].LinkID)
		assert.Equal(t, a.ID, events[2].LinkID)

		none, err := s.QueryClickEvents(ctx, nil, base, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, none)

		siblings, err := s.FindLinksByOriginalURL(ctx, "https://same.example")
		require.NoError(t, err)
		require.Len(t, siblings, 2)
		assert.Equal(t, "a", siblings[0].ShortCode)
		assert.Equal(t, "b", siblings[1].ShortCode)
	})

	t.Run("list and search", func(t *testing.T) {
		s := newStore(t)
		for _, code := range []string{"one", "two", "three"} {
			mustCreateLink(t, s, code, "https://example.com/"+code)
		}
		mustCreateLink(t, s, "four", "https://example.com/four")

		links, total, err := s.ListLinks(ctx, 2, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		assert.Len(t, links, 2)

		links, _, err = s.ListLinks(ctx, 2, 2)
		require.NoError(t, err)
		assert.Len(t, links, 2)

		found, err := s.SearchLinks(ctx, "tw", 20)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "two", found[0].ShortCode)

		found, err = s.SearchLinks(ctx, "%", 20)
		require.NoError(t, err)
		assert.Empty(t, found)

		found, err = s.SearchLinks(ctx, "", 3)
		require.NoError(t, err)
		assert.Len(t, found, 3)
	})

	t.Run("delete cascades clicks", func(t *testing.T) {
		s := newStore(t)
		link := mustCreateLink(t, s, "del", "https://example.com")
		click(t, s, link, base, model.ClickMeta{})

		require.NoError(t, s.DeleteLink(ctx, "del"))
		assert.ErrorIs(t, s.DeleteLink(ctx, "del"), ErrLinkNotFound)

		events, err := s.QueryClickEvents(ctx, []int64{link.ID}, base.Add(-time.Hour), base.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("users", func(t *testing.T) {
		s := newStore(t)
		user := &model.User{ID: uuid.NewString(), Username: "ana", Email: "ana@example.com", PasswordHash: "hash"}
		require.NoError(t, s.CreateUser(ctx, user))

		dup := &model.User{ID: uuid.NewString(), Username: "ana2", Email: "ana@example.com", PasswordHash: "hash"}
		assert.ErrorIs(t, s.CreateUser(ctx, dup), ErrEmailTaken)

		got, err := s.GetUserByEmail(ctx, "ana@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, "hash", got.PasswordHash)

		_, err = s.GetUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, `%abc%`, likePattern("abc"))
	assert.Equal(t, `%50\%\_off\\%`, likePattern(`50%_off\`))
}

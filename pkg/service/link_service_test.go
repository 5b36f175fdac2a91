package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"shortly/pkg/logging"
	"shortly/pkg/storage"
)

func newTestService(store *fakeLinkStore, users *fakeUserStore, lookup *fakeCache) *LinkService {
	gen := NewCodeGenerator(store, 6, 10, 4, 10)
	return NewLinkService(store, users, lookup, gen, logging.New("error"))
}

func testUser(limit int) *storage.User {
	return &storage.User{
		ID:         uuid.New(),
		Username:   "tester",
		Email:      "tester@example.com",
		Plan:       "FREE",
		LinksLimit: limit,
	}
}

func TestShortenGeneratesCode(t *testing.T) {
	store := newFakeLinkStore()
	user := testUser(100)
	svc := newTestService(store, newFakeUserStore(user), newFakeCache())

	link, err := svc.Shorten(context.Background(), ShortenRequest{
		OwnerID:     user.ID,
		OriginalURL: "https://example.com/a",
	})
	require.NoError(t, err)
	assert.Len(t, link.ShortCode, 6)
	assert.Equal(t, "https://example.com/a", link.OriginalURL)
	assert.True(t, link.IsActive)
	assert.False(t, link.IsCustom)
	assert.Equal(t, user.ID, link.OwnerID)
}

func TestShortenUserNotFound(t *testing.T) {
	svc := newTestService(newFakeLinkStore(), newFakeUserStore(), newFakeCache())

	_, err := svc.Shorten(context.Background(), ShortenRequest{
		OwnerID:     uuid.New(),
		OriginalURL: "https://example.com",
	})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestShortenQuotaExceeded(t *testing.T) {
	user := testUser(1)
	user.LinksCreated = 1
	svc := newTestService(newFakeLinkStore(), newFakeUserStore(user), newFakeCache())

	_, err := svc.Shorten(context.Background(), ShortenRequest{
		OwnerID:     user.ID,
		OriginalURL: "https://example.com",
	})
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestShortenInvalidURL(t *testing.T) {
	user := testUser(100)
	svc := newTestService(newFakeLinkStore(), newFakeUserStore(user), newFakeCache())

	for _, bad := range []string{"", "ftp://x", "not-a-url"} {
		_, err := svc.Shorten(context.Background(), ShortenRequest{
			OwnerID:     user.ID,
			OriginalURL: bad,
		})
		assert.ErrorIs(t, err, ErrInvalidURL, bad)
	}
}

func TestShortenCustomAlias(t *testing.T) {
	store := newFakeLinkStore()
	user := testUser(100)
	svc := newTestService(store, newFakeUserStore(user), newFakeCache())
	alias := "promo"

	link, err := svc.Shorten(context.Background(), ShortenRequest{
		OwnerID:     user.ID,
		OriginalURL: "https://example.com/x",
		CustomAlias: &alias,
	})
	require.NoError(t, err)
	assert.Equal(t, "promo", link.ShortCode)
	assert.True(t, link.IsCustom)
}

func TestShortenCustomAliasInvalidOrReserved(t *testing.T) {
	user := testUser(100)
	svc := newTestService(newFakeLinkStore(), newFakeUserStore(user), newFakeCache())

	for _, bad := range []string{"ab", "has space", "admin", "api"} {
		alias := bad
		_, err := svc.Shorten(context.Background(), ShortenRequest{
			OwnerID:     user.ID,
			OriginalURL: "https://example.com",
			CustomAlias: &alias,
		})
		assert.ErrorIs(t, err, ErrInvalidAlias, bad)
	}
}

func TestShortenCustomAliasTaken(t *testing.T) {
	store := newFakeLinkStore()
	u1, u2 := testUser(100), testUser(100)
	svc := newTestService(store, newFakeUserStore(u1, u2), newFakeCache())
	alias := "promo"

	_, err := svc.Shorten(context.Background(), ShortenRequest{
		OwnerID: u1.ID, OriginalURL: "https://x.example", CustomAlias: &alias,
	})
	require.NoError(t, err)

	_, err = svc.Shorten(context.Background(), ShortenRequest{
		OwnerID: u2.ID, OriginalURL: "https://y.example", CustomAlias: &alias,
	})
	assert.ErrorIs(t, err, ErrShortCodeTaken)
}

func TestShortenConcurrentSameAliasExactlyOneWins(t *testing.T) {
	store := newFakeLinkStore()
	u1, u2 := testUser(100), testUser(100)
	svc := newTestService(store, newFakeUserStore(u1, u2), newFakeCache())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, owner := range []uuid.UUID{u1.ID, u2.ID} {
		wg.Add(1)
		go func(i int, owner uuid.UUID) {
			defer wg.Done()
			alias := "promo"
			_, errs[i] = svc.Shorten(context.Background(), ShortenRequest{
				OwnerID: owner, OriginalURL: "https://example.com", CustomAlias: &alias,
			})
		}(i, owner)
	}
	wg.Wait()

	var taken, ok int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ErrShortCodeTaken):
			taken++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, taken)
}

func TestShortenRetriesGeneratedCodeOnInsertRace(t *testing.T) {
	store := newFakeLinkStore()
	store.insertErr = []error{storage.ErrDuplicateCode} // lose the first race
	user := testUser(100)
	svc := newTestService(store, newFakeUserStore(user), newFakeCache())

	link, err := svc.Shorten(context.Background(), ShortenRequest{
		OwnerID:     user.ID,
		OriginalURL: "https://example.com",
	})
	require.NoError(t, err)
	assert.Len(t, link.ShortCode, 6)
}

func TestShortenHashesPassword(t *testing.T) {
	store := newFakeLinkStore()
	user := testUser(100)
	svc := newTestService(store, newFakeUserStore(user), newFakeCache())
	password := "hunter2"

	link, err := svc.Shorten(context.Background(), ShortenRequest{
		OwnerID:     user.ID,
		OriginalURL: "https://example.com",
		Password:    &password,
	})
	require.NoError(t, err)
	require.NotNil(t, link.PasswordHash)
	assert.NotContains(t, *link.PasswordHash, "hunter2")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte("hunter2")))
}

func TestGetLinkOwnership(t *testing.T) {
	store := newFakeLinkStore()
	owner := uuid.New()
	seedLink(store, &storage.Link{ShortCode: "mine01", OriginalURL: "https://example.com", OwnerID: owner})
	svc := newTestService(store, newFakeUserStore(), newFakeCache())
	ctx := context.Background()

	link, err := svc.GetLink(ctx, "mine01", owner)
	require.NoError(t, err)
	assert.Equal(t, "mine01", link.ShortCode)

	_, err = svc.GetLink(ctx, "mine01", uuid.New())
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.GetLink(ctx, "nosuch", owner)
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestUpdateLinkInvalidatesCacheBeforeReturning(t *testing.T) {
	store := newFakeLinkStore()
	lookup := newFakeCache()
	owner := uuid.New()
	seedLink(store, &storage.Link{ShortCode: "upd001", OriginalURL: "https://old.example", OwnerID: owner})
	require.NoError(t, lookup.Set(context.Background(), "upd001", "https://old.example", time.Hour))

	svc := newTestService(store, newFakeUserStore(), lookup)
	newURL := "https://new.example"

	link, err := svc.UpdateLink(context.Background(), "upd001", owner, UpdateRequest{OriginalURL: &newURL})
	require.NoError(t, err)
	assert.Equal(t, newURL, link.OriginalURL)
	assert.False(t, lookup.has("upd001"), "stale destination must be gone when UpdateLink returns")
}

func TestUpdateLinkDeactivationInvalidatesCache(t *testing.T) {
	store := newFakeLinkStore()
	lookup := newFakeCache()
	owner := uuid.New()
	seedLink(store, &storage.Link{ShortCode: "off001", OriginalURL: "https://example.com", OwnerID: owner})
	require.NoError(t, lookup.Set(context.Background(), "off001", "https://example.com", time.Hour))

	svc := newTestService(store, newFakeUserStore(), lookup)
	inactive := false

	_, err := svc.UpdateLink(context.Background(), "off001", owner, UpdateRequest{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, lookup.has("off001"))
}

func TestUpdateLinkTitleOnlyKeepsCache(t *testing.T) {
	store := newFakeLinkStore()
	lookup := newFakeCache()
	owner := uuid.New()
	seedLink(store, &storage.Link{ShortCode: "ttl001", OriginalURL: "https://example.com", OwnerID: owner})
	require.NoError(t, lookup.Set(context.Background(), "ttl001", "https://example.com", time.Hour))

	svc := newTestService(store, newFakeUserStore(), lookup)
	title := "My link"

	_, err := svc.UpdateLink(context.Background(), "ttl001", owner, UpdateRequest{Title: &title})
	require.NoError(t, err)
	assert.True(t, lookup.has("ttl001"), "destination unchanged, no need to invalidate")
}

func TestUpdateLinkUnauthorized(t *testing.T) {
	store := newFakeLinkStore()
	seedLink(store, &storage.Link{ShortCode: "sec001", OriginalURL: "https://example.com", OwnerID: uuid.New()})
	svc := newTestService(store, newFakeUserStore(), newFakeCache())
	url := "https://other.example"

	_, err := svc.UpdateLink(context.Background(), "sec001", uuid.New(), UpdateRequest{OriginalURL: &url})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestDeleteLinkSoftDeletesAndInvalidates(t *testing.T) {
	store := newFakeLinkStore()
	lookup := newFakeCache()
	owner := uuid.New()
	seedLink(store, &storage.Link{ShortCode: "del001", OriginalURL: "https://example.com", OwnerID: owner})
	require.NoError(t, lookup.Set(context.Background(), "del001", "https://example.com", time.Hour))

	svc := newTestService(store, newFakeUserStore(), lookup)

	require.NoError(t, svc.DeleteLink(context.Background(), "del001", owner))
	assert.False(t, lookup.has("del001"))

	link, err := store.FindByCode(context.Background(), "del001")
	require.NoError(t, err)
	require.NotNil(t, link, "soft delete keeps the row so the code stays reserved")
	assert.False(t, link.IsActive)
}

func TestDeleteLinkUnauthorized(t *testing.T) {
	store := newFakeLinkStore()
	seedLink(store, &storage.Link{ShortCode: "del002", OriginalURL: "https://example.com", OwnerID: uuid.New()})
	svc := newTestService(store, newFakeUserStore(), newFakeCache())

	err := svc.DeleteLink(context.Background(), "del002", uuid.New())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestListLinksClampsPagination(t *testing.T) {
	store := newFakeLinkStore()
	owner := uuid.New()
	seedLink(store, &storage.Link{ShortCode: "lst001", OriginalURL: "https://example.com/1", OwnerID: owner})
	seedLink(store, &storage.Link{ShortCode: "lst002", OriginalURL: "https://example.com/2", OwnerID: owner})
	svc := newTestService(store, newFakeUserStore(), newFakeCache())

	page, err := svc.ListLinks(context.Background(), owner, -5, 1000, "clicks", "asc")
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Size)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 1, page.TotalPages)
	assert.Len(t, page.Links, 2)
}

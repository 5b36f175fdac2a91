package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"shortly/pkg/events"
	"shortly/pkg/storage"
)

type fakeLinkStore struct {
	mu           sync.Mutex
	links        map[string]*storage.Link
	nextID       int64
	findCalls    int
	addedClicks  map[string]int64
	lastAccessed map[string]time.Time

	existsErr error
	findErr   error
	insertErr []error // popped per Insert call, nil entry means success
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{
		links:        make(map[string]*storage.Link),
		addedClicks:  make(map[string]int64),
		lastAccessed: make(map[string]time.Time),
	}
}

func (s *fakeLinkStore) FindByCode(ctx context.Context, code string) (*storage.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	link, ok := s.links[code]
	if !ok {
		return nil, nil
	}
	cp := *link
	return &cp, nil
}

func (s *fakeLinkStore) ExistsByCode(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.links[code]
	return ok, nil
}

func (s *fakeLinkStore) Insert(ctx context.Context, link *storage.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.insertErr) > 0 {
		err := s.insertErr[0]
		s.insertErr = s.insertErr[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := s.links[link.ShortCode]; ok {
		return storage.ErrDuplicateCode
	}
	s.nextID++
	link.ID = s.nextID
	link.CreatedAt = time.Now()
	link.UpdatedAt = link.CreatedAt
	cp := *link
	s.links[link.ShortCode] = &cp
	return nil
}

func (s *fakeLinkStore) Update(ctx context.Context, link *storage.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link.UpdatedAt = time.Now()
	cp := *link
	s.links[link.ShortCode] = &cp
	return nil
}

func (s *fakeLinkStore) SoftDelete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if link, ok := s.links[code]; ok {
		link.IsActive = false
	}
	return nil
}

func (s *fakeLinkStore) UpdateLastAccessed(ctx context.Context, code string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccessed[code] = at
	return nil
}

func (s *fakeLinkStore) AddClicks(ctx context.Context, code string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addedClicks[code] += n
	return nil
}

func (s *fakeLinkStore) FindByOwner(ctx context.Context, owner uuid.UUID, page, size int, sortBy, order string) ([]*storage.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*storage.Link
	for _, l := range s.links {
		if l.OwnerID == owner {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeLinkStore) CountByOwner(ctx context.Context, owner uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, l := range s.links {
		if l.OwnerID == owner {
			n++
		}
	}
	return n, nil
}

func (s *fakeLinkStore) addedClicksFor(code string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addedClicks[code]
}

func (s *fakeLinkStore) lastAccessedFor(code string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.lastAccessed[code]
	return at, ok
}

func (s *fakeLinkStore) findCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findCalls
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*storage.User
}

func newFakeUserStore(users ...*storage.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[uuid.UUID]*storage.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) FindByID(ctx context.Context, id uuid.UUID) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
	clicks  map[string]int64

	getErr error
	setErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries: make(map[string]string),
		clicks:  make(map[string]int64),
	}
}

func (c *fakeCache) Get(ctx context.Context, code string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	url, ok := c.entries[code]
	return url, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, code, url string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[code] = url
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, code)
	return nil
}

func (c *fakeCache) IncrementClick(ctx context.Context, code string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clicks[code]++
	return c.clicks[code], nil
}

func (c *fakeCache) GetClickCount(ctx context.Context, code string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clicks[code], nil
}

func (c *fakeCache) has(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[code]
	return ok
}

func (c *fakeCache) clicksFor(code string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clicks[code]
}

type fakeSink struct {
	ch chan events.ClickEvent
}

func newFakeSink() *fakeSink {
	return &fakeSink{ch: make(chan events.ClickEvent, 16)}
}

func (s *fakeSink) Publish(ctx context.Context, ev events.ClickEvent) error {
	s.ch <- ev
	return nil
}

package fanout_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/bharti-cmyk/instagram/db"
	"github.com/bharti-cmyk/instagram/fanout"
	"github.com/bharti-cmyk/instagram/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	authors   map[int64]*models.Author
	followers map[int64][]int64
	storeErr  error
}

func (s *fakeStore) GetAuthor(_ context.Context, id int64) (*models.Author, error) {
	if s.storeErr != nil {
		return nil, s.storeErr
	}
	author, ok := s.authors[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return author, nil
}

func (s *fakeStore) FollowerIDs(_ context.Context, userID int64) ([]int64, error) {
	if s.storeErr != nil {
		return nil, s.storeErr
	}
	return s.followers[userID], nil
}

// fakeCache implements the timeline cache contract: upsert into a bounded
// set, keeping only the maxSize highest post ids.
type fakeCache struct {
	maxSize int
	entries map[int64]map[int64]bool
	pushErr error
}

func newFakeCache(maxSize int) *fakeCache {
	return &fakeCache{
		maxSize: maxSize,
		entries: make(map[int64]map[int64]bool),
	}
}

func (c *fakeCache) Push(_ context.Context, followerID int64, postID int64) error {
	if c.pushErr != nil {
		return c.pushErr
	}

	entry := c.entries[followerID]
	if entry == nil {
		entry = make(map[int64]bool)
		c.entries[followerID] = entry
	}
	entry[postID] = true

	// Deterministic trim: drop the lowest ids beyond maxSize
	if len(entry) > c.maxSize {
		ids := make([]int64, 0, len(entry))
		for id := range entry {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids[:len(ids)-c.maxSize] {
			delete(entry, id)
		}
	}

	return nil
}

func (c *fakeCache) ids(followerID int64) []int64 {
	ids := make([]int64, 0, len(c.entries[followerID]))
	for id := range c.entries[followerID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type fakeNotifier struct {
	created []models.FanoutJob
}

func (n *fakeNotifier) PostCreated(authorID int64, postID int64) {
	n.created = append(n.created, models.FanoutJob{AuthorID: authorID, PostID: postID})
}

func fixtureStore() *fakeStore {
	return &fakeStore{
		authors: map[int64]*models.Author{
			2: {ID: 2, Username: "bob"},
			4: {ID: 4, Username: "megastar", IsCelebrity: true},
		},
		followers: map[int64][]int64{
			2: {1, 3},
			4: {1, 2, 3},
		},
	}
}

func TestHandlePushesToFollowers(t *testing.T) {
	store := fixtureStore()
	cache := newFakeCache(100)
	notifier := &fakeNotifier{}
	worker := fanout.NewWorker(store, cache, notifier)

	err := worker.Handle(context.Background(), models.FanoutJob{AuthorID: 2, PostID: 100})
	require.NoError(t, err)

	assert.Equal(t, []int64{100}, cache.ids(1))
	assert.Equal(t, []int64{100}, cache.ids(3))
	assert.Empty(t, cache.ids(2), "non-followers get nothing")
	assert.Len(t, notifier.created, 1)
}

func TestHandleIdempotent(t *testing.T) {
	store := fixtureStore()
	cache := newFakeCache(100)
	worker := fanout.NewWorker(store, cache, nil)

	job := models.FanoutJob{AuthorID: 2, PostID: 100}
	require.NoError(t, worker.Handle(context.Background(), job))

	before1, before3 := cache.ids(1), cache.ids(3)

	// At-least-once delivery: the same job arrives again
	require.NoError(t, worker.Handle(context.Background(), job))

	assert.Equal(t, before1, cache.ids(1))
	assert.Equal(t, before3, cache.ids(3))
}

func TestHandleCelebrityNeverPushes(t *testing.T) {
	store := fixtureStore()
	cache := newFakeCache(100)
	worker := fanout.NewWorker(store, cache, nil)

	err := worker.Handle(context.Background(), models.FanoutJob{AuthorID: 4, PostID: 200})
	require.NoError(t, err)

	assert.Empty(t, cache.entries)
}

func TestHandleAuthorNotFoundDropsJob(t *testing.T) {
	store := fixtureStore()
	cache := newFakeCache(100)
	worker := fanout.NewWorker(store, cache, nil)

	err := worker.Handle(context.Background(), models.FanoutJob{AuthorID: 999, PostID: 100})
	require.Error(t, err)

	var permanent *backoff.PermanentError
	assert.ErrorAs(t, err, &permanent, "stale author reference must not be retried")
	assert.Empty(t, cache.entries)
}

func TestHandleTransientStoreErrorRetries(t *testing.T) {
	store := fixtureStore()
	store.storeErr = errors.New("connection reset")
	worker := fanout.NewWorker(store, newFakeCache(100), nil)

	err := worker.Handle(context.Background(), models.FanoutJob{AuthorID: 2, PostID: 100})
	require.Error(t, err)

	var permanent *backoff.PermanentError
	assert.False(t, errors.As(err, &permanent), "transient failures must stay retryable")
}

func TestHandleCacheErrorRetries(t *testing.T) {
	store := fixtureStore()
	cache := newFakeCache(100)
	cache.pushErr = errors.New("redis down")
	worker := fanout.NewWorker(store, cache, nil)

	err := worker.Handle(context.Background(), models.FanoutJob{AuthorID: 2, PostID: 100})
	require.Error(t, err)

	var permanent *backoff.PermanentError
	assert.False(t, errors.As(err, &permanent))
}

func TestHandleNoFollowers(t *testing.T) {
	store := fixtureStore()
	store.followers[2] = nil
	cache := newFakeCache(100)
	notifier := &fakeNotifier{}
	worker := fanout.NewWorker(store, cache, notifier)

	err := worker.Handle(context.Background(), models.FanoutJob{AuthorID: 2, PostID: 100})
	require.NoError(t, err)

	assert.Empty(t, cache.entries)
	assert.Empty(t, notifier.created)
}

func TestHandleCacheStaysBounded(t *testing.T) {
	store := fixtureStore()
	cache := newFakeCache(3)
	worker := fanout.NewWorker(store, cache, nil)

	for postID := int64(100); postID <= 150; postID += 10 {
		job := models.FanoutJob{AuthorID: 2, PostID: postID}
		require.NoError(t, worker.Handle(context.Background(), job))
	}

	// Only the highest scored ids survive the trim
	assert.Equal(t, []int64{130, 140, 150}, cache.ids(1))
	assert.Equal(t, []int64{130, 140, 150}, cache.ids(3))
}

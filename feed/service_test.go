package feed_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/bharti-cmyk/instagram/feed"
	"github.com/bharti-cmyk/instagram/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	posts    map[int64]models.FeedPost
	lastSeen map[int64]int64
	pullErr  error
}

func (s *fakeStore) FindByIDs(_ context.Context, _ int64, ids []int64) ([]models.FeedPost, error) {
	var posts []models.FeedPost
	for _, id := range ids {
		if post, ok := s.posts[id]; ok {
			posts = append(posts, post)
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].ID > posts[j].ID })
	return posts, nil
}

func (s *fakeStore) FindByAuthors(_ context.Context, authorIDs []int64, bound int64, newer bool, limit int) ([]int64, error) {
	if s.pullErr != nil {
		return nil, s.pullErr
	}

	authors := make(map[int64]bool)
	for _, id := range authorIDs {
		authors[id] = true
	}

	var ids []int64
	for id, post := range s.posts {
		if !authors[post.AuthorID] {
			continue
		}
		if bound != 0 {
			if newer && id <= bound {
				continue
			}
			if !newer && id >= bound {
				continue
			}
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *fakeStore) UpdateLastSeen(_ context.Context, userID int64, postID int64) error {
	if s.lastSeen == nil {
		s.lastSeen = make(map[int64]int64)
	}
	s.lastSeen[userID] = postID
	return nil
}

type fakeCache struct {
	entries map[int64][]int64 // userID -> post ids, any order
	err     error
}

func (c *fakeCache) RangeBefore(_ context.Context, userID int64, cursor int64, limit int) ([]int64, error) {
	if c.err != nil {
		return nil, c.err
	}
	ids := append([]int64(nil), c.entries[userID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	var result []int64
	for _, id := range ids {
		if cursor != 0 && id >= cursor {
			continue
		}
		result = append(result, id)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (c *fakeCache) RangeAfter(_ context.Context, userID int64, after int64) ([]int64, error) {
	if c.err != nil {
		return nil, c.err
	}
	ids := append([]int64(nil), c.entries[userID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var result []int64
	for _, id := range ids {
		if id > after {
			result = append(result, id)
		}
	}
	return result, nil
}

type fakeGraph struct {
	followees map[int64][]models.Followee
	err       error
}

func (g *fakeGraph) Followees(_ context.Context, userID int64) ([]models.Followee, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.followees[userID], nil
}

func (g *fakeGraph) FollowerIDs(_ context.Context, _ int64) ([]int64, error) {
	return nil, nil
}

func post(id int64, authorID int64) models.FeedPost {
	return models.FeedPost{
		Post: models.Post{
			ID:        id,
			AuthorID:  authorID,
			CreatedAt: time.Now(),
		},
	}
}

// The fixture from the hybrid pipeline scenario: user 1 follows normal
// author 2 and celebrity 4. Author 2's post (id 100) was pushed into
// user 1's timeline cache at write time; celebrity 4's post (id 200)
// is only in the store.
func scenarioFixture() (*fakeStore, *fakeCache, *fakeGraph) {
	store := &fakeStore{
		posts: map[int64]models.FeedPost{
			100: post(100, 2),
			200: post(200, 4),
		},
	}
	cache := &fakeCache{
		entries: map[int64][]int64{1: {100}},
	}
	reader := &fakeGraph{
		followees: map[int64][]models.Followee{
			1: {
				{ID: 2, IsCelebrity: false},
				{ID: 4, IsCelebrity: true},
			},
		},
	}
	return store, cache, reader
}

func newService(store *fakeStore, cache *fakeCache, reader *fakeGraph) *feed.Service {
	return feed.NewService(store, cache, reader, feed.Options{
		DefaultLimit:  10,
		MaxLimit:      100,
		LookupTimeout: time.Second,
	})
}

func TestGetUserFeedMergesPushAndPull(t *testing.T) {
	store, cache, reader := scenarioFixture()
	service := newService(store, cache, reader)

	response, err := service.GetUserFeed(context.Background(), 1, "", 10, "")
	require.NoError(t, err)

	require.Len(t, response.Posts, 2)
	assert.Equal(t, int64(200), response.Posts[0].ID)
	assert.Equal(t, int64(100), response.Posts[1].ID)

	require.NotNil(t, response.NextCursor)
	assert.Equal(t, "100", *response.NextCursor)

	assert.Equal(t, int64(200), store.lastSeen[1])
}

func TestGetUserFeedNoFollowees(t *testing.T) {
	store := &fakeStore{posts: map[int64]models.FeedPost{}}
	cache := &fakeCache{entries: map[int64][]int64{}}
	reader := &fakeGraph{followees: map[int64][]models.Followee{}}
	service := newService(store, cache, reader)

	response, err := service.GetUserFeed(context.Background(), 1, "", 10, "")
	require.NoError(t, err)

	assert.Empty(t, response.Posts)
	assert.Nil(t, response.NextCursor)
	assert.NotContains(t, store.lastSeen, int64(1))
}

func TestGetUserFeedBackwardPagination(t *testing.T) {
	store, cache, reader := scenarioFixture()
	service := newService(store, cache, reader)

	response, err := service.GetUserFeed(context.Background(), 1, "100", 10, "")
	require.NoError(t, err)

	assert.Empty(t, response.Posts)
	assert.Nil(t, response.NextCursor)
}

func TestGetUserFeedCatchUp(t *testing.T) {
	store, cache, reader := scenarioFixture()
	service := newService(store, cache, reader)

	response, err := service.GetUserFeed(context.Background(), 1, "", 10, "100")
	require.NoError(t, err)

	require.Len(t, response.Posts, 1)
	assert.Equal(t, int64(200), response.Posts[0].ID)
	// Catch-up mode has no further pagination concept
	assert.Nil(t, response.NextCursor)
}

func TestGetUserFeedRespectsLimit(t *testing.T) {
	store := &fakeStore{posts: map[int64]models.FeedPost{}}
	cache := &fakeCache{entries: map[int64][]int64{1: {}}}
	reader := &fakeGraph{followees: map[int64][]models.Followee{
		1: {{ID: 2, IsCelebrity: false}, {ID: 4, IsCelebrity: true}},
	}}

	// 20 posts, half pushed, half from the celebrity
	for i := int64(1); i <= 10; i++ {
		id := i * 10
		store.posts[id] = post(id, 2)
		cache.entries[1] = append(cache.entries[1], id)
	}
	for i := int64(1); i <= 10; i++ {
		id := i*10 + 5
		store.posts[id] = post(id, 4)
	}

	service := newService(store, cache, reader)

	response, err := service.GetUserFeed(context.Background(), 1, "", 7, "")
	require.NoError(t, err)

	assert.Len(t, response.Posts, 7)
	for i := 1; i < len(response.Posts); i++ {
		assert.Greater(t, response.Posts[i-1].ID, response.Posts[i].ID)
	}
	require.NotNil(t, response.NextCursor)
	assert.Equal(t, "75", *response.NextCursor)
}

func TestGetUserFeedDegradesWhenCacheUnavailable(t *testing.T) {
	store, cache, reader := scenarioFixture()
	cache.err = errors.New("connection refused")
	service := newService(store, cache, reader)

	response, err := service.GetUserFeed(context.Background(), 1, "", 10, "")
	require.NoError(t, err)

	// Pull path still serves the celebrity post
	require.Len(t, response.Posts, 1)
	assert.Equal(t, int64(200), response.Posts[0].ID)
}

func TestGetUserFeedFailsWhenPullUnavailable(t *testing.T) {
	store, cache, reader := scenarioFixture()
	store.pullErr = errors.New("store down")
	service := newService(store, cache, reader)

	_, err := service.GetUserFeed(context.Background(), 1, "", 10, "")
	assert.Error(t, err)
}

func TestGetUserFeedFailsWhenGraphUnavailable(t *testing.T) {
	store, cache, reader := scenarioFixture()
	reader.err = errors.New("graph down")
	service := newService(store, cache, reader)

	_, err := service.GetUserFeed(context.Background(), 1, "", 10, "")
	assert.Error(t, err)
}

func TestGetUserFeedDuplicateAcrossSources(t *testing.T) {
	store, cache, reader := scenarioFixture()
	// The celebrity's post id somehow also sits in the cache entry;
	// the page must not contain it twice.
	cache.entries[1] = append(cache.entries[1], 200)
	service := newService(store, cache, reader)

	response, err := service.GetUserFeed(context.Background(), 1, "", 10, "")
	require.NoError(t, err)

	require.Len(t, response.Posts, 2)
	assert.Equal(t, int64(200), response.Posts[0].ID)
	assert.Equal(t, int64(100), response.Posts[1].ID)
}
